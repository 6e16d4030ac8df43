package model

// Subdir identifies one of the two watched maildir subdirectories.
type Subdir int

const (
	Cur Subdir = iota
	New
)

// Subdirs lists the watched subdirectories in scan order.
var Subdirs = [...]Subdir{Cur, New}

func (s Subdir) String() string {
	if s == New {
		return "new"
	}
	return "cur"
}

// Message is a newly delivered message about to be reported.
type Message struct {
	Folder string
	Subdir Subdir
	Name   string
	Path   string

	Subject    string
	From       string
	HasSubject bool
	HasFrom    bool
}
