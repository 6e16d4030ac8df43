package model

import "strings"

// Status is the read state encoded in a maildir filename.
type Status int

const (
	Unread Status = iota
	Read
	Unknown
)

func (s Status) String() string {
	switch s {
	case Unread:
		return "unread"
	case Read:
		return "read"
	default:
		return "unknown"
	}
}

// Classify reports whether a maildir filename denotes a read message.
//
// The first ":2" anywhere in the name starts the flags segment; the message is
// Read when an 'S' follows it. Names without ":2" have not been flagged yet and
// are Unread. The segment is not checked for the "," separator, which matches
// what deployed maildir tooling produces and must stay that way.
func Classify(name string) Status {
	idx := strings.Index(name, ":2")
	if idx < 0 {
		return Unread
	}
	if strings.IndexByte(name[idx+2:], 'S') >= 0 {
		return Read
	}
	return Unread
}
