package stats

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/dhcgn/maildirwatch/model"
	"github.com/dhcgn/maildirwatch/registry"
)

// Lister provides the folders to scan.
type Lister interface {
	List() []*registry.Folder
}

// FolderCount is the unread tally of one folder.
type FolderCount struct {
	Folder string
	Path   string
	Unread int
}

// Report is the result of one scan.
type Report struct {
	Total   int
	Folders []FolderCount
}

func (r Report) LogAttrs() []any {
	attrs := []any{
		"totalUnread", r.Total,
		"folders", len(r.Folders),
	}
	for _, f := range r.Folders {
		attrs = append(attrs, f.Folder, f.Unread)
	}
	return attrs
}

// Count rescans the cur and new directories of every folder and tallies
// unread messages. The per-folder breakdown follows registry order and is only
// filled when perFolder is set. Directories that cannot be listed count as zero.
func Count(folders Lister, perFolder bool) Report {
	var report Report
	for _, f := range folders.List() {
		unread := 0
		for _, sub := range model.Subdirs {
			unread += countDir(f.SubdirPath(sub))
		}
		if perFolder {
			report.Folders = append(report.Folders, FolderCount{Folder: f.Name, Path: f.Path, Unread: unread})
		}
		report.Total += unread
	}
	return report
}

func countDir(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	unread := 0
	for _, ent := range entries {
		name := ent.Name()
		if !ent.Type().IsRegular() || name == "." || name == ".." {
			continue
		}
		if model.Classify(name) == model.Unread {
			unread++
		}
	}
	return unread
}

// WriteText prints the report in the line format consumed by status bars.
func WriteText(w io.Writer, report Report) error {
	for _, f := range report.Folders {
		if _, err := fmt.Fprintf(w, "%s: unread messages %d\n", f.Folder, f.Unread); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total unread: %d\n", report.Total)
	return err
}

// WriteTable renders the report as a table for interactive use.
func WriteTable(w io.Writer, report Report) error {
	data := pterm.TableData{{"Folder", "Path", "Unread"}}
	for _, f := range report.Folders {
		data = append(data, []string{f.Folder, f.Path, strconv.Itoa(f.Unread)})
	}
	data = append(data, []string{"total", "", strconv.Itoa(report.Total)})

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
