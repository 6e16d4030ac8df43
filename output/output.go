// Package output writes reports to the downstream consumer, either as plain
// text lines or as one JSON object per line.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Soft/iter"

	"github.com/dhcgn/maildirwatch/header"
	"github.com/dhcgn/maildirwatch/model"
	"github.com/dhcgn/maildirwatch/registry"
	"github.com/dhcgn/maildirwatch/stats"
)

// Format selects the serialisation.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Printer serialises reports. It is owned by the event loop and not safe for
// concurrent use.
type Printer struct {
	w       io.Writer
	format  Format
	subject bool
	enc     *json.Encoder
}

// New creates a Printer. subject enables "path : subject" lines in text mode.
func New(w io.Writer, format Format, subject bool) *Printer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Printer{w: w, format: format, subject: subject, enc: enc}
}

func (p *Printer) Format() Format {
	return p.format
}

// Subject reports whether subject mode is on.
func (p *Printer) Subject() bool {
	return p.subject
}

// ToggleSubject flips subject mode and returns the new state.
func (p *Printer) ToggleSubject() bool {
	p.subject = !p.subject
	return p.subject
}

// Want reports the header fields the current mode prints.
func (p *Printer) Want() header.Want {
	switch {
	case p.format == FormatJSON:
		return header.Both
	case p.subject:
		return header.Subject
	default:
		return header.None
	}
}

type messageRecord struct {
	Folder  string `json:"folder"`
	Path    string `json:"path"`
	From    string `json:"from"`
	Subject string `json:"subject"`
}

// Message prints one new-message report.
func (p *Printer) Message(msg model.Message) error {
	if p.format == FormatJSON {
		return p.enc.Encode(messageRecord{Folder: msg.Folder, Path: msg.Path, From: msg.From, Subject: msg.Subject})
	}
	if p.subject {
		_, err := fmt.Fprintf(p.w, "New message: %s : %s\n", msg.Path, msg.Subject)
		return err
	}
	_, err := fmt.Fprintf(p.w, "New message: %s\n", msg.Path)
	return err
}

type folderCount struct {
	Folder string `json:"folder"`
	Unread int    `json:"unread"`
}

type statsRecord struct {
	TotalUnread int           `json:"total_unread"`
	Folders     []folderCount `json:"folders,omitempty"`
}

// Stats prints an unread report; per-folder lines appear when the report has them.
func (p *Printer) Stats(report stats.Report) error {
	if p.format != FormatJSON {
		return stats.WriteText(p.w, report)
	}
	rec := statsRecord{TotalUnread: report.Total}
	for _, f := range report.Folders {
		rec.Folders = append(rec.Folders, folderCount{Folder: f.Folder, Unread: f.Unread})
	}
	return p.enc.Encode(rec)
}

type folderRecord struct {
	Folder string `json:"folder"`
	Path   string `json:"path"`
	Cur    string `json:"cur"`
	New    string `json:"new"`
}

// Folders dumps the registry in list order.
func (p *Printer) Folders(folders []*registry.Folder) error {
	records := iter.ToSlice(iter.Map(iter.Slice(folders), func(f *registry.Folder) folderRecord {
		return folderRecord{Folder: f.Name, Path: f.Path, Cur: f.Cur.String(), New: f.New.String()}
	}))

	if p.format == FormatJSON {
		if records == nil {
			records = []folderRecord{}
		}
		return p.enc.Encode(struct {
			Folders []folderRecord `json:"folders"`
		}{records})
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(p.w, "%s\t%s\tcur=%s\tnew=%s\n", r.Folder, r.Path, r.Cur, r.New); err != nil {
			return err
		}
	}
	return nil
}

// Ready announces that discovery finished and events are being watched.
func (p *Printer) Ready() error {
	if p.format == FormatJSON {
		return p.enc.Encode(struct {
			Ready bool `json:"ready"`
		}{true})
	}
	_, err := fmt.Fprintln(p.w, "READY")
	return err
}
