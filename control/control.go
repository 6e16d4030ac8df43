// Package control interprets single-character commands from the control
// channel.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dhcgn/maildirwatch/output"
	"github.com/dhcgn/maildirwatch/registry"
	"github.com/dhcgn/maildirwatch/stats"
)

// Commands understood by the Dispatcher.
const (
	CmdDetailedStats byte = 'l'
	CmdSummaryStats  byte = 'i'
	CmdToggleSubject byte = 's'
	CmdDumpRegistry  byte = 'd'
)

// Folders is the registry view the dispatcher needs.
type Folders interface {
	List() []*registry.Folder
}

// Dispatcher maps commands to stats, registry and printer operations.
type Dispatcher struct {
	folders Folders
	printer *output.Printer
	logger  *slog.Logger
}

func NewDispatcher(folders Folders, printer *output.Printer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{folders: folders, printer: printer, logger: logger}
}

// Dispatch runs one command. Unknown commands are ignored; the returned error
// only reports output failures.
func (d *Dispatcher) Dispatch(cmd byte) error {
	switch cmd {
	case CmdDetailedStats:
		report := stats.Count(d.folders, true)
		d.logger.Debug("unread stats", report.LogAttrs()...)
		return d.printer.Stats(report)
	case CmdSummaryStats:
		report := stats.Count(d.folders, false)
		d.logger.Debug("unread stats", report.LogAttrs()...)
		return d.printer.Stats(report)
	case CmdToggleSubject:
		d.logger.Info("subject mode toggled", "subject", d.printer.ToggleSubject())
		return nil
	case CmdDumpRegistry:
		return d.printer.Folders(d.folders.List())
	default:
		d.logger.Debug("ignoring control command", "command", fmt.Sprintf("%q", cmd))
		return nil
	}
}

// Read forwards the first byte of every non-empty line of r to out. It
// returns nil at end of input or when ctx is done.
func Read(ctx context.Context, r io.Reader, out chan<- byte) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 && line[0] != '\n' && line[0] != '\r' {
			select {
			case <-ctx.Done():
				return nil
			case out <- line[0]:
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read control channel: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
