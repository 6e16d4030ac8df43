// Package watch delivers filesystem change notifications for maildir
// subdirectories.
//
// A Source hands out one opaque Handle per subscribed path. Stream blocks until
// notifications are pending, drains all of them and sends them as a single
// batch, so records reach the consumer in the order the kernel queued them.
package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOverflow indicates the kernel dropped notifications.
	ErrOverflow = errors.New("notification queue overflow")

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown watch backend")

	// ErrClosed indicates the source was used after Close.
	ErrClosed = errors.New("watch source closed")
)

// Handle identifies one subscription.
type Handle int

// NoHandle marks a subdirectory that is not subscribed.
const NoHandle Handle = -1

// Valid reports whether h refers to a subscription.
func (h Handle) Valid() bool {
	return h >= 0
}

func (h Handle) String() string {
	if !h.Valid() {
		return "-"
	}
	return fmt.Sprintf("%d", int(h))
}

// Flags describe the kind of change in a Record.
type Flags uint32

const (
	// IsDir is set when the changed entry is a directory.
	IsDir Flags = 1 << iota
	// MovedTo is set when the entry was renamed into the watched directory.
	MovedTo
)

func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

func (f Flags) String() string {
	var parts []string
	if f.Has(IsDir) {
		parts = append(parts, "dir")
	}
	if f.Has(MovedTo) {
		parts = append(parts, "moved_to")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Record is one change notification.
type Record struct {
	Handle Handle
	// Name is the entry name relative to the watched directory. It may be empty.
	Name  string
	Flags Flags
}

// Source is a change-notification subscription.
type Source interface {
	// Add subscribes to entries moved into path. The returned error wraps
	// fs.ErrNotExist when path does not exist.
	Add(path string) (Handle, error)

	// Remove drops a subscription.
	Remove(h Handle) error

	// Stream sends record batches to out until ctx is done or the source
	// fails. It returns nil once ctx is cancelled.
	Stream(ctx context.Context, out chan<- []Record) error

	// Close releases the source.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)

// Open creates a Source for the named backend.
func Open(backend string) (Source, error) {
	switch backend {
	case BackendInotify, "":
		return NewInotify()
	case BackendFsnotify:
		return NewFsnotify()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

func send(ctx context.Context, out chan<- []Record, batch []Record) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- batch:
		return true
	}
}
