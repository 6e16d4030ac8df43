//go:build !linux

package watch

import (
	"context"
	"fmt"
)

// Inotify is only available on linux.
type Inotify struct{}

// NewInotify reports that inotify is unavailable; use the fsnotify backend.
func NewInotify() (*Inotify, error) {
	return nil, fmt.Errorf("%w: inotify requires linux", ErrUnknownBackend)
}

func (*Inotify) Add(string) (Handle, error)                    { return NoHandle, ErrClosed }
func (*Inotify) Remove(Handle) error                           { return ErrClosed }
func (*Inotify) Stream(context.Context, chan<- []Record) error { return ErrClosed }
func (*Inotify) Close() error                                  { return nil }
