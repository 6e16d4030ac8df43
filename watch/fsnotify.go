package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Fsnotify is a portable Source backed by fsnotify.
//
// fsnotify reports renames into a directory as Create, so every Create is
// translated to MovedTo. Events for the watched directories themselves are
// dropped.
type Fsnotify struct {
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	next    Handle
	handles map[string]Handle
	paths   map[Handle]string
}

// NewFsnotify creates an fsnotify watcher.
func NewFsnotify() (*Fsnotify, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	return &Fsnotify{
		watcher: w,
		handles: make(map[string]Handle),
		paths:   make(map[Handle]string),
	}, nil
}

func (f *Fsnotify) Add(path string) (Handle, error) {
	clean := filepath.Clean(path)
	if _, err := os.Stat(clean); err != nil {
		return NoHandle, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.handles[clean]; ok {
		return h, nil
	}
	if err := f.watcher.Add(clean); err != nil {
		return NoHandle, &os.PathError{Op: "fsnotify_add", Path: clean, Err: err}
	}

	h := f.next
	f.next++
	f.handles[clean] = h
	f.paths[h] = clean
	return h, nil
}

func (f *Fsnotify) Remove(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, ok := f.paths[h]
	if !ok {
		return nil
	}
	delete(f.paths, h)
	delete(f.handles, path)
	if err := f.watcher.Remove(path); err != nil {
		return fmt.Errorf("fsnotify remove %s: %w", path, err)
	}
	return nil
}

func (f *Fsnotify) Stream(ctx context.Context, out chan<- []Record) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			if err == fsnotify.ErrEventOverflow {
				return ErrOverflow
			}
			return fmt.Errorf("fsnotify: %w", err)
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			batch := f.appendRecord(nil, event)
			batch = f.drainPending(batch)
			if len(batch) == 0 {
				continue
			}
			if !send(ctx, out, batch) {
				return nil
			}
		}
	}
}

// drainPending collects events that are already queued without blocking.
func (f *Fsnotify) drainPending(batch []Record) []Record {
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return batch
			}
			batch = f.appendRecord(batch, event)
		default:
			return batch
		}
	}
}

func (f *Fsnotify) appendRecord(batch []Record, event fsnotify.Event) []Record {
	name := filepath.Clean(event.Name)

	f.mu.Lock()
	_, self := f.handles[name]
	h, ok := f.handles[filepath.Dir(name)]
	f.mu.Unlock()

	if self {
		return batch
	}
	if !ok {
		h = NoHandle
	}

	var flags Flags
	if event.Has(fsnotify.Create) {
		flags |= MovedTo
	}
	if info, err := os.Lstat(name); err == nil && info.IsDir() {
		flags |= IsDir
	}

	return append(batch, Record{Handle: h, Name: filepath.Base(name), Flags: flags})
}

func (f *Fsnotify) Close() error {
	return f.watcher.Close()
}

var _ Source = (*Fsnotify)(nil)
