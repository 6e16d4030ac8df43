package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// Memory is an in-process Source. Records are injected with Push.
type Memory struct {
	mu      sync.Mutex
	next    Handle
	handles map[string]Handle
	paths   map[Handle]string
	failing map[string]error
	removed []Handle
	pending chan []Record
	closed  bool
}

// NewMemory returns an empty in-process source.
func NewMemory() *Memory {
	return &Memory{
		next:    1,
		handles: make(map[string]Handle),
		paths:   make(map[Handle]string),
		failing: make(map[string]error),
		pending: make(chan []Record, 64),
	}
}

// Fail makes subsequent Add calls for path return err.
func (m *Memory) Fail(path string, err error) {
	m.mu.Lock()
	m.failing[filepath.Clean(path)] = err
	m.mu.Unlock()
}

// Add subscribes to path, which must exist on disk.
func (m *Memory) Add(path string) (Handle, error) {
	clean := filepath.Clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NoHandle, ErrClosed
	}
	if err, ok := m.failing[clean]; ok {
		return NoHandle, &os.PathError{Op: "watch", Path: clean, Err: err}
	}
	if _, err := os.Stat(clean); err != nil {
		return NoHandle, err
	}
	if h, ok := m.handles[clean]; ok {
		return h, nil
	}

	h := m.next
	m.next++
	m.handles[clean] = h
	m.paths[h] = clean
	return h, nil
}

func (m *Memory) Remove(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path, ok := m.paths[h]; ok {
		delete(m.paths, h)
		delete(m.handles, path)
		m.removed = append(m.removed, h)
	}
	return nil
}

// HandleFor returns the handle subscribed for path.
func (m *Memory) HandleFor(path string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[filepath.Clean(path)]
	return h, ok
}

// Removed lists handles released through Remove.
func (m *Memory) Removed() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Handle(nil), m.removed...)
}

// Watched returns the number of live subscriptions.
func (m *Memory) Watched() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paths)
}

// Push queues one batch for Stream.
func (m *Memory) Push(records ...Record) {
	m.pending <- records
}

func (m *Memory) Stream(ctx context.Context, out chan<- []Record) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-m.pending:
			if !send(ctx, out, batch) {
				return nil
			}
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ Source = (*Memory)(nil)
