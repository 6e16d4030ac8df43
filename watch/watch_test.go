package watch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("kqueue"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestFlagsString(t *testing.T) {
	tests := []struct {
		flags Flags
		want  string
	}{
		{0, "none"},
		{IsDir, "dir"},
		{MovedTo, "moved_to"},
		{IsDir | MovedTo, "dir|moved_to"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("Flags(%d).String() = %q, want %q", tt.flags, got, tt.want)
		}
	}
}

func TestHandleValid(t *testing.T) {
	if NoHandle.Valid() {
		t.Error("NoHandle must not be valid")
	}
	if NoHandle.String() != "-" {
		t.Errorf("NoHandle.String() = %q", NoHandle.String())
	}
	if !Handle(0).Valid() {
		t.Error("handle 0 must be valid")
	}
}

func TestMemorySource(t *testing.T) {
	m := NewMemory()
	dir := t.TempDir()

	h, err := m.Add(dir)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, ok := m.HandleFor(dir); !ok || got != h {
		t.Fatalf("HandleFor = %v, %v", got, ok)
	}

	if _, err := m.Add(filepath.Join(dir, "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}

	denied := filepath.Join(dir, "denied")
	m.Fail(denied, fs.ErrPermission)
	if _, err := m.Add(denied); !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected fs.ErrPermission, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan []Record, 1)
	done := make(chan error, 1)
	go func() { done <- m.Stream(ctx, out) }()

	m.Push(Record{Handle: h, Name: "a", Flags: MovedTo}, Record{Handle: h, Name: "b", Flags: MovedTo})
	batch := <-out
	if len(batch) != 2 || batch[0].Name != "a" || batch[1].Name != "b" {
		t.Fatalf("unexpected batch %+v", batch)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if err := m.Remove(h); err != nil {
		t.Fatal(err)
	}
	if m.Watched() != 0 || len(m.Removed()) != 1 {
		t.Fatalf("Remove not tracked: watched=%d removed=%v", m.Watched(), m.Removed())
	}
}
