package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFsnotifyAddMissing(t *testing.T) {
	f, err := NewFsnotify()
	if err != nil {
		t.Fatalf("NewFsnotify: %v", err)
	}
	defer f.Close()

	if _, err := f.Add(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestFsnotifySameDirectorySameHandle(t *testing.T) {
	f, err := NewFsnotify()
	if err != nil {
		t.Fatalf("NewFsnotify: %v", err)
	}
	defer f.Close()

	dir := t.TempDir()
	a, err := f.Add(dir)
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.Add(dir + string(filepath.Separator))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected same handle, got %v and %v", a, b)
	}
}

func TestFsnotifyStreamRename(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "new")
	if err := os.Mkdir(watched, 0o700); err != nil {
		t.Fatal(err)
	}

	f, err := NewFsnotify()
	if err != nil {
		t.Fatalf("NewFsnotify: %v", err)
	}
	defer f.Close()

	h, err := f.Add(watched)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan []Record, 4)
	go func() { _ = f.Stream(ctx, out) }()

	src := filepath.Join(dir, "msg")
	if err := os.WriteFile(src, []byte("Subject: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(src, filepath.Join(watched, "msg")); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case batch := <-out:
			for _, rec := range batch {
				if rec.Name == "msg" && rec.Flags.Has(MovedTo) {
					if rec.Handle != h {
						t.Fatalf("handle %v, want %v", rec.Handle, h)
					}
					return
				}
			}
		case <-timeout:
			t.Fatal("timed out waiting for rename")
		}
	}
}
