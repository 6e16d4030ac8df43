package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-maildir"

	"github.com/dhcgn/maildirwatch/control"
	"github.com/dhcgn/maildirwatch/filter"
	"github.com/dhcgn/maildirwatch/output"
	"github.com/dhcgn/maildirwatch/registry"
	"github.com/dhcgn/maildirwatch/router"
	"github.com/dhcgn/maildirwatch/watch"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func waitFor(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q, output:\n%s", want, buf.String())
}

type fixture struct {
	root   string
	inbox  string
	source *watch.Memory
	reg    *registry.Registry
	out    *syncBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"Inbox", "Sent"} {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(path, 0o700); err != nil {
			t.Fatal(err)
		}
		if err := maildir.Dir(path).Init(); err != nil {
			t.Fatal(err)
		}
	}
	inbox := filepath.Join(root, "Inbox")
	writeFile(t, filepath.Join(inbox, "new", "1433000000.V1:2,"), "Subject: old\n")
	writeFile(t, filepath.Join(inbox, "cur", "1433000001.V1:2,S"), "Subject: read\n")

	source := watch.NewMemory()
	reg, err := registry.Discover(source, nil, []string{root})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{root: root, inbox: inbox, source: source, reg: reg, out: &syncBuffer{}}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) runner(t *testing.T, ctx context.Context, format output.Format, flt *filter.Filter, ctl io.Reader) *Runner {
	t.Helper()
	printer := output.New(f.out, format, true)
	r, err := New(ctx, Options{
		Source:     f.source,
		Router:     router.New(f.reg),
		Printer:    printer,
		Dispatcher: control.NewDispatcher(f.reg, printer, nil),
		Filter:     flt,
		Control:    ctl,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (f *fixture) handle(t *testing.T, sub string) watch.Handle {
	t.Helper()
	h, ok := f.source.HandleFor(filepath.Join(f.inbox, sub))
	if !ok {
		t.Fatalf("no handle for Inbox/%s", sub)
	}
	return h
}

func TestRunnerReportsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctlR, ctlW := io.Pipe()
	defer ctlW.Close()

	r := f.runner(t, ctx, output.FormatText, nil, ctlR)
	done := make(chan error, 1)
	go func() { done <- r.Start() }()

	newDir := f.handle(t, "new")
	names := []string{"1433000002.V1:2,", "1433000003.V1:2,", "1433000004.V1:2,"}
	for i, name := range names {
		writeFile(t, filepath.Join(f.inbox, "new", name), "From: a@example.com\nSubject: msg "+string(rune('A'+i))+"\n\n")
	}
	f.source.Push(
		watch.Record{Handle: newDir, Name: names[0], Flags: watch.MovedTo},
		watch.Record{Handle: newDir, Name: "1433000005.V1:2,S", Flags: watch.MovedTo},
		watch.Record{Handle: newDir, Name: names[1], Flags: watch.MovedTo},
		watch.Record{Handle: newDir, Name: "subdir", Flags: watch.MovedTo | watch.IsDir},
		watch.Record{Handle: newDir, Name: names[2], Flags: watch.MovedTo},
	)

	last := "New message: " + filepath.Join(f.inbox, "new", names[2]) + " : msg C\n"
	waitFor(t, f.out, last)

	lines := strings.Split(strings.TrimSpace(f.out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 reports, got %q", lines)
	}
	for i, name := range names {
		want := "New message: " + filepath.Join(f.inbox, "new", name) + " : msg " + string(rune('A'+i))
		if lines[i] != want {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}

	if _, err := io.WriteString(ctlW, "i\n"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f.out, "total unread: 4\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if r.Reported() != 3 {
		t.Fatalf("Reported() = %d", r.Reported())
	}
}

func TestRunnerUnknownHandleIsFatal(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t, context.Background(), output.FormatText, nil, nil)

	f.source.Push(watch.Record{Handle: 999, Name: "x:2,", Flags: watch.MovedTo})

	done := make(chan error, 1)
	go func() { done <- r.Start() }()
	select {
	case err := <-done:
		if !errors.Is(err, router.ErrUnknownWatchHandle) {
			t.Fatalf("expected ErrUnknownWatchHandle, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not fail")
	}
}

func TestRunnerJSONWithFilter(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flt, err := filter.New(filter.Options{Condition: `subject != "skip me"`})
	if err != nil {
		t.Fatal(err)
	}
	r := f.runner(t, ctx, output.FormatJSON, flt, nil)
	done := make(chan error, 1)
	go func() { done <- r.Start() }()

	writeFile(t, filepath.Join(f.inbox, "cur", "a:2,"), "Subject: skip me\n")
	writeFile(t, filepath.Join(f.inbox, "cur", "b:2,"), "From: \"Q\" <q@example.com>\nSubject: keep\n")
	cur := f.handle(t, "cur")
	f.source.Push(watch.Record{Handle: cur, Name: "a:2,", Flags: watch.MovedTo})
	f.source.Push(watch.Record{Handle: cur, Name: "b:2,", Flags: watch.MovedTo})

	want := `{"folder":"Inbox","path":"` + filepath.Join(f.inbox, "cur", "b:2,") + `","from":"\"Q\" <q@example.com>","subject":"keep"}`
	waitFor(t, f.out, want)
	if strings.Contains(f.out.String(), "skip me") {
		t.Fatalf("filtered message was printed:\n%s", f.out.String())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned %v", err)
	}
}

func TestNewRequiresComponents(t *testing.T) {
	if _, err := New(context.Background(), Options{}, nil); err == nil {
		t.Fatal("expected error for missing components")
	}
}
