package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dhcgn/maildirwatch/header"
	"github.com/dhcgn/maildirwatch/model"
	"github.com/dhcgn/maildirwatch/registry"
	"github.com/dhcgn/maildirwatch/stats"
	"github.com/dhcgn/maildirwatch/watch"
)

var sample = model.Message{
	Folder:  "Inbox",
	Path:    "/mail/Inbox/new/1433000002.V1:2,",
	Subject: "Hello",
	From:    "a@example.com",
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"text", "JSON", " json "} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestMessageText(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatText, false)
	if p.Want() != header.None {
		t.Fatalf("Want() = %v", p.Want())
	}
	if err := p.Message(sample); err != nil {
		t.Fatal(err)
	}

	if !p.ToggleSubject() || p.Want() != header.Subject {
		t.Fatal("subject mode not enabled")
	}
	if err := p.Message(sample); err != nil {
		t.Fatal(err)
	}

	want := "New message: /mail/Inbox/new/1433000002.V1:2,\n" +
		"New message: /mail/Inbox/new/1433000002.V1:2, : Hello\n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}
}

func TestMessageJSONEscaping(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatJSON, false)
	if p.Want() != header.Both {
		t.Fatalf("Want() = %v", p.Want())
	}

	msg := sample
	msg.Subject = "quote \" backslash \\ tab \t bell \x07 <b>"
	if err := p.Message(msg); err != nil {
		t.Fatal(err)
	}

	line := buf.String()
	for _, want := range []string{`\"`, `\\`, `\t`, `\u0007`, `<b>`} {
		if !bytes.Contains([]byte(line), []byte(want)) {
			t.Errorf("encoded line %q missing %q", line, want)
		}
	}

	var got messageRecord
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Subject != msg.Subject || got.Folder != "Inbox" || got.From != "a@example.com" || got.Path != msg.Path {
		t.Fatalf("decoded %+v", got)
	}
}

func TestStats(t *testing.T) {
	report := stats.Report{Total: 2, Folders: []stats.FolderCount{{Folder: "Inbox", Unread: 2}}}

	var text bytes.Buffer
	if err := New(&text, FormatText, true).Stats(report); err != nil {
		t.Fatal(err)
	}
	if text.String() != "Inbox: unread messages 2\ntotal unread: 2\n" {
		t.Fatalf("text stats = %q", text.String())
	}

	var js bytes.Buffer
	if err := New(&js, FormatJSON, true).Stats(stats.Report{Total: 5}); err != nil {
		t.Fatal(err)
	}
	if js.String() != "{\"total_unread\":5}\n" {
		t.Fatalf("json stats = %q", js.String())
	}
}

func TestFolders(t *testing.T) {
	reg := registry.New(nil, nil)
	if _, err := reg.Register("Inbox", "/mail/Inbox"); err != nil {
		t.Fatal(err)
	}
	folders := reg.List()
	folders[0].New = watch.Handle(3)

	var text bytes.Buffer
	if err := New(&text, FormatText, true).Folders(folders); err != nil {
		t.Fatal(err)
	}
	if text.String() != "Inbox\t/mail/Inbox\tcur=-\tnew=3\n" {
		t.Fatalf("text dump = %q", text.String())
	}

	var js bytes.Buffer
	if err := New(&js, FormatJSON, true).Folders(nil); err != nil {
		t.Fatal(err)
	}
	if js.String() != "{\"folders\":[]}\n" {
		t.Fatalf("json dump = %q", js.String())
	}
}

func TestReady(t *testing.T) {
	var text, js bytes.Buffer
	if err := New(&text, FormatText, true).Ready(); err != nil {
		t.Fatal(err)
	}
	if err := New(&js, FormatJSON, true).Ready(); err != nil {
		t.Fatal(err)
	}
	if text.String() != "READY\n" || js.String() != "{\"ready\":true}\n" {
		t.Fatalf("ready lines %q %q", text.String(), js.String())
	}
}
