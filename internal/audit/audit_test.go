package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	hub := NewHub()
	log, err := NewLog(path, hub)
	if err != nil {
		t.Fatalf("NewLog() error = %v", err)
	}

	ch, cancel := hub.Subscribe()
	defer cancel()

	entry := NewEntry("a@evil.example", "v@target.example", "Test", true, "Email sent successfully")
	if err := log.Append(entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}
	if !entries[0].Success {
		t.Error("entry Success = false")
	}
	if want := "From: a@evil.example, To: v@target.example, Subject: Test"; entries[0].Email != want {
		t.Errorf("entry Email = %q, want %q", entries[0].Email, want)
	}

	select {
	case pushed := <-ch:
		if pushed.Message != entry.Message {
			t.Errorf("pushed Message = %q, want %q", pushed.Message, entry.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("entry was not pushed to subscriber")
	}

	// Appends survive re-opening the log file.
	reopened, err := NewLog(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := reopened.Append(NewEntry("x@a.example", "y@b.example", "Again", false, "boom")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if got := len(reopened.Entries()); got != 2 {
		t.Errorf("Entries() after reopen = %d, want 2", got)
	}
}

func TestLogMalformedFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	log, err := NewLog(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if entries := log.Entries(); len(entries) != 0 {
		t.Errorf("Entries() on malformed file = %v, want empty", entries)
	}
	if err := log.Append(NewEntry("a@x.example", "b@y.example", "s", true, "ok")); err != nil {
		t.Errorf("Append() after malformed file error = %v", err)
	}
	if got := len(log.Entries()); got != 1 {
		t.Errorf("Entries() = %d, want 1", got)
	}
}

func TestHubFanOutAndDrop(t *testing.T) {
	hub := NewHub()

	fast, cancelFast := hub.Subscribe()
	defer cancelFast()
	_, cancelSlow := hub.Subscribe()

	// Publishing with no room left must not block.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(Entry{Message: "m"})
	}

	received := 0
	for {
		select {
		case <-fast:
			received++
			continue
		default:
		}
		break
	}
	if received != subscriberBuffer {
		t.Errorf("fast subscriber received %d entries, want %d buffered", received, subscriberBuffer)
	}

	cancelSlow()
	cancelSlow() // Double cancel is safe.
	if got := hub.Subscribers(); got != 1 {
		t.Errorf("Subscribers() = %d, want 1", got)
	}
}

func TestNewEntryTimestampFormat(t *testing.T) {
	e := NewEntry("a@x.example", "b@y.example", "s", true, "ok")
	if _, err := time.Parse("2006-01-02 15:04:05", e.Timestamp); err != nil {
		t.Errorf("Timestamp %q not in expected format: %v", e.Timestamp, err)
	}
	if strings.Contains(e.Timestamp, "T") {
		t.Errorf("Timestamp %q should not be RFC 3339", e.Timestamp)
	}
}
