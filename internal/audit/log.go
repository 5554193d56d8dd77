// Package audit records send attempts as an append-only JSON array and fans
// each entry out to connected observers.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Entry is one audited send attempt.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Email     string `json:"email"`
	Campaign  string `json:"campaign,omitempty"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// NewEntry builds a timestamped entry describing one attempt.
func NewEntry(from, to, subject string, success bool, message string) Entry {
	return Entry{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Email:     fmt.Sprintf("From: %s, To: %s, Subject: %s", from, to, subject),
		Success:   success,
		Message:   message,
	}
}

// Log persists entries to a single JSON array document, rewritten in full on
// every append, and publishes each appended entry to the hub.
type Log struct {
	path string
	hub  *Hub
	mu   sync.Mutex
}

// NewLog returns a log backed by path. hub may be nil.
func NewLog(path string, hub *Hub) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Log{path: path, hub: hub}, nil
}

// Entries returns the full log. A missing or malformed file is an empty log.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Log) load() []Entry {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// Append adds an entry to the log and pushes it to observers.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	entries := append(l.load(), e)
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to marshal log: %w", err)
	}
	writeErr := os.WriteFile(l.path, data, 0644)
	l.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("failed to write log: %w", writeErr)
	}

	// Push is best-effort and must never block an append.
	if l.hub != nil {
		l.hub.Publish(e)
	}
	return nil
}
