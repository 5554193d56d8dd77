package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// MailboxStore keeps all mailbox records in a single JSON array document.
type MailboxStore struct {
	path string
	mu   sync.Mutex
}

// NewMailboxStore returns a store backed by the given file.
func NewMailboxStore(path string) (*MailboxStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &MailboxStore{path: path}, nil
}

// load reads the array document. A missing or malformed file is an empty
// collection, never an error.
func (s *MailboxStore) load() []Mailbox {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var mailboxes []Mailbox
	if err := json.Unmarshal(data, &mailboxes); err != nil {
		return nil
	}
	return mailboxes
}

func (s *MailboxStore) save(mailboxes []Mailbox) error {
	data, err := json.MarshalIndent(mailboxes, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal mailboxes: %w", err)
	}
	// Secrets are vault ciphertext, but keep the file private anyway.
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write mailboxes: %w", err)
	}
	return nil
}

// Add stores a mailbox, replacing any existing record with the same id.
func (s *MailboxStore) Add(mb Mailbox) error {
	if mb.ID == "" {
		return fmt.Errorf("mailbox id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mailboxes := s.load()
	replaced := false
	for i := range mailboxes {
		if mailboxes[i].ID == mb.ID {
			mailboxes[i] = mb
			replaced = true
			break
		}
	}
	if !replaced {
		mailboxes = append(mailboxes, mb)
	}
	return s.save(mailboxes)
}

// Get returns a mailbox by id.
func (s *MailboxStore) Get(id string) (*Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mb := range s.load() {
		if mb.ID == id {
			return &mb, nil
		}
	}
	return nil, ErrNotFound
}

// List returns all stored mailboxes.
func (s *MailboxStore) List() []Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Delete removes a mailbox by id.
func (s *MailboxStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailboxes := s.load()
	for i, mb := range mailboxes {
		if mb.ID == id {
			mailboxes = append(mailboxes[:i], mailboxes[i+1:]...)
			return s.save(mailboxes)
		}
	}
	return ErrNotFound
}
