// Package store persists drafts, campaigns, templates and mailboxes as flat
// JSON files: one document per record for folder stores, one array document
// for the mailbox store. Each store serializes its read-modify-write cycle
// with a mutex; malformed stored JSON degrades to an empty result.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a record does not exist or cannot be decoded.
var ErrNotFound = errors.New("record not found")

// FolderStore keeps one JSON document per record under a directory.
type FolderStore[T any] struct {
	dir string
	mu  sync.Mutex
}

// NewFolderStore creates the directory if needed and returns a store.
func NewFolderStore[T any](dir string) (*FolderStore[T], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FolderStore[T]{dir: dir}, nil
}

func (s *FolderStore[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes a record, replacing any previous version.
func (s *FolderStore[T]) Save(id string, record *T) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := os.WriteFile(s.path(id), data, 0644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Get loads a record by id. Missing or corrupted documents yield ErrNotFound.
func (s *FolderStore[T]) Get(id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, ErrNotFound
	}

	record := new(T)
	if err := json.Unmarshal(data, record); err != nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// List returns the ids of all stored records, sorted.
func (s *FolderStore[T]) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// All loads every readable record. Corrupted documents are skipped.
func (s *FolderStore[T]) All() (map[string]*T, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}

	records := make(map[string]*T, len(ids))
	for _, id := range ids {
		record, err := s.Get(id)
		if err != nil {
			continue
		}
		records[id] = record
	}
	return records, nil
}

// Delete removes a record.
func (s *FolderStore[T]) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// validateID rejects ids that would escape the store directory.
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid record id %q", id)
	}
	return nil
}
