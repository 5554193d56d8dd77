package store

import (
	"path/filepath"
	"testing"
)

func newTemplateStore(t *testing.T) *FolderStore[Template] {
	t.Helper()
	s, err := NewFolderStore[Template](filepath.Join(t.TempDir(), "templates"))
	if err != nil {
		t.Fatalf("NewFolderStore() error = %v", err)
	}
	return s
}

func TestSeedTemplatesPopulatesEmptyCatalog(t *testing.T) {
	s := newTemplateStore(t)

	if err := SeedTemplates(s); err != nil {
		t.Fatalf("SeedTemplates() error = %v", err)
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("List() returned %d templates, want 2", len(ids))
	}

	names := map[string]bool{}
	for _, id := range ids {
		tpl, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		names[tpl.Name] = true
		if tpl.Subject == "" || tpl.Body == "" || tpl.CreatedAt == "" {
			t.Errorf("seeded template %s missing fields: %+v", id, tpl)
		}
	}
	for _, want := range []string{"Password Reset Request", "IT Security Update Required"} {
		if !names[want] {
			t.Errorf("seeded catalog missing template %q", want)
		}
	}

	// Seeding again must not duplicate.
	if err := SeedTemplates(s); err != nil {
		t.Fatalf("SeedTemplates() second call error = %v", err)
	}
	ids, err = s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("second seed changed catalog size to %d, want 2", len(ids))
	}
}

func TestSeedTemplatesLeavesExistingCatalogAlone(t *testing.T) {
	s := newTemplateStore(t)

	existing := &Template{ID: "template_1", Name: "Custom"}
	if err := s.Save(existing.ID, existing); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := SeedTemplates(s); err != nil {
		t.Fatalf("SeedTemplates() error = %v", err)
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "template_1" {
		t.Errorf("non-empty catalog was modified: %v", ids)
	}
}
