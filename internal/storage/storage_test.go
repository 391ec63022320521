package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	fileStore, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	sqliteStore, err := NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Backend{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"memory": NewMemoryStorage(),
	}
}

func TestBackendsRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var missing []record
			found, err := b.LoadCollection("characters", &missing)
			if err != nil || found {
				t.Fatalf("missing collection: found=%v err=%v", found, err)
			}

			in := []record{{ID: "1", Name: "Mira"}, {ID: "2", Name: "Otto"}}
			if err := b.SaveCollection("characters", in); err != nil {
				t.Fatalf("SaveCollection: %v", err)
			}

			var out []record
			found, err = b.LoadCollection("characters", &out)
			if err != nil || !found {
				t.Fatalf("LoadCollection: found=%v err=%v", found, err)
			}
			if len(out) != 2 || out[1].Name != "Otto" {
				t.Fatalf("unexpected records %+v", out)
			}

			// full rewrite replaces the previous body
			if err := b.SaveCollection("characters", in[:1]); err != nil {
				t.Fatalf("SaveCollection: %v", err)
			}
			out = nil
			if _, err := b.LoadCollection("characters", &out); err != nil || len(out) != 1 {
				t.Fatalf("after rewrite: %+v, %v", out, err)
			}
		})
	}
}

func TestBackendsListAndDelete(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, c := range []string{"projects/b", "projects/a", "styles"} {
				if err := b.SaveCollection(c, []record{}); err != nil {
					t.Fatalf("SaveCollection(%s): %v", c, err)
				}
			}

			names, err := b.ListCollections("projects/")
			if err != nil {
				t.Fatalf("ListCollections: %v", err)
			}
			if len(names) != 2 || names[0] != "projects/a" || names[1] != "projects/b" {
				t.Fatalf("unexpected names %v", names)
			}

			if err := b.DeleteCollection("projects/a"); err != nil {
				t.Fatalf("DeleteCollection: %v", err)
			}
			if err := b.DeleteCollection("projects/never"); err != nil {
				t.Fatalf("deleting a missing collection should not fail: %v", err)
			}
			names, _ = b.ListCollections("projects/")
			if len(names) != 1 {
				t.Fatalf("after delete: %v", names)
			}
		})
	}
}

func TestFileStorageRejectsEscapingNames(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	if err := s.SaveCollection("../outside", []record{}); err == nil {
		t.Fatal("expected error for path traversal")
	}
}

func TestFileStorageLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	if err := s.SaveCollection("brands", []record{{ID: "b1"}}); err != nil {
		t.Fatalf("SaveCollection: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "brands.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temporary file should have been renamed")
	}
	if _, err := os.Stat(filepath.Join(dir, "brands.json")); err != nil {
		t.Fatalf("collection file missing: %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	b, err := Open("memory", "")
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	b.Close()
}
