package archivestore

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "manifest.sqlite"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetReplace(t *testing.T) {
	s := openTestStore(t)

	if a, err := s.Get("missing"); err != nil || a != nil {
		t.Fatalf("expected nil entry, got %v / %v", a, err)
	}

	fetched := time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Put(&Archive{
		DatasetID: "dataset_july_2021",
		URL:       "https://example.org/a",
		Path:      "/tmp/dataset_july_2021.csv.zip",
		Size:      42,
		Checksum:  "00000000deadbeef",
		FetchedAt: fetched,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	a, err := s.Get("dataset_july_2021")
	if err != nil || a == nil {
		t.Fatalf("Get: %v / %v", a, err)
	}
	if a.Size != 42 || a.Checksum != "00000000deadbeef" || !a.FetchedAt.Equal(fetched) {
		t.Fatalf("unexpected entry: %+v", a)
	}

	if err := s.Put(&Archive{DatasetID: "dataset_july_2021", Path: "/other", Size: 7}); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	a, _ = s.Get("dataset_july_2021")
	if a.Path != "/other" || a.Size != 7 || a.URL != "" {
		t.Fatalf("entry not replaced: %+v", a)
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"b", "a", "c"} {
		if err := s.Put(&Archive{DatasetID: id, Path: id + ".zip"}); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].DatasetID != "a" || list[2].DatasetID != "c" {
		t.Fatalf("unexpected order: %v", list)
	}

	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ = s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 entries after delete, got %d", len(list))
	}
}
