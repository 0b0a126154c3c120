package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/h5ar/h5ar/internal/archivepath"
)

func TestListProcessorVisitsEveryEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	a := newTestArchive(t)
	u, err := a.Updater(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.ArchiveBelow("/", dir, DefaultStrategy{}, 0); err != nil {
		t.Fatal(err)
	}

	var seen []string
	proc := NewListProcessor(a.provider, false, func(entry ArchiveEntry, ok bool) {
		if !ok {
			t.Errorf("entry %s reported !ok with testArchive=false", entry.Path)
		}
		seen = append(seen, entry.Path)
	})
	if err := a.Traverser().Process("/", true, false, proc); err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"/a.txt": true, "/sub": true}
	if len(seen) != len(want) {
		t.Fatalf("visited %v, want %v", seen, want)
	}
	for _, p := range seen {
		if !want[p] {
			t.Errorf("unexpected visited path %s", p)
		}
	}
}

func TestListProcessorDetectsFlippedBit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newTestArchive(t)
	u, err := a.Updater(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.ArchiveBelow("/", dir, DefaultStrategy{}, 0); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored bytes directly through the dataset, bypassing the
	// CRC32 that the streaming writer would normally keep in sync.
	parentPath, name := archivepath.Split("/a.txt")
	group, err := a.provider.resolveGroup(parentPath)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := group.OpenDataset(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ds.WriteAt([]byte{'H'}, 0); err != nil {
		t.Fatal(err)
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	var results []bool
	proc := NewListProcessor(a.provider, true, func(entry ArchiveEntry, ok bool) {
		if entry.Path == "/a.txt" {
			results = append(results, ok)
		}
	})
	if err := a.Traverser().Process("/", true, false, proc); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0] {
		t.Fatalf("expected a single !ok result for /a.txt, got %v", results)
	}
}
