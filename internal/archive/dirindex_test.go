package archive

import (
	"testing"

	"github.com/h5ar/h5ar/internal/h5"
)

func newTestContainer(t *testing.T) h5.Container {
	t.Helper()
	store := h5.NewMemStore()
	c, err := store.Create("test")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestDirectoryIndexLoadStoreRoundTrip(t *testing.T) {
	c := newTestContainer(t)
	idx, err := loadDirectoryIndex("/", c.Root(), false)
	if err != nil {
		t.Fatal(err)
	}
	idx.UpdateIndex(&LinkRecord{LinkName: "b.txt", LinkType: RegularFile, Size: 5, CRC32: 0x3610a686})
	idx.UpdateIndex(NewDirectoryRecord("sub"))

	if !idx.Dirty() {
		t.Fatal("index should be dirty after UpdateIndex")
	}
	if err := idx.Flush(); err != nil {
		t.Fatal(err)
	}
	if idx.Dirty() {
		t.Fatal("index should be clean after Flush")
	}

	reloaded, err := loadDirectoryIndex("/", c.Root(), false)
	if err != nil {
		t.Fatal(err)
	}
	entries := reloaded.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// directories sort first
	if entries[0].LinkName != "sub" || entries[0].LinkType != Directory {
		t.Errorf("entries[0] = %+v, want sub/DIRECTORY", entries[0])
	}
	if entries[1].LinkName != "b.txt" || entries[1].CRC32 != 0x3610a686 {
		t.Errorf("entries[1] = %+v, want b.txt crc32 0x3610a686", entries[1])
	}
}

func TestDirectoryIndexFlushIsIdempotentWhenClean(t *testing.T) {
	c := newTestContainer(t)
	idx, err := loadDirectoryIndex("/", c.Root(), false)
	if err != nil {
		t.Fatal(err)
	}
	idx.UpdateIndex(&LinkRecord{LinkName: "a", LinkType: RegularFile})
	if err := idx.Flush(); err != nil {
		t.Fatal(err)
	}

	compoundBefore, _ := c.Root().OpenDataset(compoundDatasetName)
	sizeBefore, _ := compoundBefore.Size()

	if err := idx.Flush(); err != nil {
		t.Fatal(err)
	}
	compoundAfter, _ := c.Root().OpenDataset(compoundDatasetName)
	sizeAfter, _ := compoundAfter.Size()
	if sizeBefore != sizeAfter {
		t.Errorf("second flush changed dataset size: %d -> %d", sizeBefore, sizeAfter)
	}
}

func TestDirectoryIndexFlushesFlushablesBeforePersisting(t *testing.T) {
	c := newTestContainer(t)
	idx, err := loadDirectoryIndex("/", c.Root(), false)
	if err != nil {
		t.Fatal(err)
	}
	record := &LinkRecord{LinkName: "streamed", LinkType: RegularFile}
	idx.UpdateIndex(record)

	flushed := false
	fl := flushableFunc(func() error {
		record.CRC32 = 0xcafebabe
		flushed = true
		return nil
	})
	idx.AddFlushable(fl)

	if err := idx.Flush(); err != nil {
		t.Fatal(err)
	}
	if !flushed {
		t.Fatal("attached flushable was not flushed before the index persisted")
	}

	reloaded, err := loadDirectoryIndex("/", c.Root(), false)
	if err != nil {
		t.Fatal(err)
	}
	got := reloaded.TryGetLink("streamed")
	if got == nil || got.CRC32 != 0xcafebabe {
		t.Fatalf("persisted record = %+v, want crc32 0xcafebabe", got)
	}
}

func TestDirectoryIndexBulkReplaceDropsMissingEntries(t *testing.T) {
	c := newTestContainer(t)
	idx, err := loadDirectoryIndex("/", c.Root(), false)
	if err != nil {
		t.Fatal(err)
	}
	idx.UpdateIndex(&LinkRecord{LinkName: "old", LinkType: RegularFile})
	idx.UpdateIndexBulk([]*LinkRecord{{LinkName: "new", LinkType: RegularFile}})
	if idx.Exists("old") {
		t.Error("bulk replace should have dropped 'old'")
	}
	if !idx.Exists("new") {
		t.Error("bulk replace should contain 'new'")
	}
}

type flushableFunc func() error

func (f flushableFunc) Flush() error { return f() }
