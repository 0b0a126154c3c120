package h5

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTripsThroughFlush(t *testing.T) {
	store := NewFileStore()
	path := filepath.Join(t.TempDir(), "container.h5ar")

	c, err := store.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	root := c.Root()
	sub, err := root.CreateGroup("sub")
	if err != nil {
		t.Fatal(err)
	}
	ds, err := sub.CreateDataset("blob", LayoutContiguous, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("atomic flush round trip")
	if _, err := ds.WriteAt(payload, 0); err != nil {
		t.Fatal(err)
	}
	if err := sub.CreateSoftLink("alias", "blob"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	subAgain, err := reopened.Root().OpenGroup("sub")
	if err != nil {
		t.Fatal(err)
	}
	dsAgain, err := subAgain.OpenDataset("blob")
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(payload))
	if _, err := dsAgain.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("reopened dataset = %q, want %q", got, payload)
	}
	target, err := subAgain.ReadSoftLink("alias")
	if err != nil {
		t.Fatal(err)
	}
	if target != "blob" {
		t.Errorf("reopened soft link target = %q, want %q", target, "blob")
	}
}

func TestFileStoreOpenReadOnlyRejectsMutation(t *testing.T) {
	store := NewFileStore()
	path := filepath.Join(t.TempDir(), "container.h5ar")

	c, err := store.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := store.OpenReadOnly(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Close()
	if _, err := ro.Root().CreateGroup("nope"); err == nil {
		t.Error("expected CreateGroup to fail on a read-only container")
	}
}

func TestFileStoreCreateRejectsExistingPath(t *testing.T) {
	store := NewFileStore()
	path := filepath.Join(t.TempDir(), "container.h5ar")

	c, err := store.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(path); err == nil {
		t.Error("expected Create to fail when the file already exists")
	}
}
