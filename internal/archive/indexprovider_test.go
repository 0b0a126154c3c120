package archive

import "testing"

func TestIndexProviderReturnsSameInstance(t *testing.T) {
	c := newTestContainer(t)
	p := NewIndexProvider(c, FailFast{})

	a, err := p.Get("/", false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Get("/", false)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("Get(path) returned different instances for the same path")
	}
}

func TestIndexProviderCloseFlushesDirtyIndices(t *testing.T) {
	c := newTestContainer(t)
	p := NewIndexProvider(c, FailFast{})

	idx, err := p.Get("/", false)
	if err != nil {
		t.Fatal(err)
	}
	idx.UpdateIndex(&LinkRecord{LinkName: "a", LinkType: RegularFile})

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening the index directly from the group should see the flush.
	idx2, err := loadDirectoryIndex("/", c.Root(), false)
	if err != nil {
		t.Fatal(err)
	}
	if !idx2.Exists("a") {
		t.Error("Close() did not flush the dirty index")
	}
}

func TestIndexProviderCreateGroupAndNestedGet(t *testing.T) {
	c := newTestContainer(t)
	p := NewIndexProvider(c, FailFast{})

	if _, err := p.CreateGroupAt("/sub"); err != nil {
		t.Fatal(err)
	}
	idx, err := p.Get("/sub", false)
	if err != nil {
		t.Fatal(err)
	}
	if idx == nil {
		t.Fatal("expected non-nil index for newly created group")
	}
}
