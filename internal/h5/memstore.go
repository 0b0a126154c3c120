package h5

import (
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

// MemStore is an in-memory Storage, used by package archive's tests so they
// never depend on an actual HDF5 library.
type MemStore struct {
	mu         sync.Mutex
	containers map[string]*memContainer
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{containers: make(map[string]*memContainer)}
}

func (s *MemStore) Create(name string) (Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[name]; ok {
		return nil, xerrors.Errorf("create %s: %w", name, ErrExists)
	}
	c := &memContainer{root: newMemGroup()}
	s.containers[name] = c
	return c, nil
}

func (s *MemStore) Open(name string) (Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[name]
	if !ok {
		return nil, xerrors.Errorf("open %s: %w", name, ErrNotFound)
	}
	return c, nil
}

func (s *MemStore) OpenReadOnly(name string) (Container, error) {
	c, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	return &readOnlyContainer{Container: c}, nil
}

type memContainer struct {
	root *memGroup
}

func (c *memContainer) Root() Group   { return c.root }
func (c *memContainer) Flush() error  { return nil }
func (c *memContainer) Close() error  { return nil }

type readOnlyContainer struct {
	Container
}

// Close never flushes: a read-only container's root is already wrapped in
// readOnlyGroup, so nothing in it can have become dirty.
func (c *readOnlyContainer) Close() error { return nil }

func (c *readOnlyContainer) Root() Group {
	return &readOnlyGroup{Group: c.Container.Root()}
}

type readOnlyGroup struct {
	Group
}

var errReadOnly = xerrors.New("h5: container opened read-only")

func (g *readOnlyGroup) CreateGroup(name string) (Group, error) { return nil, errReadOnly }
func (g *readOnlyGroup) CreateDataset(name string, layout Layout, chunkSize int64, compress bool) (Dataset, error) {
	return nil, errReadOnly
}
func (g *readOnlyGroup) CreateSoftLink(name, target string) error { return errReadOnly }
func (g *readOnlyGroup) Unlink(name string) error                 { return errReadOnly }

func (g *readOnlyGroup) OpenGroup(name string) (Group, error) {
	child, err := g.Group.OpenGroup(name)
	if err != nil {
		return nil, err
	}
	return &readOnlyGroup{Group: child}, nil
}

func (g *readOnlyGroup) OpenDataset(name string) (Dataset, error) {
	return g.Group.OpenDataset(name)
}

// memGroup is a directory node: a name -> child map, where a child is
// either a *memGroup, a *memDataset, or a memSoftLink.
type memGroup struct {
	mu       sync.Mutex
	children map[string]interface{}
}

type memSoftLink struct {
	target string
}

func newMemGroup() *memGroup {
	return &memGroup{children: make(map[string]interface{})}
}

func (g *memGroup) CreateGroup(name string) (Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.children[name]; ok {
		return nil, xerrors.Errorf("create group %s: %w", name, ErrExists)
	}
	child := newMemGroup()
	g.children[name] = child
	return child, nil
}

func (g *memGroup) OpenGroup(name string) (Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	child, ok := g.children[name]
	if !ok {
		return nil, xerrors.Errorf("open group %s: %w", name, ErrNotFound)
	}
	grp, ok := child.(*memGroup)
	if !ok {
		return nil, xerrors.Errorf("open group %s: not a group", name)
	}
	return grp, nil
}

func (g *memGroup) CreateDataset(name string, layout Layout, chunkSize int64, compress bool) (Dataset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.children[name]; ok {
		return nil, xerrors.Errorf("create dataset %s: %w", name, ErrExists)
	}
	ds := &memDataset{layout: layout, chunkSize: chunkSize, compress: compress}
	g.children[name] = ds
	return ds, nil
}

func (g *memGroup) OpenDataset(name string) (Dataset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	child, ok := g.children[name]
	if !ok {
		return nil, xerrors.Errorf("open dataset %s: %w", name, ErrNotFound)
	}
	ds, ok := child.(*memDataset)
	if !ok {
		return nil, xerrors.Errorf("open dataset %s: not a dataset", name)
	}
	return ds, nil
}

func (g *memGroup) CreateSoftLink(name, target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.children[name]; ok {
		return xerrors.Errorf("create soft link %s: %w", name, ErrExists)
	}
	g.children[name] = memSoftLink{target: target}
	return nil
}

func (g *memGroup) ReadSoftLink(name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	child, ok := g.children[name]
	if !ok {
		return "", xerrors.Errorf("read soft link %s: %w", name, ErrNotFound)
	}
	link, ok := child.(memSoftLink)
	if !ok {
		return "", xerrors.Errorf("read soft link %s: not a soft link", name)
	}
	return link.target, nil
}

func (g *memGroup) Unlink(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.children[name]; !ok {
		return xerrors.Errorf("unlink %s: %w", name, ErrNotFound)
	}
	delete(g.children, name)
	return nil
}

func (g *memGroup) Children() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.children))
	for name := range g.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *memGroup) Exists(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.children[name]
	return ok
}

// memDataset is a resizable byte slice, standing in for a real HDF5
// contiguous or chunked dataset.
type memDataset struct {
	mu        sync.Mutex
	data      []byte
	layout    Layout
	chunkSize int64
	compress  bool
	closed    bool
}

func (d *memDataset) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off >= int64(len(d.data)) {
		return 0, xerrors.New("h5: read past end of dataset")
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, xerrors.New("h5: short read at end of dataset")
	}
	return n, nil
}

func (d *memDataset) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(d.data)) {
		if d.layout == LayoutContiguous && int64(len(d.data)) != 0 {
			return 0, ErrNotExtendable
		}
		grown := make([]byte, end)
		copy(grown, d.data)
		d.data = grown
	}
	copy(d.data[off:end], p)
	return len(p), nil
}

func (d *memDataset) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data)), nil
}

func (d *memDataset) SetExtent(newSize int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.layout == LayoutContiguous && len(d.data) != 0 && int64(len(d.data)) != newSize {
		return ErrNotExtendable
	}
	if newSize == int64(len(d.data)) {
		return nil
	}
	grown := make([]byte, newSize)
	copy(grown, d.data)
	d.data = grown
	return nil
}

func (d *memDataset) Layout() Layout     { return d.layout }
func (d *memDataset) ChunkSize() int64   { return d.chunkSize }
func (d *memDataset) Compressed() bool   { return d.compress }
func (d *memDataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
