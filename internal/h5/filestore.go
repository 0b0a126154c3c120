package h5

import (
	"encoding/gob"
	"io"
	"os"
	"sync"

	"github.com/google/renameio"
	"golang.org/x/exp/mmap"
	"golang.org/x/xerrors"
)

// FileStore persists the same in-memory object model MemStore uses to a
// single file on disk via encoding/gob, so the CLI has something to read
// and write without a real HDF5 binding. Every Flush/Close rewrites the
// whole file atomically through renameio, the same pattern used elsewhere
// in this repo for extracted files.
type FileStore struct{}

// NewFileStore returns a Storage backed by gob-encoded files on disk.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// gobImage is the on-disk representation of a container: a plain tree the
// memGroup/memDataset types can be rebuilt from, since gob cannot encode
// unexported fields or interface-typed map values directly.
type gobImage struct {
	Root *gobGroup
}

type gobGroup struct {
	Groups    map[string]*gobGroup
	Datasets  map[string]*gobDataset
	SoftLinks map[string]string
}

type gobDataset struct {
	Data      []byte
	Layout    Layout
	ChunkSize int64
	Compress  bool
}

func (s *FileStore) Create(name string) (Container, error) {
	if _, err := os.Stat(name); err == nil {
		return nil, xerrors.Errorf("create %s: %w", name, ErrExists)
	}
	c := &fileContainer{path: name, root: newMemGroup()}
	if err := c.Flush(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *FileStore) Open(name string) (Container, error) {
	root, err := loadGobImage(name)
	if err != nil {
		return nil, err
	}
	return &fileContainer{path: name, root: root}, nil
}

// OpenReadOnly opens name via mmap rather than a buffered read, the same
// choice internal/install/install.go makes when opening a .squashfs image
// it only intends to read: the whole file is mapped once and decoded
// in-place instead of copied through a read() buffer.
func (s *FileStore) OpenReadOnly(name string) (Container, error) {
	root, err := loadGobImageMmap(name)
	if err != nil {
		return nil, err
	}
	c := &fileContainer{path: name, root: root}
	return &readOnlyContainer{Container: c}, nil
}

type fileContainer struct {
	mu   sync.Mutex
	path string
	root *memGroup
}

func (c *fileContainer) Root() Group { return c.root }

func (c *fileContainer) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	image := gobImage{Root: toGobGroup(c.root)}

	f, err := renameio.TempFile("", c.path)
	if err != nil {
		return xerrors.Errorf("flush %s: %w", c.path, err)
	}
	defer f.Cleanup()

	if err := gob.NewEncoder(f).Encode(image); err != nil {
		return xerrors.Errorf("flush %s: %w", c.path, err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("flush %s: %w", c.path, err)
	}
	return nil
}

func (c *fileContainer) Close() error {
	return c.Flush()
}

func loadGobImage(path string) (*memGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	var image gobImage
	if err := gob.NewDecoder(f).Decode(&image); err != nil {
		return nil, xerrors.Errorf("decode %s: %w", path, err)
	}
	return fromGobGroup(image.Root), nil
}

func loadGobImageMmap(path string) (*memGroup, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("mmap open %s: %w", path, err)
	}
	defer ra.Close()

	var image gobImage
	if err := gob.NewDecoder(io.NewSectionReader(ra, 0, int64(ra.Len()))).Decode(&image); err != nil {
		return nil, xerrors.Errorf("decode %s: %w", path, err)
	}
	return fromGobGroup(image.Root), nil
}

func toGobGroup(g *memGroup) *gobGroup {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := &gobGroup{
		Groups:    make(map[string]*gobGroup),
		Datasets:  make(map[string]*gobDataset),
		SoftLinks: make(map[string]string),
	}
	for name, child := range g.children {
		switch c := child.(type) {
		case *memGroup:
			out.Groups[name] = toGobGroup(c)
		case *memDataset:
			c.mu.Lock()
			out.Datasets[name] = &gobDataset{
				Data:      append([]byte(nil), c.data...),
				Layout:    c.layout,
				ChunkSize: c.chunkSize,
				Compress:  c.compress,
			}
			c.mu.Unlock()
		case memSoftLink:
			out.SoftLinks[name] = c.target
		}
	}
	return out
}

func fromGobGroup(g *gobGroup) *memGroup {
	out := newMemGroup()
	for name, child := range g.Groups {
		out.children[name] = fromGobGroup(child)
	}
	for name, ds := range g.Datasets {
		out.children[name] = &memDataset{
			data:      ds.Data,
			layout:    ds.Layout,
			chunkSize: ds.ChunkSize,
			compress:  ds.Compress,
		}
	}
	for name, target := range g.SoftLinks {
		out.children[name] = memSoftLink{target: target}
	}
	return out
}
