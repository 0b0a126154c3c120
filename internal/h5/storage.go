// Package h5 defines the storage seam h5ar's archiver engine is built
// against: the interface a real HDF5 C binding would satisfy, plus an
// in-memory fake (MemStore) and a disk-persisted fake (FileStore) good
// enough to run the engine and its tests without that binding.
package h5

import (
	"io"

	"golang.org/x/xerrors"
)

// Layout selects how a dataset's data blocks are stored.
type Layout int8

const (
	// LayoutContiguous stores a dataset as one unbroken run, used for
	// small files and never extendable once it holds data.
	LayoutContiguous Layout = iota
	// LayoutChunked stores a dataset as a sequence of fixed-size blocks,
	// extendable along its first (only) dimension.
	LayoutChunked
)

// ErrNotExtendable is returned by Dataset.SetExtent when the dataset's
// layout does not support growing past its created size.
var ErrNotExtendable = xerrors.New("dataset layout does not support extension")

// ErrNotFound is returned when a group or dataset lookup fails.
var ErrNotFound = xerrors.New("h5: no such object")

// ErrExists is returned when creating an object at a path that is already
// occupied.
var ErrExists = xerrors.New("h5: object already exists")

// Group is an HDF5 group, standing in for a container directory.
type Group interface {
	// CreateGroup creates and returns a child group named name.
	CreateGroup(name string) (Group, error)
	// OpenGroup opens an existing child group.
	OpenGroup(name string) (Group, error)
	// CreateDataset creates a child dataset. compress requests that the
	// (out-of-scope, real-HDF5) storage layer apply its deflate filter to
	// the dataset's chunks transparently; the fakes in this package only
	// record the hint, since the codec itself is a storage-layer concern.
	CreateDataset(name string, layout Layout, chunkSize int64, compress bool) (Dataset, error)
	// OpenDataset opens an existing child dataset.
	OpenDataset(name string) (Dataset, error)
	// CreateSoftLink creates a symbolic link named name pointing at target
	// (an absolute or relative path within the same container).
	CreateSoftLink(name, target string) error
	// ReadSoftLink returns the target of the soft link named name.
	ReadSoftLink(name string) (string, error)
	// Unlink removes the child named name (of any kind).
	Unlink(name string) error
	// Children lists the immediate child names of this group.
	Children() ([]string, error)
	// Exists reports whether a child named name exists.
	Exists(name string) bool
}

// Dataset is a byte-addressable, optionally chunked HDF5 dataset, standing
// in for a container file's content or a directory's compound/name-blob
// pair.
type Dataset interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the dataset's current extent in bytes.
	Size() (int64, error)
	// SetExtent grows or shrinks the dataset to newSize bytes. A contiguous
	// dataset that already holds data returns ErrNotExtendable for any
	// newSize different from its current size; an empty one takes the size
	// of its first extension.
	SetExtent(newSize int64) error
	// Layout reports how the dataset is stored.
	Layout() Layout
	// ChunkSize reports the block size of a chunked dataset, or 0 for a
	// contiguous one.
	ChunkSize() int64
	// Compressed reports whether the dataset was created with the deflate
	// hint set.
	Compressed() bool
	// Close releases the dataset handle.
	Close() error
}

// Container is a whole opened archive: the root group, plus lifecycle
// operations a real HDF5 file handle would provide.
type Container interface {
	Root() Group
	Flush() error
	Close() error
}

// Storage opens and creates containers. A real binding would open an HDF5
// file on disk via libhdf5; MemStore and FileStore stand in for it.
type Storage interface {
	// Create makes a brand new, empty container at name.
	Create(name string) (Container, error)
	// Open opens an existing container at name for read/write.
	Open(name string) (Container, error)
	// OpenReadOnly opens an existing container at name, rejecting any
	// mutating Group/Dataset call with an error.
	OpenReadOnly(name string) (Container, error)
}
