package archive

import (
	"golang.org/x/xerrors"

	"github.com/h5ar/h5ar/internal/archivepath"
	"github.com/h5ar/h5ar/internal/h5"
)

// Archive is one opened container: the storage handle, its index
// provider, and the updater/deleter/traverser built on top of it. It is
// the object cmd/h5ar's verbs construct and operate on.
type Archive struct {
	container h5.Container
	provider  *IndexProvider
	strategy  ErrorStrategy
	readOnly  bool
}

// Create makes a brand new, empty container at name via storage.
func Create(storage h5.Storage, name string, strategy ErrorStrategy) (*Archive, error) {
	c, err := storage.Create(name)
	if err != nil {
		return nil, &StorageError{Op: "create " + name, Err: err}
	}
	return &Archive{container: c, provider: NewIndexProvider(c, strategy), strategy: strategy}, nil
}

// Open opens an existing container at name for read/write.
func Open(storage h5.Storage, name string, strategy ErrorStrategy) (*Archive, error) {
	c, err := storage.Open(name)
	if err != nil {
		return nil, &StorageError{Op: "open " + name, Err: err}
	}
	return &Archive{container: c, provider: NewIndexProvider(c, strategy), strategy: strategy}, nil
}

// OpenReadOnly opens an existing container at name; any mutating
// operation fails with IllegalStateError.
func OpenReadOnly(storage h5.Storage, name string, strategy ErrorStrategy) (*Archive, error) {
	c, err := storage.OpenReadOnly(name)
	if err != nil {
		return nil, &StorageError{Op: "open " + name, Err: err}
	}
	return &Archive{container: c, provider: NewIndexProvider(c, strategy), strategy: strategy, readOnly: true}, nil
}

// Updater returns the Archive updater bound to this container's provider.
func (a *Archive) Updater(visitor func(string)) (*Updater, error) {
	if a.readOnly {
		return nil, &IllegalStateError{Reason: "archive opened read-only"}
	}
	return NewUpdater(a.provider, a.strategy, visitor), nil
}

// Deleter returns the Archive deleter bound to this container's provider.
func (a *Archive) Deleter(visitor func(string)) (*Deleter, error) {
	if a.readOnly {
		return nil, &IllegalStateError{Reason: "archive opened read-only"}
	}
	return NewDeleter(a.provider, a.strategy, visitor), nil
}

// Traverser returns the Archive traverser bound to this container's
// provider (works on both read-only and read-write containers).
func (a *Archive) Traverser() *Traverser {
	return NewTraverser(a.provider, a.strategy)
}

// IndexProvider exposes the underlying provider, e.g. for
// tryGetEntry-style lookups from the CLI.
func (a *Archive) IndexProvider() *IndexProvider { return a.provider }

// TryGetEntry returns the LinkRecord at path, or nil if absent.
func (a *Archive) TryGetEntry(path string) (*LinkRecord, error) {
	path, err := archivepath.Normalize(path)
	if err != nil {
		return nil, err
	}
	parentPath, name := archivepath.Split(path)
	idx, err := a.provider.Get(parentPath, false)
	if err != nil {
		return nil, err
	}
	return idx.TryGetLink(name), nil
}

// Close flushes every dirty index, then closes the underlying container.
// On a read-only archive, Close still releases the container handle but
// never attempts a flush (nothing can be dirty).
func (a *Archive) Close() error {
	if !a.readOnly {
		if err := a.provider.Close(); err != nil {
			return err
		}
	}
	if err := a.container.Close(); err != nil {
		return xerrors.Errorf("close archive: %w", err)
	}
	return nil
}
