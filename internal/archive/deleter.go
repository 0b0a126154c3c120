package archive

import (
	"github.com/h5ar/h5ar/internal/archivepath"
)

// Deleter is the archive deleter (C6): it removes entries and their
// backing storage, updating the parent index for each.
type Deleter struct {
	provider *IndexProvider
	strategy ErrorStrategy
	visitor  func(string)
}

// NewDeleter returns a Deleter operating through provider.
func NewDeleter(provider *IndexProvider, strategy ErrorStrategy, visitor func(string)) *Deleter {
	if strategy == nil {
		strategy = FailFast{}
	}
	return &Deleter{provider: provider, strategy: strategy, visitor: visitor}
}

// Delete removes each of paths, recursing into directories post-order
// before removing their own HDF5 object, per spec §4.6. Unknown paths
// produce a warning through the error strategy but never abort, even
// under FailFast.
func (d *Deleter) Delete(paths []string) error {
	for _, p := range paths {
		if err := d.deleteOne(p); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deleter) deleteOne(path string) error {
	path, err := archivepath.Normalize(path)
	if err != nil {
		return err
	}
	parentPath, name := archivepath.Split(path)

	parentIdx, err := d.provider.Get(parentPath, false)
	if err != nil {
		return err
	}
	record := parentIdx.TryGetLink(name)
	if record == nil {
		d.strategy.Warning("delete: no such entry " + path)
		return nil
	}

	if record.LinkType == Directory {
		childNames, err := d.childNames(path)
		if err != nil {
			return &UnarchivingError{Path: path, Err: err}
		}
		for _, child := range childNames {
			if err := d.deleteOne(archivepath.Join(path, child)); err != nil {
				return err
			}
		}
		if err := d.unlinkGroup(path); err != nil {
			return err
		}
		d.provider.Evict(path)
	} else {
		if err := d.unlinkObject(parentPath, name); err != nil {
			return err
		}
	}

	parentIdx.Remove(name)
	if d.visitor != nil {
		d.visitor(path)
	}
	return nil
}

func (d *Deleter) childNames(path string) ([]string, error) {
	idx, err := d.provider.Get(path, false)
	if err != nil {
		return nil, err
	}
	entries := idx.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.LinkName
	}
	return names, nil
}

func (d *Deleter) unlinkGroup(path string) error {
	parentPath, name := archivepath.Split(path)
	group, err := d.provider.resolveGroup(parentPath)
	if err != nil {
		return &ArchivingError{Path: path, Err: err}
	}
	if err := group.Unlink(name); err != nil {
		return &ArchivingError{Path: path, Err: err}
	}
	return nil
}

func (d *Deleter) unlinkObject(parentPath, name string) error {
	group, err := d.provider.resolveGroup(parentPath)
	if err != nil {
		return &ArchivingError{Path: archivepath.Join(parentPath, name), Err: err}
	}
	if err := group.Unlink(name); err != nil {
		return &ArchivingError{Path: archivepath.Join(parentPath, name), Err: err}
	}
	return nil
}
