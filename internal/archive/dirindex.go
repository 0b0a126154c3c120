package archive

import (
	"sort"

	"golang.org/x/xerrors"

	"github.com/h5ar/h5ar/internal/h5"
)

// Reserved dataset names for a directory's two sibling datasets, following
// the "reserved key" / "variable-length string dataset" split spec §3
// describes.
const (
	compoundDatasetName = ".h5ar.links"
	namesDatasetName    = ".h5ar.names"
)

// Flushable is a streaming writer still in flight against one of this
// index's file entries; the index flushes every attached Flushable before
// it serializes its own records, so a parent index never observes a stale
// size/crc32 for a child still being written (spec §4.9's flushable
// contract).
type Flushable interface {
	Flush() error
}

// DirectoryIndex is the ordered set of LinkRecords backing one archive
// directory, lazily loaded and write-back cached by IndexProvider.
type DirectoryIndex struct {
	path    string
	group   h5.Group
	records map[string]*LinkRecord
	dirty   bool

	flushables map[Flushable]struct{}
}

// loadDirectoryIndex opens group's two sibling datasets and reconstructs
// its records, per spec §4.3's load algorithm. A group with neither
// dataset present is treated as a newly created, empty directory.
func loadDirectoryIndex(path string, group h5.Group, readLinkTargets bool) (*DirectoryIndex, error) {
	idx := &DirectoryIndex{
		path:       path,
		group:      group,
		records:    make(map[string]*LinkRecord),
		flushables: make(map[Flushable]struct{}),
	}

	if !group.Exists(compoundDatasetName) || !group.Exists(namesDatasetName) {
		return idx, nil
	}

	compoundDS, err := group.OpenDataset(compoundDatasetName)
	if err != nil {
		return nil, xerrors.Errorf("load directory index %s: %w", path, err)
	}
	namesDS, err := group.OpenDataset(namesDatasetName)
	if err != nil {
		return nil, xerrors.Errorf("load directory index %s: %w", path, err)
	}

	compound, err := readWhole(compoundDS)
	if err != nil {
		return nil, xerrors.Errorf("load directory index %s: %w", path, err)
	}
	names, err := readWhole(namesDS)
	if err != nil {
		return nil, xerrors.Errorf("load directory index %s: %w", path, err)
	}

	raws, err := unmarshalCompound(compound)
	if err != nil {
		return nil, xerrors.Errorf("load directory index %s: %w", path, err)
	}

	offset := 0
	for _, raw := range raws {
		end := offset + int(raw.LinkNameLength)
		if end > len(names) {
			return nil, xerrors.Errorf("load directory index %s: names blob shorter than record lengths claim", path)
		}
		name := string(names[offset:end])
		offset = end

		record := recordFromRaw(raw, name)
		if record.LinkType == Symlink && readLinkTargets {
			target, err := group.ReadSoftLink(name)
			if err != nil {
				return nil, xerrors.Errorf("load directory index %s: resolve symlink %s: %w", path, name, err)
			}
			record.LinkTarget = target
		}
		idx.records[name] = record
	}

	return idx, nil
}

func readWhole(ds h5.Dataset) ([]byte, error) {
	size, err := ds.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	if _, err := ds.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// Exists reports whether name is present in this directory.
func (idx *DirectoryIndex) Exists(name string) bool {
	_, ok := idx.records[name]
	return ok
}

// TryGetLink returns the record for name, or nil if absent.
func (idx *DirectoryIndex) TryGetLink(name string) *LinkRecord {
	return idx.records[name]
}

// TryGetFileLink returns the record for name if it names a regular file or
// symlink, or nil otherwise (absent, a directory, or any other type).
func (idx *DirectoryIndex) TryGetFileLink(name string) *LinkRecord {
	r, ok := idx.records[name]
	if !ok || (r.LinkType != RegularFile && r.LinkType != Symlink) {
		return nil
	}
	return r
}

// IsDirectory reports whether name names a directory entry.
func (idx *DirectoryIndex) IsDirectory(name string) bool {
	r, ok := idx.records[name]
	return ok && r.LinkType == Directory
}

// Entries returns the index's records in the canonical stored order:
// directories first, then lexicographic by name.
func (idx *DirectoryIndex) Entries() []*LinkRecord {
	out := make([]*LinkRecord, 0, len(idx.records))
	for _, r := range idx.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// UpdateIndex inserts or replaces record by LinkName, marking the index
// dirty.
func (idx *DirectoryIndex) UpdateIndex(record *LinkRecord) {
	idx.records[record.LinkName] = record
	idx.dirty = true
}

// UpdateIndexBulk replaces the directory's entire contents with records.
// Entries not present in records are dropped from the index, but their
// backing storage is left untouched — the caller (the updater, after a
// full directory archive) is responsible for consistency. Duplicate names
// in records: last write wins, per spec §4.3.
func (idx *DirectoryIndex) UpdateIndexBulk(records []*LinkRecord) {
	next := make(map[string]*LinkRecord, len(records))
	for _, r := range records {
		next[r.LinkName] = r
	}
	idx.records = next
	idx.dirty = true
}

// Remove deletes name from the index, reporting whether it was present.
func (idx *DirectoryIndex) Remove(name string) bool {
	if _, ok := idx.records[name]; !ok {
		return false
	}
	delete(idx.records, name)
	idx.dirty = true
	return true
}

// AddFlushable registers f as in-flight against this index.
func (idx *DirectoryIndex) AddFlushable(f Flushable) {
	idx.flushables[f] = struct{}{}
}

// RemoveFlushable deregisters f, e.g. once its streaming write has closed.
func (idx *DirectoryIndex) RemoveFlushable(f Flushable) {
	delete(idx.flushables, f)
}

// Dirty reports whether the index has unflushed updates.
func (idx *DirectoryIndex) Dirty() bool { return idx.dirty }

// Flush persists the index if dirty: first flushes every attached
// Flushable so their records carry final size/crc32 values, then
// serializes and writes both sibling datasets, replacing prior content.
// A clean index is a no-op (idempotent).
func (idx *DirectoryIndex) Flush() error {
	if !idx.dirty {
		return nil
	}

	for f := range idx.flushables {
		if err := f.Flush(); err != nil {
			return xerrors.Errorf("flush directory index %s: flush pending write: %w", idx.path, err)
		}
	}

	entries := idx.Entries()
	compound, names, err := marshalCompound(entries)
	if err != nil {
		return xerrors.Errorf("flush directory index %s: %w", idx.path, err)
	}

	if err := idx.writeDataset(compoundDatasetName, compound); err != nil {
		return xerrors.Errorf("flush directory index %s: %w", idx.path, err)
	}
	if err := idx.writeDataset(namesDatasetName, names); err != nil {
		return xerrors.Errorf("flush directory index %s: %w", idx.path, err)
	}

	idx.dirty = false
	return nil
}

// writeDataset replaces the whole content of the dataset named name in
// idx's group, recreating it if it already exists — store algorithm
// writes happen uncompressed and without chunking, per spec §4.3.
func (idx *DirectoryIndex) writeDataset(name string, data []byte) error {
	if idx.group.Exists(name) {
		if err := idx.group.Unlink(name); err != nil {
			return err
		}
	}
	ds, err := idx.group.CreateDataset(name, h5.LayoutContiguous, 0, false)
	if err != nil {
		return err
	}
	defer ds.Close()
	if len(data) == 0 {
		return nil
	}
	_, err = ds.WriteAt(data, 0)
	return err
}
