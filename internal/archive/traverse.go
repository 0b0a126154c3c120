package archive

import (
	"golang.org/x/xerrors"

	"github.com/h5ar/h5ar/internal/archivepath"
	"github.com/h5ar/h5ar/internal/h5"
)

// ArchiveEntry is the read-only view of one archive node a processor
// receives, combining its archive path with its LinkRecord.
type ArchiveEntry struct {
	Path string
	*LinkRecord
}

// Processor is the pluggable visitor the Traverser drives over an archive
// subtree, per spec §4.7.
type Processor interface {
	// VisitPre is called before descending into entry; returning false
	// skips the subtree (and VisitPost for it).
	VisitPre(entry ArchiveEntry) (bool, error)
	// VisitFile is called for each regular file or symlink.
	VisitFile(entry ArchiveEntry) error
	// VisitPost is called after a directory's children have all been
	// visited, for cleanup.
	VisitPost(entry ArchiveEntry) error
}

// Traverser drives recursive list/verify/extract operations over archive
// subtrees (C7).
type Traverser struct {
	provider *IndexProvider
	strategy ErrorStrategy
}

// NewTraverser returns a Traverser reading through provider.
func NewTraverser(provider *IndexProvider, strategy ErrorStrategy) *Traverser {
	if strategy == nil {
		strategy = FailFast{}
	}
	return &Traverser{provider: provider, strategy: strategy}
}

// Process walks startPath, invoking processor's callbacks. If recursive is
// false, only startPath's immediate children are visited (no VisitPre/
// VisitPost recursion past the first level).
func (t *Traverser) Process(startPath string, recursive, readLinkTargets bool, processor Processor) error {
	startPath, err := archivepath.Normalize(startPath)
	if err != nil {
		return err
	}
	root := NewRootRecord()
	if !archivepath.IsRoot(startPath) {
		parentIdx, err := t.provider.Get(archivepath.Parent(startPath), readLinkTargets)
		if err != nil {
			return err
		}
		found := parentIdx.TryGetLink(archivepath.Name(startPath))
		if found == nil {
			return &NotFoundError{Path: startPath}
		}
		root = found
	}

	if root.LinkType != Directory {
		return processor.VisitFile(ArchiveEntry{Path: startPath, LinkRecord: root})
	}

	entry := ArchiveEntry{Path: startPath, LinkRecord: root}
	descend, err := processor.VisitPre(entry)
	if err != nil {
		return err
	}
	if !descend {
		return nil
	}
	idx, err := t.provider.Get(startPath, readLinkTargets)
	if err != nil {
		return &UnarchivingError{Path: startPath, Err: err}
	}
	for _, child := range idx.Entries() {
		childPath := archivepath.Join(startPath, child.LinkName)
		if err := t.walk(childPath, child, recursive, readLinkTargets, processor); err != nil {
			if dealErr := t.strategy.DealWithError(err); dealErr != nil {
				return dealErr
			}
		}
	}
	return processor.VisitPost(entry)
}

// walk visits record (at path), then — if it's a directory and the
// processor chose to descend — its children. canDescendFurther controls
// whether a directory *child* encountered here is itself allowed to list
// its own children: true at the start path always, and at every deeper
// level only when recursive is set.
func (t *Traverser) walk(path string, record *LinkRecord, canDescendFurther, readLinkTargets bool, processor Processor) error {
	entry := ArchiveEntry{Path: path, LinkRecord: record}

	if record.LinkType != Directory {
		return processor.VisitFile(entry)
	}

	descend, err := processor.VisitPre(entry)
	if err != nil {
		return err
	}
	if !descend || !canDescendFurther {
		if descend {
			return processor.VisitPost(entry)
		}
		return nil
	}

	idx, err := t.provider.Get(path, readLinkTargets)
	if err != nil {
		return &UnarchivingError{Path: path, Err: err}
	}
	for _, child := range idx.Entries() {
		childPath := archivepath.Join(path, child.LinkName)
		if err := t.walk(childPath, child, canDescendFurther, readLinkTargets, processor); err != nil {
			if dealErr := t.strategy.DealWithError(err); dealErr != nil {
				return dealErr
			}
		}
	}

	return processor.VisitPost(entry)
}

// readDataset opens and fully reads the opaque dataset backing the
// regular file at path (in group).
func readDataset(group h5.Group, name string) ([]byte, error) {
	ds, err := group.OpenDataset(name)
	if err != nil {
		return nil, xerrors.Errorf("open dataset %s: %w", name, err)
	}
	defer ds.Close()
	return readWhole(ds)
}
