package archive

import (
	"io"
	"sort"

	"golang.org/x/xerrors"

	"github.com/h5ar/h5ar/internal/archivepath"
	"github.com/h5ar/h5ar/internal/h5"
	"github.com/h5ar/h5ar/internal/nativefs"
)

// ArchiveStrategy configures how the updater converts filesystem entries
// into link records: whether to exclude a path, whether to capture
// ownership/permissions, and whether to compress file content.
type ArchiveStrategy interface {
	// DoExclude reports whether fsPath (a directory if isDir) should be
	// skipped entirely.
	DoExclude(fsPath string, isDir bool) bool
	// IncludeOwnerAndPermissions reports whether uid/gid/permissions
	// should be captured from the native filesystem.
	IncludeOwnerAndPermissions() bool
	// Compress reports whether new file datasets use deflate.
	Compress() bool
}

// DefaultStrategy excludes nothing, captures ownership, and compresses.
type DefaultStrategy struct{}

func (DefaultStrategy) DoExclude(fsPath string, isDir bool) bool { return false }
func (DefaultStrategy) IncludeOwnerAndPermissions() bool         { return true }
func (DefaultStrategy) Compress() bool                           { return true }

// Updater is the archive updater (C5): it ingests filesystem trees or
// individual entries into an open container, keeping ancestor index
// records consistent up to the archive root.
type Updater struct {
	provider *IndexProvider
	strategy ErrorStrategy
	visitor  func(archivePath string)
}

// NewUpdater returns an Updater writing through provider, routing failures
// through errStrategy. visitor, if non-nil, is called once per
// successfully archived path (used for CLI progress reporting).
func NewUpdater(provider *IndexProvider, errStrategy ErrorStrategy, visitor func(string)) *Updater {
	if errStrategy == nil {
		errStrategy = FailFast{}
	}
	return &Updater{provider: provider, strategy: errStrategy, visitor: visitor}
}

// ArchiveAt archives fsPath under rootInArchive, keeping fsPath's own
// basename.
func (u *Updater) ArchiveAt(rootInArchive, fsPath string, strategy ArchiveStrategy, chunkSize int64) error {
	rootInArchive, err := archivepath.Normalize(rootInArchive)
	if err != nil {
		return err
	}
	name := lastPathComponent(fsPath)
	archivePath := archivepath.Join(rootInArchive, name)
	return u.archiveEntry(archivePath, fsPath, strategy, chunkSize, rootInArchive, true)
}

// ArchiveBelow archives the contents of fsDir (not fsDir itself) directly
// under rootInArchive.
func (u *Updater) ArchiveBelow(rootInArchive, fsDir string, strategy ArchiveStrategy, chunkSize int64) error {
	rootInArchive, err := archivepath.Normalize(rootInArchive)
	if err != nil {
		return err
	}
	entries, err := nativefs.ReadDir(fsDir)
	if err != nil {
		return &ArchivingError{Path: rootInArchive, Err: err}
	}
	for _, e := range entries {
		childFsPath := fsDir + string(pathSeparator) + e.Name()
		childArchivePath := archivepath.Join(rootInArchive, e.Name())
		if err := u.archiveEntry(childArchivePath, childFsPath, strategy, chunkSize, rootInArchive, true); err != nil {
			if dealErr := u.strategy.DealWithError(err); dealErr != nil {
				return dealErr
			}
		}
	}
	return nil
}

// ArchiveRelativeTo archives fsPath at the archive path obtained by
// relativizing fsPath against parentToStrip.
func (u *Updater) ArchiveRelativeTo(parentToStrip, fsPath string, strategy ArchiveStrategy, chunkSize int64) error {
	rel, err := stripPrefix(parentToStrip, fsPath)
	if err != nil {
		return err
	}
	archivePath, err := archivepath.Normalize(rel)
	if err != nil {
		return err
	}
	stripRoot := archivepath.Parent(archivePath)
	return u.archiveEntry(archivePath, fsPath, strategy, chunkSize, stripRoot, true)
}

// archiveEntry is the shared recursive worker behind every public Archive*
// entry point: it stats fsPath, dispatches by type, and recurses into
// directories.
func (u *Updater) archiveEntry(archivePath, fsPath string, strategy ArchiveStrategy, chunkSize int64, stripRoot string, immediateGroupOnly bool) error {
	if strategy == nil {
		strategy = DefaultStrategy{}
	}

	name := archivepath.Name(archivePath)
	link, err := NewLinkRecordFromPath(name, fsPath, strategy.IncludeOwnerAndPermissions())
	if err != nil {
		dealErr := u.strategy.DealWithError(&ArchivingError{Path: archivePath, Err: err})
		return dealErr
	}

	if strategy.DoExclude(fsPath, link.LinkType == Directory) {
		return nil
	}

	parentPath := archivepath.Parent(archivePath)
	parentIdx, err := u.provider.Get(parentPath, false)
	if err != nil {
		return &ArchivingError{Path: archivePath, Err: err}
	}

	switch link.LinkType {
	case Directory:
		if err := u.archiveDir(archivePath, fsPath, strategy, chunkSize, stripRoot); err != nil {
			return err
		}
		// A subdirectory's own name is always registered directly in its
		// immediate parent as part of normal traversal; no multi-level
		// ancestor walk is needed (each level does this for itself).
		parentIdx.UpdateIndex(link)
	case Symlink:
		group, err := u.provider.resolveGroup(parentPath)
		if err != nil {
			return &ArchivingError{Path: archivePath, Err: err}
		}
		if err := group.CreateSoftLink(name, link.LinkTarget); err != nil {
			return u.strategy.DealWithError(&ArchivingError{Path: archivePath, Err: err})
		}
		parentIdx.UpdateIndex(link)
	case RegularFile:
		f, err := nativefs.Open(fsPath)
		if err != nil {
			return u.strategy.DealWithError(&ArchivingError{Path: archivePath, Err: err})
		}
		defer f.Close()
		info, err := u.streamFile(parentPath, name, f, strategy.Compress(), chunkSize)
		if err != nil {
			return u.strategy.DealWithError(&ArchivingError{Path: archivePath, Err: err})
		}
		link.Size = info.size
		link.CRC32 = info.crc
		// Unless immediateGroupOnly is set, files propagate a DIRECTORY
		// marker all the way up to stripRoot, so an ancestor whose own
		// index wasn't touched directly still learns it contains
		// (indirectly) something new; with it set, only the immediate
		// parent's index is updated.
		if err := propagateIndices(u.provider, stripRoot, archivePath, link, immediateGroupOnly); err != nil {
			return err
		}
	default:
		return u.strategy.DealWithError(&ArchivingError{Path: archivePath, Err: xerrors.New("neither a file nor a directory")})
	}

	if u.visitor != nil {
		u.visitor(archivePath)
	}
	return nil
}

// sizeHintFactor and the member-count threshold below mirror spec §4.5's
// size-hint heuristic for large directories (kept for parity even though
// internal/h5's in-memory/gob-backed Storage has no real use for a group
// creation hint; a real HDF5 binding would consume it).
const (
	minGroupMemberCountForSizeHint = 100
	sizeHintFactor                 = 5
)

// archiveDir lists fsDir's children, converts each to a LinkRecord via
// strategy, recurses into subdirectories, streams regular files, and
// bulk-replaces the directory's index with the surviving records — spec
// §4.5's directory traversal algorithm.
func (u *Updater) archiveDir(archivePath, fsDir string, strategy ArchiveStrategy, chunkSize int64, stripRoot string) error {
	if _, err := u.provider.CreateGroupAt(archivePath); err != nil {
		return &ArchivingError{Path: archivePath, Err: err}
	}

	entries, err := nativefs.ReadDir(fsDir)
	if err != nil {
		return &ArchivingError{Path: archivePath, Err: err}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	idx, err := u.provider.Get(archivePath, false)
	if err != nil {
		return &ArchivingError{Path: archivePath, Err: err}
	}

	var surviving []*LinkRecord
	for _, e := range entries {
		childFsPath := fsDir + string(pathSeparator) + e.Name()
		childArchivePath := archivepath.Join(archivePath, e.Name())

		if strategy.DoExclude(childFsPath, e.IsDir()) {
			continue
		}

		if err := u.archiveEntry(childArchivePath, childFsPath, strategy, chunkSize, stripRoot, false); err != nil {
			if dealErr := u.strategy.DealWithError(err); dealErr != nil {
				return dealErr
			}
			continue
		}
		if rec := idx.TryGetLink(e.Name()); rec != nil {
			surviving = append(surviving, rec)
		}
	}

	idx.UpdateIndexBulk(surviving)
	return nil
}

type streamInfo struct {
	size int64
	crc  uint32
}

// streamFile implements spec §4.5's file streaming algorithm for the
// pull-based (traversal-driven) path: it reads r in chunkSize-ish blocks
// into a dataset, applying the small-file fallback blockWriter already
// implements.
func (u *Updater) streamFile(parentPath, name string, r io.Reader, compress bool, chunkSize int64) (streamInfo, error) {
	group, err := u.provider.resolveGroup(parentPath)
	if err != nil {
		return streamInfo{}, err
	}
	bw, err := newBlockWriter(group, name, chunkSize, compress)
	if err != nil {
		return streamInfo{}, err
	}

	effectiveChunk := bw.chunkSize
	buf := make([]byte, effectiveChunk)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := bw.Write(buf[:n]); werr != nil {
				return streamInfo{}, werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return streamInfo{}, xerrors.Errorf("stream file %s: %w", name, err)
		}
	}

	if err := bw.Close(); err != nil {
		return streamInfo{}, err
	}
	size, crc := bw.Info()
	return streamInfo{size: size, crc: crc}, nil
}

// propagateIndices implements spec §4.5's ancestor propagation: the first
// call registers link (carrying its real size/crc32) in its immediate
// parent's index; every subsequent step up registers a synthetic
// DIRECTORY record (crc32 = 0) for the directory just updated, one level
// further up, terminating at stripRoot. When immediateGroupOnly is true
// (the parent directory already existed before this write), only the
// immediate parent is touched.
func propagateIndices(provider *IndexProvider, stripRoot, path string, link *LinkRecord, immediateGroupOnly bool) error {
	parentPath := archivepath.Parent(path)
	parentIdx, err := provider.Get(parentPath, false)
	if err != nil {
		return &ArchivingError{Path: path, Err: err}
	}
	parentIdx.UpdateIndex(link)

	if immediateGroupOnly || parentPath == stripRoot || archivepath.IsRoot(parentPath) {
		return nil
	}

	dirRecord := NewDirectoryRecord(archivepath.Name(parentPath))
	return propagateIndices(provider, stripRoot, parentPath, dirRecord, false)
}

const pathSeparator = '/'

func lastPathComponent(fsPath string) string {
	for i := len(fsPath) - 1; i >= 0; i-- {
		if fsPath[i] == pathSeparator || fsPath[i] == '\\' {
			return fsPath[i+1:]
		}
	}
	return fsPath
}

func stripPrefix(prefix, fsPath string) (string, error) {
	if len(fsPath) < len(prefix) || fsPath[:len(prefix)] != prefix {
		return "", &InvalidPathError{Path: fsPath, Reason: "does not start with strip prefix " + prefix}
	}
	return fsPath[len(prefix):], nil
}
