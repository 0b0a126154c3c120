package archive

import (
	"golang.org/x/xerrors"

	"github.com/h5ar/h5ar/internal/archivepath"
	"github.com/h5ar/h5ar/internal/h5"
)

// IndexProvider is a per-container cache mapping archive path to
// *DirectoryIndex. It is not a package-level global — a fresh instance is
// created per opened container, owned by that container's Archive — so
// that multiple containers open in the same process never share state.
// Not safe for concurrent writers: callers mutating the same container must
// serialize their own access.
type IndexProvider struct {
	container h5.Container
	strategy  ErrorStrategy
	cache     map[string]*cachedIndex
}

type cachedIndex struct {
	idx             *DirectoryIndex
	readLinkTargets bool
}

// NewIndexProvider returns an IndexProvider over container, routing
// load/flush failures through strategy.
func NewIndexProvider(container h5.Container, strategy ErrorStrategy) *IndexProvider {
	if strategy == nil {
		strategy = FailFast{}
	}
	return &IndexProvider{
		container: container,
		strategy:  strategy,
		cache:     make(map[string]*cachedIndex),
	}
}

// Get returns the DirectoryIndex for path, constructing and loading it on
// first access. Every call for the same path within one provider's
// lifetime returns the same instance. If the cached instance was built
// with readLinkTargets=false and the caller now asks for true, symlink
// targets are resolved for every SYMLINK entry as a one-shot upgrade.
func (p *IndexProvider) Get(path string, readLinkTargets bool) (*DirectoryIndex, error) {
	path, err := archivepath.Normalize(path)
	if err != nil {
		return nil, err
	}

	if entry, ok := p.cache[path]; ok {
		if readLinkTargets && !entry.readLinkTargets {
			if err := p.upgradeLinkTargets(entry.idx); err != nil {
				return nil, err
			}
			entry.readLinkTargets = true
		}
		return entry.idx, nil
	}

	group, err := p.resolveGroup(path)
	if err != nil {
		return nil, err
	}
	idx, err := loadDirectoryIndex(path, group, readLinkTargets)
	if err != nil {
		return nil, &StorageError{Op: "load directory index " + path, Err: err}
	}
	p.cache[path] = &cachedIndex{idx: idx, readLinkTargets: readLinkTargets}
	return idx, nil
}

func (p *IndexProvider) upgradeLinkTargets(idx *DirectoryIndex) error {
	for _, r := range idx.records {
		if r.LinkType != Symlink || r.LinkTarget != "" {
			continue
		}
		target, err := idx.group.ReadSoftLink(r.LinkName)
		if err != nil {
			return xerrors.Errorf("upgrade link targets for %s: %w", idx.path, err)
		}
		r.LinkTarget = target
	}
	return nil
}

// resolveGroup walks the container's root group down to path, opening
// each intermediate group.
func (p *IndexProvider) resolveGroup(path string) (h5.Group, error) {
	if archivepath.IsRoot(path) {
		return p.container.Root(), nil
	}
	group := p.container.Root()
	for _, name := range splitComponents(path) {
		child, err := group.OpenGroup(name)
		if err != nil {
			return nil, &NotFoundError{Path: path}
		}
		group = child
	}
	return group, nil
}

func splitComponents(path string) []string {
	var out []string
	start := 1 // skip leading '/'
	for i := 1; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// CreateGroupAt creates the group for path, or opens it if it already
// exists — re-archiving a populated subtree in place updates it rather
// than failing, matching archiveDir's bulk-replace-the-index behavior for
// the rest of a directory's contents.
func (p *IndexProvider) CreateGroupAt(path string) (h5.Group, error) {
	parentPath := archivepath.Parent(path)
	name := archivepath.Name(path)
	parentGroup, err := p.resolveGroup(parentPath)
	if err != nil {
		return nil, err
	}
	group, err := parentGroup.CreateGroup(name)
	if xerrors.Is(err, h5.ErrExists) {
		return parentGroup.OpenGroup(name)
	}
	return group, err
}

// Evict drops path from the cache without flushing it, used by the
// deleter after removing a directory's backing HDF5 group so a later
// lookup never touches a cached index for an object that no longer
// exists.
func (p *IndexProvider) Evict(path string) {
	delete(p.cache, path)
}

// Close flushes every cached index and clears the cache. It does not close
// the underlying container; callers that own the container close it
// separately after Close returns.
func (p *IndexProvider) Close() error {
	for path, entry := range p.cache {
		if err := entry.idx.Flush(); err != nil {
			if dealErr := p.strategy.DealWithError(&StorageError{Op: "flush " + path, Err: err}); dealErr != nil {
				return dealErr
			}
		}
	}
	p.cache = make(map[string]*cachedIndex)
	return nil
}
