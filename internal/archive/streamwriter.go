package archive

import (
	"hash/crc32"

	"golang.org/x/xerrors"

	"github.com/h5ar/h5ar/internal/archivepath"
	"github.com/h5ar/h5ar/internal/h5"
)

// smallDatasetLimit is the size at or below which a file that never fills
// a chunk gets created as a CONTIGUOUS dataset instead of CHUNKED — spec
// §4.5's SMALL_DATASET_LIMIT. With compression off, every such file is
// CONTIGUOUS regardless of size.
const smallDatasetLimit = 4096

// defaultChunkSize is used when the caller doesn't specify one.
const defaultChunkSize = 10 << 20 // 10 MiB, the updater's conventional shared-buffer size.

// blockWriter accumulates writes for a file's dataset, buffering them in
// memory until either enough bytes have arrived to commit the dataset as
// CHUNKED, or the writer is closed with fewer than a chunk's worth ever
// written, at which point the CONTIGUOUS-vs-CHUNKED layout decision is made
// from the total size. It is shared by the updater's pull-based
// file-streaming algorithm and the push-based StreamWriter; deferring the
// decision to Close (rather than to the first Write) is what makes it safe
// for the latter, whose callers may split a short file across several
// Write calls.
type blockWriter struct {
	group     h5.Group
	name      string
	chunkSize int64
	compress  bool

	ds      h5.Dataset
	pending []byte // buffered bytes not yet committed to a dataset
	crc     uint32
	size    int64
	decided bool // true once ds holds a dataset with its final layout
}

func newBlockWriter(group h5.Group, name string, chunkSize int64, compress bool) (*blockWriter, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &blockWriter{group: group, name: name, chunkSize: chunkSize, compress: compress}, nil
}

// Write appends p at the writer's current offset, folding it into the
// running CRC32. Until the layout is decided, p is buffered in pending;
// once pending reaches chunkSize the dataset is committed as CHUNKED and
// writes from then on go straight to it.
func (w *blockWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	w.crc = crc32.Update(w.crc, crc32.IEEETable, p)
	w.size += int64(len(p))

	if w.decided {
		if _, err := w.ds.WriteAt(p, w.size-int64(len(p))); err != nil {
			return xerrors.Errorf("write dataset %s: %w", w.name, err)
		}
		return nil
	}

	w.pending = append(w.pending, p...)
	if int64(len(w.pending)) >= w.chunkSize {
		return w.commitChunked()
	}
	return nil
}

// replaceExisting unlinks any object already named w.name, so re-archiving
// a path that was previously written (a file overwritten in place, or a
// directory re-archived whose children are re-streamed one by one) updates
// it instead of failing with h5.ErrExists.
func (w *blockWriter) replaceExisting() error {
	if !w.group.Exists(w.name) {
		return nil
	}
	if err := w.group.Unlink(w.name); err != nil {
		return xerrors.Errorf("replace dataset %s: %w", w.name, err)
	}
	return nil
}

// commitChunked creates name as a CHUNKED dataset and writes whatever is
// buffered in pending to it in one call.
func (w *blockWriter) commitChunked() error {
	if err := w.replaceExisting(); err != nil {
		return err
	}
	ds, err := w.group.CreateDataset(w.name, h5.LayoutChunked, w.chunkSize, w.compress)
	if err != nil {
		return xerrors.Errorf("create dataset %s: %w", w.name, err)
	}
	if len(w.pending) > 0 {
		if _, err := ds.WriteAt(w.pending, 0); err != nil {
			return xerrors.Errorf("write dataset %s: %w", w.name, err)
		}
	}
	w.ds = ds
	w.pending = nil
	w.decided = true
	return nil
}

// commitContiguous creates name as a CONTIGUOUS dataset and writes
// whatever is buffered in pending to it in one call — spec §4.5's
// small-dataset special case.
func (w *blockWriter) commitContiguous() error {
	if err := w.replaceExisting(); err != nil {
		return err
	}
	ds, err := w.group.CreateDataset(w.name, h5.LayoutContiguous, 0, false)
	if err != nil {
		return xerrors.Errorf("create dataset %s: %w", w.name, err)
	}
	if len(w.pending) > 0 {
		if _, err := ds.WriteAt(w.pending, 0); err != nil {
			return xerrors.Errorf("write dataset %s: %w", w.name, err)
		}
	}
	w.ds = ds
	w.pending = nil
	w.decided = true
	return nil
}

// Close settles the layout decision if Write never accumulated a full
// chunk's worth of data, then finalizes the dataset.
func (w *blockWriter) Close() error {
	if !w.decided {
		small := w.size <= smallDatasetLimit || !w.compress
		var err error
		if small {
			err = w.commitContiguous()
		} else {
			err = w.commitChunked()
		}
		if err != nil {
			return err
		}
	}
	return w.ds.Close()
}

// Info returns the finished dataset's size and checksum.
func (w *blockWriter) Info() (size int64, crc uint32) { return w.size, w.crc }

// StreamWriter is the push-based streaming file writer spec §4.9
// describes (the public surface of C9): wraps a blockWriter plus the
// LinkRecord and DirectoryIndex it will update on flush.
type StreamWriter struct {
	bw   *blockWriter
	link *LinkRecord

	path               string
	provider           *IndexProvider
	immediateGroupOnly bool
	stripRoot          string

	closed bool
}

// newStreamWriter prepares a blockWriter for link at path (inside group)
// and registers itself as a Flushable on the directory index owning link,
// per spec §4.9 step 1. The backing dataset isn't created until enough
// bytes arrive (or Close settles a short file), so a StreamWriter opened
// but never written to costs nothing until it's closed.
func newStreamWriter(path string, group h5.Group, link *LinkRecord, provider *IndexProvider, parentIdx *DirectoryIndex, chunkSize int64, compress bool, immediateGroupOnly bool, stripRoot string) (*StreamWriter, error) {
	name := archivepath.Name(path)
	bw, err := newBlockWriter(group, name, chunkSize, compress)
	if err != nil {
		return nil, err
	}
	sw := &StreamWriter{
		bw:                 bw,
		link:               link,
		path:               path,
		provider:           provider,
		immediateGroupOnly: immediateGroupOnly,
		stripRoot:          stripRoot,
	}
	parentIdx.AddFlushable(sw)
	return sw, nil
}

// Write forwards p to the dataset stream, folding it into the running
// CRC32 and accumulating size (spec §4.9 step 2).
func (w *StreamWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, xerrors.New("stream writer: write after close")
	}
	if err := w.bw.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush sets the link's size/crc32 from the running values and propagates
// them up the index chain, per spec §4.9 step 3. It is safe to call
// repeatedly; the DirectoryIndex's flushable contract relies on this.
func (w *StreamWriter) Flush() error {
	size, crc := w.bw.Info()
	w.link.Size = size
	w.link.CRC32 = crc
	return propagateIndices(w.provider, w.stripRoot, w.path, w.link, w.immediateGroupOnly)
}

// Close flushes then closes the dataset stream and deregisters from the
// owning index (spec §4.9 step 4).
func (w *StreamWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.Flush(); err != nil {
		return err
	}
	parent, err := w.provider.Get(archivepath.Parent(w.path), false)
	if err == nil {
		parent.RemoveFlushable(w)
	}
	return w.bw.Close()
}
