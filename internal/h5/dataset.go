package h5

import (
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/xerrors"
)

// RandomAccessFile is a block-resident, byte-addressable view over a
// dataset: it keeps exactly one block of the underlying dataset in memory
// at a time, following the same accumulate-then-flush shape as
// internal/squashfs's file writer, but adapted for read/write/seek rather
// than write-once.
type RandomAccessFile struct {
	ds       Dataset
	readOnly bool
	order    binary.ByteOrder

	blockSize        int64
	blockOffset      int64 // byte offset of the resident block's start
	block            []byte
	realBlockSize    int64 // valid bytes currently held in block
	positionInBlock  int64
	blockDirty       bool
	extensionPending bool // set by Seek past length; resolved by the next Write

	pos    int64 // the file pointer, blockOffset + positionInBlock
	length int64 // current logical length of the file

	marked  blockMark
	hasMark bool
}

type blockMark struct {
	blockOffset     int64
	positionInBlock int64
}

// OpenRandomAccess wraps ds for random access, given the dataset's current
// logical length (tracked outside the dataset itself, in the owning
// LinkRecord, since a chunked dataset's storage extent can be rounded up
// to a block boundary). readOnly forbids seeking or reading past length
// and forbids any Write.
func OpenRandomAccess(ds Dataset, length int64, readOnly bool) *RandomAccessFile {
	bs := ds.ChunkSize()
	if bs <= 0 {
		bs = length
		if bs == 0 {
			bs = 1
		}
	}
	return &RandomAccessFile{ds: ds, blockSize: bs, length: length, readOnly: readOnly, order: binary.BigEndian}
}

// SetByteOrder selects the byte order used by the typed readers/writers
// below (ReadShort, WriteInt, ...). Big-endian by default, per spec.
func (f *RandomAccessFile) SetByteOrder(order binary.ByteOrder) { f.order = order }

// Len reports the file's current logical length.
func (f *RandomAccessFile) Len() int64 { return f.length }

func (f *RandomAccessFile) blockIndex(pos int64) int64 {
	return pos / f.blockSize
}

// loadBlock makes the block containing pos resident, flushing the
// previously-resident dirty block first.
func (f *RandomAccessFile) loadBlock(pos int64) error {
	offset := f.blockIndex(pos) * f.blockSize
	if f.block != nil && offset == f.blockOffset {
		f.positionInBlock = pos - offset
		return nil
	}
	if err := f.flushBlock(); err != nil {
		return err
	}

	f.block = make([]byte, f.blockSize)
	f.blockOffset = offset
	f.realBlockSize = 0
	f.extensionPending = false

	if offset < f.length {
		want := f.blockSize
		if offset+want > f.length {
			want = f.length - offset
		}
		n, err := f.ds.ReadAt(f.block[:want], offset)
		if err != nil && err != io.EOF {
			return xerrors.Errorf("random access: load block at %d: %w", offset, err)
		}
		f.realBlockSize = int64(n)
	}
	f.positionInBlock = pos - offset
	return nil
}

func (f *RandomAccessFile) flushBlock() error {
	if f.block == nil || !f.blockDirty {
		return nil
	}
	end := f.blockOffset + f.realBlockSize
	size, err := f.ds.Size()
	if err != nil {
		return xerrors.Errorf("random access: flush block at %d: %w", f.blockOffset, err)
	}
	if end > size {
		if err := f.ds.SetExtent(end); err != nil {
			return xerrors.Errorf("random access: extend dataset: %w", err)
		}
	}
	if _, err := f.ds.WriteAt(f.block[:f.realBlockSize], f.blockOffset); err != nil {
		return xerrors.Errorf("random access: flush block at %d: %w", f.blockOffset, err)
	}
	f.blockDirty = false
	f.extensionPending = false
	return nil
}

// ReadAt reads len(p) bytes starting at off, the same contract as
// io.ReaderAt: it returns io.EOF only when fewer than len(p) bytes could be
// read because off+len(p) runs past the file's length.
func (f *RandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.length {
		return 0, io.EOF
	}
	total := int64(len(p))
	if off+total > f.length {
		total = f.length - off
	}

	var read int64
	for read < total {
		pos := off + read
		if err := f.loadBlock(pos); err != nil {
			return int(read), err
		}
		avail := f.realBlockSize - f.positionInBlock
		if avail <= 0 {
			break
		}
		n := total - read
		if n > avail {
			n = avail
		}
		copy(p[read:read+n], f.block[f.positionInBlock:f.positionInBlock+n])
		read += n
	}
	if read < int64(len(p)) {
		return int(read), io.EOF
	}
	return int(read), nil
}

// WriteAt writes len(p) bytes starting at off, auto-extending the file
// (and, on the next block flush, the underlying dataset) if off+len(p)
// exceeds the current length. Contiguous-layout datasets reject any write
// that would extend them past their original length.
func (f *RandomAccessFile) WriteAt(p []byte, off int64) (int, error) {
	if f.readOnly {
		return 0, xerrors.New("random access: write to read-only file")
	}
	var written int64
	total := int64(len(p))
	for written < total {
		pos := off + written
		if err := f.loadBlock(pos); err != nil {
			return int(written), err
		}
		n := total - written
		if f.positionInBlock+n > f.blockSize {
			n = f.blockSize - f.positionInBlock
		}
		copy(f.block[f.positionInBlock:f.positionInBlock+n], p[written:written+n])
		f.blockDirty = true
		f.extensionPending = false
		if f.positionInBlock+n > f.realBlockSize {
			f.realBlockSize = f.positionInBlock + n
		}
		f.positionInBlock += n
		written += n
		if off+written > f.length {
			f.length = off + written
		}
	}
	return int(written), nil
}

// Read reads from the current file pointer, advancing it by the number of
// bytes returned — the sequential counterpart to ReadAt.
func (f *RandomAccessFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// Write writes at the current file pointer, advancing it by len(p) — the
// sequential counterpart to WriteAt.
func (f *RandomAccessFile) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// ReadByte reads and returns the next byte as a value in [0,255], or −1 at
// EOF — spec §4.8's single-byte read contract.
func (f *RandomAccessFile) ReadByte() int {
	var b [1]byte
	n, err := f.Read(b[:])
	if n == 0 || (err != nil && err != io.EOF) {
		return -1
	}
	return int(b[0])
}

// Seek moves the file pointer to pos. If pos falls within the file's
// current length, the containing block is flushed (if dirty) and loaded.
// Otherwise the pointer is parked past the end: the block is reset to
// zeros and extensionPending is set, deferring the actual dataset
// extension to the next Write. Read-only files forbid seeking to or past
// the current length.
func (f *RandomAccessFile) Seek(pos int64) error {
	if pos < 0 {
		return xerrors.New("random access: negative seek position")
	}
	if f.readOnly && pos >= f.length {
		return xerrors.New("random access: seek past end of read-only file")
	}

	newBlockOffset := f.blockIndex(pos) * f.blockSize
	if newBlockOffset < f.length {
		if err := f.loadBlock(pos); err != nil {
			return err
		}
	} else {
		if err := f.flushBlock(); err != nil {
			return err
		}
		f.block = make([]byte, f.blockSize)
		f.blockOffset = newBlockOffset
		f.positionInBlock = pos - newBlockOffset
		f.realBlockSize = f.positionInBlock + 1
		f.extensionPending = true
	}
	f.pos = pos
	return nil
}

// Mark records the current block position for a later Reset.
func (f *RandomAccessFile) Mark() {
	f.marked = blockMark{blockOffset: f.blockOffset, positionInBlock: f.positionInBlock}
	f.hasMark = true
}

// Reset restores the position last recorded by Mark, without re-reading if
// the marked position is in the already-resident block.
func (f *RandomAccessFile) Reset() error {
	if !f.hasMark {
		return xerrors.New("random access: reset without a preceding mark")
	}
	if f.marked.blockOffset != f.blockOffset {
		if err := f.loadBlock(f.marked.blockOffset); err != nil {
			return err
		}
	}
	f.positionInBlock = f.marked.positionInBlock
	f.pos = f.blockOffset + f.positionInBlock
	return nil
}

// Flush persists the resident block, if dirty, and the dataset's final
// extent.
func (f *RandomAccessFile) Flush() error {
	if err := f.flushBlock(); err != nil {
		return err
	}
	size, err := f.ds.Size()
	if err != nil {
		return xerrors.Errorf("random access: flush: %w", err)
	}
	if size < f.length {
		if err := f.ds.SetExtent(f.length); err != nil {
			return xerrors.Errorf("random access: flush: %w", err)
		}
	}
	return nil
}

// Truncate changes the file's logical length, never shrinking the backing
// dataset (datasets only grow; a shrink just changes what the owning
// LinkRecord reports as the file's size).
func (f *RandomAccessFile) Truncate(newLength int64) error {
	if newLength < 0 {
		return xerrors.New("random access: negative length")
	}
	f.length = newLength
	return nil
}

// ReadShort reads a big-endian (or SetByteOrder-selected) 16-bit signed
// integer from the current position.
func (f *RandomAccessFile) ReadShort() (int16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, err
	}
	return int16(f.order.Uint16(buf[:])), nil
}

// WriteShort writes v at the current position using the selected byte
// order.
func (f *RandomAccessFile) WriteShort(v int16) error {
	var buf [2]byte
	f.order.PutUint16(buf[:], uint16(v))
	_, err := f.Write(buf[:])
	return err
}

// ReadInt reads a 32-bit signed integer from the current position.
func (f *RandomAccessFile) ReadInt() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, err
	}
	return int32(f.order.Uint32(buf[:])), nil
}

// WriteInt writes v at the current position using the selected byte order.
func (f *RandomAccessFile) WriteInt(v int32) error {
	var buf [4]byte
	f.order.PutUint32(buf[:], uint32(v))
	_, err := f.Write(buf[:])
	return err
}

// ReadFloat reads an IEEE-754 single-precision float from the current
// position.
func (f *RandomAccessFile) ReadFloat() (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(f.order.Uint32(buf[:])), nil
}

// WriteFloat writes v at the current position using the selected byte
// order.
func (f *RandomAccessFile) WriteFloat(v float32) error {
	var buf [4]byte
	f.order.PutUint32(buf[:], math.Float32bits(v))
	_, err := f.Write(buf[:])
	return err
}

// ReadLine reads bytes up to (and consuming) the next '\n', dropping any
// '\r' encountered along the way. Returns io.EOF only if no bytes at all
// were read before EOF.
func (f *RandomAccessFile) ReadLine() (string, error) {
	var line []byte
	for {
		b := f.ReadByte()
		if b == -1 {
			if len(line) == 0 {
				return "", io.EOF
			}
			return string(line), nil
		}
		if b == '\n' {
			return string(line), nil
		}
		if b == '\r' {
			continue
		}
		line = append(line, byte(b))
	}
}

// ReadUTF reads a string written by WriteUTF: a 16-bit unsigned length
// prefix followed by that many UTF-8 bytes.
func (f *RandomAccessFile) ReadUTF() (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return "", err
	}
	n := f.order.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(f, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

// WriteUTF writes s as a 16-bit unsigned length prefix followed by its
// UTF-8 bytes.
func (f *RandomAccessFile) WriteUTF(s string) error {
	if len(s) > math.MaxUint16 {
		return xerrors.New("random access: string too long for writeUTF")
	}
	var lenBuf [2]byte
	f.order.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.Write([]byte(s))
	return err
}
