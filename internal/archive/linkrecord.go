// Package archive implements h5ar's archiver engine: the directory index,
// the index provider cache, the archive updater/deleter, the traverser and
// its list/verify/extract processors, and the streaming write adapter,
// layered over the internal/h5 storage seam.
package archive

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/h5ar/h5ar/internal/nativefs"
)

// LinkType classifies an archive entry, with the values stored in the
// compound record's i8 linkType field. OTHER is the catch-all for
// filesystem entries that are neither a regular file, directory, nor
// symlink (device nodes, sockets, FIFOs).
type LinkType int8

const (
	RegularFile LinkType = iota
	Directory
	Symlink
	Other
)

func (t LinkType) String() string {
	switch t {
	case RegularFile:
		return "REGULAR_FILE"
	case Directory:
		return "DIRECTORY"
	case Symlink:
		return "SYMLINK"
	default:
		return "OTHER"
	}
}

// Unknown is the sentinel for numeric fields whose value wasn't captured.
const Unknown = -1

// LinkRecord is one archive entry: a file, directory, or symlink, plus the
// metadata fields the on-disk compound record stores for it.
type LinkRecord struct {
	LinkName     string
	LinkTarget   string // only meaningful when LinkType == Symlink
	LinkType     LinkType
	Size         int64 // bytes; Unknown unless LinkType == RegularFile
	LastModified int64 // seconds since epoch; Unknown if not captured
	UID          int32 // Unknown when absent
	GID          int32
	Permissions  int16 // Unknown (-1) when absent
	CRC32        uint32

	// Verification fields, populated only by the verify processor.
	VerifiedType  LinkType
	VerifiedSize  int64
	VerifiedCRC32 uint32
	Verified      bool
}

// NewDirectoryRecord builds the synthetic record the archive updater writes
// into a parent index to represent a subdirectory: type DIRECTORY, no
// checksum, unknown size.
func NewDirectoryRecord(name string) *LinkRecord {
	return &LinkRecord{
		LinkName:     name,
		LinkType:     Directory,
		Size:         Unknown,
		LastModified: Unknown,
		UID:          Unknown,
		GID:          Unknown,
		Permissions:  Unknown,
	}
}

// NewRootRecord builds the record representing the archive's own root
// group, used when a caller asks the traverser to start at "/".
func NewRootRecord() *LinkRecord {
	r := NewDirectoryRecord("")
	return r
}

// NewLinkRecordFromPath constructs a LinkRecord by stat-ing fsPath on the
// real filesystem. When includeOwnerAndPermissions is false, uid/gid/
// permissions are left Unknown even if the native provider has them —
// spec §4.2's "construct from native filesystem path".
func NewLinkRecordFromPath(name, fsPath string, includeOwnerAndPermissions bool) (*LinkRecord, error) {
	info, err := nativefs.Lstat(fsPath)
	if err != nil {
		return nil, xerrors.Errorf("new link record for %s: %w", fsPath, err)
	}

	r := &LinkRecord{
		LinkName:     name,
		Size:         Unknown,
		LastModified: info.LastModified.Unix(),
		UID:          Unknown,
		GID:          Unknown,
		Permissions:  Unknown,
	}

	switch {
	case info.IsDir:
		r.LinkType = Directory
	case info.IsSymlink:
		r.LinkType = Symlink
		target, err := nativefs.Readlink(fsPath)
		if err != nil {
			return nil, xerrors.Errorf("new link record for %s: %w", fsPath, err)
		}
		r.LinkTarget = target
	case info.IsRegular:
		r.LinkType = RegularFile
		r.Size = info.Size
	default:
		r.LinkType = Other
	}

	if includeOwnerAndPermissions {
		r.UID = int32(info.UID)
		r.GID = int32(info.GID)
		r.Permissions = int16(nativefs.Permissions(info.Mode))
	}

	return r, nil
}

// Less implements the ordering LinkRecords are kept and serialized in:
// directories sort before files, then lexicographically by name.
func Less(a, b *LinkRecord) bool {
	ad, bd := a.LinkType == Directory, b.LinkType == Directory
	if ad != bd {
		return ad
	}
	return a.LinkName < b.LinkName
}

// rawRecord is the packed on-disk compound layout, little-endian, matching
// spec §3 field-for-field: i32 linkNameLength, i8 linkType, i64 size, i64
// lastModified, i32 uid, i32 gid, i16 permissions, i32 crc32.
type rawRecord struct {
	LinkNameLength int32
	LinkType       int8
	Size           int64
	LastModified   int64
	UID            int32
	GID            int32
	Permissions    int16
	CRC32          uint32
}

const rawRecordSize = 4 + 1 + 8 + 8 + 4 + 4 + 2 + 4

// prepareForWriting appends r's name bytes to names and returns the packed
// compound record plus the names buffer's new content. Name length counts
// UTF-8 bytes, not codepoints, per spec §4.2.
func (r *LinkRecord) prepareForWriting(names []byte) (rawRecord, []byte) {
	nameBytes := []byte(r.LinkName)
	names = append(names, nameBytes...)
	raw := rawRecord{
		LinkNameLength: int32(len(nameBytes)),
		LinkType:       int8(r.LinkType),
		Size:           r.Size,
		LastModified:   r.LastModified,
		UID:            r.UID,
		GID:            r.GID,
		Permissions:    r.Permissions,
		CRC32:          r.CRC32,
	}
	return raw, names
}

// marshalCompound packs records (in the order given) into one byte slice
// holding the compound array, plus the concatenated names blob.
func marshalCompound(records []*LinkRecord) (compound, names []byte, err error) {
	buf := make([]byte, 0, len(records)*rawRecordSize)
	for _, r := range records {
		raw, newNames := r.prepareForWriting(names)
		names = newNames
		entry, err := marshalRaw(raw)
		if err != nil {
			return nil, nil, err
		}
		buf = append(buf, entry...)
	}
	return buf, names, nil
}

func marshalRaw(raw rawRecord) ([]byte, error) {
	buf := make([]byte, 0, rawRecordSize)
	w := &sliceWriter{buf: &buf}
	for _, field := range []interface{}{
		raw.LinkNameLength, raw.LinkType, raw.Size, raw.LastModified,
		raw.UID, raw.GID, raw.Permissions, raw.CRC32,
	} {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return nil, xerrors.Errorf("marshal link record: %w", err)
		}
	}
	return buf, nil
}

// sliceWriter adapts a *[]byte to io.Writer for use with binary.Write.
type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// unmarshalCompound reads the packed compound array back into rawRecords.
func unmarshalCompound(compound []byte) ([]rawRecord, error) {
	if len(compound)%rawRecordSize != 0 {
		return nil, xerrors.Errorf("unmarshal link records: compound length %d is not a multiple of record size %d", len(compound), rawRecordSize)
	}
	n := len(compound) / rawRecordSize
	out := make([]rawRecord, n)
	r := byteReader{buf: compound}
	for i := 0; i < n; i++ {
		var raw rawRecord
		for _, field := range []interface{}{
			&raw.LinkNameLength, &raw.LinkType, &raw.Size, &raw.LastModified,
			&raw.UID, &raw.GID, &raw.Permissions, &raw.CRC32,
		} {
			if err := binary.Read(&r, binary.LittleEndian, field); err != nil {
				return nil, xerrors.Errorf("unmarshal link record %d: %w", i, err)
			}
		}
		out[i] = raw
	}
	return out, nil
}

// byteReader adapts a []byte to io.Reader for use with binary.Read.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}

// recordFromRaw reconstructs a LinkRecord from its packed fields plus the
// name slice already extracted from the names blob (initAfterReading in
// spec terms).
func recordFromRaw(raw rawRecord, name string) *LinkRecord {
	return &LinkRecord{
		LinkName:     name,
		LinkType:     LinkType(raw.LinkType),
		Size:         raw.Size,
		LastModified: raw.LastModified,
		UID:          raw.UID,
		GID:          raw.GID,
		Permissions:  raw.Permissions,
		CRC32:        raw.CRC32,
	}
}
