package h5

import (
	"bytes"
	"io"
	"testing"
)

func newTestGroup(t *testing.T) Group {
	t.Helper()
	store := NewMemStore()
	c, err := store.Create("test")
	if err != nil {
		t.Fatal(err)
	}
	return c.Root()
}

func TestRandomAccessReadWrite(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 8, false)
	if err != nil {
		t.Fatal(err)
	}
	raf := OpenRandomAccess(ds, 0, false)

	payload := []byte("0123456789abcdef0123") // 20 bytes, spans 3 blocks
	if _, err := raf.WriteAt(payload, 0); err != nil {
		t.Fatal(err)
	}
	if raf.Len() != int64(len(payload)) {
		t.Fatalf("Len = %d, want %d", raf.Len(), len(payload))
	}
	if err := raf.Flush(); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(payload))
	if _, err := raf.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadAt = %q, want %q", got, payload)
	}
}

func TestRandomAccessReadPastEnd(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	raf := OpenRandomAccess(ds, 0, false)
	if _, err := raf.WriteAt([]byte("ab"), 0); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 10)
	n, err := raf.ReadAt(buf, 0)
	if err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
}

func TestRandomAccessOverwriteMiddle(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	raf := OpenRandomAccess(ds, 0, false)
	if _, err := raf.WriteAt([]byte("AAAAAAAA"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := raf.WriteAt([]byte("BB"), 3); err != nil {
		t.Fatal(err)
	}
	if err := raf.Flush(); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 8)
	if _, err := raf.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("AAABBAAA")) {
		t.Fatalf("ReadAt = %q, want AAABBAAA", got)
	}
}

func TestRandomAccessSeekPastEndParks(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	raf := OpenRandomAccess(ds, 0, false)
	if _, err := raf.Write([]byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	if err := raf.Seek(10); err != nil {
		t.Fatal(err)
	}
	if _, err := raf.Write([]byte("xyz")); err != nil {
		t.Fatal(err)
	}
	if err := raf.Flush(); err != nil {
		t.Fatal(err)
	}
	if raf.Len() != 13 {
		t.Fatalf("Len = %d, want 13", raf.Len())
	}
	got := make([]byte, 13)
	if _, err := raf.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	want := append([]byte("abcdef\x00\x00\x00\x00"), "xyz"...)
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadAt = %q, want %q", got, want)
	}
}

func TestRandomAccessReadOnlySeekPastEndRejected(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	w := OpenRandomAccess(ds, 0, false)
	if _, err := w.Write([]byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	ra := OpenRandomAccess(ds, 4, true)
	if err := ra.Seek(4); err == nil {
		t.Fatal("expected Seek at length to fail on a read-only file")
	}
	if _, err := ra.WriteAt([]byte("x"), 0); err == nil {
		t.Fatal("expected WriteAt to fail on a read-only file")
	}
}

func TestRandomAccessMarkReset(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	raf := OpenRandomAccess(ds, 0, false)
	if _, err := raf.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	if err := raf.Seek(2); err != nil {
		t.Fatal(err)
	}
	raf.Mark()
	if err := raf.Seek(8); err != nil {
		t.Fatal(err)
	}
	if err := raf.Reset(); err != nil {
		t.Fatal(err)
	}
	b := raf.ReadByte()
	if b != '2' {
		t.Fatalf("ReadByte after Reset = %q, want '2'", rune(b))
	}
}

func TestRandomAccessReadByteEOF(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	raf := OpenRandomAccess(ds, 0, false)
	if _, err := raf.Write([]byte("ab")); err != nil {
		t.Fatal(err)
	}
	if err := raf.Seek(0); err != nil {
		t.Fatal(err)
	}
	if b := raf.ReadByte(); b != 'a' {
		t.Fatalf("ReadByte = %q, want 'a'", rune(b))
	}
	if b := raf.ReadByte(); b != 'b' {
		t.Fatalf("ReadByte = %q, want 'b'", rune(b))
	}
	if b := raf.ReadByte(); b != -1 {
		t.Fatalf("ReadByte at EOF = %d, want -1", b)
	}
}

func TestRandomAccessTypedReadersWriters(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 16, false)
	if err != nil {
		t.Fatal(err)
	}
	w := OpenRandomAccess(ds, 0, false)
	if err := w.WriteShort(-7); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteInt(123456789); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFloat(3.5); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUTF("héllo"); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := OpenRandomAccess(ds, w.Len(), true)
	s, err := r.ReadShort()
	if err != nil || s != -7 {
		t.Fatalf("ReadShort = %d, %v, want -7, nil", s, err)
	}
	i, err := r.ReadInt()
	if err != nil || i != 123456789 {
		t.Fatalf("ReadInt = %d, %v, want 123456789, nil", i, err)
	}
	f, err := r.ReadFloat()
	if err != nil || f != 3.5 {
		t.Fatalf("ReadFloat = %v, %v, want 3.5, nil", f, err)
	}
	s2, err := r.ReadUTF()
	if err != nil || s2 != "héllo" {
		t.Fatalf("ReadUTF = %q, %v, want héllo, nil", s2, err)
	}
}

func TestRandomAccessReadLine(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutChunked, 16, false)
	if err != nil {
		t.Fatal(err)
	}
	w := OpenRandomAccess(ds, 0, false)
	if _, err := w.Write([]byte("first\r\nsecond\nthird")); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := OpenRandomAccess(ds, w.Len(), true)
	for _, want := range []string{"first", "second", "third"} {
		line, err := r.ReadLine()
		if err != nil {
			t.Fatal(err)
		}
		if line != want {
			t.Fatalf("ReadLine = %q, want %q", line, want)
		}
	}
	if _, err := r.ReadLine(); err != io.EOF {
		t.Fatalf("ReadLine past end = %v, want io.EOF", err)
	}
}

func TestContiguousDatasetRejectsExtension(t *testing.T) {
	root := newTestGroup(t)
	ds, err := root.CreateDataset("f", LayoutContiguous, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SetExtent(10); err != nil {
		t.Fatal(err)
	}
	if err := ds.SetExtent(20); err == nil {
		t.Fatal("expected SetExtent to fail after a contiguous dataset has content")
	}
}
