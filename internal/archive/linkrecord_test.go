package archive

import "testing"

func TestMarshalUnmarshalCompoundRoundTrip(t *testing.T) {
	records := []*LinkRecord{
		{LinkName: "b.txt", LinkType: RegularFile, Size: 10, LastModified: 100, UID: 1000, GID: 1000, Permissions: 0o644, CRC32: 0xdeadbeef},
		{LinkName: "a", LinkType: Directory, Size: Unknown, LastModified: 50, UID: Unknown, GID: Unknown, Permissions: Unknown},
		{LinkName: "l", LinkType: Symlink, Size: Unknown},
	}

	compound, names, err := marshalCompound(records)
	if err != nil {
		t.Fatal(err)
	}
	raws, err := unmarshalCompound(compound)
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != len(records) {
		t.Fatalf("got %d raw records, want %d", len(raws), len(records))
	}

	offset := 0
	for i, raw := range raws {
		name := string(names[offset : offset+int(raw.LinkNameLength)])
		offset += int(raw.LinkNameLength)
		got := recordFromRaw(raw, name)
		want := records[i]
		if got.LinkName != want.LinkName || got.LinkType != want.LinkType ||
			got.Size != want.Size || got.CRC32 != want.CRC32 {
			t.Errorf("record %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestLessOrdering(t *testing.T) {
	dir := &LinkRecord{LinkName: "z", LinkType: Directory}
	file := &LinkRecord{LinkName: "a", LinkType: RegularFile}
	if !Less(dir, file) {
		t.Error("directory should sort before file regardless of name")
	}

	a := &LinkRecord{LinkName: "a", LinkType: RegularFile}
	b := &LinkRecord{LinkName: "b", LinkType: RegularFile}
	if !Less(a, b) {
		t.Error("same type should sort lexicographically")
	}
}

func TestNamesBlobFollowsMarshalOrder(t *testing.T) {
	// Testable property: the names blob concatenation preserves whatever
	// order records are marshaled in, regardless of name content.
	order1 := []*LinkRecord{
		{LinkName: "bb", LinkType: RegularFile},
		{LinkName: "a", LinkType: RegularFile},
	}
	order2 := []*LinkRecord{
		{LinkName: "a", LinkType: RegularFile},
		{LinkName: "bb", LinkType: RegularFile},
	}
	_, names1, err := marshalCompound(order1)
	if err != nil {
		t.Fatal(err)
	}
	_, names2, err := marshalCompound(order2)
	if err != nil {
		t.Fatal(err)
	}
	if string(names1) != "bba" || string(names2) != "abb" {
		t.Fatalf("names blobs = %q, %q", names1, names2)
	}
}
