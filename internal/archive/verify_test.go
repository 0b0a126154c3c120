package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVerifyProcessorMatchesUnmodifiedTree(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newTestArchive(t)
	u, err := a.Updater(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.ArchiveBelow("/", dir, DefaultStrategy{}, 0); err != nil {
		t.Fatal(err)
	}

	var results []VerifyResult
	proc := NewVerifyProcessor(a.provider, dir, false, false, func(r VerifyResult) {
		results = append(results, r)
	})
	if err := a.Traverser().Process("/", true, false, proc); err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if !r.OK {
			t.Errorf("entry %s reported mismatches %v against its own source tree", r.Entry.Path, r.Mismatches)
		}
	}
}

func TestVerifyProcessorDetectsContentDrift(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newTestArchive(t)
	u, err := a.Updater(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.ArchiveBelow("/", dir, DefaultStrategy{}, 0); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("HELLO"), 0o644); err != nil {
		t.Fatal(err)
	}

	var result VerifyResult
	proc := NewVerifyProcessor(a.provider, dir, false, false, func(r VerifyResult) {
		if r.Entry.Path == "/a.txt" {
			result = r
		}
	})
	if err := a.Traverser().Process("/", true, false, proc); err != nil {
		t.Fatal(err)
	}
	if result.OK {
		t.Fatal("expected content drift to be detected")
	}
	found := false
	for _, m := range result.Mismatches {
		if m == "crc32 mismatch" {
			found = true
		}
	}
	if !found {
		t.Errorf("mismatches = %v, want a crc32 mismatch", result.Mismatches)
	}
}

func TestVerifyProcessorDetectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newTestArchive(t)
	u, err := a.Updater(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := u.ArchiveBelow("/", dir, DefaultStrategy{}, 0); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(dir, "a.txt")); err != nil {
		t.Fatal(err)
	}

	var result VerifyResult
	proc := NewVerifyProcessor(a.provider, dir, false, false, func(r VerifyResult) {
		if r.Entry.Path == "/a.txt" {
			result = r
		}
	})
	if err := a.Traverser().Process("/", true, false, proc); err != nil {
		t.Fatal(err)
	}
	if result.OK {
		t.Fatal("expected a missing source file to fail verification")
	}
}
