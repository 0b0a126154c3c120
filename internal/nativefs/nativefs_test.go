package nativefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLstatRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}
	info, err := Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != 5 {
		t.Errorf("Size = %d, want 5", info.Size)
	}
	if !info.IsRegular || info.IsDir || info.IsSymlink {
		t.Errorf("unexpected file type flags: %+v", info)
	}
}

func TestLstatSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	info, err := Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsSymlink {
		t.Errorf("IsSymlink = false, want true")
	}
	got, err := Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if got != target {
		t.Errorf("Readlink = %q, want %q", got, target)
	}
}

func TestPermissions(t *testing.T) {
	p := Permissions(0o755)
	if p != 0o755 {
		t.Errorf("Permissions(0o755) = %o, want %o", p, 0o755)
	}
	p = Permissions(os.ModeSetuid | 0o700)
	if p&0o4000 == 0 {
		t.Errorf("Permissions did not set setuid bit: %o", p)
	}
}
