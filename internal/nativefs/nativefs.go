// Package nativefs reads metadata and content off the real, host
// filesystem on behalf of the archive updater and the verify processor.
package nativefs

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Info is the subset of host filesystem metadata h5ar's archiver needs,
// reduced from os.FileInfo + syscall.Stat_t to exactly the fields a
// LinkRecord stores.
type Info struct {
	Name         string
	Size         int64
	Mode         os.FileMode
	LastModified time.Time
	UID          uint32
	GID          uint32
	IsDir        bool
	IsSymlink    bool
	IsRegular    bool
}

// Lstat stats path without following a trailing symlink, reconstructing
// ownership via syscall.Stat_t the same way internal/squashfs's reader
// does.
func Lstat(path string) (*Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, xerrors.Errorf("lstat %s: %w", path, err)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, xerrors.Errorf("lstat %s: unsupported platform stat_t", path)
	}
	return &Info{
		Name:         fi.Name(),
		Size:         fi.Size(),
		Mode:         fi.Mode(),
		LastModified: fi.ModTime(),
		UID:          st.Uid,
		GID:          st.Gid,
		IsDir:        fi.IsDir(),
		IsSymlink:    fi.Mode()&os.ModeSymlink != 0,
		IsRegular:    fi.Mode().IsRegular(),
	}, nil
}

// Permissions extracts the POSIX permission bits (the low 12 bits: setuid,
// setgid, sticky, and rwxrwxrwx) for storage in a compound record, following
// internal/squashfs/writer_test.go's unix.S_IRUSR|unix.S_IRGRP|...
// construction style.
func Permissions(mode os.FileMode) uint16 {
	perm := uint16(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		perm |= unix.S_ISUID
	}
	if mode&os.ModeSetgid != 0 {
		perm |= unix.S_ISGID
	}
	if mode&os.ModeSticky != 0 {
		perm |= unix.S_ISVTX
	}
	return perm
}

// Readlink returns the target of the symlink at path.
func Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", xerrors.Errorf("readlink %s: %w", path, err)
	}
	return target, nil
}

// ReadDir lists the immediate children of dir, in directory order (the
// updater sorts them itself when it needs a deterministic archive order).
func ReadDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, xerrors.Errorf("readdir %s: %w", dir, err)
	}
	return entries, nil
}

// Open opens path for reading file content to stream into the container.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
