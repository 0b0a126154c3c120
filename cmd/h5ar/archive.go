package main

import (
	"context"
	"flag"
	"log"

	"github.com/h5ar/h5ar/internal/h5"
)

const archiveHelp = `h5ar archive [-flags] <container> <fsPath>...

Archive one or more filesystem paths into container, creating it if it
does not already exist.

Example:
  % h5ar archive repo.h5ar /home/user/project
  % h5ar archive -chunk-size 4194304 -no-compress repo.h5ar ./data
`

// cliArchiveStrategy implements archive.ArchiveStrategy from the CLI's
// flags, following the flag-to-strategy wiring cmd/distri/unpack.go does
// for its own archive-building flags.
type cliArchiveStrategy struct {
	storeOwnership bool
	compress       bool
}

func (s cliArchiveStrategy) DoExclude(fsPath string, isDir bool) bool { return false }
func (s cliArchiveStrategy) IncludeOwnerAndPermissions() bool         { return s.storeOwnership }
func (s cliArchiveStrategy) Compress() bool                          { return s.compress }

func cmdarchive(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("archive", flag.ExitOnError)
	noCompress := fset.Bool("no-compress", false, "disable deflate hint on newly written file datasets")
	chunkSize := fset.Int64("chunk-size", 0, "chunk size in bytes for streamed file datasets (0: use the updater's default)")
	storeOwnership := fset.Bool("store-ownership", true, "capture uid/gid/permissions from the native filesystem")
	verbose := fset.Bool("verbose", false, "print each archived path")
	bestEffort := fset.Bool("best-effort", false, "log and continue past per-entry failures instead of aborting")
	fset.Usage = usage(fset, archiveHelp)
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) < 2 {
		fset.Usage()
		return errMissingArgs
	}
	containerPath, fsPaths := rest[0], rest[1:]

	store := h5.NewFileStore()
	a, err := openOrCreate(store, containerPath, newStrategy(*bestEffort))
	if err != nil {
		return err
	}
	defer closeArchive(a)

	var visitor func(string)
	if *verbose {
		visitor = func(p string) { log.Println(p) }
	}
	u, err := a.Updater(visitor)
	if err != nil {
		return err
	}

	strategy := cliArchiveStrategy{storeOwnership: *storeOwnership, compress: !*noCompress}
	for _, fsPath := range fsPaths {
		if err := u.ArchiveAt(archiveRootFlag(), fsPath, strategy, *chunkSize); err != nil {
			return err
		}
	}
	return nil
}

// archiveRootFlag is the archive path every archived fsPath is rooted
// under; the CLI always chooses the container root.
func archiveRootFlag() string { return "/" }
