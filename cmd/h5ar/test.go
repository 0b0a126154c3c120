package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/h5ar/h5ar/internal/archive"
	"github.com/h5ar/h5ar/internal/h5"
)

const testHelp = `h5ar test <container>

Recompute every regular file's CRC32 and report entries whose stored
checksum no longer matches their content. Exits 1 if any mismatch is
found.

Example:
  % h5ar test repo.h5ar
`

func cmdtest(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("test", flag.ExitOnError)
	verbose := fset.Bool("verbose", false, "print a summary even when nothing is corrupt")
	fset.Usage = usage(fset, testHelp)
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) < 1 {
		fset.Usage()
		return errMissingArgs
	}
	containerPath := rest[0]

	store := h5.NewFileStore()
	a, err := archive.OpenReadOnly(store, containerPath, archive.FailFast{})
	if err != nil {
		return err
	}
	defer closeArchive(a)

	failed, err := archive.TestArchive(a)
	if err != nil {
		return err
	}
	for _, entry := range failed {
		fmt.Printf("%s: crc32 mismatch\n", entry.Path)
	}
	if len(failed) > 0 {
		partial = true
	} else if *verbose {
		fmt.Println("all entries ok")
	}
	return nil
}
