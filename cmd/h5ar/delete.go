package main

import (
	"context"
	"flag"
	"log"

	"github.com/h5ar/h5ar/internal/archive"
	"github.com/h5ar/h5ar/internal/h5"
)

const deleteHelp = `h5ar delete [-flags] <container> <path>...

Remove one or more entries (and, for directories, every descendant)
from container.

Example:
  % h5ar delete repo.h5ar /build /tmp/cache
`

func cmddelete(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("delete", flag.ExitOnError)
	verbose := fset.Bool("verbose", false, "print each deleted path")
	bestEffort := fset.Bool("best-effort", false, "log and continue past unknown paths instead of aborting")
	fset.Usage = usage(fset, deleteHelp)
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) < 2 {
		fset.Usage()
		return errMissingArgs
	}
	containerPath, paths := rest[0], rest[1:]

	store := h5.NewFileStore()
	a, err := archive.Open(store, containerPath, newStrategy(*bestEffort))
	if err != nil {
		return err
	}
	defer closeArchive(a)

	var visitor func(string)
	if *verbose {
		visitor = func(p string) { log.Println(p) }
	}
	d, err := a.Deleter(visitor)
	if err != nil {
		return err
	}

	return d.Delete(paths)
}
