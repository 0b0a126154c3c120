package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/h5ar/h5ar/internal/archive"
	"github.com/h5ar/h5ar/internal/h5"
)

const verifyHelp = `h5ar verify [-flags] <container> <fsRoot> [path]

Compare the entries under path (default: the container root) against
the real filesystem tree rooted at fsRoot, reporting every mismatch.
Exits 1 if any entry fails to verify.

Example:
  % h5ar verify repo.h5ar /home/user/project
  % h5ar verify -check-attrs -numeric-ids repo.h5ar /home/user/project
`

func cmdverify(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("verify", flag.ExitOnError)
	checkAttrs := fset.Bool("check-attrs", false, "also compare mtime/uid/gid/permissions")
	numericIDs := fset.Bool("numeric-ids", false, "compare uid/gid numerically instead of skipping them")
	verbose := fset.Bool("verbose", false, "print every compared path, not just mismatches")
	fset.Usage = usage(fset, verifyHelp)
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) < 2 {
		fset.Usage()
		return errMissingArgs
	}
	containerPath, fsRoot := rest[0], rest[1]
	startPath := "/"
	if len(rest) > 2 {
		startPath = rest[2]
	}

	store := h5.NewFileStore()
	a, err := archive.OpenReadOnly(store, containerPath, archive.FailFast{})
	if err != nil {
		return err
	}
	defer closeArchive(a)

	failed := false
	processor := archive.NewVerifyProcessor(a.IndexProvider(), fsRoot, *checkAttrs, *numericIDs, func(result archive.VerifyResult) {
		if result.OK {
			if *verbose {
				fmt.Printf("%s: ok\n", result.Entry.Path)
			}
			return
		}
		failed = true
		fmt.Printf("%s: %s\n", result.Entry.Path, strings.Join(result.Mismatches, ", "))
	})

	if err := a.Traverser().Process(startPath, true, false, processor); err != nil {
		return err
	}
	if failed {
		partial = true
	}
	return nil
}
