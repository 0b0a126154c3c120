package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/h5ar/h5ar/internal/archive"
	"github.com/h5ar/h5ar/internal/archivepath"
	"github.com/h5ar/h5ar/internal/h5"
)

const listHelp = `h5ar list [-flags] <container> [path]

List entries under path (default: the container root).

Example:
  % h5ar list repo.h5ar
  % h5ar list -recursive=false repo.h5ar /src
`

func cmdlist(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("list", flag.ExitOnError)
	recursive := fset.Bool("recursive", true, "descend into subdirectories")
	test := fset.Bool("test", false, "recompute each file's CRC32 and flag mismatches")
	fset.Usage = usage(fset, listHelp)
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) < 1 {
		fset.Usage()
		return errMissingArgs
	}
	containerPath := rest[0]
	startPath := "/"
	if len(rest) > 1 {
		startPath = rest[1]
	}

	store := h5.NewFileStore()
	a, err := archive.OpenReadOnly(store, containerPath, archive.FailFast{})
	if err != nil {
		return err
	}
	defer closeArchive(a)

	depthOffset := archivepath.Depth(startPath)
	processor := archive.NewListProcessor(a.IndexProvider(), *test, func(entry archive.ArchiveEntry, ok bool) {
		indent := strings.Repeat("  ", archivepath.Depth(entry.Path)-depthOffset)
		marker := ""
		if *test && entry.LinkType == archive.RegularFile && !ok {
			marker = " [CORRUPT]"
		}
		fmt.Printf("%s%s%s\n", indent, entry.Path, marker)
	})

	return a.Traverser().Process(startPath, *recursive, false, processor)
}
