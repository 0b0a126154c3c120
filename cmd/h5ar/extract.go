package main

import (
	"context"
	"flag"
	"log"

	"github.com/h5ar/h5ar/internal/archive"
	"github.com/h5ar/h5ar/internal/h5"
)

const extractHelp = `h5ar extract [-flags] <container> [path] <dest>

Extract path (default: the container root) from container onto the
filesystem under dest.

Example:
  % h5ar extract repo.h5ar ./restored
  % h5ar extract -store-ownership repo.h5ar /src ./restored
`

func cmdextract(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("extract", flag.ExitOnError)
	storeOwnership := fset.Bool("store-ownership", false, "restore uid/gid (requires privilege)")
	verbose := fset.Bool("verbose", false, "print each extracted path")
	fset.Usage = usage(fset, extractHelp)
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) < 2 {
		fset.Usage()
		return errMissingArgs
	}
	containerPath := rest[0]
	startPath, destDir := "/", rest[len(rest)-1]
	if len(rest) > 2 {
		startPath = rest[1]
	}

	store := h5.NewFileStore()
	a, err := archive.OpenReadOnly(store, containerPath, archive.FailFast{})
	if err != nil {
		return err
	}
	defer closeArchive(a)

	attrs := archive.ExtractAttributes{Permissions: true, Ownership: *storeOwnership}
	processor := archive.NewExtractProcessor(a.IndexProvider(), destDir, attrs)
	if *verbose {
		processor = verboseExtractProcessor{Processor: processor}
	}

	return a.Traverser().Process(startPath, true, true, processor)
}

// verboseExtractProcessor wraps a Processor to log each file as it is
// materialized, without changing the underlying extraction logic.
type verboseExtractProcessor struct {
	archive.Processor
}

func (p verboseExtractProcessor) VisitFile(entry archive.ArchiveEntry) error {
	log.Println(entry.Path)
	return p.Processor.VisitFile(entry)
}
