// Command h5ar stores and retrieves file-system trees inside a single
// HDF5-backed container, with random-access update and per-entry CRC32
// integrity checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/h5ar/h5ar"
	"github.com/h5ar/h5ar/internal/archive"
)

var debug = flag.Bool("debug", false, "format error messages with additional detail")

// partial records whether the current verb's error strategy logged a
// warning and continued rather than aborting; it governs the choice
// between exit code 0 and 1 once the verb itself returns nil.
var partial bool

// newStrategy returns FailFast (the default: any failure aborts the verb,
// exit code 2) or, when bestEffort is set, a BestEffort strategy that logs
// and continues, setting partial so the run ultimately exits 1 instead of 0.
func newStrategy(bestEffort bool) archive.ErrorStrategy {
	if !bestEffort {
		return archive.FailFast{}
	}
	return archive.BestEffort{Log: func(format string, args ...interface{}) {
		partial = true
		log.Printf(format, args...)
	}}
}

func usage(fset *flag.FlagSet, helpText string) func() {
	return func() {
		fmt.Fprintln(os.Stderr, helpText)
		fmt.Fprintf(os.Stderr, "Flags for h5ar %s:\n", fset.Name())
		fset.PrintDefaults()
	}
}

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

var verbs = map[string]cmd{
	"archive": {cmdarchive},
	"list":    {cmdlist},
	"extract": {cmdextract},
	"verify":  {cmdverify},
	"delete":  {cmddelete},
	"test":    {cmdtest},
}

func funcmain() error {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "h5ar [-flags] <command> [-flags] <args>\n")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tarchive  - archive filesystem paths into a container\n")
		fmt.Fprintf(os.Stderr, "\tlist     - list entries in a container\n")
		fmt.Fprintf(os.Stderr, "\textract  - extract a container back onto the filesystem\n")
		fmt.Fprintf(os.Stderr, "\tverify   - compare a container against a filesystem tree\n")
		fmt.Fprintf(os.Stderr, "\tdelete   - remove entries from a container\n")
		fmt.Fprintf(os.Stderr, "\ttest     - recompute every entry's CRC32 and report mismatches\n")
		os.Exit(2)
	}
	verb, args := args[0], args[1:]

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: h5ar <command> [options]\n")
		os.Exit(2)
	}

	ctx, canc := h5ar.InterruptibleContext()
	defer canc()

	partial = false
	if err := v.fn(ctx, args); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}

	if err := h5ar.RunAtExit(); err != nil {
		return err
	}
	if partial {
		os.Exit(1)
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
