package main

import (
	"errors"
	"log"
	"os"

	"github.com/h5ar/h5ar/internal/archive"
	"github.com/h5ar/h5ar/internal/h5"
)

var errMissingArgs = errors.New("missing required arguments")

// openOrCreate opens an existing container at path for read/write, or
// creates a brand new one if path does not exist yet, so `archive` can
// double as both the initial archive-building command and an incremental
// update.
func openOrCreate(store *h5.FileStore, path string, strategy archive.ErrorStrategy) (*archive.Archive, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return archive.Create(store, path, strategy)
	}
	return archive.Open(store, path, strategy)
}

func closeArchive(a *archive.Archive) {
	if err := a.Close(); err != nil {
		log.Printf("close archive: %v", err)
	}
}
