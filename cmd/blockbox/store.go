package main

import (
	"flag"

	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/blockfs"
	"github.com/mklaber/blockbox/internal/env"
	"github.com/mklaber/blockbox/internal/lifecycle"
	"github.com/mklaber/blockbox/internal/pagedmem"
	"github.com/mklaber/blockbox/internal/surface"
)

// openStore opens (creating if necessary) the backing file at path,
// restoring an existing file system or initializing a fresh one, and
// registers the close/persist sequence to run via lifecycle.RunAtExit. A
// brand-new, zero-length file is detected by page count and initialized
// rather than restored, mirroring the "first run formats the store" path
// every command in this tree shares.
func openStore(path string) (*surface.Surface, error) {
	f, err := pagedmem.OpenFile(path)
	if err != nil {
		return nil, err
	}

	pages, err := f.PageCount()
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("blockbox: page count: %w", err)
	}

	fs := blockfs.Allocate(f)
	if pages == 0 {
		if err := fs.Init(); err != nil {
			f.Close()
			return nil, xerrors.Errorf("blockbox: init %s: %w", path, err)
		}
	} else {
		if err := fs.Restore(); err != nil {
			f.Close()
			return nil, xerrors.Errorf("blockbox: restore %s: %w", path, err)
		}
	}

	lifecycle.RegisterAtExit(func() error {
		if err := fs.Persist(); err != nil {
			return xerrors.Errorf("blockbox: persist %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			return xerrors.Errorf("blockbox: sync %s: %w", path, err)
		}
		return f.Close()
	})

	return surface.New(fs), nil
}

// storeFlag registers the -store flag shared by every subcommand on fset.
func storeFlag(fset *flag.FlagSet) *string {
	return fset.String("store", env.DefaultStorePath, "path to the backing store file")
}
