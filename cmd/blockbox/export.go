package main

import (
	"bytes"
	"context"
	"flag"
	"io"

	"github.com/cavaliercoder/go-cpio"
	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/surface"
	"github.com/mklaber/blockbox/internal/vfs"
)

const exportHelp = `blockbox export [-flags] <archive.cpio>

Export every file and directory in a blockbox store as a cpio archive,
suitable for feeding into an initramfs or a container image layer.

Example:
  % blockbox export out.cpio
`

func export(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("export", flag.ExitOnError)
	store := storeFlag(fset)
	fset.Usage = usage(fset, exportHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: export <archive.cpio>")
	}
	archivePath := fset.Arg(0)

	surf, err := openStore(*store)
	if err != nil {
		return err
	}

	out, err := renameio.TempFile("", archivePath)
	if err != nil {
		return xerrors.Errorf("export: %w", err)
	}
	defer out.Cleanup()

	wr := cpio.NewWriter(out)
	if err := exportDir(surf, nil, wr); err != nil {
		return xerrors.Errorf("export: %w", err)
	}
	if err := wr.Close(); err != nil {
		return xerrors.Errorf("export: %w", err)
	}
	return out.CloseAtomicallyReplace()
}

// exportDir recursively writes path and its contents to wr as cpio entries,
// directories first so a streaming cpio consumer can mkdir before it sees
// any file beneath it.
func exportDir(surf *surface.Surface, path vfs.Path, wr *cpio.Writer) error {
	snap, err := surf.OpenDirectory(path)
	if err != nil {
		return err
	}

	for i, name := range snap.Names {
		child := append(append(vfs.Path{}, path...), name)
		name := child.String()

		switch snap.Kinds[i] {
		case vfs.KindDirectory:
			if err := wr.WriteHeader(&cpio.Header{
				Name: name,
				Mode: cpio.ModeDir | 0755,
			}); err != nil {
				return err
			}
			if err := exportDir(surf, child, wr); err != nil {
				return err
			}
		case vfs.KindFile:
			data, err := surf.ReadFile(child, 0, nil)
			if err != nil {
				return err
			}
			if err := wr.WriteHeader(&cpio.Header{
				Name: name,
				Mode: cpio.FileMode(0644),
				Size: int64(len(data)),
			}); err != nil {
				return err
			}
			if _, err := io.Copy(wr, bytes.NewReader(data)); err != nil {
				return err
			}
		}
	}
	return nil
}
