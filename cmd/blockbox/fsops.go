package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/vfs"
)

const lsHelp = `blockbox ls [-flags] [path]

List the entries of a directory in a blockbox store. path defaults to the
root.

Example:
  % blockbox ls dir/subdir
`

func ls(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("ls", flag.ExitOnError)
	store := storeFlag(fset)
	fset.Usage = usage(fset, lsHelp)
	fset.Parse(args)

	surf, err := openStore(*store)
	if err != nil {
		return err
	}

	path := vfs.ParsePath(fset.Arg(0))
	snap, err := surf.OpenDirectory(path)
	if err != nil {
		return xerrors.Errorf("ls: %w", err)
	}
	for i, name := range snap.Names {
		suffix := ""
		if snap.Kinds[i] == vfs.KindDirectory {
			suffix = "/"
		}
		fmt.Println(name + suffix)
	}
	return nil
}

const catHelp = `blockbox cat [-flags] <path>

Print the contents of a file in a blockbox store to stdout.

Example:
  % blockbox cat dir/file.txt
`

func cat(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("cat", flag.ExitOnError)
	store := storeFlag(fset)
	fset.Usage = usage(fset, catHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: cat <path>")
	}

	surf, err := openStore(*store)
	if err != nil {
		return err
	}

	data, err := surf.ReadFile(vfs.ParsePath(fset.Arg(0)), 0, nil)
	if err != nil {
		return xerrors.Errorf("cat: %w", err)
	}
	_, err = os.Stdout.Write(data)
	// A pipe or redirected file gets exactly the bytes; an interactive
	// terminal gets a trailing newline so the next prompt doesn't run into
	// the output.
	if err == nil && isatty.IsTerminal(os.Stdout.Fd()) && (len(data) == 0 || data[len(data)-1] != '\n') {
		fmt.Println()
	}
	return err
}

const mkdirHelp = `blockbox mkdir [-flags] <path>

Create a directory in a blockbox store, including any missing parents.

Example:
  % blockbox mkdir a/b/c
`

func mkdir(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("mkdir", flag.ExitOnError)
	store := storeFlag(fset)
	fset.Usage = usage(fset, mkdirHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: mkdir <path>")
	}

	surf, err := openStore(*store)
	if err != nil {
		return err
	}
	if err := surf.CreateDirectory(vfs.ParsePath(fset.Arg(0))); err != nil {
		return xerrors.Errorf("mkdir: %w", err)
	}
	return nil
}

const writeHelp = `blockbox write [-flags] <path>

Write stdin to a file in a blockbox store, creating it if necessary. The
parent directory must already exist.

Example:
  % echo hello | blockbox write greeting.txt
`

func write(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("write", flag.ExitOnError)
	store := storeFlag(fset)
	fset.Usage = usage(fset, writeHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: write <path>")
	}
	path := vfs.ParsePath(fset.Arg(0))

	surf, err := openStore(*store)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return xerrors.Errorf("write: reading stdin: %w", err)
	}

	if err := surf.CreateFile(path, ""); err != nil {
		return xerrors.Errorf("write: %w", err)
	}
	if err := surf.WriteFile(path, data, 0); err != nil {
		return xerrors.Errorf("write: %w", err)
	}
	return nil
}
