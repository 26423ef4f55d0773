package main

import (
	"context"
	"flag"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/fuseadapter"
)

const mountHelp = `blockbox mount [-flags] <mountpoint>

Mount a blockbox store as a FUSE file system.

Example:
  % blockbox mount /mnt/box
`

func mount(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	store := storeFlag(fset)
	fset.Usage = usage(fset, mountHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: mount <mountpoint>")
	}
	mountpoint := fset.Arg(0)

	surf, err := openStore(*store)
	if err != nil {
		return err
	}

	join, err := fuseadapter.Mount(ctx, surf, mountpoint)
	if err != nil {
		return xerrors.Errorf("mount: %w", err)
	}

	// joined is closed once the mount has torn down, whether that happened
	// via our own ctx-triggered Unmount below or an external umount(8); it
	// lets the watcher goroutine exit in either case instead of blocking
	// forever on ctx when the unmount came from outside this process.
	joined := make(chan struct{})
	var eg errgroup.Group
	eg.Go(func() error {
		defer close(joined)
		return join(ctx)
	})
	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return fuseadapter.Unmount(mountpoint)
		case <-joined:
			return nil
		}
	})
	if err := eg.Wait(); err != nil {
		return xerrors.Errorf("mount: %w", err)
	}
	return nil
}
