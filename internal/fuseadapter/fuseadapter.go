// Package fuseadapter mounts a surface.Surface as a FUSE file system using
// github.com/jacobsa/fuse, the way the teacher's internal/fuse package mounts
// a read-only package store: a fuseutil.FileSystem implementation backed by
// an inode table built lazily from LookUpInode calls, except here every
// operation reads through to (and, unlike the teacher's immutable store,
// writes through to) the live directory tree instead of a squashfs image.
package fuseadapter

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/blockfs"
	"github.com/mklaber/blockbox/internal/surface"
	"github.com/mklaber/blockbox/internal/vfs"
)

// cacheFor is used for FUSE expiration timestamps; the store is small enough
// that kernel-side attribute caching for a second at a time costs nothing.
const cacheFor = 1 * time.Second

// Mount mounts surf at mountpoint and returns once the FUSE server is ready
// to serve requests. Call join to block until the mount is torn down (e.g.
// via Unmount or a host umount(8)).
func Mount(ctx context.Context, surf *surface.Surface, mountpoint string) (join func(context.Context) error, _ error) {
	fs := &blockFS{
		surf:   surf,
		paths:  map[fuseops.InodeID]vfs.Path{fuseops.RootInodeID: nil},
		inodes: map[string]fuseops.InodeID{"": fuseops.RootInodeID},
		nextID: fuseops.RootInodeID + 1,
	}

	server := fuseutil.NewFileSystemServer(fs)
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName: "blockbox",
	})
	if err != nil {
		return nil, xerrors.Errorf("fuse.Mount: %w", err)
	}
	join = func(ctx context.Context) error {
		return mfs.Join(ctx)
	}
	return join, nil
}

// Unmount requests that the file system mounted at mountpoint be torn down.
func Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}

func pathKey(p vfs.Path) string {
	return p.String()
}

type blockFS struct {
	fuseutil.NotImplementedFileSystem

	surf *surface.Surface

	mu     sync.Mutex
	paths  map[fuseops.InodeID]vfs.Path
	inodes map[string]fuseops.InodeID
	nextID fuseops.InodeID
}

// inodeForLocked returns the inode assigned to path, allocating a fresh one
// if this is the first time the path has been seen. Callers must hold fs.mu.
func (fs *blockFS) inodeForLocked(path vfs.Path) fuseops.InodeID {
	key := pathKey(path)
	if id, ok := fs.inodes[key]; ok {
		return id
	}
	id := fs.nextID
	fs.nextID++
	fs.inodes[key] = id
	fs.paths[id] = path
	return id
}

func (fs *blockFS) pathFor(id fuseops.InodeID) (vfs.Path, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p, ok := fs.paths[id]
	return p, ok
}

func attributesFor(kind vfs.EntryKind, size int) fuseops.InodeAttributes {
	mode := os.FileMode(0644)
	if kind == vfs.KindDirectory {
		mode = os.ModeDir | 0755
	}
	now := time.Now()
	return fuseops.InodeAttributes{
		Size:  uint64(size),
		Nlink: 1,
		Mode:  mode,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
}

func (fs *blockFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 512
	op.IoSize = 65536
	return nil
}

func (fs *blockFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	snap, err := fs.surf.OpenDirectory(parent)
	if err != nil {
		return translateErr(err)
	}
	for i, name := range snap.Names {
		if name != op.Name {
			continue
		}
		child := append(append(vfs.Path{}, parent...), name)

		fs.mu.Lock()
		id := fs.inodeForLocked(child)
		fs.mu.Unlock()

		size := 0
		if snap.Kinds[i] == vfs.KindFile {
			if info, err := fs.surf.OpenFile(child); err == nil {
				size = info.Size
			}
		}
		op.Entry.Child = id
		op.Entry.Attributes = attributesFor(snap.Kinds[i], size)
		op.Entry.AttributesExpiration = time.Now().Add(cacheFor)
		op.Entry.EntryExpiration = time.Now().Add(cacheFor)
		return nil
	}
	return fuse.ENOENT
}

func (fs *blockFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	path, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if len(path) == 0 {
		op.Attributes = attributesFor(vfs.KindDirectory, 0)
		return nil
	}
	parent := path[:len(path)-1]
	leaf := path[len(path)-1]
	snap, err := fs.surf.OpenDirectory(parent)
	if err != nil {
		return translateErr(err)
	}
	for i, name := range snap.Names {
		if name != leaf {
			continue
		}
		size := 0
		if snap.Kinds[i] == vfs.KindFile {
			if info, err := fs.surf.OpenFile(path); err == nil {
				size = info.Size
			}
		}
		op.Attributes = attributesFor(snap.Kinds[i], size)
		return nil
	}
	return fuse.ENOENT
}

func (fs *blockFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return nil
}

func (fs *blockFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	path, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.EIO
	}
	snap, err := fs.surf.OpenDirectory(path)
	if err != nil {
		return translateErr(err)
	}

	var entries []fuseutil.Dirent
	for i, name := range snap.Names {
		child := append(append(vfs.Path{}, path...), name)
		fs.mu.Lock()
		id := fs.inodeForLocked(child)
		fs.mu.Unlock()

		typ := fuseutil.DT_File
		if snap.Kinds[i] == vfs.KindDirectory {
			typ = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  id,
			Name:   name,
			Type:   typ,
		})
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *blockFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return nil
}

func (fs *blockFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	path, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.EIO
	}
	info, err := fs.surf.OpenFile(path)
	if err != nil {
		return translateErr(err)
	}
	if int64(op.Offset) >= int64(info.Size) {
		return nil
	}
	end := int(op.Offset) + len(op.Dst)
	if end > info.Size {
		end = info.Size
	}
	data, err := fs.surf.ReadFile(path, int(op.Offset), &end)
	if err != nil {
		return translateErr(err)
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (fs *blockFS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	path, ok := fs.pathFor(op.Inode)
	if !ok {
		return fuse.EIO
	}
	if err := fs.surf.WriteFile(path, op.Data, int(op.Offset)); err != nil {
		return translateErr(err)
	}
	return nil
}

func (fs *blockFS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parent, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := append(append(vfs.Path{}, parent...), op.Name)
	if err := fs.surf.CreateDirectory(child); err != nil {
		return translateErr(err)
	}

	fs.mu.Lock()
	id := fs.inodeForLocked(child)
	fs.mu.Unlock()

	op.Entry.Child = id
	op.Entry.Attributes = attributesFor(vfs.KindDirectory, 0)
	return nil
}

func (fs *blockFS) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	parent, ok := fs.pathFor(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := append(append(vfs.Path{}, parent...), op.Name)
	if err := fs.surf.CreateFile(child, ""); err != nil {
		return translateErr(err)
	}

	fs.mu.Lock()
	id := fs.inodeForLocked(child)
	fs.mu.Unlock()

	op.Entry.Child = id
	op.Entry.Attributes = attributesFor(vfs.KindFile, 0)
	return nil
}

// translateErr maps a blockfs/vfs error onto the nearest POSIX errno FUSE
// expects; anything unrecognized becomes EIO rather than leaking the
// internal error value to the kernel.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	bfsErr, ok := err.(*blockfs.Error)
	if !ok {
		return fuse.EIO
	}
	switch bfsErr.Kind {
	case blockfs.KindNotFound:
		return fuse.ENOENT
	case blockfs.KindInvalidInput:
		return syscall.EINVAL
	default:
		return fuse.EIO
	}
}
