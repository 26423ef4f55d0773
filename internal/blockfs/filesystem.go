// Package blockfs implements the file system façade: preamble layout, root
// directory lifecycle, and path traversal over the directory/entry records
// in package vfs, all of it ultimately backed by a pagedmem.Memory through
// the bitmap allocator and cluster stream adapters.
package blockfs

import (
	"errors"
	"io"

	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/bitmap"
	"github.com/mklaber/blockbox/internal/cluster"
	"github.com/mklaber/blockbox/internal/pagedmem"
	"github.com/mklaber/blockbox/internal/vfs"
)

// translateStorageErr maps a lower-layer storage error onto the taxonomy
// kind the external request surface reports against.
func translateStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cluster.ErrOutOfMemory) {
		return ErrOutOfMemory(err.Error())
	}
	return newError(KindIO, err.Error())
}

// preambleExtraBlocks pads the preamble beyond what the bitmap itself needs,
// leaving headroom for a future wider preamble without relocating data.
const preambleExtraBlocks = 8

// FileSystem is a single-owner handle over a pagedmem.Memory. It holds the
// free-space bitmap and the root directory's cluster, and exposes recursive
// path traversal over the directory tree the cluster roots.
type FileSystem struct {
	bitmap      *bitmap.Bitmap
	rootCluster cluster.Cluster
	memory      pagedmem.Memory
}

// PreambleBlocks returns the number of blocks permanently reserved at the
// front of the backing memory for the bitmap and root cluster descriptor.
func PreambleBlocks(m pagedmem.Memory) int {
	bitmapBytes := bitmap.LenForMaxSize(pagedmem.MaxSize(m))
	blocks := bitmapBytes / cluster.BlockSize
	if bitmapBytes%cluster.BlockSize != 0 {
		blocks++
	}
	return blocks + preambleExtraBlocks
}

// Allocate constructs an empty in-memory file system bound to memory without
// touching storage. Call Init for a brand-new backing store, or Restore to
// load an existing one.
func Allocate(memory pagedmem.Memory) *FileSystem {
	return &FileSystem{
		bitmap: bitmap.New(pagedmem.MaxSize(memory)),
		memory: memory,
	}
}

// Init marks the preamble blocks as permanently occupied and writes an empty
// root directory through the root cluster's writer. Call this exactly once,
// on a backing store that has never been initialized.
func (fs *FileSystem) Init() error {
	for i := 0; i < PreambleBlocks(fs.memory); i++ {
		fs.bitmap.Occupy(i)
	}

	w := fs.writeIntoRootCluster()
	if _, err := (&vfs.Directory{}).Serialize(w); err != nil {
		return translateStorageErr(err)
	}
	return nil
}

// Restore decodes the bitmap and then the root cluster descriptor from
// storage offset 0, replacing the receiver's in-memory state.
func (fs *FileSystem) Restore() error {
	r := pagedmem.NewReader(fs.memory)
	if _, err := fs.bitmap.Deserialize(r); err != nil {
		return xerrors.Errorf("blockfs: restore: bitmap: %w", err)
	}
	fs.rootCluster = cluster.Cluster{}
	if _, err := fs.rootCluster.Deserialize(r); err != nil {
		return xerrors.Errorf("blockfs: restore: root cluster: %w", err)
	}
	return nil
}

// Persist encodes the bitmap and then the root cluster descriptor at
// storage offset 0. Every code path that tears down a FileSystem over a
// process-level store must call this; a failure here is fatal, since it
// means the store's preamble no longer reflects reality.
func (fs *FileSystem) Persist() error {
	w := pagedmem.NewWriter(fs.memory)
	if _, err := fs.bitmap.Serialize(w); err != nil {
		return xerrors.Errorf("blockfs: persist: bitmap: %w", err)
	}
	if _, err := fs.rootCluster.Serialize(w); err != nil {
		return xerrors.Errorf("blockfs: persist: root cluster: %w", err)
	}
	return nil
}

// WriteIntoCluster returns a writer over c, allocating new blocks from the
// file system's bitmap as needed. Exported for the request-surface adapter,
// which writes directly into a leaf file entry's cluster.
func (fs *FileSystem) WriteIntoCluster(c *cluster.Cluster) io.WriteSeeker {
	return fs.writeIntoCluster(c)
}

func (fs *FileSystem) writeIntoCluster(c *cluster.Cluster) io.WriteSeeker {
	return cluster.NewWriter(c, fs.bitmap, pagedmem.NewWriter(fs.memory))
}

func (fs *FileSystem) readFromCluster(c *cluster.Cluster) io.ReadSeeker {
	return cluster.NewReader(c, pagedmem.NewReader(fs.memory))
}

func (fs *FileSystem) writeIntoRootCluster() io.WriteSeeker {
	return fs.writeIntoCluster(&fs.rootCluster)
}

func (fs *FileSystem) readFromRootCluster() io.ReadSeeker {
	return fs.readFromCluster(&fs.rootCluster)
}

// readRootDirectory decodes the current root directory from storage.
func (fs *FileSystem) readRootDirectory() (*vfs.Directory, error) {
	var d vfs.Directory
	if _, err := d.Deserialize(fs.readFromRootCluster()); err != nil {
		return nil, ErrInvalidInput(xerrors.Errorf("read root directory: %w", err).Error())
	}
	return &d, nil
}

// writeRootDirectory replaces the root directory's serialized payload.
func (fs *FileSystem) writeRootDirectory(d *vfs.Directory) error {
	w := fs.writeIntoRootCluster()
	if _, err := d.Serialize(w); err != nil {
		return translateStorageErr(err)
	}
	return nil
}

// readEntryDirectory decodes the Directory stored in entry's cluster.
func (fs *FileSystem) readEntryDirectory(e *vfs.Entry) (*vfs.Directory, error) {
	r := e.Reader(fs.readFromCluster(&e.Cluster))
	d, err := r.ReadDirectory()
	if err != nil {
		return nil, ErrInvalidInput(xerrors.Errorf("read directory %q: %w", e.Name, err).Error())
	}
	return d, nil
}

// writeEntryDirectory replaces the Directory stored in entry's cluster,
// rewriting from offset 0. entry's Size is raised to the new payload length
// if that is larger; it never shrinks.
func (fs *FileSystem) writeEntryDirectory(e *vfs.Entry, d *vfs.Directory) error {
	w := e.Writer(fs.writeIntoCluster(&e.Cluster))
	if _, err := w.WriteDirectory(d); err != nil {
		return translateStorageErr(err)
	}
	return nil
}

// ReadFile opens a bounded, seekable reader over the file entry at path.
func (fs *FileSystem) ReadFile(path vfs.Path) (*vfs.EntryReader, error) {
	if len(path) == 0 {
		return nil, ErrInvalidInput("ReadFile: empty path")
	}
	leaf := path[len(path)-1]

	var reader *vfs.EntryReader
	_, err := fs.WithDirectory(path[:len(path)-1], func(dir *vfs.Directory) error {
		e := dir.EntryWithName(leaf)
		if e == nil {
			return ErrNotFound(leaf)
		}
		if e.Kind != vfs.KindFile {
			return ErrInvalidInput(leaf + " is a directory")
		}
		reader = e.Reader(fs.readFromCluster(&e.Cluster))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// WithDirectory walks path from the root and invokes f on the terminal
// directory. It is read-only: nothing is written back, even if f mutates
// the Directory value in memory (those mutations are discarded).
func (fs *FileSystem) WithDirectory(path vfs.Path, f func(*vfs.Directory) error) (*vfs.Directory, error) {
	dir, err := fs.readRootDirectory()
	if err != nil {
		return nil, err
	}

	for _, segment := range path {
		e := dir.EntryWithName(segment)
		if e == nil {
			return nil, ErrNotFound(segment)
		}
		if e.Kind != vfs.KindDirectory {
			return nil, ErrInvalidInput(segment + " is not a directory")
		}
		dir, err = fs.readEntryDirectory(e)
		if err != nil {
			return nil, err
		}
	}

	if err := f(dir); err != nil {
		return nil, err
	}
	return dir, nil
}

// WithDirectoryMut walks path from the root, invokes f on the terminal
// directory, and then rewrites every intermediate directory back to
// storage, innermost first: since rewriting an entry's stream can grow its
// Size and Cluster, each ancestor's serialized record must be refreshed to
// reflect the descendant's new state before the ancestor itself is written.
func (fs *FileSystem) WithDirectoryMut(path vfs.Path, f func(*vfs.Directory) error) error {
	root, err := fs.readRootDirectory()
	if err != nil {
		return err
	}

	type frame struct {
		entry *vfs.Entry // nil for the root frame
		dir   *vfs.Directory
	}
	frames := []frame{{entry: nil, dir: root}}

	dir := root
	for _, segment := range path {
		e := dir.EntryWithName(segment)
		if e == nil {
			return ErrNotFound(segment)
		}
		if e.Kind != vfs.KindDirectory {
			return ErrInvalidInput(segment + " is not a directory")
		}
		sub, err := fs.readEntryDirectory(e)
		if err != nil {
			return err
		}
		frames = append(frames, frame{entry: e, dir: sub})
		dir = sub
	}

	if err := f(dir); err != nil {
		return err
	}

	// Rewrite bottom-up: the last frame's directory belongs to the
	// second-to-last frame's entry, and so on up to the root.
	for i := len(frames) - 1; i > 0; i-- {
		if err := fs.writeEntryDirectory(frames[i].entry, frames[i].dir); err != nil {
			return err
		}
	}
	if err := fs.writeRootDirectory(root); err != nil {
		return err
	}
	return nil
}

// MakeDirectoryRecursive descends path from the root, creating any missing
// directory segments along the way. Creating a directory whose name already
// exists as a directory is a no-op for that segment; existing as a file is
// an error.
func (fs *FileSystem) MakeDirectoryRecursive(path vfs.Path) error {
	if len(path) == 0 {
		return nil
	}

	root, err := fs.readRootDirectory()
	if err != nil {
		return err
	}
	if err := fs.makeDirectoryStep(root, path); err != nil {
		return err
	}
	return fs.writeRootDirectory(root)
}

// makeDirectoryStep is the recursive core of MakeDirectoryRecursive. Each
// stack frame writes its own directory entry back out as the recursion
// unwinds, so the chain is fully persisted by the time the top-level call
// returns; MakeDirectoryRecursive only needs to persist the root itself.
func (fs *FileSystem) makeDirectoryStep(dir *vfs.Directory, remaining vfs.Path) error {
	if len(remaining) == 0 {
		return nil
	}
	segment := remaining[0]

	e := dir.EntryWithName(segment)
	if e == nil {
		newDir := &vfs.Directory{}
		if err := fs.makeDirectoryStep(newDir, remaining[1:]); err != nil {
			return err
		}
		created := dir.AddDirectory(segment)
		return fs.writeEntryDirectory(created, newDir)
	}

	if e.Kind != vfs.KindDirectory {
		return ErrInvalidInput(segment + " is not a directory")
	}

	sub, err := fs.readEntryDirectory(e)
	if err != nil {
		return err
	}
	if err := fs.makeDirectoryStep(sub, remaining[1:]); err != nil {
		return err
	}
	return fs.writeEntryDirectory(e, sub)
}
