package pagedmem

import (
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

const (
	filePageSize = 65536
	fileMaxPages = 65536 // MaxSize = 4 GiB
)

// File is a host-backed persistent Memory: a single growable file on disk
// that plays the role the specification assigns to "stable memory" — the
// durable paged store a real deployment restores a file system from across
// restarts. Growth is implemented as a host ftruncate(2), and reads/writes
// go straight to the file via pread(2)/pwrite(2) so callers never need to
// seek the underlying *os.File themselves.
type File struct {
	f *os.File
}

// OpenFile opens (creating if necessary) path as a File-backed Memory.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, xerrors.Errorf("pagedmem: open %s: %w", path, err)
	}
	return &File{f: f}, nil
}

// Close closes the underlying file.
func (fm *File) Close() error {
	return fm.f.Close()
}

// Sync flushes file contents to stable storage.
func (fm *File) Sync() error {
	return fm.f.Sync()
}

func (fm *File) PageSize() int64 { return filePageSize }
func (fm *File) MaxPages() int64 { return fileMaxPages }

func (fm *File) PageCount() (int64, error) {
	info, err := fm.f.Stat()
	if err != nil {
		return 0, xerrors.Errorf("pagedmem: stat: %w", err)
	}
	return info.Size() / filePageSize, nil
}

func (fm *File) Grow(n int64) error {
	pages, err := fm.PageCount()
	if err != nil {
		return err
	}
	if pages+n > fileMaxPages {
		return xerrors.Errorf("pagedmem: grow by %d pages exceeds %d pages", n, fileMaxPages)
	}
	newSize := (pages + n) * filePageSize
	if err := unix.Ftruncate(int(fm.f.Fd()), newSize); err != nil {
		return xerrors.Errorf("pagedmem: grow: %w", err)
	}
	return nil
}

func (fm *File) Read(offset int64, buf []byte) (int, error) {
	n, err := unix.Pread(int(fm.f.Fd()), buf, offset)
	if err != nil {
		return n, xerrors.Errorf("pagedmem: pread: %w", err)
	}
	return n, nil
}

func (fm *File) Write(offset int64, buf []byte) (int, error) {
	n, err := unix.Pwrite(int(fm.f.Fd()), buf, offset)
	if err != nil {
		return n, xerrors.Errorf("pagedmem: pwrite: %w", err)
	}
	return n, nil
}
