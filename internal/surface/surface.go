// Package surface implements the thin external request layer the core file
// system is built to serve: the handful of path-addressed operations a
// protocol adapter (FUSE, an RPC handler, a CLI) calls into. It owns no
// storage of its own; every method is a thin translation onto blockfs.
package surface

import (
	"io"

	"github.com/mklaber/blockbox/internal/blockfs"
	"github.com/mklaber/blockbox/internal/vfs"
)

// Surface adapts string-path requests onto a blockfs.FileSystem.
type Surface struct {
	fs *blockfs.FileSystem
}

// New wraps fs as a request surface.
func New(fs *blockfs.FileSystem) *Surface {
	return &Surface{fs: fs}
}

// DirectorySnapshot is a point-in-time copy of a directory's entry names and
// kinds, safe to hand to a caller after the file system lock (if any) is
// released.
type DirectorySnapshot struct {
	Names []string
	Kinds []vfs.EntryKind
}

// FileInfo reports metadata about a file entry.
type FileInfo struct {
	Size        int
	ContentType string
}

// OpenDirectory returns a snapshot of the directory at path.
func (s *Surface) OpenDirectory(path vfs.Path) (*DirectorySnapshot, error) {
	snap := &DirectorySnapshot{}
	_, err := s.fs.WithDirectory(path, func(dir *vfs.Directory) error {
		for _, e := range dir.Entries {
			snap.Names = append(snap.Names, e.Name)
			snap.Kinds = append(snap.Kinds, e.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns the entry names directly under path, in directory order.
func (s *Surface) List(path vfs.Path) ([]string, error) {
	snap, err := s.OpenDirectory(path)
	if err != nil {
		return nil, err
	}
	return snap.Names, nil
}

// OpenFile returns metadata about the file entry at path.
func (s *Surface) OpenFile(path vfs.Path) (*FileInfo, error) {
	if len(path) == 0 {
		return nil, blockfs.ErrInvalidInput("OpenFile: empty path")
	}
	leaf := path[len(path)-1]

	var info *FileInfo
	_, err := s.fs.WithDirectory(path[:len(path)-1], func(dir *vfs.Directory) error {
		e := dir.EntryWithName(leaf)
		if e == nil {
			return blockfs.ErrNotFound(leaf)
		}
		if e.Kind != vfs.KindFile {
			return blockfs.ErrInvalidInput(leaf + " is a directory")
		}
		info = &FileInfo{Size: e.Size, ContentType: e.ContentType}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ReadFile returns the bytes of the file at path in [start, end), with
// negative offsets interpreted relative to the file's size (an offset < 0
// means size+offset). end defaults to size when omitted (pass nil); a
// non-nil end of any sign, including negative, is resolved the same way
// start is. start > end is invalid input.
func (s *Surface) ReadFile(path vfs.Path, start int, end *int) ([]byte, error) {
	r, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	info, err := s.OpenFile(path)
	if err != nil {
		return nil, err
	}
	size := info.Size

	resolvedStart := resolveOffset(start, size)
	resolvedEnd := size
	if end != nil {
		resolvedEnd = resolveOffset(*end, size)
	}
	if resolvedStart > resolvedEnd {
		return nil, blockfs.ErrInvalidInput("ReadFile: start > end")
	}

	if _, err := r.Seek(int64(resolvedStart), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, resolvedEnd-resolvedStart)
	if _, err := io.ReadFull(r, buf); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func resolveOffset(offset, size int) int {
	if offset < 0 {
		return size + offset
	}
	return offset
}

// CreateDirectory recursively creates path, same as blockfs.MakeDirectoryRecursive.
func (s *Surface) CreateDirectory(path vfs.Path) error {
	return s.fs.MakeDirectoryRecursive(path)
}

// CreateFile creates an empty file entry at path with the given content
// type; the parent directory must already exist. If a file already exists at
// path, it keeps its contents and only its content type is replaced.
func (s *Surface) CreateFile(path vfs.Path, contentType string) error {
	if len(path) == 0 {
		return blockfs.ErrInvalidInput("CreateFile: empty path")
	}
	leaf := path[len(path)-1]

	return s.fs.WithDirectoryMut(path[:len(path)-1], func(dir *vfs.Directory) error {
		e, err := dir.FileWithNameOrCreateMut(leaf)
		if err != nil {
			return err
		}
		e.ContentType = contentType
		return nil
	})
}

// WriteFile overwrites data at offset in the file entry at path, creating
// the entry if it does not already exist at the leaf position (its parent
// directory must exist).
func (s *Surface) WriteFile(path vfs.Path, data []byte, offset int) error {
	if len(path) == 0 {
		return blockfs.ErrInvalidInput("WriteFile: empty path")
	}
	leaf := path[len(path)-1]

	return s.fs.WithDirectoryMut(path[:len(path)-1], func(dir *vfs.Directory) error {
		e, err := dir.FileWithNameOrCreateMut(leaf)
		if err != nil {
			return err
		}
		w := e.Writer(s.fs.WriteIntoCluster(&e.Cluster))
		if _, err := w.Seek(int64(offset), io.SeekStart); err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}
