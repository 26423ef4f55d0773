// Package pagedmem implements the growable, byte-addressable backing store
// that every other layer of blockbox is built on top of. A Memory grows in
// fixed-size pages and exposes plain byte-offset Read/Write, on top of which
// Reader and Writer layer a seekable io.ReadSeeker / io.WriteSeeker cursor.
package pagedmem

import (
	"io"

	"golang.org/x/xerrors"
)

// Memory is the capability interface the rest of blockbox depends on. Two
// concrete implementations are provided: Heap (in-process, used by tests and
// small deployments) and File (a host-backed persistent store for a real
// filesystem image on disk).
type Memory interface {
	// PageSize is the size, in bytes, of one page of this memory.
	PageSize() int64
	// MaxPages is the largest page count this memory will ever grow to.
	MaxPages() int64

	// PageCount returns the number of pages currently allocated.
	PageCount() (int64, error)
	// Grow appends n zero-filled pages.
	Grow(n int64) error

	// Read reads up to len(buf) bytes starting at offset. Short reads are
	// allowed at or past the current end of the store.
	Read(offset int64, buf []byte) (int, error)
	// Write writes up to len(buf) bytes starting at offset. A short write is
	// only permitted when offset lies past capacity and growth fails.
	Write(offset int64, buf []byte) (int, error)
}

// MaxSize returns the largest possible byte length of m.
func MaxSize(m Memory) int64 {
	return m.PageSize() * m.MaxPages()
}

// Len returns the current byte length of m.
func Len(m Memory) (int64, error) {
	pages, err := m.PageCount()
	if err != nil {
		return 0, err
	}
	return pages * m.PageSize(), nil
}

// Reader is a seekable byte-stream view over a Memory.
type Reader struct {
	memory Memory
	offset int64
}

// NewReader returns a Reader positioned at offset 0.
func NewReader(m Memory) *Reader {
	return &Reader{memory: m}
}

// Read implements io.Reader. A read that would run past the end of the store
// is truncated to what fits; a read entirely past the end returns 0, io.EOF,
// so callers looping with io.ReadFull terminate instead of spinning on a
// reader that otherwise looks like it's making no progress.
func (r *Reader) Read(buf []byte) (int, error) {
	length, err := Len(r.memory)
	if err != nil {
		return 0, err
	}
	required := r.offset + int64(len(buf))
	readBuf := buf
	if required > length {
		missing := required - length
		if missing >= int64(len(buf)) {
			if len(buf) == 0 {
				return 0, nil
			}
			return 0, io.EOF
		}
		readBuf = buf[:int64(len(buf))-missing]
	}
	n, err := r.memory.Read(r.offset, readBuf)
	r.offset += int64(n)
	if err != nil {
		return n, xerrors.Errorf("pagedmem: reader read: %w", err)
	}
	return n, nil
}

// Seek implements io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	newOffset, err := seekTo(r.memory, r.offset, offset, whence)
	if err != nil {
		return 0, err
	}
	r.offset = newOffset
	return newOffset, nil
}

// Writer is a seekable byte-stream view over a Memory that grows the
// underlying store on demand.
type Writer struct {
	memory Memory
	offset int64
}

// NewWriter returns a Writer positioned at offset 0.
func NewWriter(m Memory) *Writer {
	return &Writer{memory: m}
}

// Write implements io.Writer, growing the underlying memory first if the
// write would otherwise run past its current capacity.
func (w *Writer) Write(buf []byte) (int, error) {
	length, err := Len(w.memory)
	if err != nil {
		return 0, err
	}
	required := w.offset + int64(len(buf))
	if required > length {
		missing := required - length
		missingPages := missing / w.memory.PageSize()
		if missing%w.memory.PageSize() > 0 {
			missingPages++
		}
		if err := w.memory.Grow(missingPages); err != nil {
			return 0, xerrors.Errorf("pagedmem: grow: %w", err)
		}
	}
	n, err := w.memory.Write(w.offset, buf)
	w.offset += int64(n)
	if err != nil {
		return n, xerrors.Errorf("pagedmem: writer write: %w", err)
	}
	return n, nil
}

// Flush is a no-op for every current Memory implementation but is kept so
// Writer satisfies the same shape callers expect from a file-backed stream.
func (w *Writer) Flush() error { return nil }

// Seek implements io.Seeker.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	newOffset, err := seekTo(w.memory, w.offset, offset, whence)
	if err != nil {
		return 0, err
	}
	w.offset = newOffset
	return newOffset, nil
}

func seekTo(m Memory, current, offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		return offset, nil
	case io.SeekCurrent:
		return current + offset, nil
	case io.SeekEnd:
		length, err := Len(m)
		if err != nil {
			return 0, err
		}
		return length + offset, nil
	default:
		return 0, xerrors.Errorf("pagedmem: invalid whence %d", whence)
	}
}
