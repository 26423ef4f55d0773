// Package vfs implements the directory/entry record format: the
// serializable shape of a directory tree node and the bounded, seekable
// stream views callers use to read and write an entry's contents. It knows
// nothing about bitmaps or backing memory — those are wired in by the
// caller as plain io.ReadSeeker/io.WriteSeeker values, which in practice are
// cluster.Reader/cluster.Writer instances from the blockfs façade.
package vfs

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/cluster"
	"github.com/mklaber/blockbox/internal/serialize"
)

// EntryKind distinguishes a file entry from a directory entry.
type EntryKind uint8

const (
	// KindFile marks an entry whose cluster holds arbitrary file bytes.
	KindFile EntryKind = 1
	// KindDirectory marks an entry whose cluster holds a serialized Directory.
	KindDirectory EntryKind = 2
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Serialize writes the entry kind as a single byte.
func (k EntryKind) Serialize(w io.Writer) (int, error) {
	return serialize.WriteUint8(w, uint8(k))
}

// DeserializeEntryKind reads an entry kind byte; any value other than
// KindFile or KindDirectory is a decode error.
func DeserializeEntryKind(r io.Reader) (EntryKind, int, error) {
	code, n, err := serialize.ReadUint8(r)
	if err != nil {
		return 0, n, err
	}
	switch EntryKind(code) {
	case KindFile, KindDirectory:
		return EntryKind(code), n, nil
	default:
		return 0, n, xerrors.Errorf("vfs: invalid entry kind byte %d", code)
	}
}

// Entry is a directory record for either a file or a subdirectory. size is
// the live logical length of the entry's stream; it only ever grows via
// EntryWriter, even across truncating overwrites.
type Entry struct {
	Kind    EntryKind
	Size    int
	Name    string
	Cluster cluster.Cluster

	// ContentType is an optional metadata extension beyond the core
	// {kind, size, name, cluster} record; the request surface populates it
	// on create_file and reports it back from open_file. Empty means
	// unset.
	ContentType string
}

// NewEntry returns an empty file entry named name.
func NewEntry(name string) *Entry {
	return &Entry{Kind: KindFile, Name: name}
}

// Serialize encodes the entry as kind, name, size, its cluster's RLE ranges,
// then the ContentType string, in that order.
func (e *Entry) Serialize(w io.Writer) (int, error) {
	n, err := e.Kind.Serialize(w)
	if err != nil {
		return n, err
	}
	m, err := serialize.WriteString(w, e.Name)
	n += m
	if err != nil {
		return n, err
	}
	m, err = serialize.WriteUsize(w, e.Size)
	n += m
	if err != nil {
		return n, err
	}
	m, err = e.Cluster.Serialize(w)
	n += m
	if err != nil {
		return n, err
	}
	m, err = serialize.WriteString(w, e.ContentType)
	n += m
	return n, err
}

// Deserialize decodes an entry previously written by Serialize into the
// receiver, which must be zero-valued (its cluster must be empty).
func (e *Entry) Deserialize(r io.Reader) (int, error) {
	kind, n, err := DeserializeEntryKind(r)
	if err != nil {
		return n, err
	}
	e.Kind = kind

	name, m, err := serialize.ReadString(r)
	n += m
	if err != nil {
		return n, err
	}
	e.Name = name

	size, m, err := serialize.ReadUsize(r)
	n += m
	if err != nil {
		return n, err
	}
	e.Size = size

	m, err = e.Cluster.Deserialize(r)
	n += m
	if err != nil {
		return n, err
	}

	contentType, m, err := serialize.ReadString(r)
	n += m
	if err != nil {
		return n, err
	}
	e.ContentType = contentType

	return n, nil
}

// Reader returns a bounded, seekable stream over the entry's contents,
// limited to its current Size, reading block bytes through backing.
func (e *Entry) Reader(backing io.ReadSeeker) *EntryReader {
	return &EntryReader{entry: e, reader: backing}
}

// Writer returns a stream over the entry's contents that updates Size to a
// high-watermark of bytes written through backing.
func (e *Entry) Writer(backing io.WriteSeeker) *EntryWriter {
	return &EntryWriter{entry: e, writer: backing}
}

// EntryReader bounds reads to the owning entry's Size so that stale bytes
// left behind by a previous, longer write are never observed.
type EntryReader struct {
	entry  *Entry
	reader io.ReadSeeker
	offset int
}

// Read implements io.Reader. Reads that would run past the entry's Size are
// truncated; reading exactly at or past Size returns (0, io.EOF).
func (r *EntryReader) Read(buf []byte) (int, error) {
	remaining := r.entry.Size - r.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	readLen := len(buf)
	if remaining < readLen {
		readLen = remaining
	}

	n, err := r.reader.Read(buf[:readLen])
	r.offset += n
	if err != nil && err != io.EOF {
		return n, xerrors.Errorf("vfs: entry read: %w", err)
	}
	// entry.Size can overstate what the cluster actually has backed (e.g.
	// truncated storage); without this, a Read making no progress would
	// report (0, nil) forever and spin an io.ReadFull loop above us.
	if n == 0 && readLen > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek implements io.Seeker, delegating to the underlying cluster stream.
func (r *EntryReader) Seek(offset int64, whence int) (int64, error) {
	newOffset, err := r.reader.Seek(offset, whence)
	if err != nil {
		return 0, xerrors.Errorf("vfs: entry seek: %w", err)
	}
	r.offset = int(newOffset)
	return newOffset, nil
}

// ReadDirectory decodes a Directory from the remainder of the entry's
// stream. Callers use this on entries whose Kind is KindDirectory.
func (r *EntryReader) ReadDirectory() (*Directory, error) {
	var d Directory
	if _, err := d.Deserialize(r); err != nil {
		return nil, xerrors.Errorf("vfs: read directory: %w", err)
	}
	return &d, nil
}

// EntryWriter writes through to the underlying cluster stream and keeps the
// owning entry's Size at the high-watermark of bytes ever written.
type EntryWriter struct {
	entry  *Entry
	writer io.WriteSeeker
	offset int
}

// Write implements io.Writer.
func (w *EntryWriter) Write(buf []byte) (int, error) {
	n, err := w.writer.Write(buf)
	w.offset += n
	if w.offset > w.entry.Size {
		w.entry.Size = w.offset
	}
	if err != nil {
		return n, xerrors.Errorf("vfs: entry write: %w", err)
	}
	return n, nil
}

// Seek implements io.Seeker, delegating to the underlying cluster stream.
func (w *EntryWriter) Seek(offset int64, whence int) (int64, error) {
	newOffset, err := w.writer.Seek(offset, whence)
	if err != nil {
		return 0, xerrors.Errorf("vfs: entry seek: %w", err)
	}
	w.offset = int(newOffset)
	return newOffset, nil
}

// WriteDirectory encodes directory at the writer's current offset, which
// callers always position at 0 so the entry's payload is replaced wholesale.
// Blocks beyond the new encoded length are left in place (orphaned), per the
// system's append-only-storage design.
func (w *EntryWriter) WriteDirectory(d *Directory) (int, error) {
	n, err := d.Serialize(w)
	if err != nil {
		return n, xerrors.Errorf("vfs: write directory: %w", err)
	}
	return n, nil
}
