package vfs

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/serialize"
)

// Directory is an ordered list of entries. Lookup is linear; directories are
// not indexed structures. The root directory is ordinary except that its
// cluster is referenced by the file system's preamble rather than by a
// parent entry.
type Directory struct {
	Entries []Entry
}

// AddFile appends a new, empty file entry named name and returns it.
func (d *Directory) AddFile(name string) *Entry {
	d.Entries = append(d.Entries, Entry{Kind: KindFile, Name: name})
	return &d.Entries[len(d.Entries)-1]
}

// AddDirectory appends a new, empty directory entry named name and returns it.
func (d *Directory) AddDirectory(name string) *Entry {
	d.Entries = append(d.Entries, Entry{Kind: KindDirectory, Name: name})
	return &d.Entries[len(d.Entries)-1]
}

// EntryWithName returns the first entry named name, or nil if none matches.
func (d *Directory) EntryWithName(name string) *Entry {
	for i := range d.Entries {
		if d.Entries[i].Name == name {
			return &d.Entries[i]
		}
	}
	return nil
}

// FileWithNameOrCreateMut returns the existing file entry named name, or
// creates and returns a new one if absent. It fails if name already exists
// as a directory.
func (d *Directory) FileWithNameOrCreateMut(name string) (*Entry, error) {
	for i := range d.Entries {
		if d.Entries[i].Name == name {
			if d.Entries[i].Kind == KindDirectory {
				return nil, xerrors.Errorf("vfs: %q exists as a directory", name)
			}
			return &d.Entries[i], nil
		}
	}
	return d.AddFile(name), nil
}

// Serialize encodes the directory as a length-prefixed sequence of entries.
func (d *Directory) Serialize(w io.Writer) (int, error) {
	return serialize.WriteSequence(w, d.Entries, func(w io.Writer, e Entry) (int, error) {
		return e.Serialize(w)
	})
}

// Deserialize decodes a directory previously written by Serialize into the
// receiver, which must be zero-valued.
func (d *Directory) Deserialize(r io.Reader) (int, error) {
	entries, n, err := serialize.ReadSequence(r, func(r io.Reader) (Entry, int, error) {
		var e Entry
		m, err := e.Deserialize(r)
		return e, m, err
	})
	d.Entries = entries
	return n, err
}
