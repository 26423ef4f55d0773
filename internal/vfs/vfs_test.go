package vfs

import (
	"bytes"
	"io"
	"testing"

	"github.com/mklaber/blockbox/internal/block"
)

// memBuffer is a minimal seekable byte buffer used to back EntryReader and
// EntryWriter in these tests without pulling in the cluster/pagedmem stack;
// those are exercised together in the blockfs package's own tests.
type memBuffer struct {
	data   []byte
	offset int64
}

func (b *memBuffer) Read(buf []byte) (int, error) {
	if b.offset >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(buf, b.data[b.offset:])
	b.offset += int64(n)
	return n, nil
}

func (b *memBuffer) Write(buf []byte) (int, error) {
	end := b.offset + int64(len(buf))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	n := copy(b.data[b.offset:end], buf)
	b.offset += int64(n)
	return n, nil
}

func (b *memBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.offset = offset
	case io.SeekCurrent:
		b.offset += offset
	case io.SeekEnd:
		b.offset = int64(len(b.data)) + offset
	}
	return b.offset, nil
}

func TestEntryKindRoundTrip(t *testing.T) {
	for _, k := range []EntryKind{KindFile, KindDirectory} {
		var buf bytes.Buffer
		if _, err := k.Serialize(&buf); err != nil {
			t.Fatal(err)
		}
		got, _, err := DeserializeEntryKind(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if got != k {
			t.Fatalf("round trip %v -> %v", k, got)
		}
	}
}

func TestEntryKindInvalidByte(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x09})
	if _, _, err := DeserializeEntryKind(buf); err == nil {
		t.Fatal("expected an error for an invalid entry kind byte")
	}
}

func TestEntrySerializeRoundTrip(t *testing.T) {
	e := NewEntry("my-file.txt")
	e.Size = 11
	e.Cluster.Extend(block.At(0))
	e.Cluster.Extend(block.At(1))

	var buf bytes.Buffer
	if _, err := e.Serialize(&buf); err != nil {
		t.Fatal(err)
	}

	var got Entry
	if _, err := got.Deserialize(&buf); err != nil {
		t.Fatal(err)
	}

	if got.Kind != e.Kind || got.Name != e.Name || got.Size != e.Size {
		t.Fatalf("round trip = %+v, want %+v", got, e)
	}
	if len(got.Cluster.Blocks()) != len(e.Cluster.Blocks()) {
		t.Fatalf("cluster round trip mismatch: %v vs %v", got.Cluster.Blocks(), e.Cluster.Blocks())
	}
}

func TestEntryWriterUpdatesSizeHighWatermark(t *testing.T) {
	e := NewEntry("f")
	backing := &memBuffer{}
	w := e.Writer(backing)

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if e.Size != 5 {
		t.Fatalf("Size = %d, want 5", e.Size)
	}

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	if e.Size != 5 {
		t.Fatalf("Size = %d after short overwrite, want still 5 (high watermark)", e.Size)
	}
}

func TestEntryReaderBoundedBySize(t *testing.T) {
	e := NewEntry("f")
	e.Size = 3
	backing := &memBuffer{data: []byte("hello world")}
	r := e.Reader(backing)

	got := make([]byte, 10)
	n, err := r.Read(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(got[:n]) != "hel" {
		t.Fatalf("read %q, want %q", got[:n], "hel")
	}

	n, err = r.Read(got)
	if n != 0 || err != io.EOF {
		t.Fatalf("read past size: n=%d err=%v, want 0, io.EOF", n, err)
	}
}

func TestDirectoryAddAndLookup(t *testing.T) {
	var d Directory
	d.AddFile("a.txt")
	d.AddDirectory("sub")

	if e := d.EntryWithName("a.txt"); e == nil || e.Kind != KindFile {
		t.Fatal("expected to find a.txt as a file")
	}
	if e := d.EntryWithName("sub"); e == nil || e.Kind != KindDirectory {
		t.Fatal("expected to find sub as a directory")
	}
	if e := d.EntryWithName("missing"); e != nil {
		t.Fatal("expected no entry for missing name")
	}
}

func TestFileWithNameOrCreateMut(t *testing.T) {
	var d Directory
	d.AddDirectory("conflict")

	if _, err := d.FileWithNameOrCreateMut("conflict"); err == nil {
		t.Fatal("expected an error creating a file over an existing directory name")
	}

	e, err := d.FileWithNameOrCreateMut("new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if e.Kind != KindFile {
		t.Fatal("expected a new file entry")
	}

	e2, err := d.FileWithNameOrCreateMut("new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if e2 != e {
		t.Fatal("expected the same entry to be returned on a second call")
	}
}

func TestDirectorySerializeRoundTrip(t *testing.T) {
	var d Directory
	d.AddFile("a.txt").Size = 4
	d.AddDirectory("sub")

	var buf bytes.Buffer
	if _, err := d.Serialize(&buf); err != nil {
		t.Fatal(err)
	}

	var got Directory
	if _, err := got.Deserialize(&buf); err != nil {
		t.Fatal(err)
	}

	if len(got.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(got.Entries))
	}
	if got.Entries[0].Name != "a.txt" || got.Entries[0].Size != 4 {
		t.Fatalf("entry 0 = %+v", got.Entries[0])
	}
	if got.Entries[1].Name != "sub" || got.Entries[1].Kind != KindDirectory {
		t.Fatalf("entry 1 = %+v", got.Entries[1])
	}
}
