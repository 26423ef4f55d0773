package blockfs

import (
	"bytes"
	"io"
	"testing"

	"github.com/mklaber/blockbox/internal/bitmap"
	"github.com/mklaber/blockbox/internal/cluster"
	"github.com/mklaber/blockbox/internal/pagedmem"
	"github.com/mklaber/blockbox/internal/vfs"
)

func newTestFS(t *testing.T) (*FileSystem, *pagedmem.Heap) {
	t.Helper()
	heap := pagedmem.NewHeap()
	fs := Allocate(heap)
	if err := fs.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return fs, heap
}

func writeFile(t *testing.T, fs *FileSystem, dirPath vfs.Path, name string, contents []byte) {
	t.Helper()
	err := fs.WithDirectoryMut(dirPath, func(dir *vfs.Directory) error {
		e, err := dir.FileWithNameOrCreateMut(name)
		if err != nil {
			return err
		}
		w := e.Writer(fs.writeIntoCluster(&e.Cluster))
		_, err = w.Write(contents)
		return err
	})
	if err != nil {
		t.Fatalf("writeFile %s/%s: %v", dirPath, name, err)
	}
}

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// TestFileRoundTripViaRoot covers a fresh file system, a root-level file
// write, a close/reopen cycle and a read of the first bytes back.
func TestFileRoundTripViaRoot(t *testing.T) {
	fs, heap := newTestFS(t)

	writeFile(t, fs, nil, "my-file.txt", []byte("Hello World"))

	if err := fs.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reopened := Allocate(heap)
	if err := reopened.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	r, err := reopened.ReadFile(vfs.Path{"my-file.txt"})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := make([]byte, 5)
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "Hello" {
		t.Fatalf("read %q, want %q", got, "Hello")
	}

	_, err = reopened.WithDirectory(nil, func(dir *vfs.Directory) error {
		if dir.Entries[0].Kind != vfs.KindFile {
			t.Fatalf("entries[0].Kind = %v, want File", dir.Entries[0].Kind)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestNestedDirectoryRoundTrip covers a nested directory with a file inside
// it, surviving a close/reopen cycle.
func TestNestedDirectoryRoundTrip(t *testing.T) {
	fs, heap := newTestFS(t)

	if err := fs.MakeDirectoryRecursive(vfs.Path{"my_dir"}); err != nil {
		t.Fatalf("MakeDirectoryRecursive: %v", err)
	}
	writeFile(t, fs, vfs.Path{"my_dir"}, "my_file.txt", []byte("Hello, World!"))

	if err := fs.Persist(); err != nil {
		t.Fatal(err)
	}

	reopened := Allocate(heap)
	if err := reopened.Restore(); err != nil {
		t.Fatal(err)
	}

	_, err := reopened.WithDirectory(nil, func(root *vfs.Directory) error {
		if root.Entries[0].Name != "my_dir" {
			t.Fatalf("root.Entries[0].Name = %q, want my_dir", root.Entries[0].Name)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := reopened.ReadFile(vfs.Path{"my_dir", "my_file.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(readAll(t, r)); got != "Hello, World!" {
		t.Fatalf("read %q, want %q", got, "Hello, World!")
	}
}

// TestRecursiveMkdir covers S5: make_directory_recursive on an empty
// filesystem creates every missing segment.
func TestRecursiveMkdir(t *testing.T) {
	fs, _ := newTestFS(t)

	if err := fs.MakeDirectoryRecursive(vfs.Path{"one", "two", "three"}); err != nil {
		t.Fatalf("MakeDirectoryRecursive: %v", err)
	}

	_, err := fs.WithDirectory(vfs.Path{"one", "two", "three"}, func(dir *vfs.Directory) error {
		if len(dir.Entries) != 0 {
			t.Fatalf("expected leaf directory to be empty, got %d entries", len(dir.Entries))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk to one/two/three: %v", err)
	}
}

// TestMakeDirectoryRecursiveIsIdempotent covers re-creating an existing
// directory segment being a no-op, and creating over an existing file name
// being an error.
func TestMakeDirectoryRecursiveIsIdempotent(t *testing.T) {
	fs, _ := newTestFS(t)

	if err := fs.MakeDirectoryRecursive(vfs.Path{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := fs.MakeDirectoryRecursive(vfs.Path{"a", "b", "c"}); err != nil {
		t.Fatalf("expected re-creating existing prefix to be a no-op: %v", err)
	}

	writeFile(t, fs, vfs.Path{"a"}, "file.txt", []byte("x"))
	if err := fs.MakeDirectoryRecursive(vfs.Path{"a", "file.txt"}); err == nil {
		t.Fatal("expected an error creating a directory over an existing file name")
	}
}

// TestWithDirectoryMutPersistsAncestorsBottomUp exercises the growth of an
// ancestor's serialized Size/Cluster after a deep descendant write.
func TestWithDirectoryMutPersistsAncestorsBottomUp(t *testing.T) {
	fs, heap := newTestFS(t)

	if err := fs.MakeDirectoryRecursive(vfs.Path{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	writeFile(t, fs, vfs.Path{"a", "b"}, "deep.txt", []byte("deep contents"))

	if err := fs.Persist(); err != nil {
		t.Fatal(err)
	}

	reopened := Allocate(heap)
	if err := reopened.Restore(); err != nil {
		t.Fatal(err)
	}
	r, err := reopened.ReadFile(vfs.Path{"a", "b", "deep.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(readAll(t, r)); got != "deep contents" {
		t.Fatalf("read %q, want %q", got, "deep contents")
	}
}

func TestReadFileNotFound(t *testing.T) {
	fs, _ := newTestFS(t)
	if _, err := fs.ReadFile(vfs.Path{"missing.txt"}); err == nil {
		t.Fatal("expected an error reading a missing file")
	}
}

func TestPreambleBlocksOccupied(t *testing.T) {
	fs, _ := newTestFS(t)
	n := PreambleBlocks(fs.memory)
	for i := 0; i < n; i++ {
		if !fs.bitmap.Test(i) {
			t.Fatalf("expected preamble block %d to be occupied", i)
		}
	}
}

// TestLargeWriteOccupiedCount covers S6: after manually occupying a few
// extra blocks and then writing 128 blocks worth of data through the root
// cluster writer, the total occupied-bit count is exactly
// PreambleBlocks + 128 + (the manually occupied extras), and every byte
// written reads back unchanged.
func TestLargeWriteOccupiedCount(t *testing.T) {
	fs, _ := newTestFS(t)

	extra := []int{39, 42, 58}
	for _, i := range extra {
		fs.bitmap.Occupy(i)
	}

	data := make([]byte, 128*cluster.BlockSize)
	for i := range data {
		data[i] = byte(i)
	}

	w := fs.writeIntoRootCluster()
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	totalBits := bitmap.LenForMaxSize(pagedmem.MaxSize(fs.memory)) * 8
	occupied := 0
	for i := 0; i < totalBits; i++ {
		if fs.bitmap.Test(i) {
			occupied++
		}
	}
	want := PreambleBlocks(fs.memory) + 128 + len(extra)
	if occupied != want {
		t.Fatalf("occupied bits = %d, want %d", occupied, want)
	}

	r := fs.readFromRootCluster()
	got := make([]byte, len(data))
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read-back bytes do not match what was written")
	}
}
