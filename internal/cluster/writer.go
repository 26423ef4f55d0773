package cluster

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/bitmap"
	"github.com/mklaber/blockbox/internal/block"
)

// Writer is a seekable byte-stream view over a Cluster that lazily allocates
// new blocks from bitmap as the write runs past the cluster's current
// length. Allocated blocks are appended to the cluster in allocation order,
// not sorted, so a cluster can end up interleaving blocks from anywhere in
// the backing memory.
type Writer struct {
	cluster  *Cluster
	bitmap   *bitmap.Bitmap
	backing  io.WriteSeeker
	blockIdx int
	offset   int
}

// NewWriter returns a Writer over cluster, allocating new blocks from bm and
// writing block contents to backing.
func NewWriter(cluster *Cluster, bm *bitmap.Bitmap, backing io.WriteSeeker) *Writer {
	return &Writer{cluster: cluster, bitmap: bm, backing: backing}
}

// Write implements io.Writer, writing buf block by block until all of it is
// written or an error stops it.
func (w *Writer) Write(buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := w.writeBlock(buf[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// writeBlock writes as much of buf as fits in the current block, allocating
// that block first if the cursor is past the cluster's end.
func (w *Writer) writeBlock(buf []byte) (int, error) {
	for w.blockIdx >= len(w.cluster.blocks) {
		index, ok := w.bitmap.OccupyNext()
		if !ok {
			return 0, errOutOfMemory()
		}
		w.cluster.Extend(block.At(index))
	}

	b := w.cluster.blocks[w.blockIdx]
	if _, err := w.backing.Seek(b.Offset()+int64(w.offset), io.SeekStart); err != nil {
		return 0, xerrors.Errorf("cluster: writer seek: %w", err)
	}

	maxWrite := len(buf)
	if remaining := block.Size - w.offset; remaining < maxWrite {
		maxWrite = remaining
	}

	n, err := w.backing.Write(buf[:maxWrite])
	w.offset += n
	if w.offset >= block.Size {
		w.blockIdx++
		w.offset = 0
	}
	if err != nil {
		return n, xerrors.Errorf("cluster: writer write: %w", err)
	}
	return n, nil
}

// Seek implements io.Seeker against the cluster's logical byte stream.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	newOffset, err := seekTo(w.cluster, w.blockIdx, w.offset, offset, whence)
	if err != nil {
		return 0, err
	}
	w.blockIdx = int(newOffset) / block.Size
	w.offset = int(newOffset) % block.Size
	return newOffset, nil
}
