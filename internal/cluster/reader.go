package cluster

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/block"
)

// Reader is a seekable byte-stream view over a Cluster, reading the
// underlying bytes from backing.
type Reader struct {
	cluster  *Cluster
	backing  io.ReadSeeker
	blockIdx int
	offset   int
}

// NewReader returns a Reader over cluster, reading block contents from
// backing.
func NewReader(cluster *Cluster, backing io.ReadSeeker) *Reader {
	return &Reader{cluster: cluster, backing: backing}
}

// Read implements io.Reader. Reads stop at a block boundary so callers
// asking for more than one block's worth of data must call Read repeatedly.
func (r *Reader) Read(buf []byte) (int, error) {
	if r.blockIdx >= len(r.cluster.blocks) {
		return 0, io.EOF
	}

	b := r.cluster.blocks[r.blockIdx]
	if _, err := r.backing.Seek(b.Offset()+int64(r.offset), io.SeekStart); err != nil {
		return 0, xerrors.Errorf("cluster: reader seek: %w", err)
	}

	maxRead := len(buf)
	if remaining := block.Size - r.offset; remaining < maxRead {
		maxRead = remaining
	}

	n, err := r.backing.Read(buf[:maxRead])
	r.offset += n
	if r.offset >= block.Size {
		r.blockIdx++
		r.offset = 0
	}
	if err != nil && err != io.EOF {
		return n, xerrors.Errorf("cluster: reader read: %w", err)
	}
	// A short, non-empty read is reported without error per the io.Reader
	// contract; only a read that made no progress at all propagates EOF, so
	// an io.ReadFull loop over a cluster backed by truncated storage
	// terminates instead of spinning on a Read that never advances.
	if n == 0 && maxRead > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek implements io.Seeker against the cluster's logical byte stream.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	newOffset, err := seekTo(r.cluster, r.blockIdx, r.offset, offset, whence)
	if err != nil {
		return 0, err
	}
	r.blockIdx = int(newOffset) / block.Size
	r.offset = int(newOffset) % block.Size
	return newOffset, nil
}

func seekTo(c *Cluster, blockIdx, offset int, delta int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		return delta, nil
	case io.SeekCurrent:
		return int64(blockIdx)*block.Size + int64(offset) + delta, nil
	case io.SeekEnd:
		return c.Len() + delta, nil
	default:
		return 0, xerrors.Errorf("cluster: invalid whence %d", whence)
	}
}
