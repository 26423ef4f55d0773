// Package bitmap implements the block allocator: a bit-per-block free map
// that tracks which blocks of the backing memory are occupied, with a
// first-fit linear scan for allocation. The in-memory representation is
// backed by github.com/bits-and-blooms/bitset, but the on-storage layout is
// a plain byte dump (one bit per block, LSB first within each byte, no
// header) so only Test/Set/Clear are exercised against the library; the
// wire format itself is produced and parsed by hand below.
package bitmap

import (
	"io"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/block"
)

// Bitmap tracks the occupied/free state of every block addressable within a
// memory of a given maximum size.
type Bitmap struct {
	bits      *bitset.BitSet
	totalBits uint
}

// LenForMaxSize returns the number of bytes the serialized bitmap occupies
// for a backing memory whose largest possible size is maxSize bytes: one bit
// per block, rounded up to a whole byte.
func LenForMaxSize(maxSize int64) int {
	blocks := int(maxSize) / block.Size
	return (blocks + 7) / 8
}

// New returns an empty (all-free) Bitmap sized for a backing memory whose
// largest possible size is maxSize bytes.
func New(maxSize int64) *Bitmap {
	totalBits := uint(LenForMaxSize(maxSize)) * 8
	return &Bitmap{
		bits:      bitset.New(totalBits),
		totalBits: totalBits,
	}
}

// Len returns the serialized length of the bitmap in bytes.
func (b *Bitmap) Len() int {
	return int(b.totalBits) / 8
}

// Occupy marks block index as occupied.
func (b *Bitmap) Occupy(index int) {
	b.checkIndex(index)
	b.bits.Set(uint(index))
}

// Free marks block index as free.
func (b *Bitmap) Free(index int) {
	b.checkIndex(index)
	b.bits.Clear(uint(index))
}

// Test reports whether block index is occupied.
func (b *Bitmap) Test(index int) bool {
	b.checkIndex(index)
	return b.bits.Test(uint(index))
}

func (b *Bitmap) checkIndex(index int) {
	if index < 0 || uint(index) >= b.totalBits {
		panic(xerrors.Errorf("bitmap: index %d out of range [0, %d)", index, b.totalBits))
	}
}

// OccupyNext scans from index 0 for the first free block, marks it occupied
// and returns it. ok is false if every block is occupied.
func (b *Bitmap) OccupyNext() (index int, ok bool) {
	for i := uint(0); i < b.totalBits; i++ {
		if !b.bits.Test(i) {
			b.bits.Set(i)
			return int(i), true
		}
	}
	return 0, false
}

// Serialize writes the bitmap as a raw byte dump: one bit per block, LSB
// first within each byte, with no length header.
func (b *Bitmap) Serialize(w io.Writer) (int, error) {
	buf := make([]byte, b.Len())
	for i := uint(0); i < b.totalBits; i++ {
		if b.bits.Test(i) {
			buf[i/8] |= 1 << (i % 8)
		}
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, xerrors.Errorf("bitmap: serialize: %w", err)
	}
	return n, nil
}

// Deserialize reads a bitmap previously written by Serialize, overwriting
// the receiver's state in place. The receiver must already be sized (via
// New) for the memory it is being restored into.
func (b *Bitmap) Deserialize(r io.Reader) (int, error) {
	buf := make([]byte, b.Len())
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, xerrors.Errorf("bitmap: deserialize: %w", err)
	}
	for i := uint(0); i < b.totalBits; i++ {
		if (buf[i/8]>>(i%8))&1 == 1 {
			b.bits.Set(i)
		} else {
			b.bits.Clear(i)
		}
	}
	return len(buf), nil
}
