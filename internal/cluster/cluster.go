package cluster

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/mklaber/blockbox/internal/block"
	"github.com/mklaber/blockbox/internal/serialize"
)

// highBit marks a serialized range as spanning more than one block; the
// start index's top bit is stolen for this, which is safe since no real
// memory comes anywhere near 2^31 blocks.
const highBit = 1 << 31

// BlockSize re-exports block.Size for callers that need the fixed block
// extent but only depend on this package.
const BlockSize = block.Size

// Cluster is an ordered list of blocks representing one logical byte stream.
// The order is significant and is not required to be contiguous or sorted:
// a cluster can interleave blocks from anywhere in the backing memory.
type Cluster struct {
	blocks []block.Block
}

// Extend appends b to the end of the cluster.
func (c *Cluster) Extend(b block.Block) {
	c.blocks = append(c.blocks, b)
}

// Blocks returns the cluster's blocks in order.
func (c *Cluster) Blocks() []block.Block {
	return c.blocks
}

// Len returns the logical byte length spanned by the cluster.
func (c *Cluster) Len() int64 {
	return int64(block.Size) * int64(len(c.blocks))
}

// blockRange is an inclusive run of consecutive block indices.
type blockRange struct {
	start, end int
}

func (c *Cluster) ranges() []blockRange {
	var ranges []blockRange
	for _, b := range c.blocks {
		if len(ranges) > 0 {
			last := &ranges[len(ranges)-1]
			if last.end+1 == b.Index {
				last.end = b.Index
				continue
			}
		}
		ranges = append(ranges, blockRange{start: b.Index, end: b.Index})
	}
	return ranges
}

// Serialize writes the cluster as a sequence of run-length-encoded ranges:
// a u32 range count, followed by each range as either a single u32 index, or
// a u32 start index (with its top bit set) followed by a u32 run length.
func (c *Cluster) Serialize(w io.Writer) (int, error) {
	ranges := c.ranges()

	n, err := serialize.WriteUint32(w, uint32(len(ranges)))
	if err != nil {
		return n, err
	}

	for _, r := range ranges {
		length := r.end - r.start + 1
		if length == 1 {
			m, err := serialize.WriteUint32(w, uint32(r.start))
			n += m
			if err != nil {
				return n, err
			}
			continue
		}

		m, err := serialize.WriteUint32(w, uint32(r.start)|highBit)
		n += m
		if err != nil {
			return n, err
		}
		m, err = serialize.WriteUint32(w, uint32(length))
		n += m
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

// Deserialize reads a cluster previously written by Serialize, appending the
// decoded blocks to the receiver.
func (c *Cluster) Deserialize(r io.Reader) (int, error) {
	count, n, err := serialize.ReadUint32(r)
	if err != nil {
		return n, err
	}

	for i := uint32(0); i < count; i++ {
		index, m, err := serialize.ReadUint32(r)
		n += m
		if err != nil {
			return n, err
		}

		if index&highBit != 0 {
			index &^= highBit
			length, m, err := serialize.ReadUint32(r)
			n += m
			if err != nil {
				return n, err
			}
			for j := uint32(0); j < length; j++ {
				c.blocks = append(c.blocks, block.At(int(index+j)))
			}
			continue
		}

		c.blocks = append(c.blocks, block.At(int(index)))
	}

	return n, nil
}

// ErrOutOfMemory is returned by Writer.Write when the bitmap has no free
// block left to allocate. Callers can match it with errors.Is.
var ErrOutOfMemory = xerrors.New("cluster: no free blocks remain")

func errOutOfMemory() error {
	return ErrOutOfMemory
}
