package bitmap

import (
	"bytes"
	"testing"

	"github.com/mklaber/blockbox/internal/block"
)

const testMaxSize = 1024 * block.Size * 8 // 1024 bytes of bitmap

func TestOccupyFreeRoundTrip(t *testing.T) {
	b := New(testMaxSize)

	if b.Test(7) {
		t.Fatal("block 7 should start free")
	}
	b.Occupy(7)
	if !b.Test(7) {
		t.Fatal("block 7 should be occupied")
	}
	b.Free(7)
	if b.Test(7) {
		t.Fatal("block 7 should be free again")
	}
}

func TestOccupyEdgeIndices(t *testing.T) {
	b := New(testMaxSize)
	last := b.Len()*8 - 1

	b.Occupy(last)
	b.Occupy(0)

	if !b.Test(last) || !b.Test(0) {
		t.Fatal("edge indices should be occupied")
	}

	b.Free(last)
	if b.Test(last) {
		t.Fatal("last index should be free after Free")
	}
}

func TestOccupyNextFirstFit(t *testing.T) {
	b := New(testMaxSize)
	b.Occupy(0)
	b.Occupy(1)

	index, ok := b.OccupyNext()
	if !ok {
		t.Fatal("expected a free block")
	}
	if index != 2 {
		t.Fatalf("OccupyNext = %d, want 2", index)
	}
	if !b.Test(2) {
		t.Fatal("OccupyNext should mark the block occupied")
	}
}

func TestOccupyNextExhausted(t *testing.T) {
	b := New(8 * block.Size) // one byte, 8 bits
	for {
		if _, ok := b.OccupyNext(); !ok {
			break
		}
	}
	if _, ok := b.OccupyNext(); ok {
		t.Fatal("expected OccupyNext to report exhaustion")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	b := New(testMaxSize)
	b.Occupy(3)
	b.Occupy(17)
	b.Occupy(b.Len()*8 - 1)

	var buf bytes.Buffer
	if _, err := b.Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != b.Len() {
		t.Fatalf("serialized %d bytes, want %d", buf.Len(), b.Len())
	}

	restored := New(testMaxSize)
	if _, err := restored.Deserialize(&buf); err != nil {
		t.Fatal(err)
	}

	for _, idx := range []int{3, 17, b.Len()*8 - 1} {
		if !restored.Test(idx) {
			t.Fatalf("restored bitmap missing occupied bit %d", idx)
		}
	}
	if restored.Test(4) {
		t.Fatal("restored bitmap has unexpected occupied bit 4")
	}
}

func TestSerializeBitOrderMatchesLSBFirst(t *testing.T) {
	b := New(8 * 8 * block.Size) // 8 bytes
	b.Occupy(0)
	b.Occupy(9)

	var buf bytes.Buffer
	if _, err := b.Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	got := buf.Bytes()
	if got[0] != 0x01 {
		t.Fatalf("byte 0 = %#x, want 0x01 (bit 0 set)", got[0])
	}
	if got[1] != 0x02 {
		t.Fatalf("byte 1 = %#x, want 0x02 (bit 9 -> byte 1 bit 1)", got[1])
	}
}
