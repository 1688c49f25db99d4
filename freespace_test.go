package blockfs

import "testing"

// countZeroEntries counts FAT entries that are free, for checking the
// exact-counter invariant spec.md §8 requires.
func countZeroEntries(f *freespace) int64 {
	var n int64
	for _, e := range f.entries {
		if e == 0 {
			n++
		}
	}
	return n
}

func TestAllocateFreeKeepsCounterExact(t *testing.T) {
	numBlocks := int64(500)
	free := newFreespace(numBlocks)
	vcb := &VCB{
		NumBlocks:                   uint32(numBlocks),
		FirstFreeBlock:              uint32(free.blocks + 1),
		NumAvailableFreespaceBlocks: uint32(numBlocks - free.blocks - 1),
	}

	start, err := free.allocate(vcb, 10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got, want := int64(vcb.NumAvailableFreespaceBlocks), countZeroEntries(free); got != want {
		t.Fatalf("available=%d but zero entries=%d", got, want)
	}

	if err := free.free(vcb, start); err != nil {
		t.Fatalf("free: %v", err)
	}
	// Unlike the original clear_freespace, which never re-incremented
	// the available counter, ours must stay exact after every free.
	if got, want := int64(vcb.NumAvailableFreespaceBlocks), countZeroEntries(free); got != want {
		t.Fatalf("after free: available=%d but zero entries=%d", got, want)
	}
	if int64(vcb.NumAvailableFreespaceBlocks) != numBlocks-free.blocks-1 {
		t.Fatalf("expected counter to return to initial value, got %d", vcb.NumAvailableFreespaceBlocks)
	}
}

func TestAllocateFailsWhenExhausted(t *testing.T) {
	numBlocks := int64(100)
	free := newFreespace(numBlocks)
	vcb := &VCB{
		NumBlocks:                   uint32(numBlocks),
		FirstFreeBlock:              uint32(free.blocks + 1),
		NumAvailableFreespaceBlocks: uint32(numBlocks - free.blocks - 1),
	}
	avail := int64(vcb.NumAvailableFreespaceBlocks)
	if _, err := free.allocate(vcb, avail); err != nil {
		t.Fatalf("allocate all remaining: %v", err)
	}
	if _, err := free.allocate(vcb, 1); err != ErrNoSpace {
		t.Fatalf("expected ErrNoSpace, got %v", err)
	}
}

func TestReservedRegionBoundaryInclusive(t *testing.T) {
	free := newFreespace(200)
	if !free.reserved(free.blocks) {
		t.Fatalf("block K=%d should be reserved (boundary inclusive)", free.blocks)
	}
	if free.reserved(free.blocks + 1) {
		t.Fatalf("block K+1=%d should not be reserved", free.blocks+1)
	}
}
