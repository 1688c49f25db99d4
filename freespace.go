package blockfs

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// freespace is the in-memory FAT (File Allocation Table): one 16-bit
// entry per block of the volume, loaded and flushed as a single
// contiguous region the way the original initialize_freespace /
// load_freespace / clear_freespace routines malloc and LBAwrite the
// whole table at once rather than paging it sector by sector.
type freespace struct {
	entries []uint16
	start   int64 // first block holding FAT data (always 1)
	blocks  int64 // number of blocks the FAT occupies on disk (K)
}

// reserved reports whether block is inside the permanently reserved
// region [0, K] (VCB block plus the FAT's own blocks). Per the spec's
// resolution of the original's boundary ambiguity, the check is
// inclusive of K.
func (f *freespace) reserved(block int64) bool {
	return block <= f.blocks
}

func newFreespace(numBlocks int64) *freespace {
	k := numberOfFATBlocks(numBlocks)
	fs := &freespace{
		entries: make([]uint16, numBlocks),
		start:   1,
		blocks:  k,
	}
	for i := int64(0); i <= k && i < numBlocks; i++ {
		fs.entries[i] = 1
	}
	return fs
}

func (f *freespace) encode() []byte {
	buf := make([]byte, len(f.entries)*2)
	for i, v := range f.entries {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	// Pad up to a whole number of blocks for the device write.
	total := f.blocks * BlockSize
	if int64(len(buf)) < total {
		padded := make([]byte, total)
		copy(padded, buf)
		return padded
	}
	return buf
}

func decodeFreespace(buf []byte, numBlocks, k int64) *freespace {
	fs := &freespace{entries: make([]uint16, numBlocks), start: 1, blocks: k}
	for i := int64(0); i < numBlocks; i++ {
		fs.entries[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	return fs
}

// loadFreespace reads the FAT region off device into memory.
func loadFreespace(dev BlockDevice, numBlocks, k int64) (*freespace, error) {
	buf := make([]byte, k*BlockSize)
	if _, err := dev.ReadBlocks(buf, 1); err != nil {
		return nil, errors.Wrap(err, "reading freespace table")
	}
	return decodeFreespace(buf, numBlocks, k), nil
}

// sync flushes the in-memory FAT back to its reserved region.
func (f *freespace) sync(dev BlockDevice) error {
	if _, err := dev.WriteBlocks(f.encode(), f.start); err != nil {
		return errors.Wrap(err, "writing freespace table")
	}
	return nil
}

// allocate links count free blocks into a chain and returns the first
// block of the chain, or ErrNoSpace if count*BLOCK_SIZE exceeds
// MAX_FILE_SIZE or fewer than count free entries remain (the same
// step-1 precondition allocate_freespace checks before scanning).
// vcb's hint/counters are updated in place, mirroring
// allocate_freespace's use of first_free_block_in_freespace_map as a
// forward-scanning hint.
func (f *freespace) allocate(vcb *VCB, count int64) (int64, error) {
	if count <= 0 {
		return 0, errors.New("blockfs: allocate requires a positive block count")
	}
	if count*BlockSize > MaxFileSize {
		return 0, ErrNoSpace
	}
	if int64(vcb.NumAvailableFreespaceBlocks) < count {
		return 0, ErrNoSpace
	}
	first := int64(-1)
	prev := int64(-1)
	hint := int64(vcb.FirstFreeBlock)
	found := int64(0)
	for hint < int64(len(f.entries)) && found < count {
		if f.entries[hint] == 0 {
			if first == -1 {
				first = hint
			} else {
				f.entries[prev] = uint16(hint)
			}
			prev = hint
			found++
		}
		hint++
	}
	if found < count {
		return 0, ErrNoSpace
	}
	f.entries[prev] = uint16(prev) // self-referencing terminator
	vcb.NumAvailableFreespaceBlocks -= uint32(count)
	// Advance the hint to the next free entry for future allocations.
	next := prev + 1
	for next < int64(len(f.entries)) && f.entries[next] != 0 {
		next++
	}
	vcb.FirstFreeBlock = uint32(next)
	return first, nil
}

// free walks the chain starting at block, zeroing every entry and
// incrementing the available-block counter exactly once per freed
// block. The original clear_freespace walks the same chain but never
// updates num_of_available_freespace_blocks; that omission is treated
// here as a bug, not a behavior to preserve, so the counter always
// stays exact.
func (f *freespace) free(vcb *VCB, start int64) error {
	if start < 0 || start >= int64(len(f.entries)) {
		return errors.Errorf("blockfs: free of out-of-range block %d", start)
	}
	if f.reserved(start) {
		return errors.Errorf("blockfs: free of reserved block %d", start)
	}
	block := start
	for {
		next := int64(f.entries[block])
		terminator := next == block
		f.entries[block] = 0
		vcb.NumAvailableFreespaceBlocks++
		if block < int64(vcb.FirstFreeBlock) {
			vcb.FirstFreeBlock = uint32(block)
		}
		if terminator {
			break
		}
		block = next
	}
	return nil
}

// extend appends count additional blocks to the chain whose current
// terminator is at tailBlock, returning the new terminator.
func (f *freespace) extend(vcb *VCB, tailBlock int64, count int64) (int64, error) {
	newStart, err := f.allocate(vcb, count)
	if err != nil {
		return 0, err
	}
	f.entries[tailBlock] = uint16(newStart)
	// Walk to the new terminator.
	b := newStart
	for f.entries[b] != uint16(b) {
		b = int64(f.entries[b])
	}
	return b, nil
}

// next returns the block following block in its chain, and whether
// block was itself the terminator.
func (f *freespace) next(block int64) (nextBlock int64, isLast bool) {
	n := int64(f.entries[block])
	return n, n == block
}
