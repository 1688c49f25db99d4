package blockfs

import (
	"encoding/binary"
	"time"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"
)

// DirectoryEntry is one fixed-size slot of a directory's entry array.
// An empty Name marks the slot free. Every directory's slot 0 is "."
// (its own metadata: size of the serialized entry array rounded up to a
// whole block, and the start block of the chain holding it) and slot 1
// is ".." (a denormalized
// copy of the parent's own "." entry, or of itself for the root).
type DirectoryEntry struct {
	Name             [MaxNameSize]byte
	Size             uint32
	StartBlock       uint32
	IsDir            uint8
	_                [3]byte // alignment padding, always zero
	CreationTime     int64
	ModificationTime int64
	AccessTime       int64
}

func (e *DirectoryEntry) name() string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

func (e *DirectoryEntry) setName(name string) error {
	if len(name) > MaxNameSize {
		return ErrNameTooLong
	}
	for i := range e.Name {
		e.Name[i] = 0
	}
	copy(e.Name[:], name)
	return nil
}

func (e *DirectoryEntry) empty() bool { return e.name() == "" }

func (e *DirectoryEntry) isDirectory() bool { return e.IsDir != 0 }

var direntSize = func() int {
	buf, err := restruct.Pack(binary.LittleEndian, &DirectoryEntry{})
	if err != nil {
		panic(err)
	}
	return len(buf)
}()

// directory is the in-memory representation of a loaded directory: a
// fixed MaxDirEntries-length array plus the chain head of its own
// serialized form (its size is recorded in the "." entry), mirroring
// the original dir
// struct's "treat the directory like a file that stores DirectoryEntry
// records" design.
type directory struct {
	entries    [MaxDirEntries]DirectoryEntry
	startBlock int64
}

func serializedDirectorySize() int64 { return int64(MaxDirEntries * direntSize) }

// storedDirectorySize is the value a directory's "." entry records in
// its Size field: the serialized entry array rounded up to a whole
// block, per the on-disk size convention (a directory's reported size
// is its block-chain capacity, not its packed byte count).
func storedDirectorySize() int64 {
	size := serializedDirectorySize()
	return (size + BlockSize - 1) / BlockSize * BlockSize
}

// newDirectory builds an in-memory directory for a freshly allocated
// chain rooted at startBlock, with every slot past "." and ".." empty.
func newDirectory(startBlock int64) *directory {
	d := &directory{startBlock: startBlock}
	return d
}

// initSelfEntries fills slots 0 ("." ) and 1 (".."), copying the
// parent's own metadata into "..", or self-referencing for the root
// directory (parent == nil).
func (d *directory) initSelfEntries(parent *directory, now time.Time) {
	self := &d.entries[0]
	self.setName(".")
	self.Size = uint32(storedDirectorySize())
	self.StartBlock = uint32(d.startBlock)
	self.IsDir = 1
	self.CreationTime = now.Unix()
	self.ModificationTime = now.Unix()
	self.AccessTime = now.Unix()

	dd := &d.entries[1]
	dd.setName("..")
	dd.IsDir = 1
	dd.ModificationTime = now.Unix()
	dd.AccessTime = now.Unix()
	dd.CreationTime = now.Unix()
	if parent == nil {
		dd.Size = self.Size
		dd.StartBlock = self.StartBlock
	} else {
		*dd = parent.entries[0]
		dd.setName("..")
	}
}

// indexOf returns the slot index holding name, or -1.
func (d *directory) indexOf(name string) int {
	for i := range d.entries {
		if d.entries[i].name() == name {
			return i
		}
	}
	return -1
}

// availableIndex returns the first free slot at index >= 2, or -1 if
// the directory is full.
func (d *directory) availableIndex() int {
	for i := 2; i < len(d.entries); i++ {
		if d.entries[i].empty() {
			return i
		}
	}
	return -1
}

// serialize packs the entry array into a contiguous byte buffer ready
// for block-by-block splitting.
func (d *directory) serialize() ([]byte, error) {
	out := make([]byte, 0, serializedDirectorySize())
	for i := range d.entries {
		b, err := restruct.Pack(binary.LittleEndian, &d.entries[i])
		if err != nil {
			return nil, errors.Wrap(err, "packing directory entry")
		}
		out = append(out, b...)
	}
	return out, nil
}

func deserializeDirectory(buf []byte, startBlock int64) (*directory, error) {
	d := &directory{startBlock: startBlock}
	for i := range d.entries {
		off := i * direntSize
		if off+direntSize > len(buf) {
			return nil, errors.Errorf("blockfs: directory buffer too short for entry %d", i)
		}
		if err := restruct.Unpack(buf[off:off+direntSize], binary.LittleEndian, &d.entries[i]); err != nil {
			return nil, errors.Wrap(err, "unpacking directory entry")
		}
	}
	return d, nil
}
