package blockfs

import (
	"time"

	"github.com/pkg/errors"
)

// File open modes. ModeCreate creates the file if it does not exist;
// ModeTrunc resets its size to zero on open.
const (
	ModeRead = 1 << iota
	ModeWrite
	ModeCreate
	ModeTrunc
)

// fcb is a File Control Block: the buffered-I/O session state for one
// open file. Unlike the original b_fcb, which wrote back through a
// module-global parent_index set at open time (unsound once two files
// are open concurrently), each fcb owns its own (parent, index) pair,
// resolving that design question the way the spec requires.
type fcb struct {
	fs     *Filesystem
	entry  DirectoryEntry
	parent *directory
	index  int

	mode uint8

	buf          [BlockSize]byte
	bufferOffset int64
	bufferLen    int64 // valid bytes in buf; 0 means buf is stale/empty
	currentBlock int64
	blockIndex   int64

	dirty bool
	open  bool
}

// File is the public handle returned by OpenFile.
type File struct {
	fs   *Filesystem
	slot int
}

func (fs *Filesystem) allocFCBSlot() int {
	for i, f := range fs.fcbs {
		if f == nil {
			return i
		}
	}
	return -1
}

// OpenFile resolves path and opens it for buffered I/O, creating it
// (as a regular file with DefaultFileBlocks preallocated, mirroring
// b_open's O_CREAT branch) when mode includes ModeCreate and the file
// does not exist.
func (fs *Filesystem) OpenFile(path string, mode uint8) (*File, error) {
	if len(path) == 0 {
		return nil, ErrInvalidPath
	}
	res, err := fs.resolvePath(path)
	if err != nil {
		return nil, err
	}

	var entry DirectoryEntry
	index := res.index
	parent := res.parent

	if index == -1 {
		if mode&ModeCreate == 0 {
			return nil, ErrNotFound
		}
		if len(res.name) > MaxNameSize {
			return nil, ErrNameTooLong
		}
		idx := parent.availableIndex()
		if idx == -1 {
			return nil, errors.New("blockfs: directory full")
		}
		start, err := fs.free.allocate(fs.vcb, DefaultFileBlocks)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		entry = DirectoryEntry{
			Size:             0,
			StartBlock:       uint32(start),
			IsDir:            0,
			CreationTime:     now.Unix(),
			ModificationTime: now.Unix(),
			AccessTime:       now.Unix(),
		}
		if err := entry.setName(res.name); err != nil {
			return nil, err
		}
		parent.entries[idx] = entry
		if err := fs.writeDirectory(parent); err != nil {
			return nil, err
		}
		index = idx
	} else {
		entry = parent.entries[index]
		if entry.isDirectory() {
			return nil, ErrIsADirectory
		}
		if mode&ModeTrunc != 0 {
			entry.Size = 0
			parent.entries[index] = entry
			if err := fs.writeDirectory(parent); err != nil {
				return nil, err
			}
		}
	}

	slot := fs.allocFCBSlot()
	if slot == -1 {
		return nil, ErrNoFCB
	}

	f := &fcb{
		fs:           fs,
		entry:        entry,
		parent:       parent,
		index:        index,
		mode:         mode,
		currentBlock: int64(entry.StartBlock),
		open:         true,
	}
	fs.fcbs[slot] = f
	fs.trace("opened file", "path", path, "start_block", entry.StartBlock, "size", entry.Size)
	return &File{fs: fs, slot: slot}, nil
}

func (fl *File) handle() (*fcb, error) {
	if fl == nil || fl.fs == nil {
		return nil, errors.New("blockfs: nil file handle")
	}
	f := fl.fs.fcbs[fl.slot]
	if f == nil || !f.open {
		return nil, errors.New("blockfs: file already closed")
	}
	return f, nil
}

func (f *fcb) filePointer() int64 {
	return f.blockIndex*BlockSize + f.bufferOffset
}

// flushDirty writes back a dirty buffered block.
func (f *fcb) flushDirty() error {
	if !f.dirty {
		return nil
	}
	if _, err := f.fs.dev.WriteBlocks(f.buf[:], f.currentBlock); err != nil {
		return errors.Wrap(err, "flushing buffered block")
	}
	f.dirty = false
	return nil
}

// loadCurrentBlock fills buf with the current block's contents, used
// both to prime a partial write and to serve buffered reads.
func (f *fcb) loadCurrentBlock() error {
	if _, err := f.fs.dev.ReadBlocks(f.buf[:], f.currentBlock); err != nil {
		return errors.Wrap(err, "loading block for buffered access")
	}
	f.bufferLen = BlockSize
	return nil
}

// advanceBlock moves to the next block in the chain, extending the
// chain by ExtendBlocks whenever the current block is the terminator,
// honoring MaxFileSize. ExtendBlocks (5) is the
// tail-growth granularity; DefaultFileBlocks (20) is only used for the
// initial allocation at create time.
func (f *fcb) advanceBlock() error {
	next, isLast := f.fs.free.next(f.currentBlock)
	if isLast {
		if int64(f.entry.Size) >= MaxFileSize {
			return ErrNoSpace
		}
		if _, err := f.fs.free.extend(f.fs.vcb, f.currentBlock, ExtendBlocks); err != nil {
			return err
		}
		next, _ = f.fs.free.next(f.currentBlock)
	}
	f.currentBlock = next
	f.blockIndex++
	f.bufferOffset = 0
	f.bufferLen = 0
	return nil
}

// Write implements the fast-path/slow-path split of b_write: whole
// blocks aligned to a block boundary go straight to the device; any
// partial block is staged through the fcb's buffer.
func (fl *File) Write(data []byte) (int, error) {
	f, err := fl.handle()
	if err != nil {
		return 0, err
	}
	if f.mode&ModeWrite == 0 {
		return 0, errors.New("blockfs: file not opened for writing")
	}
	written := 0
	for written < len(data) {
		remaining := data[written:]
		if f.bufferOffset == 0 && int64(len(remaining)) >= BlockSize {
			if _, err := f.fs.dev.WriteBlocks(remaining[:BlockSize], f.currentBlock); err != nil {
				return written, errors.Wrap(err, "writing block")
			}
			written += BlockSize
			if err := f.advanceBlock(); err != nil {
				return written, err
			}
			continue
		}
		if f.bufferOffset == 0 || f.bufferLen == 0 {
			if err := f.loadCurrentBlock(); err != nil {
				return written, err
			}
		}
		n := copy(f.buf[f.bufferOffset:], remaining)
		f.bufferOffset += int64(n)
		f.dirty = true
		written += n
		if f.bufferOffset == BlockSize {
			if err := f.flushDirty(); err != nil {
				return written, err
			}
			if err := f.advanceBlock(); err != nil {
				return written, err
			}
		}
	}
	if fp := f.filePointer(); fp > int64(f.entry.Size) {
		f.entry.Size = uint32(fp)
	}
	f.entry.ModificationTime = time.Now().Unix()
	f.parent.entries[f.index] = f.entry
	return written, nil
}

// Read implements b_read's three-part decomposition: the tail of an
// already-buffered block, then whole blocks read straight into dst,
// then a new partial tail buffered for subsequent reads.
func (fl *File) Read(dst []byte) (int, error) {
	f, err := fl.handle()
	if err != nil {
		return 0, err
	}
	if f.mode&ModeRead == 0 {
		return 0, errors.New("blockfs: file not opened for reading")
	}
	remainingInFile := int64(f.entry.Size) - f.filePointer()
	if remainingInFile <= 0 {
		return 0, nil
	}
	want := int64(len(dst))
	if want > remainingInFile {
		want = remainingInFile
	}
	read := int64(0)

	if f.bufferOffset > 0 {
		if f.bufferLen == 0 {
			if err := f.loadCurrentBlock(); err != nil {
				return int(read), err
			}
		}
		avail := f.bufferLen - f.bufferOffset
		n := avail
		if n > want-read {
			n = want - read
		}
		copy(dst[read:read+n], f.buf[f.bufferOffset:f.bufferOffset+n])
		read += n
		f.bufferOffset += n
		if f.bufferOffset == BlockSize {
			if err := f.advanceBlock(); err != nil {
				return int(read), err
			}
		}
	}

	for want-read >= BlockSize && f.bufferOffset == 0 {
		if _, err := f.fs.dev.ReadBlocks(dst[read:read+BlockSize], f.currentBlock); err != nil {
			return int(read), errors.Wrap(err, "reading block")
		}
		read += BlockSize
		if err := f.advanceBlock(); err != nil {
			return int(read), err
		}
	}

	if want-read > 0 {
		if err := f.loadCurrentBlock(); err != nil {
			return int(read), err
		}
		n := want - read
		copy(dst[read:read+n], f.buf[:n])
		read += n
		f.bufferOffset = n
	}

	f.entry.AccessTime = time.Now().Unix()
	f.parent.entries[f.index] = f.entry
	return int(read), nil
}

// Seek repositions the file pointer, re-walking the block chain from
// the start (or from the current block, if moving forward) since
// chains are singly linked, matching b_seek's behavior.
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	f, err := fl.handle()
	if err != nil {
		return 0, err
	}
	if err := f.flushDirty(); err != nil {
		return 0, err
	}
	var newPos int64
	switch whence {
	case SeekStart:
		newPos = offset
	case SeekCurrent:
		newPos = f.filePointer() + offset
	case SeekEnd:
		newPos = int64(f.entry.Size) + offset
	default:
		return 0, errors.New("blockfs: invalid whence")
	}
	if newPos < 0 {
		return 0, errors.New("blockfs: negative seek position")
	}

	newBlockIndex := newPos / BlockSize
	newOffset := newPos % BlockSize

	if newBlockIndex != f.blockIndex {
		var block int64
		var start, steps int64
		if newBlockIndex > f.blockIndex {
			block = f.currentBlock
			start = f.blockIndex
		} else {
			block = int64(f.entry.StartBlock)
			start = 0
		}
		steps = newBlockIndex - start
		for i := int64(0); i < steps; i++ {
			next, isLast := f.fs.free.next(block)
			if isLast {
				return 0, errors.New("blockfs: seek past end of allocated chain")
			}
			block = next
		}
		f.currentBlock = block
		f.blockIndex = newBlockIndex
	}
	f.bufferOffset = newOffset
	f.bufferLen = 0
	return newPos, nil
}

// Sync flushes any dirty buffered block and the file's directory
// entry (size/timestamps) without closing the handle.
func (fl *File) Sync() error {
	f, err := fl.handle()
	if err != nil {
		return err
	}
	if err := f.flushDirty(); err != nil {
		return err
	}
	f.parent.entries[f.index] = f.entry
	return f.fs.writeDirectory(f.parent)
}

// Close flushes the file and releases its FCB slot.
func (fl *File) Close() error {
	f, err := fl.handle()
	if err != nil {
		return err
	}
	if err := fl.Sync(); err != nil {
		return err
	}
	f.open = false
	fl.fs.fcbs[fl.slot] = nil
	return nil
}
