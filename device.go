package blockfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BlockDevice is the L0 collaborator: a fixed-size array of fixed-size
// blocks addressed by logical block number. blockfs never partitions,
// formats a filesystem other than its own, or manages wear leveling;
// it only ever issues whole-block reads and writes through this
// interface.
type BlockDevice interface {
	// ReadBlocks reads len(dst)/BlockSize blocks starting at startBlock
	// into dst. len(dst) must be a multiple of the device's block size.
	ReadBlocks(dst []byte, startBlock int64) (int, error)
	// WriteBlocks writes len(data)/BlockSize blocks starting at
	// startBlock. len(data) must be a multiple of the device's block
	// size.
	WriteBlocks(data []byte, startBlock int64) (int, error)
	// NumBlocks reports the total addressable block count of the
	// device.
	NumBlocks() int64
}

// MemDevice is an in-memory BlockDevice backed by a flat byte slice,
// grounded on the teacher's BlockByteSlice fixture. It is the device
// every unit test in this module mounts against.
type MemDevice struct {
	buf []byte
}

// NewMemDevice allocates an in-memory device of numBlocks blocks.
func NewMemDevice(numBlocks int64) *MemDevice {
	return &MemDevice{buf: make([]byte, numBlocks*BlockSize)}
}

func (m *MemDevice) NumBlocks() int64 { return int64(len(m.buf)) / BlockSize }

func (m *MemDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if len(dst)%BlockSize != 0 {
		return 0, fmt.Errorf("%w: dst size %d not a multiple of block size", ErrDeviceError, len(dst))
	}
	off := startBlock * BlockSize
	end := off + int64(len(dst))
	if startBlock < 0 || end > int64(len(m.buf)) {
		return 0, fmt.Errorf("%w: read [%d:%d] out of device bounds", ErrDeviceError, off, end)
	}
	return copy(dst, m.buf[off:end]), nil
}

func (m *MemDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if len(data)%BlockSize != 0 {
		return 0, fmt.Errorf("%w: data size %d not a multiple of block size", ErrDeviceError, len(data))
	}
	off := startBlock * BlockSize
	end := off + int64(len(data))
	if startBlock < 0 || end > int64(len(m.buf)) {
		return 0, fmt.Errorf("%w: write [%d:%d] out of device bounds", ErrDeviceError, off, end)
	}
	return copy(m.buf[off:end], data), nil
}

// FileDevice backs a BlockDevice with a regular file or block special
// file, using golang.org/x/sys/unix.Pread/Pwrite for positioned I/O
// instead of tracking a file offset, the way ostafen/digler's
// internal/mmap and internal/disk packages talk to raw volumes.
type FileDevice struct {
	f         *os.File
	numBlocks int64
}

// OpenFileDevice opens path (created if it does not exist, and grown to
// numBlocks*BlockSize if shorter) as a block device.
func OpenFileDevice(path string, numBlocks int64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockfs: opening device file: %w", err)
	}
	want := numBlocks * BlockSize
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileDevice{f: f, numBlocks: numBlocks}, nil
}

func (d *FileDevice) NumBlocks() int64 { return d.numBlocks }

func (d *FileDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	if len(dst)%BlockSize != 0 {
		return 0, fmt.Errorf("%w: dst size %d not a multiple of block size", ErrDeviceError, len(dst))
	}
	n, err := unix.Pread(int(d.f.Fd()), dst, startBlock*BlockSize)
	if err != nil {
		return n, fmt.Errorf("%w: pread block %d: %v", ErrDeviceError, startBlock, err)
	}
	return n, nil
}

func (d *FileDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	if len(data)%BlockSize != 0 {
		return 0, fmt.Errorf("%w: data size %d not a multiple of block size", ErrDeviceError, len(data))
	}
	n, err := unix.Pwrite(int(d.f.Fd()), data, startBlock*BlockSize)
	if err != nil {
		return n, fmt.Errorf("%w: pwrite block %d: %v", ErrDeviceError, startBlock, err)
	}
	return n, nil
}

// Close flushes and closes the backing file.
func (d *FileDevice) Close() error {
	if err := d.f.Sync(); err != nil {
		return err
	}
	return d.f.Close()
}
