package blockfs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Filesystem is a mounted blockfs volume: the VCB, the in-memory FAT,
// the current-working-directory session state, and the FCB table for
// open files. It corresponds to the global fs_vcb/fs_freespace/
// fs_dir_root/fs_dir_curr session state of the original design,
// gathered into one handle instead of package globals so more than one
// volume can be mounted in a process.
type Filesystem struct {
	sync.Mutex

	dev  BlockDevice
	vcb  *VCB
	free *freespace

	root *directory
	cwd  *directory
	// cwdPath mirrors miscDirFunctions.c's cwd_str: the canonicalized
	// absolute path of the current working directory.
	cwdPath string

	fcbs [MaxFCBs]*fcb

	log *slog.Logger
}

// FormatConfig parameterizes a fresh volume, replacing the ambient
// globals the original initFileSystem relied on, in the spirit of
// soypat/fat's FormatConfig.
type FormatConfig struct {
	Label     string
	NumBlocks int64
}

// Format writes a brand-new VCB, FAT, and root directory to dev and
// returns a mounted Filesystem, implementing the "unformatted volume"
// branch of the mount protocol.
func Format(dev BlockDevice, cfg FormatConfig) (*Filesystem, error) {
	numBlocks := cfg.NumBlocks
	if numBlocks <= 0 {
		numBlocks = dev.NumBlocks()
	}
	if numBlocks < 4 {
		return nil, errors.New("blockfs: volume too small to format")
	}

	free := newFreespace(numBlocks)
	vcb := &VCB{
		Signature:          Magic,
		NumBlocks:          uint32(numBlocks),
		BlockSize:          BlockSize,
		FreespaceStart:     uint32(free.start),
		FirstFreeBlock:     uint32(free.blocks + 1),
		NumFreespaceBlocks: uint32(free.blocks),
	}
	vcb.NumAvailableFreespaceBlocks = uint32(numBlocks) - uint32(free.blocks) - 1
	if err := vcb.setVolumeName(cfg.Label); err != nil {
		return nil, err
	}

	fs := &Filesystem{dev: dev, vcb: vcb, free: free}

	rootBlocks := blocksNeededForDirectory()
	rootStart, err := free.allocate(vcb, rootBlocks)
	if err != nil {
		return nil, errors.Wrap(err, "allocating root directory")
	}
	vcb.RootDirBlock = uint32(rootStart)
	vcb.RootDirBlocks = uint32(rootBlocks)

	root := newDirectory(rootStart)
	root.initSelfEntries(nil, time.Now())
	if err := fs.writeDirectory(root); err != nil {
		return nil, err
	}
	fs.root = root
	fs.cwd = root
	fs.cwdPath = "/"

	if err := fs.syncMeta(); err != nil {
		return nil, err
	}
	fs.info("formatted volume", "num_blocks", numBlocks, "fat_blocks", free.blocks,
		"root_block", rootStart, "available", vcb.NumAvailableFreespaceBlocks)
	return fs, nil
}

// Mount reads block 0 off dev and either resumes an existing volume
// (signature matches Magic) or formats a fresh one, mirroring
// initFileSystem's signature branch in fsInit.c.
func Mount(dev BlockDevice, cfg FormatConfig) (*Filesystem, error) {
	block0 := make([]byte, BlockSize)
	if _, err := dev.ReadBlocks(block0, 0); err != nil {
		return nil, errors.Wrap(err, "reading VCB block")
	}
	vcb, err := unmarshalVCB(block0)
	if err != nil {
		return nil, err
	}
	if vcb.Signature != Magic {
		return Format(dev, cfg)
	}

	k := numberOfFATBlocks(int64(vcb.NumBlocks))
	free, err := loadFreespace(dev, int64(vcb.NumBlocks), k)
	if err != nil {
		return nil, err
	}
	fs := &Filesystem{dev: dev, vcb: vcb, free: free}

	root, err := fs.readDirectory(int64(vcb.RootDirBlock))
	if err != nil {
		return nil, errors.Wrap(err, "loading root directory")
	}
	fs.root = root
	fs.cwd = root
	fs.cwdPath = "/"
	fs.info("mounted volume", "num_blocks", vcb.NumBlocks, "available", vcb.NumAvailableFreespaceBlocks)
	return fs, nil
}

// Unmount flushes the VCB and FAT back to the device. It does not
// close the device itself: device lifetime is owned by the caller.
func (fs *Filesystem) Unmount() error {
	return fs.syncMeta()
}

func (fs *Filesystem) syncMeta() error {
	buf, err := marshalVCB(fs.vcb)
	if err != nil {
		return err
	}
	if _, err := fs.dev.WriteBlocks(buf, 0); err != nil {
		return errors.Wrap(err, "writing VCB")
	}
	return fs.free.sync(fs.dev)
}

func blocksNeededForDirectory() int64 {
	size := serializedDirectorySize()
	return (size + BlockSize - 1) / BlockSize
}

// writeDirectory serializes d and splits it across d's block chain,
// following the FAT link at each boundary and zero-padding the final
// partial block, the same two-phase loop as fsDirectory.c's
// write_dir_helper.
func (fs *Filesystem) writeDirectory(d *directory) error {
	buf, err := d.serialize()
	if err != nil {
		return err
	}
	block := d.startBlock
	for len(buf) > 0 {
		chunk := make([]byte, BlockSize)
		copy(chunk, buf)
		if _, err := fs.dev.WriteBlocks(chunk, block); err != nil {
			return errors.Wrap(err, "writing directory block")
		}
		if len(buf) <= BlockSize {
			break
		}
		buf = buf[BlockSize:]
		next, last := fs.free.next(block)
		if last {
			return errors.New("blockfs: directory chain shorter than its serialized size")
		}
		block = next
	}
	return nil
}

// readDirectory walks startBlock's chain, gathering exactly
// serializedDirectorySize bytes, the read-side mirror of
// load_dir_helper.
func (fs *Filesystem) readDirectory(startBlock int64) (*directory, error) {
	want := serializedDirectorySize()
	buf := make([]byte, 0, want)
	block := startBlock
	for int64(len(buf)) < want {
		chunk := make([]byte, BlockSize)
		if _, err := fs.dev.ReadBlocks(chunk, block); err != nil {
			return nil, errors.Wrap(err, "reading directory block")
		}
		buf = append(buf, chunk...)
		next, last := fs.free.next(block)
		if last {
			break
		}
		block = next
	}
	if int64(len(buf)) < want {
		return nil, errors.New("blockfs: directory chain too short")
	}
	return deserializeDirectory(buf[:want], startBlock)
}

// createDirectory allocates a new chain, fills "." and "..", writes it
// to disk, and returns the in-memory directory, mirroring
// create_directory.
func (fs *Filesystem) createDirectory(parent *directory) (*directory, error) {
	n := blocksNeededForDirectory()
	start, err := fs.free.allocate(fs.vcb, n)
	if err != nil {
		return nil, err
	}
	d := newDirectory(start)
	d.initSelfEntries(parent, time.Now())
	if err := fs.writeDirectory(d); err != nil {
		return nil, err
	}
	return d, nil
}
