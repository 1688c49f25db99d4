package blockfs

// Compile-time constants from the on-disk format definition. Changing
// BlockSize, MaxDirEntries, MaxNameSize or Magic invalidates existing
// volumes.
const (
	BlockSize          = 512
	MaxDirEntries      = 50
	MaxNameSize        = 20
	MaxFileSize        = 100000
	MaxFCBs            = 20
	DefaultFileBlocks  = 20
	ExtendBlocks       = 5
	Magic        uint32 = 742891252
)

// FileType mirrors the on-disk directory entry type tag.
type FileType uint8

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
)

// Whence values for Seek, matching the B_SEEK_* constants of the
// original design.
const (
	SeekStart = iota
	SeekCurrent
	SeekEnd
)
