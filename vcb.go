package blockfs

import (
	"bytes"
	"encoding/binary"

	"github.com/go-restruct/restruct"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// VCB is the Volume Control Block, the first block (LBA 0) of every
// blockfs volume. Its on-disk layout is packed field-by-field with
// restruct, the same library dsoprea/go-exfat uses to marshal its
// boot-sector header.
type VCB struct {
	VolumeName                  [100]byte
	Signature                   uint32
	NumBlocks                   uint32
	BlockSize                   uint32
	FreespaceStart              uint32
	FirstFreeBlock              uint32
	NumAvailableFreespaceBlocks uint32
	NumFreespaceBlocks          uint32
	RootDirBlock                uint32
	RootDirBlocks               uint32
}

// cp437 is the legacy single-byte code page used to store the volume
// label, giving golang.org/x/text/encoding/charmap a real caller
// instead of the dead ffCodePage/dbcTbl fields it shadows in the
// teacher implementation.
var cp437 = charmap.CodePage437

// setVolumeName transcodes a UTF-8 label into the VCB's fixed 100-byte
// code-page field, truncating and zero-padding as needed.
func (v *VCB) setVolumeName(label string) error {
	enc, err := cp437.NewEncoder().String(label)
	if err != nil {
		return errors.Wrap(err, "encoding volume label to CP437")
	}
	n := copy(v.VolumeName[:], enc)
	for i := n; i < len(v.VolumeName); i++ {
		v.VolumeName[i] = 0
	}
	return nil
}

// volumeName decodes the label back to UTF-8.
func (v *VCB) volumeName() string {
	raw := bytes.TrimRight(v.VolumeName[:], "\x00")
	dec, err := cp437.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(dec)
}

func marshalVCB(v *VCB) ([]byte, error) {
	buf, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		return nil, errors.Wrap(err, "packing VCB")
	}
	if len(buf) > BlockSize {
		return nil, errors.Errorf("packed VCB of %d bytes exceeds block size", len(buf))
	}
	out := make([]byte, BlockSize)
	copy(out, buf)
	return out, nil
}

func unmarshalVCB(block []byte) (*VCB, error) {
	v := &VCB{}
	if err := restruct.Unpack(block, binary.LittleEndian, v); err != nil {
		return nil, errors.Wrap(err, "unpacking VCB")
	}
	return v, nil
}

// numberOfFATBlocks computes how many whole blocks are needed to hold
// one 2-byte FAT entry per block of the volume (ceiling division,
// grounded on the original retrieve_num_of_blocks helper).
func numberOfFATBlocks(numBlocks int64) int64 {
	totalBytes := numBlocks * 2
	return (totalBytes + BlockSize - 1) / BlockSize
}
