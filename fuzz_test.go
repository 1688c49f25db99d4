package blockfs_test

import (
	"testing"

	"github.com/soypat/blockfs"
)

// FuzzFS replays a stream of encoded mkdir/open/write/seek/close
// operations against a freshly formatted volume and checks the root
// directory invariant after every step, adapted from soypat/fat's
// FuzzFS bit-packed operation stream.
func FuzzFS(f *testing.F) {
	const (
		opMkdir uint64 = iota
		opCreateFile
		opWriteFile
		opSeek
		opCloseFile

		whoOff      = 4
		datasizeOff = 48
	)
	const totalBlocks = 4000
	writeData := make([]byte, 1<<12)
	for i := range writeData {
		writeData[i] = byte(i)
	}

	f.Add(opMkdir, opCreateFile, opWriteFile|(200<<datasizeOff),
		opSeek, opWriteFile|(1<<whoOff)|(50<<datasizeOff), opCloseFile)

	f.Fuzz(func(t *testing.T, fsop0, fsop1, fsop2, fsop3, fsop4, fsop5 uint64) {
		dev := blockfs.NewMemDevice(totalBlocks)
		fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "FUZZ", NumBlocks: totalBlocks})
		if err != nil {
			t.Fatalf("format: %v", err)
		}

		var open []*blockfs.File
		ops := [...]uint64{fsop0, fsop1, fsop2, fsop3, fsop4, fsop5}
		for i, fsop := range ops {
			op := fsop & 0xf
			who := int(byte(fsop)>>4) % 8
			datasize := int(uint16(fsop >> datasizeOff))
			if datasize > len(writeData) {
				datasize = len(writeData)
			}

			switch op {
			case opMkdir:
				_ = fs.Mkdir(dirName(i))
			case opCreateFile:
				fh, err := fs.OpenFile(fileName(who), blockfs.ModeRead|blockfs.ModeWrite|blockfs.ModeCreate)
				if err == nil {
					open = append(open, fh)
				}
			case opWriteFile:
				if len(open) == 0 {
					continue
				}
				fh := open[who%len(open)]
				fh.Write(writeData[:datasize])
			case opSeek:
				if len(open) == 0 {
					continue
				}
				fh := open[who%len(open)]
				fh.Seek(int64(datasize), blockfs.SeekStart)
			case opCloseFile:
				if len(open) == 0 {
					continue
				}
				idx := who % len(open)
				open[idx].Close()
				open = append(open[:idx], open[idx+1:]...)
			}
			checkInvariants(t, fs)
		}
		for _, fh := range open {
			fh.Close()
		}
	})
}

func dirName(i int) string     { return "/d" + string(rune('a'+i%26)) }
func fileName(who int) string  { return "/f" + string(rune('a'+who%26)) }

// checkInvariants asserts after every fuzzed operation that the root
// resolves to a directory and that its "." and ".." slots are
// populated. FAT counters and child entries are not checked.
func checkInvariants(t *testing.T, fs *blockfs.Filesystem) {
	t.Helper()
	st, err := fs.Stat("/")
	if err != nil {
		t.Fatalf("root stat: %v", err)
	}
	if !st.IsDir {
		t.Fatalf("root is not a directory")
	}
	dd, err := fs.OpenDir("/")
	if err != nil {
		t.Fatalf("opendir root: %v", err)
	}
	defer dd.CloseDir()
	sawDot, sawDotDot := false, false
	for {
		e, err := dd.ReadDir()
		if err != nil {
			t.Fatalf("readdir: %v", err)
		}
		if e == nil {
			break
		}
		if e.Name == "." {
			sawDot = true
		}
		if e.Name == ".." {
			sawDotDot = true
		}
	}
	if !sawDot || !sawDotDot {
		t.Fatalf("root missing . or .. entry")
	}
}
