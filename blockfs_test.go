package blockfs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soypat/blockfs"
)

// TestFormatScenario formats a 19531-block, 512-byte-block volume and
// checks that the root is a directory whose listing holds "." and "..".
// The 77-block FAT size of this geometry is checked by
// TestNumberOfFATBlocksScenario.
func TestFormatScenario(t *testing.T) {
	dev := blockfs.NewMemDevice(19531)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "TESTVOL", NumBlocks: 19531})
	require.NoError(t, err)

	st, err := fs.Stat("/")
	require.NoError(t, err)
	require.True(t, st.IsDir)

	entries, err := fs.OpenDir("/")
	require.NoError(t, err)
	seen := map[string]bool{}
	for {
		e, err := entries.ReadDir()
		require.NoError(t, err)
		if e == nil {
			break
		}
		seen[e.Name] = true
	}
	require.True(t, seen["."])
	require.True(t, seen[".."])
}

func TestMkdirRmdir(t *testing.T) {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "V", NumBlocks: 2000})
	require.NoError(t, err)

	require.NoError(t, fs.Mkdir("/docs"))
	require.ErrorIs(t, fs.Mkdir("/docs"), blockfs.ErrAlreadyExists)

	isDir, err := fs.IsDir("/docs")
	require.NoError(t, err)
	require.True(t, isDir)

	require.NoError(t, fs.Mkdir("/docs/nested"))
	require.NoError(t, fs.Rmdir("/docs"))

	_, err = fs.Stat("/docs")
	require.ErrorIs(t, err, blockfs.ErrNotFound)
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "V", NumBlocks: 2000})
	require.NoError(t, err)

	f, err := fs.OpenFile("/hello.txt", blockfs.ModeRead|blockfs.ModeWrite|blockfs.ModeCreate)
	require.NoError(t, err)

	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	n, err := f.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, f.Close())

	f2, err := fs.OpenFile("/hello.txt", blockfs.ModeRead)
	require.NoError(t, err)
	got := make([]byte, len(payload))
	total := 0
	for total < len(got) {
		n, err := f2.Read(got[total:])
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
	}
	require.Equal(t, payload, got[:total])
	require.NoError(t, f2.Close())
}

func TestSeekAndPartialOverwrite(t *testing.T) {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "V", NumBlocks: 2000})
	require.NoError(t, err)

	f, err := fs.OpenFile("/a.bin", blockfs.ModeRead|blockfs.ModeWrite|blockfs.ModeCreate)
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := f.Seek(2, blockfs.SeekStart)
	require.NoError(t, err)
	require.EqualValues(t, 2, pos)

	_, err = f.Write([]byte("XY"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := fs.OpenFile("/a.bin", blockfs.ModeRead)
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err := f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "01XY456789", string(buf[:n]))
}

func TestMoveRenamesAndRelocates(t *testing.T) {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "V", NumBlocks: 2000})
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/dst"))

	f, err := fs.OpenFile("/src.txt", blockfs.ModeWrite|blockfs.ModeCreate)
	require.NoError(t, err)
	_, err = f.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fs.Move("/src.txt", "/dst"))
	_, err = fs.Stat("/src.txt")
	require.ErrorIs(t, err, blockfs.ErrNotFound)

	st, err := fs.Stat("/dst/src.txt")
	require.NoError(t, err)
	require.EqualValues(t, len("payload"), st.Size)

	require.NoError(t, fs.Move("/dst/src.txt", "/dst/renamed.txt"))
	_, err = fs.Stat("/dst/src.txt")
	require.ErrorIs(t, err, blockfs.ErrNotFound)
	st, err = fs.Stat("/dst/renamed.txt")
	require.NoError(t, err)
	require.EqualValues(t, len("payload"), st.Size)
}

func TestSetcwdGetcwd(t *testing.T) {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "V", NumBlocks: 2000})
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/a"))
	require.NoError(t, fs.Mkdir("/a/b"))

	require.NoError(t, fs.Setcwd("/a/b"))
	require.Equal(t, "/a/b", fs.Getcwd())

	require.NoError(t, fs.Setcwd(".."))
	require.Equal(t, "/a", fs.Getcwd())
}

func TestOpenMissingWithoutCreateFails(t *testing.T) {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "V", NumBlocks: 2000})
	require.NoError(t, err)
	_, err = fs.OpenFile("/nope.txt", blockfs.ModeRead)
	require.ErrorIs(t, err, blockfs.ErrNotFound)
}

func TestMountResumesExistingVolume(t *testing.T) {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "V", NumBlocks: 2000})
	require.NoError(t, err)
	require.NoError(t, fs.Mkdir("/persisted"))
	require.NoError(t, fs.Unmount())

	fs2, err := blockfs.Mount(dev, blockfs.FormatConfig{NumBlocks: 2000})
	require.NoError(t, err)
	isDir, err := fs2.IsDir("/persisted")
	require.NoError(t, err)
	require.True(t, isDir)
}
