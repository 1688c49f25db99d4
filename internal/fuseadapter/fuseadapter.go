// Package fuseadapter exposes a mounted blockfs volume as a real
// operating-system directory tree via bazil.org/fuse, grounded on
// ostafen/digler's internal/fuse package (which wires the same
// bazil.org/fuse/fs pair over a read-only recovered-file set). It is a
// supplemental consumer of blockfs's public surface, never imported by
// the core package.
package fuseadapter

import (
	"context"
	"io"
	"os"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/soypat/blockfs"
)

// FS implements bazil.org/fuse/fs.FS over a mounted *blockfs.Filesystem.
type FS struct {
	Vol *blockfs.Filesystem
}

func (f *FS) Root() (fusefs.Node, error) {
	return &Dir{fs: f.Vol, path: "/"}, nil
}

// Dir implements fs.Node, fs.HandleReadDirAller, and fs.NodeStringLookuper
// for one blockfs directory.
type Dir struct {
	fs   *blockfs.Filesystem
	path string
}

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0o755
	st, err := d.fs.Stat(d.path)
	if err == nil {
		a.Mtime = st.ModificationTime
		a.Ctime = st.CreationTime
		a.Atime = st.AccessTime
	}
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	child := joinPath(d.path, name)
	isDir, err := d.fs.IsDir(child)
	if err != nil {
		return nil, fuse.ENOENT
	}
	if isDir {
		return &Dir{fs: d.fs, path: child}, nil
	}
	return &File{fs: d.fs, path: child}, nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	handle, err := d.fs.OpenDir(d.path)
	if err != nil {
		return nil, err
	}
	defer handle.CloseDir()
	var out []fuse.Dirent
	for {
		entry, err := handle.ReadDir()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		typ := fuse.DT_File
		if entry.IsDir {
			typ = fuse.DT_Dir
		}
		out = append(out, fuse.Dirent{Name: entry.Name, Type: typ})
	}
	return out, nil
}

// File implements fs.Node and fs.Handle for one blockfs regular file.
type File struct {
	fs   *blockfs.Filesystem
	path string
}

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	st, err := f.fs.Stat(f.path)
	if err != nil {
		return fuse.ENOENT
	}
	a.Mode = 0o644
	a.Size = uint64(st.Size)
	a.Mtime = st.ModificationTime
	a.Ctime = st.CreationTime
	a.Atime = st.AccessTime
	return nil
}

func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	handle, err := f.fs.OpenFile(f.path, blockfs.ModeRead)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	var out []byte
	buf := make([]byte, blockfs.BlockSize)
	for {
		n, err := handle.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if n == 0 || err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Mount mounts vol at mountpoint and serves it until the filesystem is
// unmounted.
func Mount(vol *blockfs.Filesystem, mountpoint string) error {
	c, err := fuse.Mount(mountpoint, fuse.FSName("blockfs"), fuse.Subtype("blockfsfs"))
	if err != nil {
		return err
	}
	defer c.Close()
	err = fusefs.Serve(c, &FS{Vol: vol})
	if err != nil {
		return err
	}
	<-c.Ready
	if err := c.MountError; err != nil {
		return err
	}
	return nil
}

// Unmount is a thin wrapper over fuse.Unmount kept here so callers
// don't need to import bazil.org/fuse directly for the common case.
func Unmount(mountpoint string) error {
	err := fuse.Unmount(mountpoint)
	if err == syscall.EINVAL {
		return nil
	}
	return err
}
