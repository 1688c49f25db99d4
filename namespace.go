package blockfs

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Stat mirrors fs_stat's populated fields.
type Stat struct {
	Size             int64
	IsDir            bool
	Blocks           int64
	CreationTime     time.Time
	ModificationTime time.Time
	AccessTime       time.Time
}

func statFromEntry(e *DirectoryEntry) Stat {
	return Stat{
		Size:             int64(e.Size),
		IsDir:            e.isDirectory(),
		Blocks:           (int64(e.Size) + BlockSize - 1) / BlockSize,
		CreationTime:     time.Unix(e.CreationTime, 0),
		ModificationTime: time.Unix(e.ModificationTime, 0),
		AccessTime:       time.Unix(e.AccessTime, 0),
	}
}

// Stat resolves path and returns its metadata.
func (fs *Filesystem) Stat(path string) (Stat, error) {
	res, err := fs.resolvePath(path)
	if err != nil {
		return Stat{}, err
	}
	if res.index == -1 {
		return Stat{}, ErrNotFound
	}
	return statFromEntry(&res.parent.entries[res.index]), nil
}

// IsDir reports whether path resolves to a directory.
func (fs *Filesystem) IsDir(path string) (bool, error) {
	res, err := fs.resolvePath(path)
	if err != nil {
		return false, err
	}
	if res.index == -1 {
		return false, ErrNotFound
	}
	return res.parent.entries[res.index].isDirectory(), nil
}

// IsFile reports whether path resolves to a regular file.
func (fs *Filesystem) IsFile(path string) (bool, error) {
	isDir, err := fs.IsDir(path)
	if err != nil {
		return false, err
	}
	return !isDir, nil
}

// Mkdir creates an empty directory at path. The parent must already
// exist; path's terminal component must not.
func (fs *Filesystem) Mkdir(path string) error {
	res, err := fs.resolvePath(path)
	if err != nil {
		return err
	}
	if res.index != -1 {
		return ErrAlreadyExists
	}
	if len(res.name) > MaxNameSize {
		return ErrNameTooLong
	}
	idx := res.parent.availableIndex()
	if idx == -1 {
		return errors.New("blockfs: directory full")
	}
	child, err := fs.createDirectory(res.parent)
	if err != nil {
		return err
	}
	entry := child.entries[0]
	if err := entry.setName(res.name); err != nil {
		return err
	}
	res.parent.entries[idx] = entry
	res.parent.entries[0].ModificationTime = time.Now().Unix()
	if err := fs.writeDirectory(res.parent); err != nil {
		return err
	}
	fs.trace("mkdir", "path", path, "start_block", entry.StartBlock)
	return nil
}

// removeAttachedDirs recursively frees every child's block chain (and,
// for subdirectories, their own children first) as well as d's own
// chain, mirroring keyDirFunctions.c's remove_attached_dirs.
func (fs *Filesystem) removeAttachedDirs(d *directory) error {
	for i := 2; i < len(d.entries); i++ {
		e := &d.entries[i]
		if e.empty() {
			continue
		}
		if e.isDirectory() {
			child, err := fs.readDirectory(int64(e.StartBlock))
			if err != nil {
				return err
			}
			if err := fs.removeAttachedDirs(child); err != nil {
				return err
			}
		} else {
			if err := fs.free.free(fs.vcb, int64(e.StartBlock)); err != nil {
				return err
			}
		}
	}
	return fs.free.free(fs.vcb, d.startBlock)
}

// Rmdir removes an empty-or-not directory tree at path (spec makes no
// distinction between empty and non-empty: all descendants are freed).
func (fs *Filesystem) Rmdir(path string) error {
	res, err := fs.resolvePath(path)
	if err != nil {
		return err
	}
	if res.index == -1 {
		return ErrNotFound
	}
	entry := &res.parent.entries[res.index]
	if !entry.isDirectory() {
		return ErrNotADirectory
	}
	child, err := fs.readDirectory(int64(entry.StartBlock))
	if err != nil {
		return err
	}
	if err := fs.removeAttachedDirs(child); err != nil {
		return err
	}
	res.parent.entries[res.index] = DirectoryEntry{}
	res.parent.entries[0].ModificationTime = time.Now().Unix()
	return fs.writeDirectory(res.parent)
}

// Delete removes a regular file at path.
func (fs *Filesystem) Delete(path string) error {
	res, err := fs.resolvePath(path)
	if err != nil {
		return err
	}
	if res.index == -1 {
		return ErrNotFound
	}
	entry := &res.parent.entries[res.index]
	if entry.isDirectory() {
		return ErrIsADirectory
	}
	if err := fs.free.free(fs.vcb, int64(entry.StartBlock)); err != nil {
		return err
	}
	res.parent.entries[res.index] = DirectoryEntry{}
	res.parent.entries[0].ModificationTime = time.Now().Unix()
	return fs.writeDirectory(res.parent)
}

// Getcwd returns the canonical absolute path of the current working
// directory.
func (fs *Filesystem) Getcwd() string { return fs.cwdPath }

// Setcwd changes the current working directory, composing the new
// cwd_str with the previous one when path is relative and always
// re-canonicalizing, matching fs_setcwd.
func (fs *Filesystem) Setcwd(path string) error {
	res, err := fs.resolvePath(path)
	if err != nil {
		return err
	}
	if res.index == -1 {
		return ErrNotFound
	}
	if !res.parent.entries[res.index].isDirectory() {
		return ErrNotADirectory
	}
	target, err := fs.readDirectory(int64(res.parent.entries[res.index].StartBlock))
	if err != nil {
		return err
	}
	var newPathRaw string
	if strings.HasPrefix(path, "/") {
		newPathRaw = path
	} else {
		newPathRaw = fs.cwdPath + "/" + path
	}
	fs.cwd = target
	fs.cwdPath = simplifyPath(newPathRaw)
	return nil
}

// Move relocates a file between directories and/or renames it. Only
// regular files may be moved; directory moves are unsupported because
// ".." is a denormalized copy, not a live reference, so a moved
// directory's children would point at a stale parent.
func (fs *Filesystem) Move(src, dst string) error {
	srcRes, err := fs.resolvePath(src)
	if err != nil {
		return err
	}
	if srcRes.index == -1 {
		return ErrNotFound
	}
	srcEntry := srcRes.parent.entries[srcRes.index]
	if srcEntry.isDirectory() {
		return ErrNotADirectory
	}

	dstRes, err := fs.resolvePath(dst)
	if err != nil {
		return err
	}
	destParent := dstRes.parent
	destName := dstRes.name
	if dstRes.index != -1 {
		existing := &destParent.entries[dstRes.index]
		if existing.isDirectory() {
			// Move into the directory under the source's own name.
			sub, err := fs.readDirectory(int64(existing.StartBlock))
			if err != nil {
				return err
			}
			destParent = sub
			destName = srcEntry.name()
			if destParent.indexOf(destName) != -1 {
				return ErrAlreadyExists
			}
		} else {
			return ErrAlreadyExists
		}
	}
	if destParent.startBlock == srcRes.parent.startBlock {
		// Same directory loaded twice: edit one copy so the source
		// write-back below keeps the new entry.
		destParent = srcRes.parent
	}
	if len(destName) > MaxNameSize {
		return ErrNameTooLong
	}
	idx := destParent.availableIndex()
	if idx == -1 {
		return errors.New("blockfs: destination directory full")
	}

	moved := srcEntry // copy start_block/size/timestamps from the source, per spec
	if err := moved.setName(destName); err != nil {
		return err
	}
	destParent.entries[idx] = moved
	if err := fs.writeDirectory(destParent); err != nil {
		return err
	}

	srcRes.parent.entries[srcRes.index] = DirectoryEntry{}
	if err := fs.writeDirectory(srcRes.parent); err != nil {
		return err
	}
	return nil
}

// Dir is an open directory stream for ReadDir iteration.
type Dir struct {
	dir *directory
	pos int
}

// DirEntryInfo is one entry yielded by ReadDir.
type DirEntryInfo struct {
	Name  string
	IsDir bool
}

// OpenDir resolves path (which must be a directory) and returns a
// stream positioned before its first entry.
func (fs *Filesystem) OpenDir(path string) (*Dir, error) {
	res, err := fs.resolvePath(path)
	if err != nil {
		return nil, err
	}
	var d *directory
	if res.index == -1 {
		return nil, ErrNotFound
	}
	entry := &res.parent.entries[res.index]
	if !entry.isDirectory() {
		return nil, ErrNotADirectory
	}
	d, err = fs.readDirectory(int64(entry.StartBlock))
	if err != nil {
		return nil, err
	}
	return &Dir{dir: d, pos: 0}, nil
}

// ReadDir returns the next entry, or (nil, nil) once the stream is
// exhausted, skipping free slots the way fs_readdir skips empty names.
func (dd *Dir) ReadDir() (*DirEntryInfo, error) {
	for dd.pos < len(dd.dir.entries) {
		e := &dd.dir.entries[dd.pos]
		dd.pos++
		if e.empty() {
			continue
		}
		return &DirEntryInfo{Name: e.name(), IsDir: e.isDirectory()}, nil
	}
	return nil, nil
}

// CloseDir releases the directory stream. It exists for API symmetry
// with OpenDir/fs_closedir; there is no OS resource to release.
func (dd *Dir) CloseDir() error { return nil }
