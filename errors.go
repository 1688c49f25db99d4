package blockfs

import "errors"

// Sentinel error kinds. Most failures of public operations are one of
// these (optionally wrapped with github.com/pkg/errors for a
// device-level cause); a few are plain errors matching none of them
// (full directory, wrong open mode, closed handle, invalid whence or
// negative seek, seek past the chain, volume too small to format).
// errors.Is against these values works even when the error has been
// wrapped.
var (
	ErrInvalidPath   = errors.New("blockfs: invalid path")
	ErrNotFound      = errors.New("blockfs: not found")
	ErrAlreadyExists = errors.New("blockfs: already exists")
	ErrNotADirectory = errors.New("blockfs: not a directory")
	ErrIsADirectory  = errors.New("blockfs: is a directory")
	ErrNameTooLong   = errors.New("blockfs: name too long")
	ErrNoSpace       = errors.New("blockfs: no space left on volume")
	ErrNoFCB         = errors.New("blockfs: no free file control blocks")
	ErrDeviceError   = errors.New("blockfs: device error")
)
