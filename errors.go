package blockfs

import (
	"errors"
	"fmt"
)

var (
	// ErrSpaceExhausted is returned when a first write cannot allocate a
	// data block because the volume is full. Zero bytes are written.
	ErrSpaceExhausted = errors.New("blockfs: no free blocks")

	// ErrFault is returned when a transfer to or from a caller-supplied
	// reader/writer fails. No bytes are reported transferred and the
	// position cursor does not advance.
	ErrFault = errors.New("blockfs: buffer transfer fault")

	// ErrClosed is returned when operating on a closed volume.
	ErrClosed = errors.New("blockfs: volume closed")

	// ErrFileClosed is returned when operating on a closed file handle.
	ErrFileClosed = errors.New("blockfs: file closed")

	// ErrNotFound is returned when a named file does not exist.
	ErrNotFound = errors.New("blockfs: file not found")

	// ErrExists is returned when creating a file that already exists.
	ErrExists = errors.New("blockfs: file already exists")

	// ErrInvalidOffset is returned for negative offsets.
	ErrInvalidOffset = errors.New("blockfs: invalid offset")

	// ErrInvalidName is returned for an empty file name.
	ErrInvalidName = errors.New("blockfs: invalid file name")
)

// CorruptVolumeError indicates that an invariant check found inconsistent
// metadata on the volume.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type CorruptVolumeError struct {
	Name   string // file whose metadata is inconsistent
	Detail string
	cause  error
}

func (e *CorruptVolumeError) Error() string {
	return fmt.Sprintf("blockfs: corrupt volume: %s: %s", e.Name, e.Detail)
}

func (e *CorruptVolumeError) Unwrap() error { return e.cause }
