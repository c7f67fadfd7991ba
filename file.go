package blockfs

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// File is an open handle to a file on a volume. It maintains the position
// cursor advanced by Read, Write, ReadFrom and WriteTo; ReadAt and WriteAt
// leave the cursor alone.
//
// A File is safe for concurrent use: the cursor has its own lock, and the
// data path serializes against the file's inode (writes exclusive, reads
// shared). Handles for distinct files never contend.
//
// Note on the one-block ceiling: Write reports a short count without an
// error when a write is clamped at the block capacity, matching file-IO
// semantics rather than the strict io.Writer contract.
type File struct {
	v    *Volume
	name string
	in   *inode

	mu     sync.Mutex // guards pos
	pos    int64
	closed atomic.Bool
}

// Name returns the file's name within the volume namespace.
func (f *File) Name() string { return f.name }

// Read reads up to len(p) bytes at the position cursor, advancing it by
// the number of bytes read. It returns (0, io.EOF) at end of file; an
// unallocated file is at end of file for every offset.
func (f *File) Read(p []byte) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	n, err := f.v.readAt(f.in, p, f.pos)
	f.v.metrics.RecordRead(n, time.Since(start), ignoreEOF(err))
	f.v.logger.LogRead(f.name, f.pos, n, ignoreEOF(err))

	f.pos += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes at offset off without touching the cursor.
// It implements io.ReaderAt: a short read returns io.EOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	start := time.Now()
	n, err := f.v.readAt(f.in, p, off)
	f.v.metrics.RecordRead(n, time.Since(start), ignoreEOF(err))

	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Write writes up to len(p) bytes at the position cursor, advancing it by
// the number of bytes written. The write is clamped to the single-block
// capacity; a clamped write returns a short count with a nil error.
func (f *File) Write(p []byte) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	n, err := f.v.writeAt(f.in, f.name, p, f.pos)
	f.v.metrics.RecordWrite(n, time.Since(start), err)
	f.v.logger.LogWrite(f.name, f.pos, n, err)

	f.pos += int64(n)
	return n, err
}

// WriteAt writes at offset off without touching the cursor.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	start := time.Now()
	n, err := f.v.writeAt(f.in, f.name, p, off)
	f.v.metrics.RecordWrite(n, time.Since(start), err)
	f.v.logger.LogWrite(f.name, off, n, err)

	return n, err
}

// Seek sets the position cursor. io.SeekEnd is relative to the current
// file size. Seeking past the end is allowed; a later write there is
// subject to the block-capacity clamp.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		f.in.mu.RLock()
		base = int64(f.in.size)
		f.in.mu.RUnlock()
	default:
		return 0, fmt.Errorf("blockfs: invalid whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, ErrInvalidOffset
	}
	f.pos = pos
	return pos, nil
}

// ReadFrom fills the file from r starting at the position cursor, up to
// the remaining single-block capacity. The source is drained into a
// staging buffer first: if r fails, ReadFrom returns ErrFault with zero
// bytes reported, the cursor unchanged and the metadata untouched.
func (f *File) ReadFrom(r io.Reader) (int64, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	blockSize := int64(f.v.region.BlockSize())
	if f.pos >= blockSize {
		return 0, nil
	}

	stage := make([]byte, blockSize-f.pos)
	total := 0
	for total < len(stage) {
		n, err := r.Read(stage[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrFault, err)
		}
	}

	start := time.Now()
	n, err := f.v.writeAt(f.in, f.name, stage[:total], f.pos)
	f.v.metrics.RecordWrite(n, time.Since(start), err)
	f.v.logger.LogWrite(f.name, f.pos, n, err)

	f.pos += int64(n)
	return int64(n), err
}

// WriteTo copies the content from the position cursor to the end of file
// into w. If w fails or accepts a short write, WriteTo returns ErrFault
// with zero bytes reported and the cursor unchanged.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.in.mu.RLock()
	remaining := int64(f.in.size) - f.pos
	f.in.mu.RUnlock()
	if remaining <= 0 {
		return 0, nil
	}

	tmp := make([]byte, remaining)
	start := time.Now()
	n, err := f.v.readAt(f.in, tmp, f.pos)
	f.v.metrics.RecordRead(n, time.Since(start), ignoreEOF(err))
	if err != nil && err != io.EOF {
		return 0, err
	}

	written, err := w.Write(tmp[:n])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFault, err)
	}
	if written < n {
		return 0, fmt.Errorf("%w: short write (%d of %d bytes)", ErrFault, written, n)
	}

	f.pos += int64(n)
	return int64(n), nil
}

// Stat returns the file's current metadata.
func (f *File) Stat() (FileInfo, error) {
	if f.closed.Load() {
		return FileInfo{}, ErrFileClosed
	}
	return f.in.info(f.name, f.v.region.BlockSize()), nil
}

// Close invalidates the handle. The file itself is unaffected.
// Close is idempotent.
func (f *File) Close() error {
	f.closed.Store(true)
	return nil
}

func ignoreEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}
