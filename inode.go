package blockfs

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hupe1980/blockfs/internal/region"
)

// inode is the per-file metadata record. The single-block model keeps it
// small: a file owns at most one data block, and size never exceeds the
// block size.
//
// Invariant: blocks == 0 implies size == 0. Bytes in [size, blockSize) of
// an assigned block are stale from prior use and are never exposed.
type inode struct {
	mu      sync.RWMutex
	size    uint32
	block   uint32 // block index; 0 means unallocated
	blocks  uint32 // 0 or 1
	modTime time.Time
	chgTime time.Time
}

// FileInfo contains information about a file.
type FileInfo struct {
	// Name is the file name within the volume's flat namespace.
	Name string

	// Size is the logical content length in bytes.
	Size int64

	// BlockSize is the volume block size, the hard ceiling for Size.
	BlockSize uint32

	// Blocks is the number of data blocks assigned (0 or 1).
	Blocks uint32

	// ModTime is the time of last content modification.
	ModTime time.Time

	// ChangeTime is the time of last metadata change.
	ChangeTime time.Time
}

func (in *inode) info(name string, blockSize uint32) FileInfo {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return FileInfo{
		Name:       name,
		Size:       int64(in.size),
		BlockSize:  blockSize,
		Blocks:     in.blocks,
		ModTime:    in.modTime,
		ChangeTime: in.chgTime,
	}
}

// blockSlice resolves a block index against the storage region, mapping
// region failures onto the volume error taxonomy.
func (v *Volume) blockSlice(idx uint32) ([]byte, error) {
	blk, err := v.region.Block(idx)
	if err != nil {
		if errors.Is(err, region.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %w", ErrFault, err)
	}
	return blk, nil
}

// readAt copies up to len(p) bytes of file content starting at off.
// It returns (0, io.EOF) for an unallocated file or an offset at or past
// the end; otherwise the length is clamped to the remaining content.
// No metadata is modified.
func (v *Volume) readAt(in *inode, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrInvalidOffset
	}

	// Shared region guard held across the block copy, so a concurrent
	// Close cannot unmap the region mid-transfer.
	v.regionMu.RLock()
	defer v.regionMu.RUnlock()

	if v.closed.Load() {
		return 0, ErrClosed
	}

	in.mu.RLock()
	defer in.mu.RUnlock()

	// A file with no block assigned is empty regardless of offset.
	if in.blocks == 0 {
		return 0, io.EOF
	}
	if off >= int64(in.size) {
		return 0, io.EOF
	}

	n := len(p)
	if remaining := int64(in.size) - off; int64(n) > remaining {
		n = int(remaining)
	}

	blk, err := v.blockSlice(in.block)
	if err != nil {
		return 0, err
	}
	copy(p[:n], blk[off:off+int64(n)])

	return n, nil
}

// writeAt copies up to len(p) bytes into the file's data block at off,
// allocating the block on first write. The length is clamped to the
// single-block capacity: writes at or past the block size transfer zero
// bytes without error, and a write can never spill into a second block.
// On success, size grows to the high-water mark and both timestamps are
// refreshed.
func (v *Volume) writeAt(in *inode, name string, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, ErrInvalidOffset
	}

	v.regionMu.RLock()
	defer v.regionMu.RUnlock()

	if v.closed.Load() {
		return 0, ErrClosed
	}

	blockSize := int64(v.region.BlockSize())

	in.mu.Lock()
	defer in.mu.Unlock()

	// Explicit capacity guard: the naive blockSize-off length would go
	// negative here, so branch instead of relying on arithmetic.
	if off >= blockSize {
		return 0, nil
	}

	n := len(p)
	if capacity := blockSize - off; int64(n) > capacity {
		n = int(capacity)
	}
	if n == 0 {
		return 0, nil
	}

	idx := in.block
	allocated := false
	if in.blocks == 0 {
		newIdx, err := v.alloc.Allocate()
		v.metrics.RecordAlloc(err)
		v.logger.LogAlloc(name, newIdx, err)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSpaceExhausted, err)
		}
		idx = newIdx
		allocated = true
	}

	blk, err := v.blockSlice(idx)
	if err != nil {
		if allocated {
			v.alloc.Release(idx)
		}
		return 0, err
	}
	if allocated {
		in.block = idx
		in.blocks = 1
	}

	copy(blk[off:off+int64(n)], p[:n])

	// High-water mark: a short or overlapping write never shrinks size.
	if end := uint32(off) + uint32(n); end > in.size {
		in.size = end
	}
	now := time.Now()
	in.modTime = now
	in.chgTime = now

	return n, nil
}
