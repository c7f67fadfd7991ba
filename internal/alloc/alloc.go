// Package alloc implements the volume block allocator.
//
// Allocation state is tracked in a Roaring Bitmap of used block indices,
// which also gives the allocator a compact serialized form for snapshots.
package alloc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrExhausted is returned when no free block is available.
var ErrExhausted = errors.New("alloc: no free blocks")

// Reserved is the block index never handed out by the allocator.
// Index 0 doubles as the "unallocated" sentinel in inode metadata.
const Reserved uint32 = 0

// Allocator hands out block indices in [1, NumBlocks).
type Allocator struct {
	mu   sync.Mutex
	used *roaring.Bitmap
	num  uint32
	hint uint32 // next index to try, first-fit
}

// New creates an allocator for a volume with numBlocks blocks.
// Block 0 is reserved and pre-marked as used.
func New(numBlocks uint32) *Allocator {
	used := roaring.New()
	used.Add(Reserved)
	return &Allocator{
		used: used,
		num:  numBlocks,
		hint: 1,
	}
}

// Restore rebuilds an allocator from a serialized used-block bitmap,
// as found in a volume snapshot.
func Restore(numBlocks uint32, used *roaring.Bitmap) (*Allocator, error) {
	if used == nil {
		used = roaring.New()
	}
	if !used.IsEmpty() && used.Maximum() >= numBlocks {
		return nil, fmt.Errorf("alloc: used block %d out of range (volume has %d blocks)", used.Maximum(), numBlocks)
	}
	used.Add(Reserved)
	return &Allocator{
		used: used,
		num:  numBlocks,
		hint: 1,
	}, nil
}

// Allocate returns the lowest free block index, first-fit from the last
// allocation point. Returns ErrExhausted when the volume is full.
func (a *Allocator) Allocate() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if uint32(a.used.GetCardinality()) >= a.num {
		return 0, ErrExhausted
	}

	idx := a.hint
	for scanned := uint32(0); scanned < a.num; scanned++ {
		if idx == 0 || idx >= a.num {
			idx = 1
		}
		if !a.used.Contains(idx) {
			a.used.Add(idx)
			a.hint = idx + 1
			return idx, nil
		}
		idx++
	}

	return 0, ErrExhausted
}

// Release returns a block to the free pool. Releasing the reserved
// block or an unallocated block is a no-op.
func (a *Allocator) Release(idx uint32) {
	if idx == Reserved || idx >= a.num {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used.Remove(idx)
	if idx < a.hint {
		a.hint = idx
	}
}

// Allocated returns the number of blocks handed out, excluding the
// reserved block.
func (a *Allocator) Allocated() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint32(a.used.GetCardinality()) - 1
}

// Free returns the number of blocks still available.
func (a *Allocator) Free() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.num - uint32(a.used.GetCardinality())
}

// NumBlocks returns the total block count of the volume, including the
// reserved block.
func (a *Allocator) NumBlocks() uint32 {
	return a.num
}
