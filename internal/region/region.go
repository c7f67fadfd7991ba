// Package region provides the flat, block-addressable byte area backing
// all file content on a volume.
//
// A region is numBlocks * blockSize bytes addressed as
// base + blockIndex*blockSize. The region validates the block index; intra-block
// offsets are the data path's responsibility.
package region

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrClosed is returned when accessing a closed region.
	ErrClosed = errors.New("region: closed")
	// ErrOutOfRange is returned for a block index outside the region.
	ErrOutOfRange = errors.New("region: block index out of range")
	// ErrInvalidGeometry is returned for a zero block size or block count.
	ErrInvalidGeometry = errors.New("region: invalid geometry")
)

// Region is a block-addressable storage extent.
type Region interface {
	// Block returns the byte slice for the given block index.
	// The slice aliases region memory and is valid until Close.
	Block(idx uint32) ([]byte, error)

	// BlockSize returns the size of one block in bytes.
	BlockSize() uint32

	// NumBlocks returns the total number of blocks.
	NumBlocks() uint32

	// Sync flushes region contents to stable storage, where applicable.
	Sync() error

	// Close releases the region. Block slices must not be used afterwards.
	Close() error
}

// Memory is a heap-backed region.
type Memory struct {
	blockSize uint32
	numBlocks uint32
	data      []byte
	closed    atomic.Bool
}

// NewMemory creates an in-memory region of numBlocks blocks.
func NewMemory(blockSize, numBlocks uint32) (*Memory, error) {
	if blockSize == 0 || numBlocks == 0 {
		return nil, ErrInvalidGeometry
	}
	return &Memory{
		blockSize: blockSize,
		numBlocks: numBlocks,
		data:      make([]byte, int64(blockSize)*int64(numBlocks)),
	}, nil
}

func (m *Memory) Block(idx uint32) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if idx >= m.numBlocks {
		return nil, ErrOutOfRange
	}
	off := int64(idx) * int64(m.blockSize)
	return m.data[off : off+int64(m.blockSize)], nil
}

func (m *Memory) BlockSize() uint32 { return m.blockSize }
func (m *Memory) NumBlocks() uint32 { return m.numBlocks }

// Sync is a no-op for memory regions.
func (m *Memory) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close releases the backing slice. Idempotent.
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.data = nil
	return nil
}
