package region

import (
	"fmt"
	"os"
	"sync/atomic"
)

// Mapped is a file-backed region mapped read-write into memory.
// Writes land in the page cache and reach the file on Sync (or at the
// kernel's discretion); Close unmaps without an implicit flush.
type Mapped struct {
	blockSize uint32
	numBlocks uint32
	f         *os.File
	data      []byte
	unmap     func([]byte) error
	flush     func([]byte) error
	closed    atomic.Bool
}

// OpenMapped opens (or creates) the file at path and maps it as a region
// of numBlocks blocks. An existing file must already have the exact size;
// a new file is extended to it.
func OpenMapped(path string, blockSize, numBlocks uint32) (*Mapped, error) {
	if blockSize == 0 || numBlocks == 0 {
		return nil, ErrInvalidGeometry
	}
	size := int64(blockSize) * int64(numBlocks)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	switch fi.Size() {
	case 0:
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	case size:
		// Re-opening an existing volume file.
	default:
		f.Close()
		return nil, fmt.Errorf("region: %s has size %d, want %d", path, fi.Size(), size)
	}

	data, unmap, flush, err := osMapRW(f, int(size))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Mapped{
		blockSize: blockSize,
		numBlocks: numBlocks,
		f:         f,
		data:      data,
		unmap:     unmap,
		flush:     flush,
	}, nil
}

func (m *Mapped) Block(idx uint32) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if idx >= m.numBlocks {
		return nil, ErrOutOfRange
	}
	off := int64(idx) * int64(m.blockSize)
	return m.data[off : off+int64(m.blockSize)], nil
}

func (m *Mapped) BlockSize() uint32 { return m.blockSize }
func (m *Mapped) NumBlocks() uint32 { return m.numBlocks }

// Sync flushes dirty pages to the backing file.
func (m *Mapped) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.flush != nil {
		if err := m.flush(m.data); err != nil {
			return err
		}
	}
	return m.f.Sync()
}

// Close unmaps the region and closes the backing file. Idempotent.
func (m *Mapped) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	var err error
	if m.unmap != nil && m.data != nil {
		err = m.unmap(m.data)
	}
	m.data = nil
	if closeErr := m.f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
