package blockfs

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/blockfs/internal/alloc"
	"github.com/hupe1980/blockfs/internal/region"
)

// Volume is an embedded single-block-per-file filesystem: a flat namespace
// of files over a block-addressed storage region. Every file owns at most
// one data block, allocated lazily on its first write.
//
// A Volume is safe for concurrent use. Operations on distinct files are
// fully independent; operations on the same file are serialized by a
// per-file lock (writes exclusive, reads shared).
type Volume struct {
	opts    options
	region  region.Region
	alloc   *alloc.Allocator
	logger  *Logger
	metrics MetricsCollector

	mu    sync.RWMutex // guards files
	files map[string]*inode

	// regionMu fences region teardown: block access holds it shared,
	// Close holds it exclusive before unmapping. Ordered before any
	// inode lock.
	regionMu sync.RWMutex

	closed atomic.Bool
}

// Open creates a volume. By default the storage region lives on the heap;
// use WithPath to back it with a memory-mapped file. Note that only block
// content is persisted through the mapped file; the namespace and inode
// table travel in snapshots.
func Open(ctx context.Context, optFns ...Option) (*Volume, error) {
	opts := applyOptions(optFns)

	// Block 0 is the unallocated sentinel, so a usable volume needs at
	// least one more block.
	if opts.blockSize == 0 || opts.numBlocks < 2 {
		return nil, fmt.Errorf("blockfs: invalid geometry (%d blocks of %d bytes)", opts.numBlocks, opts.blockSize)
	}

	var (
		reg region.Region
		err error
	)
	if opts.path != "" {
		reg, err = region.OpenMapped(opts.path, opts.blockSize, opts.numBlocks)
	} else {
		reg, err = region.NewMemory(opts.blockSize, opts.numBlocks)
	}
	if err != nil {
		return nil, err
	}

	v := &Volume{
		opts:    opts,
		region:  reg,
		alloc:   alloc.New(opts.numBlocks),
		logger:  opts.logger,
		metrics: opts.metrics,
		files:   make(map[string]*inode),
	}

	v.logger.InfoContext(ctx, "volume opened",
		"block_size", opts.blockSize,
		"num_blocks", opts.numBlocks,
		"backing", backingKind(opts.path),
	)

	return v, nil
}

func backingKind(path string) string {
	if path == "" {
		return "memory"
	}
	return "mmap"
}

// Create creates a new empty file and returns an open handle to it.
// No data block is assigned until the first write.
func (v *Volume) Create(name string) (*File, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, ErrInvalidName
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.files[name]; ok {
		return nil, ErrExists
	}

	in := &inode{}
	v.files[name] = in

	return &File{v: v, name: name, in: in}, nil
}

// OpenFile returns a handle to an existing file with the cursor at 0.
func (v *Volume) OpenFile(name string) (*File, error) {
	if v.closed.Load() {
		return nil, ErrClosed
	}

	v.mu.RLock()
	in, ok := v.files[name]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	return &File{v: v, name: name, in: in}, nil
}

// Remove deletes a file and releases its data block back to the
// allocator. Outstanding handles observe the file as empty.
func (v *Volume) Remove(name string) error {
	if v.closed.Load() {
		return ErrClosed
	}

	v.mu.Lock()
	in, ok := v.files[name]
	if ok {
		delete(v.files, name)
	}
	v.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	in.mu.Lock()
	if in.blocks != 0 {
		v.alloc.Release(in.block)
	}
	in.size = 0
	in.block = 0
	in.blocks = 0
	in.mu.Unlock()

	v.logger.Debug("file removed", "file", name)
	return nil
}

// Stat returns metadata for the named file.
func (v *Volume) Stat(name string) (FileInfo, error) {
	if v.closed.Load() {
		return FileInfo{}, ErrClosed
	}

	v.mu.RLock()
	in, ok := v.files[name]
	v.mu.RUnlock()
	if !ok {
		return FileInfo{}, ErrNotFound
	}

	return in.info(name, v.region.BlockSize()), nil
}

// Files returns the names of all files on the volume, sorted.
func (v *Volume) Files() []string {
	v.mu.RLock()
	names := make([]string, 0, len(v.files))
	for name := range v.files {
		names = append(names, name)
	}
	v.mu.RUnlock()

	sort.Strings(names)
	return names
}

// VolumeStats describes volume occupancy.
type VolumeStats struct {
	BlockSize  uint32
	NumBlocks  uint32
	FreeBlocks uint32
	UsedBlocks uint32
	FileCount  int
}

// Stats returns current volume occupancy.
func (v *Volume) Stats() VolumeStats {
	v.mu.RLock()
	fileCount := len(v.files)
	v.mu.RUnlock()

	return VolumeStats{
		BlockSize:  v.region.BlockSize(),
		NumBlocks:  v.region.NumBlocks(),
		FreeBlocks: v.alloc.Free(),
		UsedBlocks: v.alloc.Allocated(),
		FileCount:  fileCount,
	}
}

// Verify checks metadata invariants for every file on the volume.
// Files are scanned concurrently; they are independent of each other, so
// the scan only contends with writes to the file it is currently checking.
func (v *Volume) Verify(ctx context.Context) error {
	if v.closed.Load() {
		return ErrClosed
	}

	type entry struct {
		name string
		in   *inode
	}

	v.mu.RLock()
	entries := make([]entry, 0, len(v.files))
	for name, in := range v.files {
		entries = append(entries, entry{name: name, in: in})
	}
	v.mu.RUnlock()

	numBlocks := v.region.NumBlocks()
	blockSize := v.region.BlockSize()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, e := range entries {
		g.Go(func() error {
			if v.opts.resources != nil {
				if err := v.opts.resources.AcquireBackground(ctx); err != nil {
					return err
				}
				defer v.opts.resources.ReleaseBackground()
			}

			e.in.mu.RLock()
			defer e.in.mu.RUnlock()

			switch {
			case e.in.blocks > 1:
				return &CorruptVolumeError{Name: e.name, Detail: "more than one block assigned"}
			case e.in.blocks == 0 && e.in.size != 0:
				return &CorruptVolumeError{Name: e.name, Detail: "unallocated file with non-zero size"}
			case e.in.size > blockSize:
				return &CorruptVolumeError{Name: e.name, Detail: "size exceeds block capacity"}
			case e.in.blocks == 1 && (e.in.block == 0 || e.in.block >= numBlocks):
				return &CorruptVolumeError{Name: e.name, Detail: "block index out of range"}
			}
			return nil
		})
	}

	return g.Wait()
}

// Sync flushes the storage region to stable storage, where applicable.
func (v *Volume) Sync() error {
	v.regionMu.RLock()
	defer v.regionMu.RUnlock()

	if v.closed.Load() {
		return ErrClosed
	}
	return v.region.Sync()
}

// Close releases the volume and its storage region. Close is idempotent.
// Outstanding file handles fail with ErrClosed afterwards.
func (v *Volume) Close() error {
	if v.closed.Swap(true) {
		return nil
	}

	// Wait out in-flight block access before the region is unmapped.
	v.regionMu.Lock()
	defer v.regionMu.Unlock()

	return v.region.Close()
}
