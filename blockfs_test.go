package blockfs

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolume_CreateOpenRemove(t *testing.T) {
	v := newTestVolume(t)

	f, err := v.Create("a")
	require.NoError(t, err)
	_, err = f.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = v.Create("a")
	assert.ErrorIs(t, err, ErrExists)

	_, err = v.Create("")
	assert.ErrorIs(t, err, ErrInvalidName)

	g, err := v.OpenFile("a")
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = g.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf))
	require.NoError(t, g.Close())

	_, err = v.OpenFile("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, v.Remove("a"))
	assert.ErrorIs(t, v.Remove("a"), ErrNotFound)
	_, err = v.OpenFile("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVolume_StatAndFiles(t *testing.T) {
	v := newTestVolume(t)

	for _, name := range []string{"c", "a", "b"} {
		f, err := v.Create(name)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	assert.Equal(t, []string{"a", "b", "c"}, v.Files())

	info, err := v.Stat("b")
	require.NoError(t, err)
	assert.Equal(t, "b", info.Name)
	assert.Equal(t, int64(0), info.Size)
	assert.Equal(t, uint32(0), info.Blocks)

	_, err = v.Stat("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVolume_AllocationExhaustion(t *testing.T) {
	// Block 0 is reserved, so 4 blocks hold 3 files.
	v := newTestVolume(t, WithBlockSize(16), WithNumBlocks(4))

	for i := 0; i < 3; i++ {
		f, err := v.Create(fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		_, err = f.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	assert.Equal(t, uint32(0), v.Stats().FreeBlocks)

	f, err := v.Create("overflow")
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("y"))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrSpaceExhausted)

	// The failed write leaves the file unallocated.
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), info.Blocks)
	assert.Equal(t, int64(0), info.Size)

	// Freeing any file makes the write succeed.
	require.NoError(t, v.Remove("f1"))

	n, err = f.Write([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVolume_RemoveReleasesBlock(t *testing.T) {
	v := newTestVolume(t, WithBlockSize(16), WithNumBlocks(8))

	f, err := v.Create("short-lived")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	used := v.Stats().UsedBlocks
	require.NoError(t, v.Remove("short-lived"))
	assert.Equal(t, used-1, v.Stats().UsedBlocks)
}

func TestVolume_Stats(t *testing.T) {
	v := newTestVolume(t, WithBlockSize(32), WithNumBlocks(10))

	stats := v.Stats()
	assert.Equal(t, uint32(32), stats.BlockSize)
	assert.Equal(t, uint32(10), stats.NumBlocks)
	assert.Equal(t, uint32(9), stats.FreeBlocks)
	assert.Equal(t, uint32(0), stats.UsedBlocks)
	assert.Equal(t, 0, stats.FileCount)

	f, err := v.Create("one")
	require.NoError(t, err)
	_, err = f.Write([]byte("z"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	stats = v.Stats()
	assert.Equal(t, uint32(8), stats.FreeBlocks)
	assert.Equal(t, uint32(1), stats.UsedBlocks)
	assert.Equal(t, 1, stats.FileCount)
}

func TestVolume_Verify(t *testing.T) {
	v := newTestVolume(t)

	for i := 0; i < 10; i++ {
		f, err := v.Create(fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = f.Write(bytes.Repeat([]byte{'v'}, 100))
			require.NoError(t, err)
		}
		require.NoError(t, f.Close())
	}

	require.NoError(t, v.Verify(context.Background()))
}

func TestVolume_VerifyDetectsCorruption(t *testing.T) {
	v := newTestVolume(t)

	f, err := v.Create("broken")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	v.mu.RLock()
	in := v.files["broken"]
	v.mu.RUnlock()
	in.size = v.region.BlockSize() + 1

	err = v.Verify(context.Background())
	var corrupt *CorruptVolumeError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "broken", corrupt.Name)
}

func TestVolume_ConcurrentDistinctFiles(t *testing.T) {
	v := newTestVolume(t, WithNumBlocks(128))

	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		f, err := v.Create(name)
		require.NoError(t, err)

		wg.Add(1)
		go func(f *File, seed byte) {
			defer wg.Done()
			defer f.Close()

			payload := bytes.Repeat([]byte{seed}, 64)
			if _, err := f.Write(payload); err != nil {
				t.Error(err)
				return
			}

			buf := make([]byte, 64)
			if _, err := f.ReadAt(buf, 0); err != nil {
				t.Error(err)
				return
			}
			if !bytes.Equal(payload, buf) {
				t.Errorf("readback mismatch for %s", f.Name())
			}
		}(f, byte(i))
	}
	wg.Wait()

	assert.Equal(t, uint32(workers), v.Stats().UsedBlocks)
	require.NoError(t, v.Verify(context.Background()))
}

func TestVolume_ConcurrentSameFile(t *testing.T) {
	v := newTestVolume(t)

	f, err := v.Create("shared")
	require.NoError(t, err)
	defer f.Close()

	const writers = 16

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(seed byte) {
			defer wg.Done()
			if _, err := f.WriteAt(bytes.Repeat([]byte{seed}, 32), 0); err != nil {
				t.Error(err)
			}
		}(byte('a' + i))
	}
	wg.Wait()

	// All writers wrote the same range, so the content is one writer's
	// payload, never an interleaving.
	buf := make([]byte, 32)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	for _, b := range buf[1:] {
		assert.Equal(t, buf[0], b)
	}

	// Exactly one block was allocated despite the racing first writes.
	assert.Equal(t, uint32(1), v.Stats().UsedBlocks)
}

func TestVolume_Closed(t *testing.T) {
	v, err := Open(context.Background())
	require.NoError(t, err)

	f, err := v.Create("orphan")
	require.NoError(t, err)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err = v.Create("x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = v.OpenFile("orphan")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, v.Remove("orphan"), ErrClosed)
	_, err = v.Stat("orphan")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, v.Sync(), ErrClosed)
	assert.ErrorIs(t, v.Verify(context.Background()), ErrClosed)

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestVolume_CloseDrainsInFlightOps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.dat")

	v, err := Open(context.Background(), WithPath(path), WithBlockSize(256), WithNumBlocks(64))
	require.NoError(t, err)

	files := make([]*File, 8)
	for i := range files {
		f, err := v.Create(fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		_, err = f.Write(bytes.Repeat([]byte{byte(i)}, 256))
		require.NoError(t, err)
		files[i] = f
	}

	// Hammer the mapped region while Close runs. In-flight transfers
	// finish against the still-mapped region; everything after the close
	// observes ErrClosed instead of touching unmapped memory.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, f := range files {
		wg.Add(1)
		go func(f *File) {
			defer wg.Done()
			<-start

			buf := make([]byte, 256)
			for {
				if _, err := f.ReadAt(buf, 0); err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				if _, err := f.WriteAt(buf, 0); err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
			}
		}(f)
	}

	close(start)
	require.NoError(t, v.Close())
	wg.Wait()
}

func TestVolume_MappedRegionPersistsBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.dat")

	v, err := Open(context.Background(), WithPath(path), WithBlockSize(64), WithNumBlocks(8))
	require.NoError(t, err)

	f, err := v.Create("persisted")
	require.NoError(t, err)
	_, err = f.Write([]byte("durable bytes"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, v.Sync())
	require.NoError(t, v.Close())

	// Reopening maps the same backing file; block content survives even
	// though the namespace does not.
	v2, err := Open(context.Background(), WithPath(path), WithBlockSize(64), WithNumBlocks(8))
	require.NoError(t, err)
	defer v2.Close()

	blk, err := v2.region.Block(1)
	require.NoError(t, err)
	assert.Equal(t, "durable bytes", string(blk[:13]))
}

func TestVolume_InvalidGeometry(t *testing.T) {
	_, err := Open(context.Background(), WithBlockSize(0))
	assert.Error(t, err)

	_, err = Open(context.Background(), WithNumBlocks(1))
	assert.Error(t, err)
}
