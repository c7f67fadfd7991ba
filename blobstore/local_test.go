package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/blockfs/internal/fs"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	w, err := store.Create(ctx, "snap-001")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello snapshot world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	blob, err := store.Open(ctx, "snap-001")
	require.NoError(t, err)
	defer blob.Close()

	assert.Equal(t, int64(20), blob.Size())

	p := make([]byte, 5)
	n, err := blob.ReadAt(ctx, p, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "snaps", string(p))

	rc, err := blob.ReadRange(ctx, 15, 100)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "world", string(got))
}

func TestLocalStore_OpenMissing(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	_, err := store.Open(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_DeleteMissingIsNoop(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Delete(context.Background(), "nope"))
}

func TestLocalStore_ListExcludesStaged(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	for _, name := range []string{"snap-001", "snap-002", "other"} {
		w, err := store.Create(ctx, name)
		require.NoError(t, err)
		_, err = w.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	// A blob still being written must not be listed.
	staged, err := store.Create(ctx, "snap-003")
	require.NoError(t, err)
	_, err = staged.Write([]byte("partial"))
	require.NoError(t, err)

	names, err := store.List(ctx, "snap-")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-001", "snap-002"}, names)

	require.NoError(t, staged.Close())
}

func TestLocalStore_FailedWriteLeavesNothingVisible(t *testing.T) {
	ctx := context.Background()

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("snap-bad", fs.Fault{FailAfterBytes: 4})

	store := NewLocalStoreFS(faulty, t.TempDir())

	w, err := store.Create(ctx, "snap-bad")
	require.NoError(t, err)

	_, err = w.Write([]byte("0123456789"))
	require.Error(t, err)
	_ = w.Close()

	_, err = store.Open(ctx, "snap-bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_SyncFaultSurfacesOnClose(t *testing.T) {
	ctx := context.Background()

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("snap-sync", fs.Fault{FailOnSync: true})

	store := NewLocalStoreFS(faulty, t.TempDir())

	w, err := store.Create(ctx, "snap-sync")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)

	assert.Error(t, w.Close())

	_, err = store.Open(ctx, "snap-sync")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	w, err := store.Create(ctx, "snap-001")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	blob, err := store.Open(ctx, "snap-001")
	require.NoError(t, err)
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	require.NoError(t, store.Delete(ctx, "snap-001"))
	_, err = store.Open(ctx, "snap-001")
	assert.ErrorIs(t, err, ErrNotFound)
}
