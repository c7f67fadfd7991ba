// Package blockfs is an embedded block-oriented filesystem with a
// deliberately minimal data model: a flat namespace of files over a
// fixed-size storage region, where every file owns at most one data
// block.
//
// The single-block model makes the engine small and fully predictable.
// A file's data block is allocated lazily on its first write, its size is
// the high-water mark of all writes, and both are capped by the block
// size: reads and writes past the block boundary are clamped rather than
// failed. Removing a file returns its block to a bitmap allocator for
// reuse.
//
// Volumes live in memory or on a memory-mapped file, and can be captured
// into checksummed, optionally compressed snapshots written to a local
// file or a blob store (local disk, MinIO, Amazon S3).
//
// # Basic Usage
//
//	vol, err := blockfs.Open(ctx, blockfs.WithBlockSize(4096))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vol.Close()
//
//	f, err := vol.Create("greeting")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	_, _ = f.Write([]byte("hello"))
//
//	buf := make([]byte, 5)
//	_, _ = f.ReadAt(buf, 0)
package blockfs
