package blockfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/blockfs/blobstore"
	"github.com/hupe1980/blockfs/internal/alloc"
	"github.com/hupe1980/blockfs/persistence"
	"github.com/hupe1980/blockfs/resource"
)

// Snapshot payload layout, little-endian:
//
//	[bitmapLen uint32][roaring bitmap of allocated blocks]
//	per file: [nameLen uint16][name][size uint32][block uint32]
//	          [modTime int64][chgTime int64][content, size bytes]
//
// Files with block == 0 are unallocated and carry no content bytes.

// WriteSnapshot writes a point-in-time snapshot of the volume to w using
// the given compression. It returns the number of bytes written.
//
// The snapshot is consistent per file; writes racing the snapshot land
// either fully before or fully after a file's record.
func (v *Volume) WriteSnapshot(ctx context.Context, w io.Writer, ct persistence.CompressionType) (int64, error) {
	if v.closed.Load() {
		return 0, ErrClosed
	}

	start := time.Now()
	n, err := v.writeSnapshot(ctx, w, ct)
	v.metrics.RecordSnapshot(n, time.Since(start), err)

	return n, err
}

func (v *Volume) writeSnapshot(ctx context.Context, w io.Writer, ct persistence.CompressionType) (int64, error) {
	v.mu.RLock()
	names := make([]string, 0, len(v.files))
	for name := range v.files {
		names = append(names, name)
	}
	inodes := make([]*inode, 0, len(names))
	for _, name := range names {
		inodes = append(inodes, v.files[name])
	}
	v.mu.RUnlock()

	// Upper bound for the staging buffer: every file fully occupying its
	// block, plus record framing and the bitmap.
	estimate := int64(len(names))*(int64(v.region.BlockSize())+64) + 1024
	if rc := v.opts.resources; rc != nil {
		if err := rc.AcquireMemory(ctx, estimate); err != nil {
			return 0, err
		}
		defer rc.ReleaseMemory(estimate)
	}

	// The file records are the authority: the used-block bitmap is derived
	// from the records themselves, so a record and the bitmap can never
	// disagree about a block, no matter how writes race the capture.
	used := roaring.New()
	used.Add(alloc.Reserved)

	var records bytes.Buffer
	var scratch [8]byte

	v.regionMu.RLock()
	if v.closed.Load() {
		v.regionMu.RUnlock()
		return 0, ErrClosed
	}
	for i, name := range names {
		in := inodes[i]

		in.mu.RLock()
		size := in.size
		block := in.block
		modTime := in.modTime
		chgTime := in.chgTime

		binary.LittleEndian.PutUint16(scratch[:2], uint16(len(name)))
		records.Write(scratch[:2])
		records.WriteString(name)
		binary.LittleEndian.PutUint32(scratch[:4], size)
		records.Write(scratch[:4])
		binary.LittleEndian.PutUint32(scratch[:4], block)
		records.Write(scratch[:4])
		binary.LittleEndian.PutUint64(scratch[:8], uint64(modTime.UnixNano()))
		records.Write(scratch[:8])
		binary.LittleEndian.PutUint64(scratch[:8], uint64(chgTime.UnixNano()))
		records.Write(scratch[:8])

		if block != alloc.Reserved {
			used.Add(block)
			blk, err := v.region.Block(block)
			if err != nil {
				in.mu.RUnlock()
				v.regionMu.RUnlock()
				return 0, fmt.Errorf("%w: %w", ErrFault, err)
			}
			records.Write(blk[:size])
		}
		in.mu.RUnlock()
	}
	v.regionMu.RUnlock()

	bitmapBytes, err := used.ToBytes()
	if err != nil {
		return 0, fmt.Errorf("serialize allocation bitmap: %w", err)
	}

	var payload bytes.Buffer
	payload.Grow(4 + len(bitmapBytes) + records.Len())
	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(bitmapBytes)))
	payload.Write(scratch[:4])
	payload.Write(bitmapBytes)
	payload.Write(records.Bytes())

	framed, err := persistence.Compress(payload.Bytes(), ct)
	if err != nil {
		return 0, err
	}

	header := persistence.Header{
		Magic:       persistence.MagicNumber,
		Version:     persistence.Version,
		BlockSize:   v.region.BlockSize(),
		NumBlocks:   v.region.NumBlocks(),
		FileCount:   uint32(len(names)),
		Compression: ct,
		PayloadLen:  uint64(len(framed)),
		Checksum:    persistence.Checksum(framed),
	}

	limited := resource.Writer(ctx, v.opts.resources, w)

	written, err := header.WriteTo(limited)
	if err != nil {
		return written, err
	}

	n, err := limited.Write(framed)
	written += int64(n)
	if err != nil {
		return written, err
	}

	return written, nil
}

// SaveSnapshot writes a snapshot to a file at path, atomically via a
// temporary file in the same directory.
func (v *Volume) SaveSnapshot(ctx context.Context, path string, ct persistence.CompressionType) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := v.WriteSnapshot(ctx, tmp, ct)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}

	v.logger.LogSnapshot(ctx, path, n, err)
	return err
}

// OpenSnapshot restores a volume from a snapshot stream. Geometry comes
// from the snapshot header; WithBlockSize and WithNumBlocks are ignored,
// the remaining options apply as in Open.
func OpenSnapshot(ctx context.Context, r io.Reader, optFns ...Option) (*Volume, error) {
	// Import reads pass the same throughput limit as export writes.
	r = resource.Reader(ctx, applyOptions(optFns).resources, r)

	var header persistence.Header
	if _, err := header.ReadFrom(r); err != nil {
		return nil, err
	}

	framed := make([]byte, header.PayloadLen)
	cr := persistence.NewChecksumReader(r)
	if _, err := io.ReadFull(cr, framed); err != nil {
		return nil, err
	}
	if err := cr.Verify(header.Checksum); err != nil {
		return nil, err
	}

	payload, err := persistence.Decompress(framed, header.Compression)
	if err != nil {
		return nil, err
	}

	v, err := Open(ctx, append(optFns,
		WithBlockSize(header.BlockSize),
		WithNumBlocks(header.NumBlocks),
	)...)
	if err != nil {
		return nil, err
	}

	if err := v.restore(header, payload); err != nil {
		v.Close()
		return nil, err
	}

	v.logger.InfoContext(ctx, "snapshot restored",
		"files", header.FileCount,
		"compression", header.Compression.String(),
	)

	return v, nil
}

// LoadSnapshot restores a volume from a snapshot file at path.
func LoadSnapshot(ctx context.Context, path string, optFns ...Option) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return OpenSnapshot(ctx, f, optFns...)
}

func (v *Volume) restore(header persistence.Header, payload []byte) error {
	corrupt := func(detail string) error {
		return &CorruptVolumeError{Name: "snapshot", Detail: detail}
	}

	if len(payload) < 4 {
		return corrupt("payload truncated before bitmap")
	}
	bitmapLen := binary.LittleEndian.Uint32(payload)
	payload = payload[4:]
	if uint32(len(payload)) < bitmapLen {
		return corrupt("payload truncated inside bitmap")
	}

	used := roaring.New()
	if err := used.UnmarshalBinary(payload[:bitmapLen]); err != nil {
		return &CorruptVolumeError{Name: "snapshot", Detail: "allocation bitmap unreadable", cause: err}
	}
	payload = payload[bitmapLen:]

	restored, err := alloc.Restore(header.NumBlocks, used)
	if err != nil {
		return &CorruptVolumeError{Name: "snapshot", Detail: "allocation bitmap out of range", cause: err}
	}

	files := make(map[string]*inode, header.FileCount)
	for i := uint32(0); i < header.FileCount; i++ {
		if len(payload) < 2 {
			return corrupt("payload truncated before file record")
		}
		nameLen := binary.LittleEndian.Uint16(payload)
		payload = payload[2:]
		if len(payload) < int(nameLen)+24 {
			return corrupt("payload truncated inside file record")
		}
		name := string(payload[:nameLen])
		payload = payload[nameLen:]

		size := binary.LittleEndian.Uint32(payload)
		block := binary.LittleEndian.Uint32(payload[4:])
		modNano := int64(binary.LittleEndian.Uint64(payload[8:]))
		chgNano := int64(binary.LittleEndian.Uint64(payload[16:]))
		payload = payload[24:]

		in := &inode{
			size:    size,
			block:   block,
			modTime: time.Unix(0, modNano),
			chgTime: time.Unix(0, chgNano),
		}

		switch {
		case block == alloc.Reserved:
			if size != 0 {
				return corrupt("unallocated file " + name + " with non-zero size")
			}
		case block >= header.NumBlocks:
			return corrupt("file " + name + " references block out of range")
		case !used.Contains(block):
			return corrupt("file " + name + " references unallocated block")
		case size > header.BlockSize:
			return corrupt("file " + name + " larger than block capacity")
		default:
			in.blocks = 1

			if uint32(len(payload)) < size {
				return corrupt("payload truncated inside content of " + name)
			}
			blk, err := v.region.Block(block)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrFault, err)
			}
			copy(blk[:size], payload[:size])
			payload = payload[size:]
		}

		if _, dup := files[name]; dup {
			return corrupt("duplicate file " + name)
		}
		files[name] = in
	}

	v.alloc = restored
	v.files = files
	return nil
}

// ExportSnapshot writes a snapshot to a blob store under name.
func (v *Volume) ExportSnapshot(ctx context.Context, store blobstore.Store, name string, ct persistence.CompressionType) error {
	blob, err := store.Create(ctx, name)
	if err != nil {
		return err
	}

	n, err := v.WriteSnapshot(ctx, blob, ct)
	if err != nil {
		blob.Close()
		v.logger.LogSnapshot(ctx, name, n, err)
		return err
	}
	if err := blob.Sync(); err != nil {
		blob.Close()
		return err
	}
	err = blob.Close()

	v.logger.LogSnapshot(ctx, name, n, err)
	return err
}

// ImportSnapshot restores a volume from a snapshot stored in a blob store.
func ImportSnapshot(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Volume, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return OpenSnapshot(ctx, rc, optFns...)
}
