// Package persistence defines the on-disk snapshot format for a volume:
// a fixed binary header followed by a checksummed, optionally compressed
// payload carrying the namespace, the inode table and the allocated block
// contents.
package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MagicNumber identifies snapshot files (ASCII: "BFS1").
	MagicNumber = 0x42465331
	// Version is the current snapshot format version.
	Version = 0x00010000
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported version")
	ErrInvalidCompression = errors.New("invalid compression type")
)

// Header is the fixed-size header at the start of every snapshot file.
// All integers are little-endian.
type Header struct {
	Magic       uint32 // 0x42465331 ("BFS1")
	Version     uint32 // Snapshot format version
	BlockSize   uint32 // Volume block size in bytes
	NumBlocks   uint32 // Total blocks, including the reserved block 0
	FileCount   uint32 // Files in the namespace
	Compression CompressionType
	PayloadLen  uint64 // Stored payload length in bytes (after compression)
	Checksum    uint32 // CRC32 of the stored payload
}

// HeaderSize is the encoded header length in bytes.
const HeaderSize = 36

// WriteTo encodes the header.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.BlockSize)
	binary.LittleEndian.PutUint32(buf[12:], h.NumBlocks)
	binary.LittleEndian.PutUint32(buf[16:], h.FileCount)
	buf[20] = byte(h.Compression)
	binary.LittleEndian.PutUint64(buf[24:], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[32:], h.Checksum)

	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom decodes and validates the header.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return int64(n), err
	}

	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	h.BlockSize = binary.LittleEndian.Uint32(buf[8:])
	h.NumBlocks = binary.LittleEndian.Uint32(buf[12:])
	h.FileCount = binary.LittleEndian.Uint32(buf[16:])
	h.Compression = CompressionType(buf[20])
	h.PayloadLen = binary.LittleEndian.Uint64(buf[24:])
	h.Checksum = binary.LittleEndian.Uint32(buf[32:])

	if h.Magic != MagicNumber {
		return int64(n), fmt.Errorf("%w: 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return int64(n), fmt.Errorf("%w: 0x%08x", ErrInvalidVersion, h.Version)
	}
	if h.Compression > CompressionZSTD {
		return int64(n), fmt.Errorf("%w: %d", ErrInvalidCompression, h.Compression)
	}

	return int64(n), nil
}
