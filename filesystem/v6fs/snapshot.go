package v6fs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/ilovrencic/go-vsfs/device"
)

// Compression selects the codec of a snapshot stream.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLz4
	CompressionXz
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLz4:
		return "lz4"
	case CompressionXz:
		return "xz"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

var snapshotMagic = [8]byte{'V', '6', 'F', 'S', 'S', 'N', 'A', 'P'}

// snapshotHeaderSize is magic + codec byte + two geometry words.
const snapshotHeaderSize = 8 + 1 + 16

// SnapshotHeader is the uncompressed preamble of a snapshot stream; the
// compressed raw image of BlockSize*NBlocks bytes follows it.
type SnapshotHeader struct {
	Compression Compression
	BlockSize   uint64
	NBlocks     uint64
}

// Snapshot streams the whole device image, compressed with the chosen
// codec, after an uncompressed header carrying the geometry.
func (fs *FileSystem) Snapshot(w io.Writer, c Compression) error {
	h := SnapshotHeader{
		Compression: c,
		BlockSize:   fs.dev.BlockSize(),
		NBlocks:     fs.dev.Blocks(),
	}
	buf := make([]byte, snapshotHeaderSize)
	copy(buf[0:8], snapshotMagic[:])
	buf[8] = byte(c)
	binary.LittleEndian.PutUint64(buf[9:17], h.BlockSize)
	binary.LittleEndian.PutUint64(buf[17:25], h.NBlocks)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("unable to write snapshot header: %w", err)
	}

	cw, err := compressor(w, c)
	if err != nil {
		return err
	}
	for i := uint64(0); i < h.NBlocks; i++ {
		blk, err := fs.GetBlock(i)
		if err != nil {
			cw.Close()
			return err
		}
		if _, err := cw.Write(blk.Contents()); err != nil {
			cw.Close()
			return fmt.Errorf("unable to write block %d to snapshot: %w", i, err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("unable to finish snapshot stream: %w", err)
	}

	log.WithFields(log.Fields{
		"codec":   c,
		"nblocks": h.NBlocks,
	}).Debug("snapshot written")

	return nil
}

// ReadSnapshotHeader consumes and decodes the snapshot preamble from r.
func ReadSnapshotHeader(r io.Reader) (*SnapshotHeader, error) {
	buf := make([]byte, snapshotHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("unable to read snapshot header: %w", err)
	}
	if [8]byte(buf[0:8]) != snapshotMagic {
		return nil, fmt.Errorf("bad magic %q: %w", buf[0:8], ErrBadSnapshot)
	}
	h := &SnapshotHeader{
		Compression: Compression(buf[8]),
		BlockSize:   binary.LittleEndian.Uint64(buf[9:17]),
		NBlocks:     binary.LittleEndian.Uint64(buf[17:25]),
	}
	if h.Compression > CompressionZstd {
		return nil, fmt.Errorf("unknown codec %d: %w", buf[8], ErrBadSnapshot)
	}
	if h.BlockSize == 0 || h.NBlocks == 0 {
		return nil, fmt.Errorf("zero geometry: %w", ErrBadSnapshot)
	}
	return h, nil
}

// RestoreInto decompresses the snapshot body from r onto the device, whose
// geometry must match the header, and mounts the result.
func RestoreInto(r io.Reader, h *SnapshotHeader, dev *device.Device) (*FileSystem, error) {
	if dev.BlockSize() != h.BlockSize || dev.Blocks() != h.NBlocks {
		return nil, ErrDeviceMismatch
	}
	cr, err := decompressor(r, h.Compression)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, h.BlockSize)
	for i := uint64(0); i < h.NBlocks; i++ {
		if _, err := io.ReadFull(cr, buf); err != nil {
			return nil, fmt.Errorf("unable to read block %d from snapshot: %w", i, err)
		}
		if err := dev.WriteBlock(device.NewBlock(i, buf)); err != nil {
			return nil, err
		}
	}
	return Mount(dev)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLz4:
		return lz4.NewWriter(w), nil
	case CompressionXz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("unable to start xz stream: %w", err)
		}
		return xw, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("unable to start zstd stream: %w", err)
		}
		return zw, nil
	}
	return nil, fmt.Errorf("unknown codec %d: %w", uint8(c), ErrBadSnapshot)
}

func decompressor(r io.Reader, c Compression) (io.Reader, error) {
	switch c {
	case CompressionNone:
		return r, nil
	case CompressionLz4:
		return lz4.NewReader(r), nil
	case CompressionXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("unable to open xz stream: %w", err)
		}
		return xr, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("unable to open zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("unknown codec %d: %w", uint8(c), ErrBadSnapshot)
}
