// Package device implements a fixed-geometry block device on top of a
// backend.Storage. A device is an array of nblocks blocks of blockSize bytes
// each; all I/O happens in whole blocks.
package device

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ilovrencic/go-vsfs/backend"
)

var (
	ErrBadGeometry     = errors.New("device geometry must have nonzero block size and block count")
	ErrBlockOutOfRange = errors.New("block number is outside of the device")
	ErrBlockSizeWrong  = errors.New("block buffer does not match the device block size")
	ErrDataOutOfRange  = errors.New("data range is outside of the block")
)

// Block is a single device block: blockSize bytes addressed by an absolute
// block number.
type Block struct {
	blockNo uint64
	data    []byte
}

// NewZeroBlock returns an all-zero block for the given absolute block number.
func NewZeroBlock(blockNo, blockSize uint64) *Block {
	return &Block{
		blockNo: blockNo,
		data:    make([]byte, blockSize),
	}
}

// NewBlock returns a block holding a copy of data.
func NewBlock(blockNo uint64, data []byte) *Block {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Block{
		blockNo: blockNo,
		data:    buf,
	}
}

// BlockNo returns the absolute block number this block belongs to.
func (b *Block) BlockNo() uint64 {
	return b.blockNo
}

// Size returns the block size in bytes.
func (b *Block) Size() uint64 {
	return uint64(len(b.data))
}

// Contents returns the backing byte slice of the block. Mutating it mutates
// the block.
func (b *Block) Contents() []byte {
	return b.data
}

// ReadData copies len(p) bytes starting at off out of the block.
func (b *Block) ReadData(p []byte, off uint64) error {
	if off+uint64(len(p)) > uint64(len(b.data)) {
		return fmt.Errorf("read of %d bytes at offset %d in block %d: %w", len(p), off, b.blockNo, ErrDataOutOfRange)
	}
	copy(p, b.data[off:])
	return nil
}

// WriteData copies len(p) bytes into the block starting at off.
func (b *Block) WriteData(p []byte, off uint64) error {
	if off+uint64(len(p)) > uint64(len(b.data)) {
		return fmt.Errorf("write of %d bytes at offset %d in block %d: %w", len(p), off, b.blockNo, ErrDataOutOfRange)
	}
	copy(b.data[off:], p)
	return nil
}

// Equal reports whether two blocks have the same block number and contents.
func (b *Block) Equal(o *Block) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.blockNo == o.blockNo && bytes.Equal(b.data, o.data)
}

// Device is a block-granular view of a backend.Storage with fixed geometry.
type Device struct {
	storage   backend.Storage
	blockSize uint64
	nblocks   uint64
}

// New wraps storage as a device of the given geometry. If the storage can
// report its size, it must be large enough to hold all blocks.
func New(storage backend.Storage, blockSize, nblocks uint64) (*Device, error) {
	if blockSize == 0 || nblocks == 0 {
		return nil, ErrBadGeometry
	}
	if info, err := storage.Stat(); err == nil && info != nil {
		if uint64(info.Size()) < blockSize*nblocks {
			return nil, fmt.Errorf("backing store holds %d bytes, need %d: %w", info.Size(), blockSize*nblocks, ErrBadGeometry)
		}
	}
	return &Device{
		storage:   storage,
		blockSize: blockSize,
		nblocks:   nblocks,
	}, nil
}

// BlockSize returns the size of one block in bytes.
func (d *Device) BlockSize() uint64 {
	return d.blockSize
}

// Blocks returns the total number of blocks on the device.
func (d *Device) Blocks() uint64 {
	return d.nblocks
}

// ReadBlock reads the block at absolute block number i.
func (d *Device) ReadBlock(i uint64) (*Block, error) {
	if i >= d.nblocks {
		return nil, fmt.Errorf("read of block %d on %d-block device: %w", i, d.nblocks, ErrBlockOutOfRange)
	}
	b := &Block{
		blockNo: i,
		data:    make([]byte, d.blockSize),
	}
	if _, err := d.storage.ReadAt(b.data, int64(i*d.blockSize)); err != nil {
		return nil, fmt.Errorf("unable to read block %d: %w", i, err)
	}
	return b, nil
}

// WriteBlock writes the block at its own block number.
func (d *Device) WriteBlock(b *Block) error {
	if b.blockNo >= d.nblocks {
		return fmt.Errorf("write of block %d on %d-block device: %w", b.blockNo, d.nblocks, ErrBlockOutOfRange)
	}
	if uint64(len(b.data)) != d.blockSize {
		return fmt.Errorf("block %d holds %d bytes, device block size is %d: %w", b.blockNo, len(b.data), d.blockSize, ErrBlockSizeWrong)
	}
	writable, err := d.storage.Writable()
	if err != nil {
		return err
	}
	if _, err := writable.WriteAt(b.data, int64(b.blockNo*d.blockSize)); err != nil {
		return fmt.Errorf("unable to write block %d: %w", b.blockNo, err)
	}
	return nil
}

// Close releases the underlying storage.
func (d *Device) Close() error {
	return d.storage.Close()
}
