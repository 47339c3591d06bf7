// Package v6fs implements a Unix-V6-style filesystem on a fixed-geometry
// block device: a superblock, a packed inode table, a data-block allocation
// bitmap and a data region, with directories stored as packed entry records
// inside directory inodes.
//
// The filesystem is strictly single-owner and synchronous. Every operation
// re-reads the superblock and any block it touches, so consecutive
// operations always observe earlier writes; nothing is cached between calls.
package v6fs

import (
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ilovrencic/go-vsfs/device"
	"github.com/ilovrencic/go-vsfs/util/bitmap"
)

// FileSystem is a handle to a mounted filesystem. It exclusively owns the
// underlying device until Unmount returns it.
type FileSystem struct {
	dev *device.Device
}

// Create formats the device with the given superblock and returns the
// mounted filesystem. It writes the superblock into block 0, zero-fills the
// inode table and the allocation bitmap, and creates the root directory
// inode (inum 1) with a single link. A zero VolumeID is replaced with a
// freshly generated one.
func Create(dev *device.Device, sb *Superblock) (*FileSystem, error) {
	if !sb.Valid() {
		return nil, ErrSuperblockInvalid
	}
	if dev.BlockSize() != sb.BlockSize || dev.Blocks() != sb.NBlocks {
		return nil, ErrDeviceMismatch
	}

	stamped := *sb
	if stamped.VolumeID == uuid.Nil {
		stamped.VolumeID = uuid.New()
	}

	fs := &FileSystem{dev: dev}
	if err := fs.WriteSuperblock(&stamped); err != nil {
		return nil, err
	}

	// zero-fill the inode table (a zero record is a free inode) and the
	// bitmap, so reformatting a dirty device starts from a clean slate
	for i := uint64(0); i < stamped.InodeBlocks(); i++ {
		if err := fs.PutBlock(device.NewZeroBlock(stamped.InodeStart+i, stamped.BlockSize)); err != nil {
			return nil, err
		}
	}
	for i := uint64(0); i < stamped.BitmapBlocks(); i++ {
		if err := fs.PutBlock(device.NewZeroBlock(stamped.BmapStart+i, stamped.BlockSize)); err != nil {
			return nil, err
		}
	}

	root := NewInode(RootInum, DInode{Ft: FTypeDir, NLink: 1})
	if err := fs.PutInode(root); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"volume":    stamped.VolumeID,
		"blockSize": stamped.BlockSize,
		"nblocks":   stamped.NBlocks,
		"ninodes":   stamped.NInodes,
	}).Debug("formatted filesystem")

	return fs, nil
}

// Mount reads and validates the superblock in block 0 and returns a handle
// to the filesystem. The stored geometry must match the device's. No further
// verification of the on-disk state is performed.
func Mount(dev *device.Device) (*FileSystem, error) {
	blk, err := dev.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb, err := SuperblockFromBytes(blk.Contents())
	if err != nil {
		return nil, err
	}
	if !sb.Valid() {
		return nil, ErrSuperblockInvalid
	}
	if sb.BlockSize != dev.BlockSize() || sb.NBlocks != dev.Blocks() {
		return nil, ErrDeviceMismatch
	}

	log.WithFields(log.Fields{
		"volume":  sb.VolumeID,
		"nblocks": sb.NBlocks,
	}).Debug("mounted filesystem")

	return &FileSystem{dev: dev}, nil
}

// Unmount relinquishes ownership of the device and returns it. The handle
// must not be used afterwards. No flushing is needed: every mutating
// operation already persisted its block writes.
func (fs *FileSystem) Unmount() *device.Device {
	dev := fs.dev
	fs.dev = nil
	return dev
}

// Superblock reads and decodes the superblock from block 0.
func (fs *FileSystem) Superblock() (*Superblock, error) {
	blk, err := fs.dev.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	return SuperblockFromBytes(blk.Contents())
}

// WriteSuperblock serializes sb into a fresh block 0 and writes it out.
func (fs *FileSystem) WriteSuperblock(sb *Superblock) error {
	blk := device.NewZeroBlock(0, sb.BlockSize)
	if err := blk.WriteData(sb.ToBytes(), 0); err != nil {
		return err
	}
	return fs.dev.WriteBlock(blk)
}

// GetBlock reads the block at absolute block number i.
func (fs *FileSystem) GetBlock(i uint64) (*device.Block, error) {
	return fs.dev.ReadBlock(i)
}

// PutBlock writes b back at its own block number.
func (fs *FileSystem) PutBlock(b *device.Block) error {
	return fs.dev.WriteBlock(b)
}

// ZeroBlock overwrites the data block with data-relative index i with
// zeroes. The bitmap is not touched.
func (fs *FileSystem) ZeroBlock(i uint64) error {
	sb, err := fs.Superblock()
	if err != nil {
		return err
	}
	if i >= sb.NDataBlocks {
		return fmt.Errorf("zero of data block %d of %d: %w", i, sb.NDataBlocks, ErrOutOfBounds)
	}
	return fs.PutBlock(device.NewZeroBlock(sb.DataStart+i, sb.BlockSize))
}

// AllocBlock allocates the first free data block: a first-fit scan of the
// bitmap, low bit first within each byte, bytes left to right, bitmap blocks
// in order. The allocated block is zeroed and its data-relative index
// returned. Fails with ErrOutOfBounds when no block is free.
func (fs *FileSystem) AllocBlock() (uint64, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return 0, err
	}

	bitsPerBlock := sb.BlockSize * 8
	// one past the last full bitmap block, so a trailing partial block is
	// scanned too; bits past ndatablocks are caught by the bound check below
	for i := uint64(0); i <= sb.NDataBlocks/bitsPerBlock; i++ {
		blk, err := fs.GetBlock(sb.BmapStart + i)
		if err != nil {
			return 0, err
		}
		bm := bitmap.FromBytes(blk.Contents())
		pos := bm.FirstFree()
		if pos < 0 {
			continue
		}
		index := i*bitsPerBlock + uint64(pos)
		if index >= sb.NDataBlocks {
			return 0, fmt.Errorf("bitmap exhausted at bit %d of %d: %w", index, sb.NDataBlocks, ErrOutOfBounds)
		}
		if err := bm.Set(pos); err != nil {
			return 0, err
		}
		if err := blk.WriteData(bm.ToBytes(), 0); err != nil {
			return 0, err
		}
		if err := fs.PutBlock(blk); err != nil {
			return 0, err
		}
		if err := fs.ZeroBlock(index % sb.NDataBlocks); err != nil {
			return 0, err
		}
		return index, nil
	}
	return 0, fmt.Errorf("no free data block among %d: %w", sb.NDataBlocks, ErrOutOfBounds)
}

// FreeBlock clears the bitmap bit of the data block with data-relative index
// i. The block contents are left untouched. Freeing a block that is already
// free fails with ErrBlockAlreadyFree.
func (fs *FileSystem) FreeBlock(i uint64) error {
	sb, err := fs.Superblock()
	if err != nil {
		return err
	}
	if i >= sb.NDataBlocks {
		return fmt.Errorf("free of data block %d of %d: %w", i, sb.NDataBlocks, ErrOutOfBounds)
	}

	bitsPerBlock := sb.BlockSize * 8
	blockNo := i / bitsPerBlock
	blk, err := fs.GetBlock(sb.BmapStart + blockNo)
	if err != nil {
		return err
	}
	bm := bitmap.FromBytes(blk.Contents())
	pos := int(i - blockNo*bitsPerBlock)
	set, err := bm.IsSet(pos)
	if err != nil {
		return err
	}
	if !set {
		return fmt.Errorf("data block %d: %w", i, ErrBlockAlreadyFree)
	}
	if err := bm.Clear(pos); err != nil {
		return err
	}
	if err := blk.WriteData(bm.ToBytes(), 0); err != nil {
		return err
	}
	return fs.PutBlock(blk)
}
