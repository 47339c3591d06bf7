package v6fs

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// SuperblockSize is the on-disk size of the superblock record at offset 0 of
// block 0: seven little-endian uint64 geometry words plus a 16-byte volume
// UUID.
const SuperblockSize = 72

// Superblock describes the geometry and region layout of the filesystem.
//
// The disk is split, in order, into the superblock (block 0), the inode
// table, the allocation bitmap and the data region:
//
//	0                    : superblock
//	inodestart .. +I-1   : inode table (packed DInodes, ninodes total)
//	bmapstart  .. +B-1   : allocation bitmap (bit k -> data block k)
//	datastart  .. +D-1   : data blocks
type Superblock struct {
	BlockSize   uint64
	NBlocks     uint64
	NInodes     uint64
	InodeStart  uint64
	NDataBlocks uint64
	BmapStart   uint64
	DataStart   uint64
	// VolumeID identifies the formatted volume. It plays no role in layout
	// validation; Create stamps a random one when left zero.
	VolumeID uuid.UUID
}

// InodeBlocks returns the number of blocks the inode table occupies.
func (sb *Superblock) InodeBlocks() uint64 {
	return ceilDiv(sb.NInodes, sb.inodesPerBlock())
}

// BitmapBlocks returns the number of blocks the allocation bitmap occupies.
func (sb *Superblock) BitmapBlocks() uint64 {
	return ceilDiv(sb.NDataBlocks, sb.BlockSize*8)
}

func (sb *Superblock) inodesPerBlock() uint64 {
	if sb.BlockSize == 0 {
		return 0
	}
	return sb.BlockSize / DInodeSize
}

// Valid reports whether the described layout is consistent: regions appear
// in order after block 0, each region is large enough for what it holds, and
// everything fits on the device.
func (sb *Superblock) Valid() bool {
	if sb.BlockSize < DInodeSize {
		return false
	}
	if !(0 < sb.InodeStart && sb.InodeStart < sb.BmapStart && sb.BmapStart < sb.DataStart) {
		return false
	}
	if sb.InodeStart+sb.InodeBlocks() > sb.BmapStart {
		return false
	}
	if sb.BmapStart+sb.BitmapBlocks() > sb.DataStart {
		return false
	}
	if sb.DataStart+sb.NDataBlocks > sb.NBlocks {
		return false
	}
	if 1+sb.InodeBlocks()+sb.BitmapBlocks()+sb.NDataBlocks > sb.NBlocks {
		return false
	}
	return true
}

// ToBytes returns the superblock as an on-disk record.
func (sb *Superblock) ToBytes() []byte {
	b := make([]byte, SuperblockSize)
	binary.LittleEndian.PutUint64(b[0:8], sb.BlockSize)
	binary.LittleEndian.PutUint64(b[8:16], sb.NBlocks)
	binary.LittleEndian.PutUint64(b[16:24], sb.NInodes)
	binary.LittleEndian.PutUint64(b[24:32], sb.InodeStart)
	binary.LittleEndian.PutUint64(b[32:40], sb.NDataBlocks)
	binary.LittleEndian.PutUint64(b[40:48], sb.BmapStart)
	binary.LittleEndian.PutUint64(b[48:56], sb.DataStart)
	copy(b[56:72], sb.VolumeID[:])
	return b
}

// SuperblockFromBytes decodes a superblock record from the start of b.
func SuperblockFromBytes(b []byte) (*Superblock, error) {
	if len(b) < SuperblockSize {
		return nil, fmt.Errorf("superblock record needs %d bytes, got %d", SuperblockSize, len(b))
	}
	sb := &Superblock{
		BlockSize:   binary.LittleEndian.Uint64(b[0:8]),
		NBlocks:     binary.LittleEndian.Uint64(b[8:16]),
		NInodes:     binary.LittleEndian.Uint64(b[16:24]),
		InodeStart:  binary.LittleEndian.Uint64(b[24:32]),
		NDataBlocks: binary.LittleEndian.Uint64(b[32:40]),
		BmapStart:   binary.LittleEndian.Uint64(b[40:48]),
		DataStart:   binary.LittleEndian.Uint64(b[48:56]),
	}
	copy(sb.VolumeID[:], b[56:72])
	return sb, nil
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
