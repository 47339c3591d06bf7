package v6fs

import (
	"encoding/binary"
	"fmt"
)

// FType is the type tag of an inode.
type FType uint16

const (
	// FTypeFree marks an unused inode slot.
	FTypeFree FType = iota
	// FTypeFile is a regular file.
	FTypeFile
	// FTypeDir is a directory.
	FTypeDir
)

func (ft FType) String() string {
	switch ft {
	case FTypeFree:
		return "free"
	case FTypeFile:
		return "file"
	case FTypeDir:
		return "dir"
	}
	return fmt.Sprintf("FType(%d)", uint16(ft))
}

const (
	// NDirect is the number of direct block pointers per inode.
	NDirect = 12
	// DInodeSize is the on-disk size of one inode record: ft uint16 at 0,
	// nlink uint16 at 2, four pad bytes, size uint64 at 8, then NDirect
	// little-endian uint64 block addresses at 16.
	DInodeSize = 112
	// RootInum is the root directory inode, created at format time. Inode 0
	// is permanently reserved and never handed out.
	RootInum = 1
)

// DInode is the on-disk representation of an inode. Direct holds absolute
// data-block addresses; a zero entry is unused.
type DInode struct {
	Ft     FType
	NLink  uint16
	Size   uint64
	Direct [NDirect]uint64
}

// Inode pairs an inode number with its on-disk record. It is an in-memory
// snapshot; changes persist only through PutInode.
type Inode struct {
	Inum uint64
	Disk DInode
}

// NewInode builds an in-memory inode for the given number and record.
func NewInode(inum uint64, disk DInode) *Inode {
	return &Inode{Inum: inum, Disk: disk}
}

// blocksHeld is how many direct slots the inode's size spans.
func (di *DInode) blocksHeld(blockSize uint64) uint64 {
	return ceilDiv(di.Size, blockSize)
}

func (di *DInode) toBytes() []byte {
	b := make([]byte, DInodeSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(di.Ft))
	binary.LittleEndian.PutUint16(b[2:4], di.NLink)
	binary.LittleEndian.PutUint64(b[8:16], di.Size)
	for i := 0; i < NDirect; i++ {
		binary.LittleEndian.PutUint64(b[16+i*8:24+i*8], di.Direct[i])
	}
	return b
}

func dinodeFromBytes(b []byte) *DInode {
	di := &DInode{
		Ft:    FType(binary.LittleEndian.Uint16(b[0:2])),
		NLink: binary.LittleEndian.Uint16(b[2:4]),
		Size:  binary.LittleEndian.Uint64(b[8:16]),
	}
	for i := 0; i < NDirect; i++ {
		di.Direct[i] = binary.LittleEndian.Uint64(b[16+i*8 : 24+i*8])
	}
	return di
}

// inodeLocation returns the block and in-block byte offset of inode i.
func (sb *Superblock) inodeLocation(i uint64) (blockNo, offset uint64) {
	perBlock := sb.inodesPerBlock()
	return sb.InodeStart + i/perBlock, (i % perBlock) * DInodeSize
}

// GetInode reads inode i from the inode table.
func (fs *FileSystem) GetInode(i uint64) (*Inode, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return nil, err
	}
	if i >= sb.NInodes {
		return nil, fmt.Errorf("get of inode %d of %d: %w", i, sb.NInodes, ErrOutOfBounds)
	}
	blockNo, offset := sb.inodeLocation(i)
	blk, err := fs.GetBlock(blockNo)
	if err != nil {
		return nil, err
	}
	return NewInode(i, *dinodeFromBytes(blk.Contents()[offset : offset+DInodeSize])), nil
}

// PutInode writes the inode back into its slot in the inode table.
func (fs *FileSystem) PutInode(in *Inode) error {
	sb, err := fs.Superblock()
	if err != nil {
		return err
	}
	if in.Inum >= sb.NInodes {
		return fmt.Errorf("put of inode %d of %d: %w", in.Inum, sb.NInodes, ErrOutOfBounds)
	}
	blockNo, offset := sb.inodeLocation(in.Inum)
	blk, err := fs.GetBlock(blockNo)
	if err != nil {
		return err
	}
	if err := blk.WriteData(in.Disk.toBytes(), offset); err != nil {
		return err
	}
	return fs.PutBlock(blk)
}

// AllocInode claims the first free inode, rewrites it with the requested
// type, zero size and zero link count, and returns its number. Inode 0 is
// reserved and never scanned. The direct block list is left as stored; the
// caller must not rely on it. Fails with ErrOutOfBounds when the table is
// full.
func (fs *FileSystem) AllocInode(ft FType) (uint64, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return 0, err
	}
	for inum := uint64(RootInum); inum < sb.NInodes; inum++ {
		in, err := fs.GetInode(inum)
		if err != nil {
			return 0, err
		}
		if in.Disk.Ft != FTypeFree {
			continue
		}
		in.Disk.Ft = ft
		in.Disk.Size = 0
		in.Disk.NLink = 0
		if err := fs.PutInode(in); err != nil {
			return 0, err
		}
		return inum, nil
	}
	return 0, fmt.Errorf("no free inode among %d: %w", sb.NInodes, ErrOutOfBounds)
}

// FreeInode releases inode i if nothing links to it anymore. With a zero
// link count the inode is marked free, every data block its size spans is
// freed and the direct list is cleared; with a positive link count the inode
// is left untouched. Freeing a free inode fails with ErrInodeAlreadyFree.
func (fs *FileSystem) FreeInode(i uint64) error {
	sb, err := fs.Superblock()
	if err != nil {
		return err
	}
	if i >= sb.NInodes {
		return fmt.Errorf("free of inode %d of %d: %w", i, sb.NInodes, ErrOutOfBounds)
	}
	in, err := fs.GetInode(i)
	if err != nil {
		return err
	}
	if in.Inum != i {
		return fmt.Errorf("inode %d resolved to %d: %w", i, in.Inum, ErrInodeState)
	}
	if in.Disk.Ft == FTypeFree {
		return fmt.Errorf("inode %d: %w", i, ErrInodeAlreadyFree)
	}
	if in.Disk.NLink > 0 {
		return nil
	}

	in.Disk.Ft = FTypeFree
	if err := fs.freeDirectBlocks(&in.Disk, sb); err != nil {
		return err
	}
	in.Disk.Direct = [NDirect]uint64{}
	return fs.PutInode(in)
}

// TruncInode drops the inode's contents: every data block its size spans is
// freed, the direct list is cleared and the size reset to zero. Type and
// link count are unchanged. The updated inode is written back.
func (fs *FileSystem) TruncInode(in *Inode) error {
	sb, err := fs.Superblock()
	if err != nil {
		return err
	}
	if err := fs.freeDirectBlocks(&in.Disk, sb); err != nil {
		return err
	}
	in.Disk.Direct = [NDirect]uint64{}
	in.Disk.Size = 0
	return fs.PutInode(in)
}

// freeDirectBlocks releases every nonzero direct block the record's size
// spans. Direct entries hold absolute addresses; the bitmap wants
// data-relative ones.
func (fs *FileSystem) freeDirectBlocks(di *DInode, sb *Superblock) error {
	held := di.blocksHeld(sb.BlockSize)
	if held > NDirect {
		held = NDirect
	}
	for k := uint64(0); k < held; k++ {
		if di.Direct[k] == 0 {
			continue
		}
		if err := fs.FreeBlock(di.Direct[k] - sb.DataStart); err != nil {
			return err
		}
	}
	return nil
}
