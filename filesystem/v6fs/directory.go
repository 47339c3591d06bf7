package v6fs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode"
)

const (
	// DirNameSize is the fixed width of the on-disk name field, terminator
	// included. Names are at most DirNameSize-1 characters.
	DirNameSize = 14
	// DirEntrySize is the on-disk size of one directory entry: inum uint64
	// at 0, the zero-padded name at 8, two pad bytes.
	DirEntrySize = 24
)

// DirEntry is a single directory entry: a target inode number and a fixed
// width, zero-padded name. A zero Inum marks an empty slot.
type DirEntry struct {
	Inum uint64
	name [DirNameSize]byte
}

// NewDirEntry builds a directory entry for the given inode number and name.
// The name must be nonempty, at most DirNameSize-1 bytes, and alphanumeric.
func NewDirEntry(inum uint64, name string) (*DirEntry, error) {
	de := &DirEntry{Inum: inum}
	if err := de.SetName(name); err != nil {
		return nil, err
	}
	return de, nil
}

// Name returns the entry name up to the first NUL.
func (de *DirEntry) Name() string {
	for i := 0; i < DirNameSize; i++ {
		if de.name[i] == 0 {
			return string(de.name[:i])
		}
	}
	return string(de.name[:])
}

// SetName validates name and stores it zero-padded into the fixed-width
// field.
func (de *DirEntry) SetName(name string) error {
	if len(name) == 0 || len(name) >= DirNameSize {
		return fmt.Errorf("name %q must be 1 to %d bytes: %w", name, DirNameSize-1, ErrInvalidName)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("name %q contains %q: %w", name, r, ErrInvalidName)
		}
	}
	de.name = [DirNameSize]byte{}
	copy(de.name[:], name)
	return nil
}

func (de *DirEntry) toBytes() []byte {
	b := make([]byte, DirEntrySize)
	binary.LittleEndian.PutUint64(b[0:8], de.Inum)
	copy(b[8:8+DirNameSize], de.name[:])
	return b
}

func dirEntryFromBytes(b []byte) *DirEntry {
	de := &DirEntry{Inum: binary.LittleEndian.Uint64(b[0:8])}
	copy(de.name[:], b[8:8+DirNameSize])
	return de
}

// entryBytesPerBlock is the usable prefix of a block: whole entries only,
// trailing bytes are padding. An entry never crosses a block boundary.
func entryBytesPerBlock(blockSize uint64) uint64 {
	return blockSize - blockSize%DirEntrySize
}

// DirLookup scans the directory for an entry with the given name and
// returns the target inode together with the entry's byte offset in the
// directory's logical stream. A miss is ErrEntryNotFound; a non-directory
// inode is ErrNotDirectory.
func (fs *FileSystem) DirLookup(dir *Inode, name string) (*Inode, uint64, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return nil, 0, err
	}
	if dir.Disk.Ft != FTypeDir {
		return nil, 0, fmt.Errorf("lookup of %q in inode %d (%s): %w", name, dir.Inum, dir.Disk.Ft, ErrNotDirectory)
	}

	useful := entryBytesPerBlock(sb.BlockSize)
	blocks := ceilDiv(dir.Disk.Size, useful)
	if blocks > NDirect {
		blocks = NDirect
	}
	for i := uint64(0); i < blocks; i++ {
		if dir.Disk.Direct[i] == 0 {
			break
		}
		blk, err := fs.GetBlock(dir.Disk.Direct[i])
		if err != nil {
			return nil, 0, err
		}
		for off := uint64(0); off+DirEntrySize <= sb.BlockSize; off += DirEntrySize {
			de := dirEntryFromBytes(blk.Contents()[off : off+DirEntrySize])
			if de.Inum == 0 {
				continue
			}
			if de.Name() != name {
				continue
			}
			target, err := fs.GetInode(de.Inum)
			if err != nil {
				return nil, 0, err
			}
			return target, off + i*useful, nil
		}
	}
	return nil, 0, fmt.Errorf("no entry %q in inode %d: %w", name, dir.Inum, ErrEntryNotFound)
}

// DirLink adds an entry mapping name to inode inum in the directory,
// reusing the first empty slot or allocating a fresh data block when every
// slot is taken. It returns the new entry's byte offset in the directory's
// logical stream. The directory inode is updated in place and written back;
// when the target is a different inode its link count is incremented.
func (fs *FileSystem) DirLink(dir *Inode, name string, inum uint64) (uint64, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return 0, err
	}
	if dir.Disk.Ft != FTypeDir {
		return 0, fmt.Errorf("link of %q in inode %d (%s): %w", name, dir.Inum, dir.Disk.Ft, ErrNotDirectory)
	}

	if _, _, err := fs.DirLookup(dir, name); err == nil {
		return 0, fmt.Errorf("entry %q in inode %d: %w", name, dir.Inum, ErrEntryExists)
	} else if !errors.Is(err, ErrEntryNotFound) {
		return 0, err
	}

	target, err := fs.GetInode(inum)
	if err != nil {
		return 0, fmt.Errorf("link target %d: %w", inum, ErrInodeState)
	}
	if target.Disk.Ft == FTypeFree {
		return 0, fmt.Errorf("link target %d: %w", inum, ErrInodeNotInUse)
	}

	de, err := NewDirEntry(inum, name)
	if err != nil {
		return 0, err
	}

	useful := entryBytesPerBlock(sb.BlockSize)
	blocks := ceilDiv(dir.Disk.Size, useful)
	if blocks > NDirect {
		blocks = NDirect
	}

	// first pass: reuse an empty slot in the blocks the directory already has
	for i := uint64(0); i < blocks; i++ {
		if dir.Disk.Direct[i] == 0 {
			break
		}
		blk, err := fs.GetBlock(dir.Disk.Direct[i])
		if err != nil {
			return 0, err
		}
		for off := uint64(0); off+DirEntrySize <= sb.BlockSize; off += DirEntrySize {
			cur := dirEntryFromBytes(blk.Contents()[off : off+DirEntrySize])
			if cur.Inum != 0 {
				continue
			}
			if err := blk.WriteData(de.toBytes(), off); err != nil {
				return 0, err
			}
			if err := fs.PutBlock(blk); err != nil {
				return 0, err
			}
			logical := off + i*useful
			if dir.Disk.Size < logical+DirEntrySize {
				dir.Disk.Size += DirEntrySize
			}
			if err := fs.PutInode(dir); err != nil {
				return 0, err
			}
			if err := fs.bumpLink(dir, inum); err != nil {
				return 0, err
			}
			return logical, nil
		}
	}

	// every slot taken: grow the directory by one data block
	if blocks >= NDirect {
		return 0, fmt.Errorf("directory inode %d has no direct slot left: %w", dir.Inum, ErrOutOfBounds)
	}
	rel, err := fs.AllocBlock()
	if err != nil {
		return 0, err
	}
	abs := rel + sb.DataStart
	blk, err := fs.GetBlock(abs)
	if err != nil {
		return 0, err
	}
	if err := blk.WriteData(de.toBytes(), 0); err != nil {
		return 0, err
	}
	if err := fs.PutBlock(blk); err != nil {
		return 0, err
	}

	logical := dir.Disk.Size
	dir.Disk.Direct[blocks] = abs
	dir.Disk.Size += DirEntrySize
	if err := fs.PutInode(dir); err != nil {
		return 0, err
	}
	if err := fs.bumpLink(dir, inum); err != nil {
		return 0, err
	}
	return logical, nil
}

// bumpLink increments the target's link count, unless the directory links
// to itself. The target is re-read so the bump lands on the current record
// even when both inodes share an inode block.
func (fs *FileSystem) bumpLink(dir *Inode, inum uint64) error {
	if inum == dir.Inum {
		return nil
	}
	target, err := fs.GetInode(inum)
	if err != nil {
		return err
	}
	target.Disk.NLink++
	return fs.PutInode(target)
}
