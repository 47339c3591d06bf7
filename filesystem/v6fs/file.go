package v6fs

import (
	"fmt"
	"io"
)

// ReadAt copies up to len(p) bytes of the inode's contents starting at byte
// offset off into p. It returns the number of bytes copied; when the inode
// contents end before len(p) bytes, the count is short and the error is
// io.EOF. An offset past the end of the contents fails with ErrBadOffset.
func (fs *FileSystem) ReadAt(in *Inode, p []byte, off uint64) (int, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return 0, err
	}
	size := in.Disk.Size
	if off > size {
		return 0, fmt.Errorf("read at offset %d of inode %d with size %d: %w", off, in.Inum, size, ErrBadOffset)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off == size {
		return 0, io.EOF
	}

	remaining := uint64(len(p))
	if off+remaining > size {
		remaining = size - off
	}

	total := 0
	blockIdx := off / sb.BlockSize
	intra := off % sb.BlockSize
	for remaining > 0 && blockIdx < NDirect {
		addr := in.Disk.Direct[blockIdx]
		if addr == 0 {
			break
		}
		blk, err := fs.GetBlock(addr)
		if err != nil {
			return total, err
		}
		chunk := sb.BlockSize - intra
		if chunk > remaining {
			chunk = remaining
		}
		if err := blk.ReadData(p[total:total+int(chunk)], intra); err != nil {
			return total, err
		}
		total += int(chunk)
		remaining -= chunk
		intra = 0
		blockIdx++
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// WriteAt copies len(p) bytes from p into the inode's contents starting at
// byte offset off, allocating fresh data blocks past the currently held
// ones. On success the inode size grows to cover the written range (pure
// overwrites leave it unchanged) and the inode is written back. An offset
// past the end of the contents fails with ErrBadOffset; running out of
// direct slots fails with ErrOutOfBounds.
func (fs *FileSystem) WriteAt(in *Inode, p []byte, off uint64) (int, error) {
	sb, err := fs.Superblock()
	if err != nil {
		return 0, err
	}
	if off > in.Disk.Size {
		return 0, fmt.Errorf("write at offset %d of inode %d with size %d: %w", off, in.Inum, in.Disk.Size, ErrBadOffset)
	}

	remaining := uint64(len(p))
	total := 0
	blockIdx := off / sb.BlockSize
	intra := off % sb.BlockSize
	for remaining > 0 {
		if blockIdx >= NDirect {
			return total, fmt.Errorf("inode %d has no direct slot left: %w", in.Inum, ErrOutOfBounds)
		}
		addr := in.Disk.Direct[blockIdx]
		if addr == 0 {
			rel, err := fs.AllocBlock()
			if err != nil {
				return total, err
			}
			addr = rel + sb.DataStart
			in.Disk.Direct[blockIdx] = addr
		}
		blk, err := fs.GetBlock(addr)
		if err != nil {
			return total, err
		}
		chunk := sb.BlockSize - intra
		if chunk > remaining {
			chunk = remaining
		}
		if err := blk.WriteData(p[total:total+int(chunk)], intra); err != nil {
			return total, err
		}
		if err := fs.PutBlock(blk); err != nil {
			return total, err
		}
		total += int(chunk)
		remaining -= chunk
		intra = 0
		blockIdx++
	}

	if end := off + uint64(len(p)); end > in.Disk.Size {
		in.Disk.Size = end
	}
	if err := fs.PutInode(in); err != nil {
		return total, err
	}
	return total, nil
}
