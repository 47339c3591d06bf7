// Package vsfs creates and opens Unix-V6-style filesystem images backed by
// plain files.
//
// The heavy lifting lives in the subpackages: backend and backend/file wrap
// the byte store, device imposes the block geometry, and filesystem/v6fs
// implements the superblock, bitmap allocator, inode table, directories and
// byte-granular file I/O. This package only ties them together at the path
// level:
//
//	sb := &v6fs.Superblock{
//		BlockSize: 1024, NBlocks: 1024, NInodes: 128,
//		InodeStart: 1, NDataBlocks: 1000, BmapStart: 16, DataStart: 17,
//	}
//	fs, err := vsfs.Create("/tmp/disk.img", sb)
//	...
//	fs, err = vsfs.Open("/tmp/disk.img")
package vsfs

import (
	"fmt"
	"io"

	"github.com/ilovrencic/go-vsfs/backend/file"
	"github.com/ilovrencic/go-vsfs/device"
	"github.com/ilovrencic/go-vsfs/filesystem/v6fs"
)

// Create makes a fresh image file of exactly sb's geometry at path and
// formats it. The file must not exist yet.
func Create(path string, sb *v6fs.Superblock) (*v6fs.FileSystem, error) {
	if !sb.Valid() {
		return nil, v6fs.ErrSuperblockInvalid
	}
	storage, err := file.CreateFromPath(path, int64(sb.BlockSize*sb.NBlocks))
	if err != nil {
		return nil, err
	}
	dev, err := device.New(storage, sb.BlockSize, sb.NBlocks)
	if err != nil {
		return nil, err
	}
	return v6fs.Create(dev, sb)
}

// Open mounts an existing image file. The geometry is recovered from the
// superblock record at the start of the file, then validated by the mount.
func Open(path string) (*v6fs.FileSystem, error) {
	storage, err := file.OpenFromPath(path, false)
	if err != nil {
		return nil, err
	}
	header := make([]byte, v6fs.SuperblockSize)
	if _, err := storage.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("unable to read superblock from %s: %w", path, err)
	}
	sb, err := v6fs.SuperblockFromBytes(header)
	if err != nil {
		return nil, err
	}
	if !sb.Valid() {
		return nil, v6fs.ErrSuperblockInvalid
	}
	dev, err := device.New(storage, sb.BlockSize, sb.NBlocks)
	if err != nil {
		return nil, err
	}
	return v6fs.Mount(dev)
}

// Restore recreates an image file at path from a snapshot stream and mounts
// it. The file must not exist yet.
func Restore(r io.Reader, path string) (*v6fs.FileSystem, error) {
	h, err := v6fs.ReadSnapshotHeader(r)
	if err != nil {
		return nil, err
	}
	storage, err := file.CreateFromPath(path, int64(h.BlockSize*h.NBlocks))
	if err != nil {
		return nil, err
	}
	dev, err := device.New(storage, h.BlockSize, h.NBlocks)
	if err != nil {
		return nil, err
	}
	return v6fs.RestoreInto(r, h, dev)
}
