package v6fs

import "errors"

var (
	// ErrSuperblockInvalid means a superblock failed layout validation.
	ErrSuperblockInvalid = errors.New("superblock is not valid")
	// ErrDeviceMismatch means the device geometry disagrees with the
	// superblock stored on it.
	ErrDeviceMismatch = errors.New("device configuration does not match the superblock")
	// ErrOutOfBounds covers any access past a region limit: data block index
	// past ndatablocks, inode number past ninodes, a full bitmap on
	// allocation, or no free inode left.
	ErrOutOfBounds = errors.New("access outside of the filesystem boundaries")
	// ErrBlockAlreadyFree is returned when freeing a data block whose bitmap
	// bit is already zero.
	ErrBlockAlreadyFree = errors.New("block is already deallocated")
	// ErrInodeAlreadyFree is returned when freeing an inode that is free.
	ErrInodeAlreadyFree = errors.New("inode is already deallocated")
	// ErrInodeState signals an inode in an unexpected state.
	ErrInodeState = errors.New("unexpected inode state")
	// ErrNotDirectory is returned by directory operations on non-directories.
	ErrNotDirectory = errors.New("inode is not a directory")
	// ErrEntryNotFound is a directory lookup miss.
	ErrEntryNotFound = errors.New("no directory entry with that name")
	// ErrEntryExists is returned when linking a name that is already present.
	ErrEntryExists = errors.New("directory entry name already exists")
	// ErrInodeNotInUse is returned when linking to a free inode.
	ErrInodeNotInUse = errors.New("inode is not in use")
	// ErrInvalidName rejects empty, overlong or non-alphanumeric entry names.
	ErrInvalidName = errors.New("invalid directory entry name")
	// ErrBadOffset is returned by reads and writes starting past the end of
	// the inode contents.
	ErrBadOffset = errors.New("offset is outside of the inode contents")
	// ErrBadSnapshot means a snapshot stream has a corrupt header.
	ErrBadSnapshot = errors.New("snapshot header is not valid")
)
