package v6fs_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/ilovrencic/go-vsfs/filesystem/v6fs"
)

// sbDirs has 250-byte blocks: ten 24-byte directory entries per block with
// ten bytes of padding.
var sbDirs = v6fs.Superblock{
	BlockSize:   250,
	NBlocks:     10,
	NInodes:     6,
	InodeStart:  1,
	NDataBlocks: 5,
	BmapStart:   4,
	DataStart:   5,
}

func TestNewDirEntry(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"file1", true},
		{"0", true},
		{"abcdefghijklm", true},  // 13 bytes, the maximum
		{"abcdefghijklmn", false}, // no room for the terminator
		{"", false},
		{"with space", false},
		{"dot.txt", false},
		{"dash-name", false},
	}
	for _, tt := range tests {
		de, err := v6fs.NewDirEntry(7, tt.name)
		if tt.valid {
			if err != nil {
				t.Errorf("NewDirEntry(%q): %v", tt.name, err)
				continue
			}
			if de.Inum != 7 || de.Name() != tt.name {
				t.Errorf("NewDirEntry(%q) = (%d, %q)", tt.name, de.Inum, de.Name())
			}
		} else if !errors.Is(err, v6fs.ErrInvalidName) {
			t.Errorf("NewDirEntry(%q): %v instead of ErrInvalidName", tt.name, err)
		}
	}
}

func TestDirEntrySetName(t *testing.T) {
	de, err := v6fs.NewDirEntry(2, "longername")
	if err != nil {
		t.Fatalf("NewDirEntry: %v", err)
	}
	if err := de.SetName("ab"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	// the shorter name must not leak tail bytes of the longer one
	if got := de.Name(); got != "ab" {
		t.Errorf("Name() = %q instead of %q", got, "ab")
	}
	if err := de.SetName("not/valid"); err == nil {
		t.Errorf("SetName accepted a name with a slash")
	}
}

func TestDirLookupErrors(t *testing.T) {
	fs := newTestFS(t, &sbDirs)

	root, err := fs.GetInode(v6fs.RootInum)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if _, _, err := fs.DirLookup(root, "missing"); !errors.Is(err, v6fs.ErrEntryNotFound) {
		t.Errorf("lookup in empty root: %v instead of ErrEntryNotFound", err)
	}

	inum, err := fs.AllocInode(v6fs.FTypeFile)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	plain, err := fs.GetInode(inum)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if _, _, err := fs.DirLookup(plain, "x"); !errors.Is(err, v6fs.ErrNotDirectory) {
		t.Errorf("lookup in file inode: %v instead of ErrNotDirectory", err)
	}
}

func TestDirLinkErrors(t *testing.T) {
	fs := newTestFS(t, &sbDirs)

	root, err := fs.GetInode(v6fs.RootInum)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	fileInum, err := fs.AllocInode(v6fs.FTypeFile)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}

	plain, err := fs.GetInode(fileInum)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if _, err := fs.DirLink(plain, "x", v6fs.RootInum); !errors.Is(err, v6fs.ErrNotDirectory) {
		t.Errorf("link in file inode: %v instead of ErrNotDirectory", err)
	}

	if _, err := fs.DirLink(root, "gone", 5); !errors.Is(err, v6fs.ErrInodeNotInUse) {
		t.Errorf("link to free inode: %v instead of ErrInodeNotInUse", err)
	}
	if _, err := fs.DirLink(root, "gone", sbDirs.NInodes+1); !errors.Is(err, v6fs.ErrInodeState) {
		t.Errorf("link to out-of-range inode: %v instead of ErrInodeState", err)
	}
	if _, err := fs.DirLink(root, "bad name", fileInum); !errors.Is(err, v6fs.ErrInvalidName) {
		t.Errorf("link with invalid name: %v instead of ErrInvalidName", err)
	}

	if _, err := fs.DirLink(root, "f", fileInum); err != nil {
		t.Fatalf("DirLink: %v", err)
	}
	if _, err := fs.DirLink(root, "f", fileInum); !errors.Is(err, v6fs.ErrEntryExists) {
		t.Errorf("duplicate link: %v instead of ErrEntryExists", err)
	}
}

func TestDirLinkLookupRoundTrip(t *testing.T) {
	fs := newTestFS(t, &sbDirs)

	root, err := fs.GetInode(v6fs.RootInum)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	fileInum, err := fs.AllocInode(v6fs.FTypeFile)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}

	off, err := fs.DirLink(root, "readme", fileInum)
	if err != nil {
		t.Fatalf("DirLink: %v", err)
	}
	if off != 0 {
		t.Errorf("first entry at offset %d instead of 0", off)
	}

	got, gotOff, err := fs.DirLookup(root, "readme")
	if err != nil {
		t.Fatalf("DirLookup: %v", err)
	}
	if got.Inum != fileInum {
		t.Errorf("lookup resolved to inode %d instead of %d", got.Inum, fileInum)
	}
	if gotOff != off {
		t.Errorf("lookup offset %d instead of %d", gotOff, off)
	}
	if got.Disk.NLink != 1 {
		t.Errorf("target nlink %d instead of 1 after one link", got.Disk.NLink)
	}
	if root.Disk.Size != v6fs.DirEntrySize {
		t.Errorf("directory size %d instead of %d", root.Disk.Size, v6fs.DirEntrySize)
	}
}

func TestDirSelfLinkKeepsLinkCount(t *testing.T) {
	fs := newTestFS(t, &sbDirs)

	root, err := fs.GetInode(v6fs.RootInum)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if _, err := fs.DirLink(root, "self", v6fs.RootInum); err != nil {
		t.Fatalf("DirLink: %v", err)
	}
	got, err := fs.GetInode(v6fs.RootInum)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if got.Disk.NLink != 1 {
		t.Errorf("self link bumped nlink to %d", got.Disk.NLink)
	}
}

func TestDirLinkAcrossBlocks(t *testing.T) {
	fs := newTestFS(t, &sbDirs)

	// a second, empty directory to fill up
	dir := v6fs.NewInode(5, v6fs.DInode{Ft: v6fs.FTypeDir})
	if err := fs.PutInode(dir); err != nil {
		t.Fatalf("PutInode: %v", err)
	}

	// inodes 2, 3 and 4
	for want := uint64(2); want <= 4; want++ {
		got, err := fs.AllocInode(v6fs.FTypeFile)
		if err != nil {
			t.Fatalf("AllocInode: %v", err)
		}
		if got != want {
			t.Fatalf("AllocInode: %d instead of %d", got, want)
		}
	}

	// 36 entries fill three data blocks and start a fourth; the logical
	// stream has no gaps even though each block carries padding
	for i := uint64(0); i < 36; i++ {
		off, err := fs.DirLink(dir, strconv.FormatUint(i, 10), 3)
		if err != nil {
			t.Fatalf("DirLink %d: %v", i, err)
		}
		if off != i*v6fs.DirEntrySize {
			t.Errorf("entry %d at offset %d instead of %d", i, off, i*v6fs.DirEntrySize)
		}
	}

	for i := uint64(0); i < 36; i++ {
		_, off, err := fs.DirLookup(dir, strconv.FormatUint(i, 10))
		if err != nil {
			t.Fatalf("DirLookup %d: %v", i, err)
		}
		if off != i*v6fs.DirEntrySize {
			t.Errorf("lookup %d at offset %d instead of %d", i, off, i*v6fs.DirEntrySize)
		}
	}

	target, err := fs.GetInode(3)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if target.Disk.NLink != 36 {
		t.Errorf("target nlink %d instead of 36", target.Disk.NLink)
	}
}
