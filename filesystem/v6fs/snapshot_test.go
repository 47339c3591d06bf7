package v6fs_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ilovrencic/go-vsfs/filesystem/v6fs"
)

func TestSnapshotRestore(t *testing.T) {
	codecs := []v6fs.Compression{
		v6fs.CompressionNone,
		v6fs.CompressionLz4,
		v6fs.CompressionXz,
		v6fs.CompressionZstd,
	}
	for _, codec := range codecs {
		t.Run(codec.String(), func(t *testing.T) {
			fs := newTestFS(t, &sbSmall)
			want, err := fs.Superblock()
			require.NoError(t, err)

			root, err := fs.GetInode(v6fs.RootInum)
			require.NoError(t, err)
			inum, err := fs.AllocInode(v6fs.FTypeFile)
			require.NoError(t, err)
			_, err = fs.DirLink(root, "payload", inum)
			require.NoError(t, err)

			in, err := fs.GetInode(inum)
			require.NoError(t, err)
			content := randomBytes(t, 1500)
			_, err = fs.WriteAt(in, content, 0)
			require.NoError(t, err)

			var snap bytes.Buffer
			require.NoError(t, fs.Snapshot(&snap, codec))

			h, err := v6fs.ReadSnapshotHeader(&snap)
			require.NoError(t, err)
			require.Equal(t, codec, h.Compression)
			require.Equal(t, sbSmall.BlockSize, h.BlockSize)
			require.Equal(t, sbSmall.NBlocks, h.NBlocks)

			restored, err := v6fs.RestoreInto(&snap, h, newTestDevice(t, &sbSmall))
			require.NoError(t, err)

			got, err := restored.Superblock()
			require.NoError(t, err)
			require.Equal(t, want.VolumeID, got.VolumeID)

			rroot, err := restored.GetInode(v6fs.RootInum)
			require.NoError(t, err)
			target, _, err := restored.DirLookup(rroot, "payload")
			require.NoError(t, err)
			require.Equal(t, inum, target.Inum)

			buf := make([]byte, len(content))
			n, err := restored.ReadAt(target, buf, 0)
			if err != nil && err != io.EOF {
				t.Fatalf("ReadAt: %v", err)
			}
			require.Equal(t, len(content), n)
			require.Equal(t, content, buf)
		})
	}
}

func TestRestoreIntoWrongDevice(t *testing.T) {
	fs := newTestFS(t, &sbSmall)
	var snap bytes.Buffer
	require.NoError(t, fs.Snapshot(&snap, v6fs.CompressionNone))

	h, err := v6fs.ReadSnapshotHeader(&snap)
	require.NoError(t, err)

	if _, err := v6fs.RestoreInto(&snap, h, newTestDevice(t, &sbInodes)); !errors.Is(err, v6fs.ErrDeviceMismatch) {
		t.Errorf("RestoreInto onto wrong geometry: %v instead of ErrDeviceMismatch", err)
	}
}

func TestReadSnapshotHeaderRejectsGarbage(t *testing.T) {
	if _, err := v6fs.ReadSnapshotHeader(bytes.NewReader([]byte("definitely not a snapshot"))); !errors.Is(err, v6fs.ErrBadSnapshot) {
		t.Errorf("garbage header: %v instead of ErrBadSnapshot", err)
	}
	if _, err := v6fs.ReadSnapshotHeader(bytes.NewReader(nil)); err == nil {
		t.Errorf("empty stream should fail")
	}
}
