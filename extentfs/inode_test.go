package extentfs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringzero-os/ringzero/extentfs"
)

func TestInode__MarshalUnmarshalRoundTrips(t *testing.T) {
	in := extentfs.Inode{
		ID:           7,
		Type:         extentfs.TypeFile,
		SizeBytes:    9000,
		SizeSectors:  18,
		LastModified: extentfs.DateTime{Second: 1, Minute: 2, Hour: 3, Day: 4, Month: 5, Year: 2026},
		RefCount:     1,
	}
	in.Extents[0] = extentfs.Extent{FirstBlock: 10, LengthBlocks: 2}
	in.Extents[1] = extentfs.Extent{FirstBlock: 20, LengthBlocks: 1}

	buf := in.MarshalBinary()
	require.Len(t, buf, extentfs.InodeSize)

	got := extentfs.UnmarshalInode(buf)
	require.Equal(t, in, got)
}

func TestInode__AllocatedTracksType(t *testing.T) {
	var in extentfs.Inode
	require.False(t, in.Allocated())
	in.Type = extentfs.TypeDir
	require.True(t, in.Allocated())
	require.True(t, in.IsDir())
	require.False(t, in.IsFile())
}
