package extentfs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringzero-os/ringzero/extentfs"
)

func TestSuperblock__MarshalUnmarshalRoundTrips(t *testing.T) {
	sb := extentfs.NewSuperblock(128, 4096)
	buf := sb.MarshalBinary()
	require.Len(t, buf, 64)

	got := extentfs.UnmarshalSuperblock(buf)
	// RootInodePointer is intentionally not marshaled.
	sb.RootInodePointer = 0
	require.Equal(t, sb, got)
}

func TestNewSuperblock__LaysOutBlocksInOrder(t *testing.T) {
	sb := extentfs.NewSuperblock(32, 64)

	require.EqualValues(t, 2, sb.FirstInodeBitmapBlock)
	require.Greater(t, sb.FirstDataBitmapBlock, sb.FirstInodeBitmapBlock)
	require.Greater(t, sb.FirstInodeBlock, sb.FirstDataBitmapBlock)
	require.Greater(t, sb.FirstDataBlock, sb.FirstInodeBlock)
	require.EqualValues(t, 64, sb.NumDataBlocks)
}
