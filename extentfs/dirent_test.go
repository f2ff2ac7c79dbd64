package extentfs_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringzero-os/ringzero/extentfs"
)

func TestDirEntry__MarshalUnmarshalRoundTrips(t *testing.T) {
	d := extentfs.DirEntry{ID: 42, Name: "README.md"}
	buf, err := d.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, extentfs.DirEntrySize)

	got := extentfs.UnmarshalDirEntry(buf)
	require.Equal(t, d, got)
}

func TestDirEntry__TombstoneHasZeroID(t *testing.T) {
	require.True(t, extentfs.DirEntry{}.Tombstone())
	require.False(t, extentfs.DirEntry{ID: 1}.Tombstone())
}

func TestDirEntry__RejectsOverlongName(t *testing.T) {
	d := extentfs.DirEntry{ID: 1, Name: strings.Repeat("x", extentfs.MaxNameLength+1)}
	_, err := d.MarshalBinary()
	require.Error(t, err)
}
