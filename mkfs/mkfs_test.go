package mkfs_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/ringzero-os/ringzero/blockdev"
	"github.com/ringzero-os/ringzero/extentfs"
	"github.com/ringzero-os/ringzero/extentfs/fsck"
	"github.com/ringzero-os/ringzero/mkfs"
	"github.com/ringzero-os/ringzero/utilities/compression"
)

func TestBuild__PacksFilesAndProducesConsistentImage(t *testing.T) {
	dir := t.TempDir()
	hostPath := filepath.Join(dir, "greeting.txt")
	require.NoError(t, os.WriteFile(hostPath, []byte("hello, ringzero"), 0o644))

	var out bytes.Buffer
	err := mkfs.Build(&out, mkfs.Options{
		TotalSizeBytes: 512 * 1024,
		Files:          []mkfs.HostFile{{HostPath: hostPath}},
	})
	require.NoError(t, err)

	image := out.Bytes()
	require.Equal(t, []byte("RZBOOT01"), image[:8], "boot stub signature should be stamped at block 0")

	stream := bytesextra.NewReadWriteSeeker(image)
	dev, err := blockdev.NewFromStream(stream)
	require.NoError(t, err)

	mount, err := extentfs.MountDevice(dev)
	require.NoError(t, err)
	require.NoError(t, fsck.Check(mount))

	entries, err := mount.ListPath("/")
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.Name == "greeting.txt" {
			found = true
		}
	}
	require.True(t, found)

	f, err := mount.Open("/greeting.txt", extentfs.ORDONLY)
	require.NoError(t, err)
	buf := make([]byte, len("hello, ringzero"))
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello, ringzero", string(buf[:n]))
}

func TestBuild__UsesGeometryPresetWhenGiven(t *testing.T) {
	var out bytes.Buffer
	err := mkfs.Build(&out, mkfs.Options{GeometrySlug: "1.44M"})
	require.NoError(t, err)
	require.NotZero(t, out.Len())
}

func TestBuild__RejectsSizeNotAMultipleOfBlockSize(t *testing.T) {
	var out bytes.Buffer
	err := mkfs.Build(&out, mkfs.Options{TotalSizeBytes: extentfs.BlockSize + 1})
	require.Error(t, err)
}

// TestBuild__ImageCompressesRoundTrips exercises the RLE8+gzip fixture
// format: a built image, mostly zero-filled padding, should compress and
// decompress back byte-for-byte, the same shape of fixture cmd/mkfs's own
// test data and any checked-in sample images would use.
func TestBuild__ImageCompressesRoundTrips(t *testing.T) {
	var out bytes.Buffer
	err := mkfs.Build(&out, mkfs.Options{TotalSizeBytes: 256 * 1024})
	require.NoError(t, err)
	original := out.Bytes()

	var compressed bytes.Buffer
	_, err = compression.CompressImage(bytes.NewReader(original), &compressed)
	require.NoError(t, err)
	require.Less(t, compressed.Len(), len(original), "a mostly-zero image should compress smaller")

	restored, err := compression.DecompressImageToBytes(&compressed)
	require.NoError(t, err)
	require.Equal(t, original, restored)
}
