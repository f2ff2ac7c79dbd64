package blockdev_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/ringzero-os/ringzero/blockdev"
	"github.com/ringzero-os/ringzero/fserrors"
)

func newTestDevice(t *testing.T, totalSectors uint) *blockdev.Device {
	t.Helper()
	image := make([]byte, totalSectors*blockdev.SectorSize)
	stream := bytesextra.NewReadWriteSeeker(image)
	return blockdev.New(stream, totalSectors)
}

func TestRW__WriteThenReadRoundTrips(t *testing.T) {
	dev := newTestDevice(t, 4)

	out := make([]byte, 2*blockdev.SectorSize)
	for i := range out {
		out[i] = byte(i)
	}
	require.NoError(t, dev.RW(2, 1, out, blockdev.Write))

	in := make([]byte, 2*blockdev.SectorSize)
	require.NoError(t, dev.RW(2, 1, in, blockdev.Read))
	require.Equal(t, out, in)
}

func TestRW__RejectsOutOfBoundsRange(t *testing.T) {
	dev := newTestDevice(t, 4)
	buffer := make([]byte, blockdev.SectorSize)
	err := dev.RW(1, 4, buffer, blockdev.Read)
	require.ErrorIs(t, err, fserrors.ErrIO)
}

func TestRW__RejectsMismatchedBufferLength(t *testing.T) {
	dev := newTestDevice(t, 4)
	buffer := make([]byte, blockdev.SectorSize+1)
	err := dev.RW(1, 0, buffer, blockdev.Read)
	require.ErrorIs(t, err, fserrors.ErrInvalid)
}

func TestReadBlockWriteBlock__RoundTrip(t *testing.T) {
	dev := newTestDevice(t, 4)

	block := make([]byte, 2*blockdev.SectorSize)
	for i := range block {
		block[i] = byte(0xAA)
	}
	require.NoError(t, dev.WriteBlock(2, block))

	readBack := make([]byte, 2*blockdev.SectorSize)
	require.NoError(t, dev.ReadBlock(2, readBack))
	require.Equal(t, block, readBack)
}

func TestNewFromStream__DerivesSectorCountFromStreamLength(t *testing.T) {
	image := make([]byte, 8*blockdev.SectorSize)
	stream := bytesextra.NewReadWriteSeeker(image)

	dev, err := blockdev.NewFromStream(stream)
	require.NoError(t, err)
	require.EqualValues(t, 8, dev.TotalSectors())

	// The stream position must be left at the start for the first real RW.
	buffer := make([]byte, blockdev.SectorSize)
	require.NoError(t, dev.RW(1, 0, buffer, blockdev.Read))
}

func TestMode__StringsDescribeDirection(t *testing.T) {
	require.Equal(t, "READ", blockdev.Read.String())
	require.Equal(t, "WRITE", blockdev.Write.String())
}
