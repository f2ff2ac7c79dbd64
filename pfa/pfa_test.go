package pfa_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringzero-os/ringzero/fserrors"
	"github.com/ringzero-os/ringzero/pfa"
)

func newTestAllocator(t *testing.T, freeBytes uint64) *pfa.Allocator {
	t.Helper()
	a := pfa.New(freeBytes)
	require.NoError(t, a.MarkRegionFree(0, freeBytes))
	return a
}

func TestNew__StartsWithEveryFrameUsed(t *testing.T) {
	a := pfa.New(16 * pfa.FrameSize)
	require.EqualValues(t, 16, a.InUse())
}

func TestMarkRegionFree__FrameZeroStaysReserved(t *testing.T) {
	a := newTestAllocator(t, 16*pfa.FrameSize)
	require.True(t, a.IsUsed(0))
}

func TestAlloc__FirstFitReturnsLowestRun(t *testing.T) {
	a := newTestAllocator(t, 16*pfa.FrameSize)

	addr, err := a.Alloc(2)
	require.NoError(t, err)
	require.EqualValues(t, pfa.FrameSize, addr, "frame 0 is reserved, so the first run starts at frame 1")
	require.True(t, a.IsUsed(pfa.FrameSize))
	require.True(t, a.IsUsed(2*pfa.FrameSize))
}

func TestAlloc__SkipsFullyUsedWords(t *testing.T) {
	a := newTestAllocator(t, 128*pfa.FrameSize)

	_, err := a.Alloc(63)
	require.NoError(t, err)

	addr, err := a.Alloc(1)
	require.NoError(t, err)
	require.EqualValues(t, 64*pfa.FrameSize, addr)
}

func TestAlloc__ReturnsOOMWhenExhausted(t *testing.T) {
	a := newTestAllocator(t, 4*pfa.FrameSize)

	_, err := a.Alloc(4) // only 3 usable frames (frame 0 reserved)
	require.ErrorIs(t, err, fserrors.ErrOOM)
}

func TestFree__MakesFramesReusable(t *testing.T) {
	a := newTestAllocator(t, 8*pfa.FrameSize)

	addr, err := a.Alloc(2)
	require.NoError(t, err)
	require.NoError(t, a.Free(addr, 2))
	require.False(t, a.IsUsed(addr))

	again, err := a.Alloc(2)
	require.NoError(t, err)
	require.Equal(t, addr, again)
}

func TestMarkRegionUsed__ReservesWithoutAllocating(t *testing.T) {
	a := newTestAllocator(t, 8*pfa.FrameSize)
	require.NoError(t, a.MarkRegionUsed(2*pfa.FrameSize, pfa.FrameSize))
	require.True(t, a.IsUsed(2*pfa.FrameSize))
}
