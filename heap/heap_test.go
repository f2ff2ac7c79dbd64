package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringzero-os/ringzero/heap"
	"github.com/ringzero-os/ringzero/pfa"
	"github.com/ringzero-os/ringzero/vmm"
)

func newTestHeap(t *testing.T, minBytes uint) *heap.Heap {
	t.Helper()
	alloc := pfa.New(16 * 1024 * 1024)
	require.NoError(t, alloc.MarkRegionFree(0, 16*1024*1024))

	mapper, err := vmm.New(alloc, nil)
	require.NoError(t, err)

	h, err := heap.NewKernel(alloc, mapper, minBytes)
	require.NoError(t, err)
	return h
}

func TestAlloc__FirstFitSplitsBlock(t *testing.T) {
	h := newTestHeap(t, vmm.PageSize)

	ptr, err := h.Alloc(64)
	require.NoError(t, err)
	require.NotZero(t, ptr)

	blocks := h.Blocks()
	require.Len(t, blocks, 2, "allocating less than the whole region should split off a free tail")
	require.False(t, blocks[0].Free)
	require.EqualValues(t, 64, blocks[0].Size)
	require.True(t, blocks[1].Free)
}

func TestAlloc__ExactFitDoesNotSplit(t *testing.T) {
	h := newTestHeap(t, vmm.PageSize)
	whole := h.Blocks()[0].Size

	_, err := h.Alloc(whole)
	require.NoError(t, err)

	blocks := h.Blocks()
	require.Len(t, blocks, 1)
	require.False(t, blocks[0].Free)
}

func TestFree__CoalescesAdjacentBlocks(t *testing.T) {
	h := newTestHeap(t, vmm.PageSize)

	a, err := h.Alloc(32)
	require.NoError(t, err)
	b, err := h.Alloc(32)
	require.NoError(t, err)
	_, err = h.Alloc(32)
	require.NoError(t, err)

	require.NoError(t, h.Free(a))
	require.NoError(t, h.Free(b))

	blocks := h.Blocks()
	freeCount := 0
	for i := 0; i < len(blocks)-1; i++ {
		if blocks[i].Free && blocks[i+1].Free {
			t.Fatalf("adjacent free blocks at %d,%d were not coalesced", i, i+1)
		}
		if blocks[i].Free {
			freeCount++
		}
	}
	require.GreaterOrEqual(t, freeCount, 1)
}

func TestAlloc__GrowsWhenNoBlockFits(t *testing.T) {
	h := newTestHeap(t, vmm.PageSize)

	_, err := h.Alloc(vmm.PageSize - 16)
	require.NoError(t, err)

	ptr, err := h.Alloc(256)
	require.NoError(t, err, "allocator should grow the heap by mapping more pages")
	require.NotZero(t, ptr)
}

func TestFree__RejectsUnknownPointer(t *testing.T) {
	h := newTestHeap(t, vmm.PageSize)
	err := h.Free(heap.KernelHeapBase + 4096)
	require.Error(t, err)
}
