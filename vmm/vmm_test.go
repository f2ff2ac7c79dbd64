package vmm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ringzero-os/ringzero/pfa"
	"github.com/ringzero-os/ringzero/vmm"
)

func newTestAllocator(t *testing.T) *pfa.Allocator {
	t.Helper()
	a := pfa.New(16 * 1024 * 1024)
	require.NoError(t, a.MarkRegionFree(0, 16*1024*1024))
	return a
}

func TestMap__RoundTripsThroughGetPage(t *testing.T) {
	alloc := newTestAllocator(t)
	m, err := vmm.New(alloc, nil)
	require.NoError(t, err)

	phys, err := alloc.Alloc(1)
	require.NoError(t, err)
	virt := uint64(0x400000)

	require.NoError(t, m.Map(phys, virt, vmm.Present|vmm.RW))

	pte, err := m.GetPage(virt)
	require.NoError(t, err)
	require.True(t, pte.Present)
	require.Equal(t, phys, pte.Frame)
}

func TestGetPage__UnmappedAddressIsNotPresent(t *testing.T) {
	alloc := newTestAllocator(t)
	m, err := vmm.New(alloc, nil)
	require.NoError(t, err)

	pte, err := m.GetPage(0x12345000)
	require.NoError(t, err)
	require.False(t, pte.Present)
}

func TestUnmap__ClearsMapping(t *testing.T) {
	alloc := newTestAllocator(t)
	m, err := vmm.New(alloc, nil)
	require.NoError(t, err)

	phys, err := alloc.Alloc(1)
	require.NoError(t, err)
	virt := uint64(0x600000)
	require.NoError(t, m.Map(phys, virt, vmm.Present|vmm.RW))

	require.NoError(t, m.Unmap(virt))
	pte, err := m.GetPage(virt)
	require.NoError(t, err)
	require.False(t, pte.Present)
}

func TestMap__RejectsUnalignedAddresses(t *testing.T) {
	alloc := newTestAllocator(t)
	m, err := vmm.New(alloc, nil)
	require.NoError(t, err)

	err = m.Map(1, vmm.PageSize, vmm.Present)
	require.Error(t, err)
}

func TestIdentityMapRegion__MapsEveryPageInRange(t *testing.T) {
	alloc := newTestAllocator(t)
	m, err := vmm.New(alloc, nil)
	require.NoError(t, err)

	require.NoError(t, m.IdentityMapRegion(0, 3*vmm.PageSize, vmm.Present|vmm.RW))

	for i := uint64(0); i < 3; i++ {
		pte, err := m.GetPage(i * vmm.PageSize)
		require.NoError(t, err)
		require.True(t, pte.Present)
		require.Equal(t, i*vmm.PageSize, pte.Frame)
	}
}

func TestMapKernelImage__MapsAtHigherHalfBase(t *testing.T) {
	alloc := newTestAllocator(t)
	m, err := vmm.New(alloc, nil)
	require.NoError(t, err)

	loadAddr, err := alloc.Alloc(2)
	require.NoError(t, err)
	require.NoError(t, m.MapKernelImage(loadAddr, 2*vmm.PageSize, vmm.Present|vmm.RW))

	pte, err := m.GetPage(vmm.KernelVirtualBase)
	require.NoError(t, err)
	require.True(t, pte.Present)
	require.Equal(t, loadAddr, pte.Frame)
}

func TestHandlePageFault__HaltsOnAllocationFailure(t *testing.T) {
	alloc := newTestAllocator(t)
	platform := &vmm.NopPlatform{}
	m, err := vmm.New(alloc, platform)
	require.NoError(t, err)

	allocErr := fakeOOM()
	err = m.HandlePageFault(0x800000, 0, vmm.Present, allocErr)
	require.Error(t, err)
	require.NotEmpty(t, platform.HaltedReason())
}

func fakeOOM() error {
	return &oomError{}
}

type oomError struct{}

func (*oomError) Error() string { return "out of memory" }

func TestInitKernelMapper__IdentityMapsLowMemoryAndKernelImage(t *testing.T) {
	alloc := newTestAllocator(t)
	platform := &vmm.NopPlatform{}

	m, err := vmm.InitKernelMapper(alloc, platform, 0x100000, vmm.PageSize)
	require.NoError(t, err)

	pte, err := m.GetPage(0)
	require.NoError(t, err)
	require.True(t, pte.Present, "low memory should be identity-mapped")

	kernelPTE, err := m.GetPage(vmm.KernelVirtualBase)
	require.NoError(t, err)
	require.True(t, kernelPTE.Present)
	require.EqualValues(t, 0x100000, kernelPTE.Frame)
}
