package vmm

import "github.com/ringzero-os/ringzero/pfa"

// InitKernelMapper builds the mapper a kernel installs at boot: the low
// 4 MiB identity-mapped (so code executing at its physical load address
// keeps running after paging turns on), the kernel image itself mapped at
// the higher-half base, and the directory switched in.
//
// It costs exactly three frames in the common case: the directory, one page
// table for the identity-mapped low 4 MiB region, and one page table for the
// kernel image's higher-half mapping (4 MiB each covers exactly one page
// table's worth of 4 KiB pages).
func InitKernelMapper(alloc *pfa.Allocator, platform Platform, kernelLoadAddr, kernelSizeBytes uint64) (*Mapper, error) {
	m, err := New(alloc, platform)
	if err != nil {
		return nil, err
	}

	const identityMapSize = 4 * 1024 * 1024 // 4 MiB
	if err := m.IdentityMapRegion(0, identityMapSize, Present|RW); err != nil {
		return nil, err
	}

	if err := m.MapKernelImage(kernelLoadAddr, kernelSizeBytes, Present|RW|Global); err != nil {
		return nil, err
	}

	m.SwitchDirectory()
	return m, nil
}
