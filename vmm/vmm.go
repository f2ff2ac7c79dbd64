// Package vmm implements the virtual memory mapper: classic two-level 32-bit
// paging over 4 KiB pages, backed by frames obtained from pfa.Allocator.
//
// Every page table and every mapped frame is obtained from the allocator
// passed to New; no frame is ever mapped into two directories, since this
// system runs a single address space shared by kernel and tasks alike.
package vmm

import (
	"fmt"

	"github.com/ringzero-os/ringzero/fserrors"
	"github.com/ringzero-os/ringzero/pfa"
)

// PageSize is the size, in bytes, of one virtual page (and one physical
// frame; the two are always the same size in this design).
const PageSize = 4096

// EntriesPerTable is the number of entries in a page directory or page
// table.
const EntriesPerTable = 1024

// KernelVirtualBase is the higher-half address the kernel image is mapped
// to once paging is enabled.
const KernelVirtualBase = 0xC0000000

// Flags is the PDE/PTE flag set. The frame field occupies bits 12..31; a
// packed entry keeps only the low 12 bits of Flags, so PAT (bit 12) is not
// carried into it.
type Flags uint32

const (
	Present      Flags = 1 << 0
	RW           Flags = 1 << 1
	User         Flags = 1 << 2
	WriteThrough Flags = 1 << 3
	CacheDisable Flags = 1 << 4
	Accessed     Flags = 1 << 5
	Dirty        Flags = 1 << 6
	PS           Flags = 1 << 7
	Global       Flags = 1 << 8
	PAT          Flags = 1 << 12
)

const flagsMask = PageSize - 1

// entry is a single PDE or PTE: a frame address plus flag bits, exactly as
// they'd be packed into the low/high bits of a 32-bit hardware entry.
type entry struct {
	frame uint64
	flags Flags
}

func (e entry) present() bool { return e.flags&Present != 0 }

// packed returns the entry in the same bit layout as the real hardware
// would use: frame in bits 12..31, flags in bits 0..11.
func (e entry) packed() uint32 {
	return uint32(e.frame) & ^uint32(flagsMask) | (uint32(e.flags) & flagsMask)
}

type pageTable struct {
	entries [EntriesPerTable]entry
}

// Mapper owns a single page directory and the page tables it references. It
// is not safe for concurrent use; callers (notably the page-fault handler)
// must disable interrupts around calls into it.
type Mapper struct {
	alloc    *pfa.Allocator
	platform Platform

	directory    [EntriesPerTable]entry
	tables       map[uint64]*pageTable // keyed by the table's own frame address
	directoryPhy uint64
}

// New creates a Mapper that draws its page directory and page tables from
// `alloc`. If `platform` is nil, a NopPlatform is used, which is the right
// choice for any use of this package outside of a real kernel (tests, the
// image builder, simulation).
func New(alloc *pfa.Allocator, platform Platform) (*Mapper, error) {
	if platform == nil {
		platform = &NopPlatform{}
	}
	m := &Mapper{
		alloc:    alloc,
		platform: platform,
		tables:   make(map[uint64]*pageTable),
	}

	dirFrame, err := alloc.Alloc(1)
	if err != nil {
		return nil, fserrors.ErrOOM.Wrap(err)
	}
	m.directoryPhy = dirFrame

	return m, nil
}

func (m *Mapper) pageTableFor(virt uint64, create bool) (*pageTable, error) {
	dirIndex := (virt >> 22) & (EntriesPerTable - 1)
	de := m.directory[dirIndex]
	if de.present() {
		return m.tables[de.frame], nil
	}
	if !create {
		return nil, nil
	}

	frame, err := m.alloc.Alloc(1)
	if err != nil {
		return nil, fserrors.ErrOOM.Wrap(err)
	}
	table := &pageTable{}
	m.tables[frame] = table
	m.directory[dirIndex] = entry{frame: frame, flags: Present | RW}
	return table, nil
}

// Map ensures the directory entry for `virt` is present (allocating a fresh
// page table if necessary) and sets the PTE to point at `phys` with the
// given flags OR-ed in.
func (m *Mapper) Map(phys, virt uint64, flags Flags) error {
	if phys%PageSize != 0 || virt%PageSize != 0 {
		return fserrors.ErrInvalid.WithMessage(fmt.Sprintf(
			"phys %#x and virt %#x must be page-aligned", phys, virt,
		))
	}

	table, err := m.pageTableFor(virt, true)
	if err != nil {
		return err
	}

	tblIndex := (virt >> 12) & (EntriesPerTable - 1)
	table.entries[tblIndex] = entry{frame: phys, flags: flags | Present}
	return nil
}

// Unmap clears the present bit and frame of the PTE backing `virt`. It is a
// no-op if `virt` has no page table. When a page table exists, Unmap also
// issues the TLB invalidation for `virt` through Platform.InvalidatePage.
func (m *Mapper) Unmap(virt uint64) error {
	if virt%PageSize != 0 {
		return fserrors.ErrInvalid.WithMessage(fmt.Sprintf("virt %#x must be page-aligned", virt))
	}

	table, err := m.pageTableFor(virt, false)
	if err != nil {
		return err
	}
	if table == nil {
		return nil
	}

	tblIndex := (virt >> 12) & (EntriesPerTable - 1)
	table.entries[tblIndex] = entry{}
	m.platform.InvalidatePage(virt)
	return nil
}

// PTE is a read-only view of a page table entry, returned by GetPage.
type PTE struct {
	Present bool
	Frame   uint64
	Flags   Flags
}

// GetPage performs a read-only lookup of the PTE backing `virt`. It returns
// a zero PTE (Present == false) if there is no mapping.
func (m *Mapper) GetPage(virt uint64) (PTE, error) {
	table, err := m.pageTableFor(virt, false)
	if err != nil {
		return PTE{}, err
	}
	if table == nil {
		return PTE{}, nil
	}

	tblIndex := (virt >> 12) & (EntriesPerTable - 1)
	e := table.entries[tblIndex]
	return PTE{Present: e.present(), Frame: e.frame, Flags: e.flags}, nil
}

// IdentityMapRegion maps `size` bytes of virtual address space starting at
// `base` to the same physical addresses, rounded down/up to page
// boundaries. Used during Init to identity-map low memory.
func (m *Mapper) IdentityMapRegion(base, size uint64, flags Flags) error {
	start := base - (base % PageSize)
	end := base + size
	if end%PageSize != 0 {
		end += PageSize - (end % PageSize)
	}
	for addr := start; addr < end; addr += PageSize {
		if err := m.Map(addr, addr, flags); err != nil {
			return err
		}
	}
	return nil
}

// MapKernelImage maps `sizeBytes` worth of physical frames, starting at
// `loadAddr`, at the higher-half virtual base KernelVirtualBase.
func (m *Mapper) MapKernelImage(loadAddr, sizeBytes uint64, flags Flags) error {
	count := sizeBytes / PageSize
	if sizeBytes%PageSize != 0 {
		count++
	}
	for i := uint64(0); i < count; i++ {
		phys := loadAddr + i*PageSize
		virt := KernelVirtualBase + i*PageSize
		if err := m.Map(phys, virt, flags); err != nil {
			return err
		}
	}
	return nil
}

// SwitchDirectory installs this mapper's page directory into CR3 and enables
// paging; every call does both.
func (m *Mapper) SwitchDirectory() {
	m.platform.SetPageDirectory(m.directoryPhy)
	m.platform.EnablePaging()
}

// DirectoryAddress returns the physical address of the page directory, for
// diagnostics and tests.
func (m *Mapper) DirectoryAddress() uint64 {
	return m.directoryPhy
}

// HandlePageFault is the demand-mapping path: given the faulting address and
// a frame to back it with, map it in. If frame allocation failed upstream
// (the caller passes along an OOM), there is nothing left to do but halt:
// this system has no paging-to-disk to fall back on.
func (m *Mapper) HandlePageFault(virt uint64, frame uint64, flags Flags, allocErr error) error {
	if allocErr != nil {
		m.platform.Halt(fmt.Sprintf("page fault at %#x: %s", virt, allocErr))
		return allocErr
	}
	return m.Map(frame, virt, flags)
}
