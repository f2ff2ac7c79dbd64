// Package heap implements the intrusive free-list allocator described in the
// spec: a single singly-linked list of blocks living in a contiguous virtual
// region, growing on demand by asking the physical frame allocator and the
// virtual memory mapper for more pages.
//
// Two instances of this same design exist in a running kernel (one for
// kernel-space allocations, one for user-space); NewKernel and NewUser below
// just point the same implementation at different virtual bases.
package heap

import (
	"fmt"

	"github.com/ringzero-os/ringzero/fserrors"
	"github.com/ringzero-os/ringzero/pfa"
	"github.com/ringzero-os/ringzero/vmm"
)

// headerSize is the simulated size of the intrusive block header
// ({size: u32, free: bool, next: header*}) that every payload is offset
// past. It sets the threshold for whether an allocation splits a new free
// block off the one it takes. Requested sizes are not rounded, so payload
// addresses are not aligned to headerSize.
const headerSize = 9

// KernelHeapBase and UserHeapBase are the fixed virtual addresses the two
// heap instances are rooted at.
const (
	KernelHeapBase = 0xD0000000
	UserHeapBase   = 0x40000000
)

// block describes one node of the intrusive free list. offset is relative
// to the heap's virtual base; blocks is always kept sorted by offset, which
// is the list's virtual-address-order invariant.
type block struct {
	offset uint32
	size   uint32
	free   bool
}

// Heap is a first-fit intrusive allocator over a virtual region obtained
// from a pfa.Allocator/vmm.Mapper pair.
type Heap struct {
	alloc  *pfa.Allocator
	mapper *vmm.Mapper
	base   uint64
	data   []byte
	blocks []block
}

func newHeap(base uint64, alloc *pfa.Allocator, mapper *vmm.Mapper) *Heap {
	return &Heap{base: base, alloc: alloc, mapper: mapper}
}

// NewKernel creates the kernel-space heap instance.
func NewKernel(alloc *pfa.Allocator, mapper *vmm.Mapper, minBytes uint) (*Heap, error) {
	h := newHeap(KernelHeapBase, alloc, mapper)
	return h, h.init(minBytes)
}

// NewUser creates the user-space heap instance. Its design is identical to
// the kernel heap's; only the virtual base differs.
func NewUser(alloc *pfa.Allocator, mapper *vmm.Mapper, minBytes uint) (*Heap, error) {
	h := newHeap(UserHeapBase, alloc, mapper)
	return h, h.init(minBytes)
}

func numPages(nbytes uint) uint {
	pages := nbytes / vmm.PageSize
	if nbytes%vmm.PageSize != 0 {
		pages++
	}
	return pages
}

// init rounds minBytes up to whole pages, obtains that many frames, maps
// them at consecutive virtual addresses, and writes a single free block
// header spanning the whole region.
func (h *Heap) init(minBytes uint) error {
	pages := numPages(minBytes)
	if pages == 0 {
		pages = 1
	}
	if err := h.mapPages(0, pages); err != nil {
		return err
	}

	totalBytes := pages * vmm.PageSize
	h.data = make([]byte, totalBytes)
	h.blocks = []block{{offset: 0, size: uint32(totalBytes) - headerSize, free: true}}
	return nil
}

// mapPages allocates `count` contiguous frames and maps them at virtual
// addresses base+pageOffset*PageSize .. base+(pageOffset+count)*PageSize.
func (h *Heap) mapPages(pageOffset, count uint) error {
	frame, err := h.alloc.Alloc(count)
	if err != nil {
		return fserrors.ErrOOM.Wrap(err)
	}
	for i := uint(0); i < count; i++ {
		virt := h.base + uint64(pageOffset+i)*vmm.PageSize
		phys := frame + uint64(i)*vmm.PageSize
		if err := h.mapper.Map(phys, virt, vmm.Present|vmm.RW); err != nil {
			return err
		}
	}
	return nil
}

// Alloc returns a pointer (a virtual address) to a payload of at least n
// usable bytes, or an error satisfying errors.Is(err, fserrors.ErrOOM) if
// growth failed.
func (h *Heap) Alloc(n uint32) (uint64, error) {
	if n == 0 {
		return 0, fserrors.ErrInvalid.WithMessage("cannot allocate zero bytes")
	}

	idx := h.findFirstFit(n)
	if idx < 0 {
		if err := h.grow(n); err != nil {
			return 0, err
		}
		idx = h.findFirstFit(n)
		if idx < 0 {
			return 0, fserrors.ErrOOM.WithMessage("grew heap but still found no fit")
		}
	}

	h.takeBlock(idx, n)
	return h.base + uint64(h.blocks[idx].offset) + headerSize, nil
}

func (h *Heap) findFirstFit(n uint32) int {
	for i, b := range h.blocks {
		if b.free && b.size >= n {
			return i
		}
	}
	return -1
}

// takeBlock marks blocks[idx] allocated, splitting off a trailing free block
// if there's enough room left to justify a new header.
func (h *Heap) takeBlock(idx int, n uint32) {
	b := h.blocks[idx]
	if b.size > n+headerSize {
		newBlock := block{
			offset: b.offset + headerSize + n,
			size:   b.size - n - headerSize,
			free:   true,
		}
		h.blocks[idx].size = n
		h.blocks[idx].free = false
		h.blocks = append(h.blocks, block{})
		copy(h.blocks[idx+2:], h.blocks[idx+1:])
		h.blocks[idx+1] = newBlock
	} else {
		h.blocks[idx].free = false
	}
}

// grow maps enough additional pages to make the tail block (whether free or
// not) large enough to satisfy an n-byte request, then folds the new space
// into a trailing free block.
func (h *Heap) grow(n uint32) error {
	tail := h.blocks[len(h.blocks)-1]

	var needed uint32
	if tail.free {
		if tail.size >= n {
			return nil
		}
		needed = n - tail.size
	} else {
		needed = n + headerSize
	}

	oldPages := numPages(uint(len(h.data)))
	growBytes := uint(needed)
	growPages := numPages(growBytes)
	if growPages == 0 {
		growPages = 1
	}

	if err := h.mapPages(oldPages, growPages); err != nil {
		return err
	}

	oldLen := uint32(len(h.data))
	h.data = append(h.data, make([]byte, growPages*vmm.PageSize)...)
	addedBytes := uint32(len(h.data)) - oldLen

	if tail.free {
		h.blocks[len(h.blocks)-1].size += addedBytes
	} else {
		h.blocks = append(h.blocks, block{
			offset: oldLen,
			size:   addedBytes - headerSize,
			free:   true,
		})
	}
	return nil
}

func (h *Heap) blockIndexForPtr(ptr uint64) (int, error) {
	if ptr < h.base+headerSize {
		return -1, fserrors.ErrInvalid.WithMessage(fmt.Sprintf("pointer %#x is below the heap", ptr))
	}
	offset := uint32(ptr-h.base) - headerSize
	for i, b := range h.blocks {
		if b.offset == offset {
			return i, nil
		}
	}
	return -1, fserrors.ErrInvalid.WithMessage(fmt.Sprintf("pointer %#x is not a live allocation", ptr))
}

// Free marks the block backing ptr (a value previously returned by Alloc) as
// free, then coalesces it with any adjacent free blocks.
func (h *Heap) Free(ptr uint64) error {
	idx, err := h.blockIndexForPtr(ptr)
	if err != nil {
		return err
	}
	h.blocks[idx].free = true
	h.coalesce()
	return nil
}

// coalesce merges every run of adjacent free blocks into one, left to right,
// restoring the invariant that no two adjacent free blocks exist after a
// free.
func (h *Heap) coalesce() {
	merged := h.blocks[:0]
	for _, b := range h.blocks {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.free && b.free {
				last.size += headerSize + b.size
				continue
			}
		}
		merged = append(merged, b)
	}
	h.blocks = merged
}

// Stats is a snapshot of the block list, used by tests to check the
// no-two-adjacent-free-blocks invariant without exposing the block type.
type Stats struct {
	Offset uint32
	Size   uint32
	Free   bool
}

// Blocks returns the current block list in virtual-address order.
func (h *Heap) Blocks() []Stats {
	out := make([]Stats, len(h.blocks))
	for i, b := range h.blocks {
		out[i] = Stats{Offset: b.offset, Size: b.size, Free: b.free}
	}
	return out
}
