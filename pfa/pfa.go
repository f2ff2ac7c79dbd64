// Package pfa implements the physical frame allocator: a bitmap over fixed
// 4 KiB physical frames, with first-fit contiguous-run allocation.
package pfa

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/ringzero-os/ringzero/fserrors"
)

// FrameSize is the size, in bytes, of one physical frame.
const FrameSize = 4096

// wordBits is the granularity the allocator uses to skip over fully-used
// regions of the bitmap before falling back to a bit-by-bit scan.
const wordBits = 32

// Allocator tracks which physical frames are in use. The zero value is not
// usable; construct one with New.
type Allocator struct {
	used      bitmap.Bitmap
	maxFrames uint
	inUse     uint
}

// New creates an Allocator over `totalMemory` bytes, rounded down to the
// nearest frame. Every frame starts out marked used: callers must
// explicitly call MarkRegionFree for the ranges the memory map reports as
// available.
func New(totalMemory uint64) *Allocator {
	maxFrames := uint(totalMemory / FrameSize)
	a := &Allocator{
		used:      bitmap.New(int(maxFrames)),
		maxFrames: maxFrames,
	}
	for i := uint(0); i < maxFrames; i++ {
		a.used.Set(int(i), true)
	}
	a.inUse = maxFrames
	return a
}

// MaxFrames returns the total number of frames tracked by the allocator.
func (a *Allocator) MaxFrames() uint {
	return a.maxFrames
}

// InUse returns the number of frames currently marked allocated.
func (a *Allocator) InUse() uint {
	return a.inUse
}

func (a *Allocator) frameRange(base, size uint64) (uint, uint, error) {
	if base%FrameSize != 0 || size%FrameSize != 0 {
		return 0, 0, fserrors.ErrInvalid.WithMessage(fmt.Sprintf(
			"base %#x and size %#x must both be frame-aligned (%d bytes)",
			base, size, FrameSize,
		))
	}
	first := uint(base / FrameSize)
	count := uint(size / FrameSize)
	if first+count > a.maxFrames {
		return 0, 0, fserrors.ErrInvalid.WithMessage(fmt.Sprintf(
			"region [%d, %d) frames exceeds %d tracked frames",
			first, first+count, a.maxFrames,
		))
	}
	return first, count, nil
}

// MarkRegionFree clears the bits covering [base, base+size) in frame units.
// Frame 0 is always forced back to "used" afterwards so the null frame can
// never be handed out.
func (a *Allocator) MarkRegionFree(base, size uint64) error {
	first, count, err := a.frameRange(base, size)
	if err != nil {
		return err
	}
	for i := first; i < first+count; i++ {
		if a.used.Get(int(i)) {
			a.used.Set(int(i), false)
			a.inUse--
		}
	}
	if !a.used.Get(0) {
		a.used.Set(0, true)
		a.inUse++
	}
	return nil
}

// MarkRegionUsed sets the bits covering [base, base+size) in frame units.
func (a *Allocator) MarkRegionUsed(base, size uint64) error {
	first, count, err := a.frameRange(base, size)
	if err != nil {
		return err
	}
	for i := first; i < first+count; i++ {
		if !a.used.Get(int(i)) {
			a.used.Set(int(i), true)
			a.inUse++
		}
	}
	return nil
}

func (a *Allocator) wordFullyUsed(wordStart uint) bool {
	end := wordStart + wordBits
	if end > a.maxFrames {
		end = a.maxFrames
	}
	for i := wordStart; i < end; i++ {
		if !a.used.Get(int(i)) {
			return false
		}
	}
	return true
}

// Alloc finds the lowest-indexed run of `n` contiguous free frames,
// marks them used, and returns the physical address of the first one. It
// returns fserrors.ErrOOM if no such run exists.
//
// The search skips fully-allocated 32-bit words before falling back to a
// bit-by-bit scan within (and past) a word that has at least one clear bit,
// so a run spanning a word boundary is still found.
func (a *Allocator) Alloc(n uint) (uint64, error) {
	if n == 0 {
		return 0, fserrors.ErrInvalid.WithMessage("cannot allocate zero frames")
	}
	if a.inUse+n > a.maxFrames {
		return 0, fserrors.ErrOOM
	}

	for i := uint(0); i+n <= a.maxFrames; {
		wordStart := i - (i % wordBits)
		if a.wordFullyUsed(wordStart) {
			i = wordStart + wordBits
			continue
		}

		if a.used.Get(int(i)) {
			i++
			continue
		}

		run := true
		for j := uint(0); j < n; j++ {
			if a.used.Get(int(i + j)) {
				run = false
				break
			}
		}
		if run {
			for j := uint(0); j < n; j++ {
				a.used.Set(int(i+j), true)
			}
			a.inUse += n
			return uint64(i) * FrameSize, nil
		}
		i++
	}
	return 0, fserrors.ErrOOM
}

// Free clears the `n` bits starting at addr/FrameSize.
func (a *Allocator) Free(addr uint64, n uint) error {
	first, count, err := a.frameRange(addr, uint64(n)*FrameSize)
	if err != nil {
		return err
	}
	for i := first; i < first+count; i++ {
		if a.used.Get(int(i)) {
			a.used.Set(int(i), false)
			a.inUse--
		}
	}
	return nil
}

// IsUsed reports whether the frame at the given physical address is
// currently allocated. It exists mainly for tests.
func (a *Allocator) IsUsed(addr uint64) bool {
	frame := uint(addr / FrameSize)
	if frame >= a.maxFrames {
		return false
	}
	return a.used.Get(int(frame))
}
