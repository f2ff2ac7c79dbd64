package extentfs

import "github.com/ringzero-os/ringzero/fserrors"

// dirSlot identifies one 64-byte directory-entry slot by its absolute block
// number and byte offset within that block, plus the slot's linear index
// within the directory (slot 0 is always ".", slot 1 is always "..").
type dirSlot struct {
	index       int
	block       uint32
	blockOffset uint32
	entry       DirEntry
}

// forEachDirSlot visits every directory-entry slot covered by the
// directory's direct extents, in order, up to inode.SizeBytes. Indirect
// extents are not walked; they're reserved for a future implementation
// (see MaxFileSizeBytes).
//
// fn returning stop==true ends the walk early.
func (m *Mount) forEachDirSlot(inode *Inode, fn func(slot dirSlot) (stop bool, err error)) error {
	if inode.SingleIndirectBlock != 0 || inode.DoubleIndirectBlock != 0 {
		return fserrors.ErrNotImplemented.WithMessage("indirect directory extents are not supported")
	}

	remaining := inode.SizeBytes
	slotIndex := 0
	buf := make([]byte, BlockSize)

	for _, ext := range inode.Extents {
		if ext.Empty() || remaining == 0 {
			continue
		}
		for b := uint32(0); b < ext.LengthBlocks && remaining > 0; b++ {
			blockNum := ext.FirstBlock + b
			if err := readBlock(m.dev, blockNum, buf); err != nil {
				return err
			}
			for off := uint32(0); off+DirEntrySize <= BlockSize && remaining > 0; off += DirEntrySize {
				entry := UnmarshalDirEntry(buf[off : off+DirEntrySize])
				stop, err := fn(dirSlot{
					index:       slotIndex,
					block:       blockNum,
					blockOffset: off,
					entry:       entry,
				})
				if err != nil {
					return err
				}
				slotIndex++
				if remaining >= DirEntrySize {
					remaining -= DirEntrySize
				} else {
					remaining = 0
				}
				if stop {
					return nil
				}
			}
		}
	}
	return nil
}

// writeDirSlot persists a single directory-entry slot in place.
func (m *Mount) writeDirSlot(slot dirSlot, entry DirEntry) error {
	buf := make([]byte, BlockSize)
	if err := readBlock(m.dev, slot.block, buf); err != nil {
		return err
	}
	packed, err := entry.MarshalBinary()
	if err != nil {
		return err
	}
	copy(buf[slot.blockOffset:slot.blockOffset+DirEntrySize], packed)
	return writeBlock(m.dev, slot.block, buf)
}
