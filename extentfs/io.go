package extentfs

import (
	"github.com/ringzero-os/ringzero/blockdev"
	"github.com/ringzero-os/ringzero/fserrors"
)

// readExtents implements `load(inode, addr)`: for each direct extent, issue
// one block-device read covering the whole extent, concatenating the
// results. Indirect extents are reserved; an inode that uses them fails
// with fserrors.ErrNotImplemented.
func (m *Mount) readExtents(inode *Inode) ([]byte, error) {
	if inode.SingleIndirectBlock != 0 || inode.DoubleIndirectBlock != 0 {
		return nil, fserrors.ErrNotImplemented.WithMessage("indirect file extents are not supported")
	}

	out := make([]byte, 0, inode.SizeInBlocks()*BlockSize)
	for _, ext := range inode.Extents {
		if ext.Empty() {
			continue
		}
		chunk := make([]byte, ext.LengthBlocks*BlockSize)
		err := m.dev.RW(
			uint16(ext.LengthBlocks*SectorsPerBlock),
			ext.FirstBlock*SectorsPerBlock,
			chunk,
			blockdev.Read,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// writeExtents implements `save(inode, addr)`: symmetric with readExtents.
// `data` must be no larger than the inode's total allocated extent bytes;
// growing the inode's extents is the caller's responsibility (see
// growExtents) — save alone never grows extents.
func (m *Mount) writeExtents(inode *Inode, data []byte) error {
	if inode.SingleIndirectBlock != 0 || inode.DoubleIndirectBlock != 0 {
		return fserrors.ErrNotImplemented.WithMessage("indirect file extents are not supported")
	}

	offset := 0
	for _, ext := range inode.Extents {
		if ext.Empty() {
			continue
		}
		extentBytes := int(ext.LengthBlocks) * BlockSize
		if offset >= len(data) {
			break
		}
		end := offset + extentBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, extentBytes)
		copy(chunk, data[offset:end])

		err := m.dev.RW(
			uint16(ext.LengthBlocks*SectorsPerBlock),
			ext.FirstBlock*SectorsPerBlock,
			chunk,
			blockdev.Write,
		)
		if err != nil {
			return err
		}
		offset = end
	}
	return nil
}

// allocatedBytes returns the total byte capacity of an inode's direct
// extents, regardless of SizeBytes.
func (inode *Inode) allocatedBytes() uint32 {
	var total uint32
	for _, ext := range inode.Extents {
		total += ext.LengthBlocks * BlockSize
	}
	return total
}

// growExtents ensures inode's direct extents cover at least `needed`
// bytes, allocating additional data blocks as required. It first tries to
// extend the last in-use extent contiguously (the newly-allocated bit
// immediately follows the extent's last block); failing that, it opens a
// new extent slot. Returns fserrors.ErrNotImplemented if all four direct
// extent slots are exhausted and more space is needed, or
// fserrors.ErrInvalid if growth would exceed MaxFileSizeBytes.
func (m *Mount) growExtents(inode *Inode, needed uint32) error {
	if needed > MaxFileSizeBytes {
		return fserrors.ErrInvalid.WithMessage("requested size exceeds MaxFileSizeBytes")
	}

	for inode.allocatedBytes() < needed {
		lastUsed := -1
		for i, ext := range inode.Extents {
			if !ext.Empty() {
				lastUsed = i
			}
		}

		bit, err := m.dataBitmap.firstFreeBit()
		if err != nil {
			return err
		}

		if lastUsed >= 0 {
			ext := &inode.Extents[lastUsed]
			relativeStart := ext.FirstBlock - m.sb.FirstDataBlock
			contiguous := relativeStart+ext.LengthBlocks == bit
			if contiguous {
				m.dataBitmap.set(bit)
				ext.LengthBlocks++
				continue
			}
		}

		freeSlot := -1
		for i, ext := range inode.Extents {
			if ext.Empty() {
				freeSlot = i
				break
			}
		}
		if freeSlot < 0 {
			return fserrors.ErrNotImplemented.WithMessage(
				"file has no free direct extent slots; indirect extents are not supported",
			)
		}
		m.dataBitmap.set(bit)
		inode.Extents[freeSlot] = Extent{FirstBlock: m.dataBlockNumber(bit), LengthBlocks: 1}
	}
	return nil
}
