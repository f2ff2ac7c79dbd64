package extentfs

import "github.com/ringzero-os/ringzero/blockdev"

// Format writes a fresh volume: boot block left zeroed, a superblock sized
// for `numInodes` inode slots and `numDataBlocks` data blocks, both bitmaps
// zeroed except for the reserved bits, an empty inode table, and a root
// directory whose "." and ".." both point at itself. It returns a Mount
// over the freshly-written volume, equivalent to calling Mount immediately
// afterward.
//
// This is also the core Format used by cmd/mkfs; the image builder differs
// only in that it goes on to call Create for each packed-in host file.
func Format(dev *blockdev.Device, numInodes, numDataBlocks uint32) (*Mount, error) {
	sb := NewSuperblock(numInodes, numDataBlocks)

	// Zero the boot block; it's opaque to the filesystem.
	zeroBlock := make([]byte, BlockSize)
	if err := writeBlock(dev, 0, zeroBlock); err != nil {
		return nil, err
	}

	sbBuf := make([]byte, BlockSize)
	copy(sbBuf, sb.MarshalBinary())
	if err := writeBlock(dev, superblockBlock, sbBuf); err != nil {
		return nil, err
	}

	for i := uint32(0); i < sb.NumInodeBitmapBlocks; i++ {
		if err := writeBlock(dev, sb.FirstInodeBitmapBlock+i, zeroBlock); err != nil {
			return nil, err
		}
	}
	for i := uint32(0); i < sb.NumDataBitmapBlocks; i++ {
		if err := writeBlock(dev, sb.FirstDataBitmapBlock+i, zeroBlock); err != nil {
			return nil, err
		}
	}
	for i := uint32(0); i < sb.NumInodeBlocks; i++ {
		if err := writeBlock(dev, sb.FirstInodeBlock+i, zeroBlock); err != nil {
			return nil, err
		}
	}

	inodeBitmap := newDiskBitmap(sb.NumInodes, sb.FirstInodeBitmapBlock, sb.NumInodeBitmapBlocks)
	dataBitmap := newDiskBitmap(sb.NumDataBlocks, sb.FirstDataBitmapBlock, sb.NumDataBitmapBlocks)
	if err := inodeBitmap.load(dev); err != nil {
		return nil, err
	}
	if err := dataBitmap.load(dev); err != nil {
		return nil, err
	}

	// Reserve inode bits 0 (invalid), 1 (root), 2 (bootloader pseudo-inode),
	// and data bit 0.
	inodeBitmap.set(InvalidInodeID)
	inodeBitmap.set(RootInodeID)
	inodeBitmap.set(BootloaderInodeID)
	dataBitmap.set(0)

	rootDataBit, err := dataBitmap.firstFreeBit()
	if err != nil {
		return nil, err
	}
	dataBitmap.set(rootDataBit)
	rootDataBlock := sb.FirstDataBlock + rootDataBit

	root := Inode{
		ID:           RootInodeID,
		Type:         TypeDir,
		SizeBytes:    2 * DirEntrySize,
		LastModified: Now(),
		RefCount:     1,
	}
	root.Extents[0] = Extent{FirstBlock: rootDataBlock, LengthBlocks: 1}
	root.computeSizeSectors()

	rootDataBuf := make([]byte, BlockSize)
	selfEntry, err := DirEntry{ID: RootInodeID, Name: "."}.MarshalBinary()
	if err != nil {
		return nil, err
	}
	parentEntry, err := DirEntry{ID: RootInodeID, Name: ".."}.MarshalBinary()
	if err != nil {
		return nil, err
	}
	copy(rootDataBuf[0:DirEntrySize], selfEntry)
	copy(rootDataBuf[DirEntrySize:2*DirEntrySize], parentEntry)
	if err := writeBlock(dev, rootDataBlock, rootDataBuf); err != nil {
		return nil, err
	}

	inodeBlock, inodeOffset := inodeLocationFor(&sb, RootInodeID)
	inodeBuf := make([]byte, BlockSize)
	if err := readBlock(dev, inodeBlock, inodeBuf); err != nil {
		return nil, err
	}
	copy(inodeBuf[inodeOffset:inodeOffset+InodeSize], root.MarshalBinary())
	if err := writeBlock(dev, inodeBlock, inodeBuf); err != nil {
		return nil, err
	}

	nextInodeBit, err := inodeBitmap.firstFreeBit()
	if err == nil {
		sb.FirstFreeInodeBit = nextInodeBit
	}
	nextDataBit, err := dataBitmap.firstFreeBit()
	if err == nil {
		sb.FirstFreeDataBit = nextDataBit
	}

	if err := inodeBitmap.save(dev); err != nil {
		return nil, err
	}
	if err := dataBitmap.save(dev); err != nil {
		return nil, err
	}
	sbBuf = make([]byte, BlockSize)
	copy(sbBuf, sb.MarshalBinary())
	if err := writeBlock(dev, superblockBlock, sbBuf); err != nil {
		return nil, err
	}

	return MountDevice(dev)
}

func inodeLocationFor(sb *Superblock, id uint32) (block uint32, offset uint32) {
	block = sb.FirstInodeBlock + id/RecordsPerBlock
	offset = (id % RecordsPerBlock) * InodeSize
	return
}
