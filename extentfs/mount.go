package extentfs

import (
	"github.com/ringzero-os/ringzero/blockdev"
	"github.com/ringzero-os/ringzero/fserrors"
)

// superblockBlock is the block number of the superblock (block 1).
const superblockBlock = 1

func readBlock(dev *blockdev.Device, block uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return fserrors.ErrInvalid.WithMessage("readBlock: buffer must be exactly one block")
	}
	return dev.RW(SectorsPerBlock, block*SectorsPerBlock, buf, blockdev.Read)
}

func writeBlock(dev *blockdev.Device, block uint32, buf []byte) error {
	if len(buf) != BlockSize {
		return fserrors.ErrInvalid.WithMessage("writeBlock: buffer must be exactly one block")
	}
	return dev.RW(SectorsPerBlock, block*SectorsPerBlock, buf, blockdev.Write)
}

// Mount is the single owning value threading every piece of FS-wide mutable
// state through FS calls: the cached superblock, both bitmaps, the
// current-directory inode cache, and the device itself. This is safe only
// because the kernel is single-threaded and FS operations never re-enter
// from an interrupt handler.
type Mount struct {
	dev *blockdev.Device

	sb          Superblock
	inodeBitmap diskBitmap
	dataBitmap  diskBitmap

	cwdID    uint32
	cwdInode Inode
}

// MountDevice reads the superblock and both bitmaps off `dev`, loads the
// root inode, and installs it as the current working directory.
func MountDevice(dev *blockdev.Device) (*Mount, error) {
	buf := make([]byte, BlockSize)
	if err := readBlock(dev, superblockBlock, buf); err != nil {
		return nil, err
	}
	sb := UnmarshalSuperblock(buf)

	m := &Mount{
		dev: dev,
		sb:  sb,
		inodeBitmap: newDiskBitmap(
			sb.NumInodes, sb.FirstInodeBitmapBlock, sb.NumInodeBitmapBlocks,
		),
		dataBitmap: newDiskBitmap(
			sb.NumDataBlocks, sb.FirstDataBitmapBlock, sb.NumDataBitmapBlocks,
		),
	}
	if err := m.inodeBitmap.load(dev); err != nil {
		return nil, err
	}
	if err := m.dataBitmap.load(dev); err != nil {
		return nil, err
	}

	root, err := m.readInode(RootInodeID)
	if err != nil {
		return nil, err
	}
	m.cwdID = RootInodeID
	m.cwdInode = root
	m.sb.RootInodePointer = uint64(RootInodeID)

	return m, nil
}

// Superblock returns a copy of the currently cached superblock.
func (m *Mount) Superblock() Superblock { return m.sb }

func (m *Mount) writeSuperblock() error {
	buf := make([]byte, BlockSize)
	copy(buf, m.sb.MarshalBinary())
	return writeBlock(m.dev, superblockBlock, buf)
}

// inodeLocation returns the block holding inode `id` and its byte offset
// within that block.
func (m *Mount) inodeLocation(id uint32) (block uint32, offset uint32) {
	block = m.sb.FirstInodeBlock + id/RecordsPerBlock
	offset = (id % RecordsPerBlock) * InodeSize
	return
}

func (m *Mount) readInode(id uint32) (Inode, error) {
	block, offset := m.inodeLocation(id)
	buf := make([]byte, BlockSize)
	if err := readBlock(m.dev, block, buf); err != nil {
		return Inode{}, err
	}
	in := UnmarshalInode(buf[offset : offset+InodeSize])
	in.ID = id
	return in, nil
}

func (m *Mount) writeInode(in Inode) error {
	block, offset := m.inodeLocation(in.ID)
	buf := make([]byte, BlockSize)
	if err := readBlock(m.dev, block, buf); err != nil {
		return err
	}
	copy(buf[offset:offset+InodeSize], in.MarshalBinary())
	return writeBlock(m.dev, block, buf)
}

// dataBlockNumber converts a data-bitmap-relative index into an absolute
// block number.
func (m *Mount) dataBlockNumber(relative uint32) uint32 {
	return m.sb.FirstDataBlock + relative
}

func (m *Mount) syncAllocationState() error {
	if err := m.inodeBitmap.save(m.dev); err != nil {
		return err
	}
	if err := m.dataBitmap.save(m.dev); err != nil {
		return err
	}
	return m.writeSuperblock()
}
