package extentfs

import "encoding/binary"

// Superblock is the in-memory representation of the 64-byte on-disk header
// at block 1. RootInodePointer is a RAM-only address set at mount time, not
// part of the on-disk layout, and is never marshaled.
type Superblock struct {
	NumInodes              uint32
	FirstInodeBitmapBlock  uint32
	FirstDataBitmapBlock   uint32
	NumInodeBitmapBlocks   uint32
	NumDataBitmapBlocks    uint32
	FirstInodeBlock        uint32
	FirstDataBlock         uint32
	NumInodeBlocks         uint32
	NumDataBlocks          uint32
	MaxFileSizeBytes       uint32
	BlockSizeBytes         uint32
	InodeSizeBytes         uint16
	InodesPerBlock         uint16
	DirectExtentsPerInode  uint8
	ExtentsPerIndirectBlk  uint16
	FirstFreeInodeBit      uint32
	FirstFreeDataBit       uint32
	DeviceNumber           uint8
	FirstUnreservedInode   uint8
	RootInodePointer       uint64 // runtime only, never marshaled
}

// MarshalBinary packs the superblock into its 64-byte header; the caller is
// responsible for padding it out to a whole block.
func (sb *Superblock) MarshalBinary() []byte {
	buf := make([]byte, 64)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], sb.NumInodes)
	le.PutUint32(buf[4:8], sb.FirstInodeBitmapBlock)
	le.PutUint32(buf[8:12], sb.FirstDataBitmapBlock)
	le.PutUint32(buf[12:16], sb.NumInodeBitmapBlocks)
	le.PutUint32(buf[16:20], sb.NumDataBitmapBlocks)
	le.PutUint32(buf[20:24], sb.FirstInodeBlock)
	le.PutUint32(buf[24:28], sb.FirstDataBlock)
	le.PutUint32(buf[28:32], sb.NumInodeBlocks)
	le.PutUint32(buf[32:36], sb.NumDataBlocks)
	le.PutUint32(buf[36:40], sb.MaxFileSizeBytes)
	le.PutUint32(buf[40:44], sb.BlockSizeBytes)
	le.PutUint16(buf[44:46], sb.InodeSizeBytes)
	le.PutUint16(buf[46:48], sb.InodesPerBlock)
	buf[48] = sb.DirectExtentsPerInode
	le.PutUint16(buf[49:51], sb.ExtentsPerIndirectBlk)
	le.PutUint32(buf[51:55], sb.FirstFreeInodeBit)
	le.PutUint32(buf[55:59], sb.FirstFreeDataBit)
	buf[59] = sb.DeviceNumber
	buf[60] = sb.FirstUnreservedInode
	// buf[61:64] reserved/padding
	return buf
}

// UnmarshalSuperblock reads the 64-byte packed header out of `buf` (which
// must be at least 64 bytes; only the first 64 are read).
func UnmarshalSuperblock(buf []byte) Superblock {
	le := binary.LittleEndian
	return Superblock{
		NumInodes:             le.Uint32(buf[0:4]),
		FirstInodeBitmapBlock: le.Uint32(buf[4:8]),
		FirstDataBitmapBlock:  le.Uint32(buf[8:12]),
		NumInodeBitmapBlocks:  le.Uint32(buf[12:16]),
		NumDataBitmapBlocks:   le.Uint32(buf[16:20]),
		FirstInodeBlock:       le.Uint32(buf[20:24]),
		FirstDataBlock:        le.Uint32(buf[24:28]),
		NumInodeBlocks:        le.Uint32(buf[28:32]),
		NumDataBlocks:         le.Uint32(buf[32:36]),
		MaxFileSizeBytes:      le.Uint32(buf[36:40]),
		BlockSizeBytes:        le.Uint32(buf[40:44]),
		InodeSizeBytes:        le.Uint16(buf[44:46]),
		InodesPerBlock:        le.Uint16(buf[46:48]),
		DirectExtentsPerInode: buf[48],
		ExtentsPerIndirectBlk: le.Uint16(buf[49:51]),
		FirstFreeInodeBit:     le.Uint32(buf[51:55]),
		FirstFreeDataBit:      le.Uint32(buf[55:59]),
		DeviceNumber:          buf[59],
		FirstUnreservedInode:  buf[60],
	}
}

// NewSuperblock computes the full on-disk layout for a volume with
// `numInodes` inode slots and `numDataBlocks` data blocks, in fixed block
// order: boot block, superblock, inode bitmap, data bitmap, inode table,
// data area.
func NewSuperblock(numInodes, numDataBlocks uint32) Superblock {
	inodeBitmapBlocks := blocksForBits(numInodes)
	dataBitmapBlocks := blocksForBits(numDataBlocks)

	firstInodeBitmapBlock := uint32(2)
	firstDataBitmapBlock := firstInodeBitmapBlock + inodeBitmapBlocks
	firstInodeBlock := firstDataBitmapBlock + dataBitmapBlocks
	numInodeBlocks := ceilDiv(numInodes, RecordsPerBlock)
	firstDataBlock := firstInodeBlock + numInodeBlocks

	return Superblock{
		NumInodes:             numInodes,
		FirstInodeBitmapBlock: firstInodeBitmapBlock,
		FirstDataBitmapBlock:  firstDataBitmapBlock,
		NumInodeBitmapBlocks:  inodeBitmapBlocks,
		NumDataBitmapBlocks:   dataBitmapBlocks,
		FirstInodeBlock:       firstInodeBlock,
		FirstDataBlock:        firstDataBlock,
		NumInodeBlocks:        numInodeBlocks,
		NumDataBlocks:         numDataBlocks,
		MaxFileSizeBytes:      MaxFileSizeBytes,
		BlockSizeBytes:        BlockSize,
		InodeSizeBytes:        InodeSize,
		InodesPerBlock:        RecordsPerBlock,
		DirectExtentsPerInode: DirectExtentsPerInode,
		ExtentsPerIndirectBlk: ExtentsPerIndirectBlock,
		FirstFreeInodeBit:     FirstFreeInodeID,
		FirstFreeDataBit:      1,
		FirstUnreservedInode:  FirstFreeInodeID,
	}
}
