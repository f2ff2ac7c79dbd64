package extentfs

import (
	"encoding/binary"
	"time"
)

// Extent is a contiguous run of data blocks owned by an inode.
type Extent struct {
	FirstBlock   uint32
	LengthBlocks uint32
}

// Empty reports whether the extent covers zero blocks.
func (e Extent) Empty() bool { return e.LengthBlocks == 0 }

// DateTime is the 7-byte packed timestamp embedded in every inode: seconds,
// minutes, hours, day, month, and a 2-byte year.
type DateTime struct {
	Second uint8
	Minute uint8
	Hour   uint8
	Day    uint8
	Month  uint8
	Year   uint16
}

// Now returns the current time packed into the on-disk DateTime shape.
func Now() DateTime {
	t := time.Now().UTC()
	return DateTime{
		Second: uint8(t.Second()),
		Minute: uint8(t.Minute()),
		Hour:   uint8(t.Hour()),
		Day:    uint8(t.Day()),
		Month:  uint8(t.Month()),
		Year:   uint16(t.Year()),
	}
}

// Inode is the in-memory representation of a 64-byte on-disk inode record.
type Inode struct {
	ID                   uint32
	Type                 InodeType
	SizeBytes            uint32
	SizeSectors          uint32
	LastModified         DateTime
	Extents              [DirectExtentsPerInode]Extent
	SingleIndirectBlock  uint32
	DoubleIndirectBlock  uint32
	RefCount             uint8
}

// IsDir and IsFile are the usual type predicates.
func (in *Inode) IsDir() bool  { return in.Type == TypeDir }
func (in *Inode) IsFile() bool { return in.Type == TypeFile }

// Allocated reports whether this inode slot currently holds a live record,
// mirroring the bitmap-consistency invariant `bit_set(inode_bitmap, id) <=>
// inode_table[id].type != 0`.
func (in *Inode) Allocated() bool { return in.Type != TypeInvalid }

// MarshalBinary packs the inode into its 64-byte on-disk form.
func (in *Inode) MarshalBinary() []byte {
	buf := make([]byte, InodeSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], in.ID)
	buf[4] = uint8(in.Type)
	le.PutUint32(buf[5:9], in.SizeBytes)
	le.PutUint32(buf[9:13], in.SizeSectors)

	buf[13] = in.LastModified.Second
	buf[14] = in.LastModified.Minute
	buf[15] = in.LastModified.Hour
	buf[16] = in.LastModified.Day
	buf[17] = in.LastModified.Month
	le.PutUint16(buf[18:20], in.LastModified.Year)

	off := 20
	for _, e := range in.Extents {
		le.PutUint32(buf[off:off+4], e.FirstBlock)
		le.PutUint32(buf[off+4:off+8], e.LengthBlocks)
		off += 8
	}
	// off is now 52
	le.PutUint32(buf[52:56], in.SingleIndirectBlock)
	le.PutUint32(buf[56:60], in.DoubleIndirectBlock)
	buf[60] = in.RefCount
	// buf[61:64] reserved/padding
	return buf
}

// UnmarshalInode reads a 64-byte packed inode record out of `buf`.
func UnmarshalInode(buf []byte) Inode {
	le := binary.LittleEndian
	in := Inode{
		ID:          le.Uint32(buf[0:4]),
		Type:        InodeType(buf[4]),
		SizeBytes:   le.Uint32(buf[5:9]),
		SizeSectors: le.Uint32(buf[9:13]),
		LastModified: DateTime{
			Second: buf[13],
			Minute: buf[14],
			Hour:   buf[15],
			Day:    buf[16],
			Month:  buf[17],
			Year:   le.Uint16(buf[18:20]),
		},
	}
	off := 20
	for i := range in.Extents {
		in.Extents[i] = Extent{
			FirstBlock:   le.Uint32(buf[off : off+4]),
			LengthBlocks: le.Uint32(buf[off+4 : off+8]),
		}
		off += 8
	}
	in.SingleIndirectBlock = le.Uint32(buf[52:56])
	in.DoubleIndirectBlock = le.Uint32(buf[56:60])
	in.RefCount = buf[60]
	return in
}

// SizeInBlocks returns ceil(SizeBytes / BlockSize).
func (in *Inode) SizeInBlocks() uint32 {
	return ceilDiv(in.SizeBytes, BlockSize)
}

// computeSizeSectors recomputes SizeSectors from SizeBytes, per the
// invariant size_sectors = ceil(size_bytes / S).
func (in *Inode) computeSizeSectors() {
	in.SizeSectors = ceilDiv(in.SizeBytes, SectorSize)
}
