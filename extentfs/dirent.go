package extentfs

import (
	"bytes"
	"encoding/binary"

	"github.com/ringzero-os/ringzero/fserrors"
)

// MaxNameLength is the longest name a directory entry can hold (60 bytes,
// NUL-terminated, so 59 usable characters guaranteed NUL-terminated; a
// 60-byte name with no trailing NUL is accepted but can't be grown).
const MaxNameLength = DirEntrySize - 4

// DirEntry is one 64-byte slot in a directory's data: an inode id and a
// NUL-terminated name. ID == 0 marks a tombstone (an empty, reusable slot).
type DirEntry struct {
	ID   uint32
	Name string
}

// Tombstone reports whether this slot is empty.
func (d DirEntry) Tombstone() bool { return d.ID == InvalidInodeID }

// MarshalBinary packs the entry into its 64-byte on-disk form.
func (d DirEntry) MarshalBinary() ([]byte, error) {
	if len(d.Name) > MaxNameLength {
		return nil, fserrors.ErrInvalid.WithMessage("directory entry name too long: " + d.Name)
	}
	buf := make([]byte, DirEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], d.ID)
	copy(buf[4:], d.Name)
	return buf, nil
}

// UnmarshalDirEntry reads a 64-byte packed directory entry out of `buf`.
func UnmarshalDirEntry(buf []byte) DirEntry {
	id := binary.LittleEndian.Uint32(buf[0:4])
	nameBytes := buf[4:DirEntrySize]
	if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
		nameBytes = nameBytes[:i]
	}
	return DirEntry{ID: id, Name: string(nameBytes)}
}
