package extentfs

import (
	"errors"
	"io"

	"github.com/ringzero-os/ringzero/fserrors"
)

// OpenFlags mirrors the open() flags recognized by the syscall surface:
// O_RDONLY, O_WRONLY, O_RDWR, O_CREAT, O_APPEND.
type OpenFlags uint8

const (
	ORDONLY OpenFlags = 0
	OWRONLY OpenFlags = 1 << 0
	ORDWR   OpenFlags = 1 << 1
	OCREAT  OpenFlags = 1 << 2
	OAPPEND OpenFlags = 1 << 3
)

func (f OpenFlags) readable() bool { return f&OWRONLY == 0 }
func (f OpenFlags) writable() bool { return f&(OWRONLY|ORDWR) != 0 }

// fdState is the per-descriptor lifecycle: Unopened -> Open -> Closed.
type fdState uint8

const (
	fdUnopened fdState = iota
	fdOpen
	fdClosed
)

// File is a per-open-file-descriptor handle: a cursor over one inode's
// bytes, implementing seek/read/write.
type File struct {
	m       *Mount
	inode   Inode
	flags   OpenFlags
	pos     int64
	state   fdState
}

// Open resolves `p` and returns a File positioned at offset 0, or at
// end-of-file if OAPPEND is set. If OCREAT is set and the path doesn't
// exist, a new file is created first.
func (m *Mount) Open(p string, flags OpenFlags) (*File, error) {
	inode, err := m.resolve(p, m.cwdInode)
	if err != nil {
		if errors.Is(err, fserrors.ErrNotFound) && flags&OCREAT != 0 {
			id, createErr := m.Create(p, TypeFile)
			if createErr != nil {
				return nil, createErr
			}
			inode, err = m.readInode(id)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	if inode.IsDir() {
		return nil, fserrors.ErrIsADirectory
	}

	f := &File{m: m, inode: inode, flags: flags, state: fdOpen}
	if flags&OAPPEND != 0 {
		f.pos = int64(inode.SizeBytes)
	}
	return f, nil
}

// Seek changes the descriptor's position without performing I/O. A
// negative resulting offset is reported as -1 rather than as an error
// (SEEK_SET/SEEK_CUR/SEEK_END compose as usual otherwise).
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.state != fdOpen {
		return -1, fserrors.ErrInvalid.WithMessage("seek on a closed or unopened file")
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = int64(f.inode.SizeBytes) + offset
	default:
		return -1, fserrors.ErrInvalid.WithMessage("unknown seek whence")
	}

	if abs < 0 {
		return -1, nil
	}
	f.pos = abs
	return abs, nil
}

// Read copies up to len(buf) bytes starting at the current position. A
// read that starts at or past end-of-file returns (0, nil) rather than an
// error.
func (f *File) Read(buf []byte) (int, error) {
	if f.state != fdOpen {
		return 0, fserrors.ErrInvalid.WithMessage("read on a closed or unopened file")
	}
	if !f.flags.readable() {
		return 0, fserrors.ErrInvalid.WithMessage("file not opened for reading")
	}
	if f.pos >= int64(f.inode.SizeBytes) {
		return 0, nil
	}

	data, err := f.m.readExtents(&f.inode)
	if err != nil {
		return 0, err
	}
	available := int64(f.inode.SizeBytes) - f.pos
	n := int64(len(buf))
	if n > available {
		n = available
	}
	copy(buf, data[f.pos:f.pos+n])
	f.pos += n
	return int(n), nil
}

// Write copies len(buf) bytes to the current position, growing the
// inode's extents (and SizeBytes) as needed. OAPPEND forces the position
// to end-of-file first.
func (f *File) Write(buf []byte) (int, error) {
	if f.state != fdOpen {
		return 0, fserrors.ErrInvalid.WithMessage("write on a closed or unopened file")
	}
	if !f.flags.writable() {
		return 0, fserrors.ErrInvalid.WithMessage("file not opened for writing")
	}
	if f.flags&OAPPEND != 0 {
		f.pos = int64(f.inode.SizeBytes)
	}

	endOffset := f.pos + int64(len(buf))
	if uint32(endOffset) > f.inode.allocatedBytes() {
		if err := f.m.growExtents(&f.inode, uint32(endOffset)); err != nil {
			return 0, err
		}
	}

	data, err := f.m.readExtents(&f.inode)
	if err != nil {
		return 0, err
	}
	if int64(len(data)) < endOffset {
		grown := make([]byte, endOffset)
		copy(grown, data)
		data = grown
	}
	copy(data[f.pos:endOffset], buf)

	if err := f.m.writeExtents(&f.inode, data); err != nil {
		return 0, err
	}

	if uint32(endOffset) > f.inode.SizeBytes {
		f.inode.SizeBytes = uint32(endOffset)
		f.inode.computeSizeSectors()
	}
	f.inode.LastModified = Now()
	if err := f.m.writeInode(f.inode); err != nil {
		return 0, err
	}

	if err := f.m.syncAllocationState(); err != nil {
		return 0, err
	}

	f.pos = endOffset
	return len(buf), nil
}

// Close marks the descriptor unusable. The extent filesystem has no
// per-descriptor buffering to flush; every Write already persists.
func (f *File) Close() error {
	f.state = fdClosed
	return nil
}

// Stat returns the current on-disk inode backing this descriptor.
func (f *File) Stat() Inode { return f.inode }
