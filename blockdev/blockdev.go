// Package blockdev implements the single primitive the rest of the core
// relies on for persistent storage: rw_sectors(count, lba, buffer, mode).
//
// A Device wraps any io.ReadWriteSeeker (a host file, an in-memory buffer, or
// a real block device handle) and exposes it in fixed 512-byte sectors.
// Operations are synchronous: Read returns only once the data has been
// copied into the caller's buffer, and Write returns only once the
// underlying stream has been flushed, if it supports flushing.
package blockdev

import (
	"fmt"
	"io"

	"github.com/ringzero-os/ringzero/fserrors"
)

// SectorSize is the size, in bytes, of one sector.
const SectorSize = 512

// Mode selects the direction of a Device.RW call.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "WRITE"
	}
	return "READ"
}

// Syncer is implemented by backing streams that need an explicit flush after
// a write, e.g. *os.File. Streams that don't implement it (a plain
// *bytes.Reader-backed seeker) are treated as always in sync.
type Syncer interface {
	Sync() error
}

// Device is a synchronous, sector-addressed view over a backing stream.
type Device struct {
	stream       io.ReadWriteSeeker
	totalSectors uint
}

// New wraps `stream` as a block device with a fixed number of 512-byte
// sectors. The caller is responsible for ensuring the stream is at least
// that large.
func New(stream io.ReadWriteSeeker, totalSectors uint) *Device {
	return &Device{stream: stream, totalSectors: totalSectors}
}

// NewFromStream wraps `stream`, determining the sector count from its
// current length. The stream's position is left at the start.
func NewFromStream(stream io.ReadWriteSeeker) (*Device, error) {
	end, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fserrors.ErrIO.Wrap(err)
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, fserrors.ErrIO.Wrap(err)
	}
	return New(stream, uint(end)/SectorSize), nil
}

// TotalSectors returns the size of the device, in 512-byte sectors.
func (d *Device) TotalSectors() uint {
	return d.totalSectors
}

func (d *Device) checkBounds(count uint16, lba uint32) error {
	if uint(lba)+uint(count) > d.totalSectors {
		return fserrors.ErrIO.WithMessage(fmt.Sprintf(
			"sector range [%d, %d) is out of bounds for a %d-sector device",
			lba, uint(lba)+uint(count), d.totalSectors,
		))
	}
	return nil
}

// RW reads or writes `count` contiguous sectors starting at `lba`, to or
// from `buffer`, which must be exactly count*SectorSize bytes long. It
// implements the rw_sectors contract: synchronous, no retries, and any
// transport failure is returned to the caller rather than recovered from.
func (d *Device) RW(count uint16, lba uint32, buffer []byte, mode Mode) error {
	if err := d.checkBounds(count, lba); err != nil {
		return err
	}
	if len(buffer) != int(count)*SectorSize {
		return fserrors.ErrInvalid.WithMessage(fmt.Sprintf(
			"buffer is %d bytes, expected exactly %d for %d sectors",
			len(buffer), int(count)*SectorSize, count,
		))
	}

	offset := int64(lba) * SectorSize
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return fserrors.ErrIO.Wrap(err)
	}

	switch mode {
	case Read:
		if _, err := io.ReadFull(d.stream, buffer); err != nil {
			return fserrors.ErrIO.Wrap(err)
		}
	case Write:
		if _, err := d.stream.Write(buffer); err != nil {
			return fserrors.ErrIO.Wrap(err)
		}
		if syncer, ok := d.stream.(Syncer); ok {
			if err := syncer.Sync(); err != nil {
				return fserrors.ErrIO.Wrap(err)
			}
		}
	default:
		return fserrors.ErrInvalid.WithMessage(fmt.Sprintf("unknown mode %v", mode))
	}
	return nil
}

// ReadBlock is a convenience wrapper reading len(buffer)/SectorSize sectors
// starting at `lba`, filling `buffer`.
func (d *Device) ReadBlock(lba uint32, buffer []byte) error {
	count := len(buffer) / SectorSize
	return d.RW(uint16(count), lba, buffer, Read)
}

// WriteBlock is the write-side counterpart of ReadBlock.
func (d *Device) WriteBlock(lba uint32, buffer []byte) error {
	count := len(buffer) / SectorSize
	return d.RW(uint16(count), lba, buffer, Write)
}
