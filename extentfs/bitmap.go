package extentfs

import (
	"github.com/boljen/go-bitmap"

	"github.com/ringzero-os/ringzero/blockdev"
	"github.com/ringzero-os/ringzero/fserrors"
)

// diskBitmap is an in-memory cache of one of the two on-disk bitmaps
// (inode or data), backed by a run of whole blocks on the device. Bit 0 is
// always reserved by the caller's convention (the null frame / tombstone
// data block); diskBitmap itself just tracks set/clear.
type diskBitmap struct {
	bits       bitmap.Bitmap
	count      uint32 // number of meaningful bits
	firstBlock uint32
	numBlocks  uint32
}

func newDiskBitmap(count, firstBlock, numBlocks uint32) diskBitmap {
	return diskBitmap{
		bits:       bitmap.New(int(count)),
		count:      count,
		firstBlock: firstBlock,
		numBlocks:  numBlocks,
	}
}

// load reads the bitmap's backing blocks off the device into memory.
func (b *diskBitmap) load(dev *blockdev.Device) error {
	raw := make([]byte, 0, int(b.numBlocks)*BlockSize)
	buf := make([]byte, BlockSize)
	for i := uint32(0); i < b.numBlocks; i++ {
		if err := readBlock(dev, b.firstBlock+i, buf); err != nil {
			return err
		}
		raw = append(raw, buf...)
	}

	b.bits = bitmap.New(int(b.count))
	for i := uint32(0); i < b.count; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		if raw[byteIdx]&(1<<bitIdx) != 0 {
			b.bits.Set(int(i), true)
		}
	}
	return nil
}

// save writes the in-memory bitmap back out to its backing blocks.
func (b *diskBitmap) save(dev *blockdev.Device) error {
	raw := b.bits.Data(false)
	padded := make([]byte, int(b.numBlocks)*BlockSize)
	copy(padded, raw)
	for i := uint32(0); i < b.numBlocks; i++ {
		chunk := padded[i*BlockSize : (i+1)*BlockSize]
		if err := writeBlock(dev, b.firstBlock+i, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *diskBitmap) get(bit uint32) bool {
	return b.bits.Get(int(bit))
}

func (b *diskBitmap) set(bit uint32) {
	b.bits.Set(int(bit), true)
}

func (b *diskBitmap) clear(bit uint32) {
	b.bits.Set(int(bit), false)
}

// setRun and clearRun flip a contiguous range of bits one at a time.
// Byte-mask arithmetic over a run can mis-clear boundary bytes when the run
// doesn't align to a byte; going bit-by-bit sidesteps that entirely.
func (b *diskBitmap) setRun(first, count uint32) {
	for i := uint32(0); i < count; i++ {
		b.set(first + i)
	}
}

func (b *diskBitmap) clearRun(first, count uint32) {
	for i := uint32(0); i < count; i++ {
		b.clear(first + i)
	}
}

const bitmapWordBits = 32

func (b *diskBitmap) wordFullyUsed(wordStart uint32) bool {
	end := wordStart + bitmapWordBits
	if end > b.count {
		end = b.count
	}
	for i := wordStart; i < end; i++ {
		if !b.get(i) {
			return false
		}
	}
	return true
}

// firstFreeBit scans from bit 1 (bit 0 is always reserved) in 32-bit words,
// skipping fully-set words, then returns the first clear bit found.
func (b *diskBitmap) firstFreeBit() (uint32, error) {
	for i := uint32(1); i < b.count; {
		wordStart := i - (i % bitmapWordBits)
		if b.wordFullyUsed(wordStart) {
			i = wordStart + bitmapWordBits
			continue
		}
		if b.get(i) {
			i++
			continue
		}
		return i, nil
	}
	return 0, fserrors.ErrNoSpace
}
