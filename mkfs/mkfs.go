// Package mkfs is the offline image builder: given a target size and a list
// of host files, it produces a byte-exact extentfs image — computing Ni/Nd,
// reserving inodes 0/1/2, and writing boot sectors, superblock, bitmaps,
// inode records, root directory data, file data, and trailing padding,
// exactly as the runtime mounter expects.
//
// The layout is computed from the requested size and written sequentially
// in on-disk order. The backing image lives in a plain in-memory buffer
// wrapped by github.com/xaionaro-go/bytesextra as an io.ReadWriteSeeker, so
// the same extentfs.Format / Create / Open / Write path the runtime uses
// also builds the image — there is only one implementation of "write a file
// into this format", not two. The opaque boot block is assembled separately
// with github.com/noxer/bytewriter, a fixed-size sequential writer, before
// being patched into the image.
package mkfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/noxer/bytewriter"
	"github.com/xaionaro-go/bytesextra"

	"github.com/ringzero-os/ringzero/blockdev"
	"github.com/ringzero-os/ringzero/disks"
	"github.com/ringzero-os/ringzero/extentfs"
)

// HostFile is one file to pack into the image. Name overrides the
// directory-entry basename; if empty, filepath.Base(HostPath) is used.
type HostFile struct {
	HostPath string
	Name     string
}

// Options configures a single Build call.
type Options struct {
	// TotalSizeBytes is the exact size of the produced image. It must be
	// large enough to hold the superblock, both bitmaps, the inode table,
	// and every file's data, rounded up to block boundaries. Ignored if
	// GeometrySlug is set.
	TotalSizeBytes int64
	// GeometrySlug, if non-empty, looks up a preset via
	// disks.GetPredefinedDiskGeometry (e.g. "1.44M") and uses its size in
	// place of TotalSizeBytes, rounded down to a whole number of blocks.
	GeometrySlug string
	// NumInodes is the number of inode slots to reserve (including the 3
	// reserved ids). It must be large enough for every file plus the root
	// directory.
	NumInodes uint32
	Files     []HostFile
}

// Build assembles an image per Options and writes it to w.
func Build(w io.Writer, opts Options) error {
	if opts.GeometrySlug != "" {
		geometry, err := disks.GetPredefinedDiskGeometry(opts.GeometrySlug)
		if err != nil {
			return fmt.Errorf("mkfs: %w", err)
		}
		opts.TotalSizeBytes = geometry.TotalSizeBytes() -
			geometry.TotalSizeBytes()%extentfs.BlockSize
	}

	if opts.TotalSizeBytes%extentfs.BlockSize != 0 {
		return fmt.Errorf("mkfs: total size %d is not a multiple of the block size %d",
			opts.TotalSizeBytes, extentfs.BlockSize)
	}
	totalBlocks := uint32(opts.TotalSizeBytes / extentfs.BlockSize)

	numInodes := opts.NumInodes
	if numInodes == 0 {
		numInodes = uint32(len(opts.Files)) + extentfs.FirstFreeInodeID
	}

	numDataBlocks, err := layoutDataBlocks(totalBlocks, numInodes)
	if err != nil {
		return err
	}

	image := make([]byte, opts.TotalSizeBytes)
	stream := bytesextra.NewReadWriteSeeker(image)
	dev := blockdev.New(stream, uint(totalBlocks)*extentfs.SectorsPerBlock)

	mount, err := extentfs.Format(dev, numInodes, numDataBlocks)
	if err != nil {
		return fmt.Errorf("mkfs: format: %w", err)
	}

	for _, f := range opts.Files {
		if err := packFile(mount, f); err != nil {
			return fmt.Errorf("mkfs: packing %s: %w", f.HostPath, err)
		}
	}

	if err := writeBootStub(image); err != nil {
		return fmt.Errorf("mkfs: boot stub: %w", err)
	}

	_, err = w.Write(image)
	return err
}

// bootSignature is the magic trailer a boot loader would check for before
// treating block 0 as valid. It has nothing to do with the filesystem
// proper; extentfs.Format already zeroed block 0 as a placeholder, and this
// overwrites the first few bytes with a minimal recognizable stub.
var bootSignature = []byte("RZBOOT01")

// writeBootStub assembles a tiny boot-block header sequentially with
// bytewriter.New (a fixed-size io.Writer over a pre-existing slice) and
// patches it into the image's first bytes. A real boot loader would go
// here; this only stamps the signature so an image can be identified.
func writeBootStub(image []byte) error {
	if len(image) < extentfs.BlockSize {
		return fmt.Errorf("image too small for a boot block")
	}
	stub := make([]byte, len(bootSignature))
	bw := bytewriter.New(stub)
	if _, err := bw.Write(bootSignature); err != nil {
		return err
	}
	copy(image[0:len(stub)], stub)
	return nil
}

func packFile(mount *extentfs.Mount, f HostFile) error {
	data, err := os.ReadFile(f.HostPath)
	if err != nil {
		return err
	}

	name := f.Name
	if name == "" {
		name = filepath.Base(f.HostPath)
	}

	if _, err := mount.Create("/"+name, extentfs.TypeFile); err != nil {
		return err
	}
	handle, err := mount.Open("/"+name, extentfs.OWRONLY)
	if err != nil {
		return err
	}
	if _, err := handle.Write(data); err != nil {
		handle.Close()
		return err
	}
	return handle.Close()
}

// layoutDataBlocks computes how many data blocks remain once the boot
// block, superblock, both bitmaps, and the inode table are carved out of
// `totalBlocks`, for a volume with `numInodes` inode slots. Because the
// data-bitmap's own size depends on the number of data blocks it describes,
// this iterates to a fixed point (it converges in at most two passes for
// any size that isn't absurdly close to a bitmap-block boundary).
func layoutDataBlocks(totalBlocks, numInodes uint32) (uint32, error) {
	guess := totalBlocks
	for i := 0; i < 4; i++ {
		sb := extentfs.NewSuperblock(numInodes, guess)
		if sb.FirstDataBlock >= totalBlocks {
			return 0, fmt.Errorf(
				"mkfs: image of %d blocks has no room left for data after %d blocks of metadata",
				totalBlocks, sb.FirstDataBlock,
			)
		}
		next := totalBlocks - sb.FirstDataBlock
		if next == guess {
			return next, nil
		}
		guess = next
	}
	return guess, nil
}
