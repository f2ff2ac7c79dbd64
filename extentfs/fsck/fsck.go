// Package fsck implements consistency checks for a mounted volume: bitmap
// consistency, extent/data-bitmap consistency, and directory symmetry.
// Every check returns its violations
// through a shared *multierror.Error so a single pass can report everything
// wrong with a volume instead of stopping at the first problem, the way
// cmd/fsck is expected to behave.
package fsck

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/ringzero-os/ringzero/extentfs"
)

// extentRange is a half-open [start, end) run of absolute data block
// numbers, used to detect overlapping extents across inodes.
type extentRange struct {
	owner      uint32
	start, end uint32
}

func (r extentRange) overlaps(o extentRange) bool {
	return r.start < o.end && o.start < r.end
}

// Check walks every inode slot and every directory and accumulates every
// invariant violation it finds. A nil return means the volume is
// consistent.
func Check(m *extentfs.Mount) error {
	var result *multierror.Error

	sb := m.Superblock()
	var ranges []extentRange

	for id := uint32(0); id < sb.NumInodes; id++ {
		inode, err := m.Inode(id)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("inode %d: %w", id, err))
			continue
		}
		if id == extentfs.InvalidInodeID || id == extentfs.BootloaderInodeID {
			// Reserved ids: their bits are permanently set with no inode
			// record behind them.
			continue
		}

		bitSet := m.InodeBitSet(id)
		allocated := inode.Allocated()
		if bitSet != allocated {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d: bitmap bit set=%v but allocated=%v", id, bitSet, allocated,
			))
		}
		if !allocated {
			continue
		}

		for _, ext := range inode.Extents {
			if ext.Empty() {
				continue
			}
			if ext.FirstBlock < sb.FirstDataBlock {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d: extent starts at block %d, before first data block %d",
					id, ext.FirstBlock, sb.FirstDataBlock,
				))
				continue
			}
			relStart := ext.FirstBlock - sb.FirstDataBlock
			for k := relStart; k < relStart+ext.LengthBlocks; k++ {
				if !m.DataBitSet(k) {
					result = multierror.Append(result, fmt.Errorf(
						"inode %d: data block %d (bit %d) not marked used", id, sb.FirstDataBlock+k, k,
					))
				}
			}
			ranges = append(ranges, extentRange{
				owner: id,
				start: relStart,
				end:   relStart + ext.LengthBlocks,
			})
		}

		if inode.IsDir() {
			if err := checkDirectorySymmetry(m, inode); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].overlaps(ranges[j]) {
				result = multierror.Append(result, fmt.Errorf(
					"inode %d and inode %d have overlapping extents", ranges[i].owner, ranges[j].owner,
				))
			}
		}
	}

	return result.ErrorOrNil()
}

// checkDirectorySymmetry enforces: d.data[0].id == d.id, d.data[1].id ==
// parent.id, and the parent contains exactly one non-tombstone entry
// referencing d.id. Root is exempt from the parent-back-reference check
// (it is its own parent).
func checkDirectorySymmetry(m *extentfs.Mount, dir extentfs.Inode) error {
	self, parentID, err := m.DirSelfAndParent(dir)
	if err != nil {
		return fmt.Errorf("directory %d: %w", dir.ID, err)
	}
	if self != dir.ID {
		return fmt.Errorf("directory %d: slot 0 (\".\") refers to %d, not itself", dir.ID, self)
	}

	if dir.ID == extentfs.RootInodeID {
		if parentID != extentfs.RootInodeID {
			return fmt.Errorf("directory %d (root): slot 1 (\"..\") must also be %d, got %d",
				dir.ID, extentfs.RootInodeID, parentID)
		}
		return nil
	}

	parent, err := m.Inode(parentID)
	if err != nil {
		return fmt.Errorf("directory %d: parent %d: %w", dir.ID, parentID, err)
	}

	count, err := m.CountChildReferences(parent, dir.ID)
	if err != nil {
		return fmt.Errorf("directory %d: scanning parent %d: %w", dir.ID, parentID, err)
	}
	if count != 1 {
		return fmt.Errorf(
			"directory %d: parent %d contains %d non-tombstone entries referencing it, want exactly 1",
			dir.ID, parentID, count,
		)
	}
	return nil
}
