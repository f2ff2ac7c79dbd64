package extentfs

import (
	"errors"

	"github.com/ringzero-os/ringzero/fserrors"
)

// refreshCwd reloads the cached current-directory inode from disk; called
// after any operation that may have mutated it.
func (m *Mount) refreshCwd() error {
	in, err := m.readInode(m.cwdID)
	if err != nil {
		return err
	}
	m.cwdInode = in
	return nil
}

// Create resolves the parent, appends a directory entry (reusing a
// tombstone slot if one exists), allocates an inode and one data block, and
// persists everything in a fixed write order: data blocks, then bitmaps,
// then inode table, then superblock. A crash between any two of these steps
// must never leave the volume looking consistent when it isn't.
func (m *Mount) Create(p string, typ InodeType) (uint32, error) {
	parent, err := m.resolveParent(p, m.cwdInode)
	if err != nil {
		return 0, err
	}
	if !parent.IsDir() {
		return 0, fserrors.ErrNotADirectory
	}

	name := Basename(p)
	if _, err := m.lookupChild(&parent, name); err == nil {
		return 0, fserrors.ErrExists
	} else if !errors.Is(err, fserrors.ErrNotFound) {
		return 0, err
	}

	inodeBit, err := m.inodeBitmap.firstFreeBit()
	if err != nil {
		return 0, err
	}
	dataBit, err := m.dataBitmap.firstFreeBit()
	if err != nil {
		return 0, err
	}
	firstBlock := m.dataBlockNumber(dataBit)

	newInode := Inode{
		ID:           inodeBit,
		Type:         typ,
		LastModified: Now(),
		RefCount:     1,
	}
	newInode.Extents[0] = Extent{FirstBlock: firstBlock, LengthBlocks: 1}
	if typ == TypeDir {
		newInode.SizeBytes = 2 * DirEntrySize
	}
	newInode.computeSizeSectors()

	// 1. Data blocks: write the new directory's "." and ".." entries (for a
	// plain file nothing is written here and the block is not zeroed).
	if typ == TypeDir {
		buf := make([]byte, BlockSize)
		self, err := DirEntry{ID: inodeBit, Name: "."}.MarshalBinary()
		if err != nil {
			return 0, err
		}
		parentEntry, err := DirEntry{ID: parent.ID, Name: ".."}.MarshalBinary()
		if err != nil {
			return 0, err
		}
		copy(buf[0:DirEntrySize], self)
		copy(buf[DirEntrySize:2*DirEntrySize], parentEntry)
		if err := writeBlock(m.dev, firstBlock, buf); err != nil {
			return 0, err
		}
	}

	// Append (or reuse a tombstone for) the new entry in the parent.
	if err := m.insertDirEntry(&parent, DirEntry{ID: inodeBit, Name: name}); err != nil {
		return 0, err
	}

	// 2. Bitmaps.
	m.inodeBitmap.set(inodeBit)
	m.dataBitmap.set(dataBit)
	nextInodeBit, err := m.inodeBitmap.firstFreeBit()
	if err == nil {
		m.sb.FirstFreeInodeBit = nextInodeBit
	}
	nextDataBit, err := m.dataBitmap.firstFreeBit()
	if err == nil {
		m.sb.FirstFreeDataBit = nextDataBit
	}
	if err := m.inodeBitmap.save(m.dev); err != nil {
		return 0, err
	}
	if err := m.dataBitmap.save(m.dev); err != nil {
		return 0, err
	}

	// 3. Inode table.
	if err := m.writeInode(newInode); err != nil {
		return 0, err
	}
	parent.LastModified = Now()
	if err := m.writeInode(parent); err != nil {
		return 0, err
	}

	// 4. Superblock.
	if err := m.writeSuperblock(); err != nil {
		return 0, err
	}

	if parent.ID == m.cwdID {
		if err := m.refreshCwd(); err != nil {
			return 0, err
		}
	}

	return inodeBit, nil
}

// insertDirEntry writes `entry` into the first tombstone slot in `parent`,
// or appends a new slot (growing the directory's extents if the append
// crosses a block boundary) if none exists.
func (m *Mount) insertDirEntry(parent *Inode, entry DirEntry) error {
	var tombstone *dirSlot
	err := m.forEachDirSlot(parent, func(slot dirSlot) (bool, error) {
		if slot.entry.Tombstone() {
			s := slot
			tombstone = &s
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	if tombstone != nil {
		return m.writeDirSlot(*tombstone, entry)
	}

	newSize := parent.SizeBytes + DirEntrySize
	if newSize > parent.allocatedBytes() {
		if err := m.growExtents(parent, newSize); err != nil {
			return err
		}
	}
	parent.SizeBytes = newSize
	parent.computeSizeSectors()

	slotIndex := uint32(parent.SizeBytes/DirEntrySize) - 1
	block, offset := m.dirSlotLocation(parent, slotIndex)
	return m.writeDirSlot(dirSlot{block: block, blockOffset: offset}, entry)
}

// dirSlotLocation maps a linear slot index to its absolute block and
// in-block byte offset, walking the directory's direct extents in order.
func (m *Mount) dirSlotLocation(dir *Inode, slotIndex uint32) (block uint32, offset uint32) {
	slotsPerBlock := uint32(BlockSize / DirEntrySize)
	remaining := slotIndex
	for _, ext := range dir.Extents {
		if ext.Empty() {
			continue
		}
		slotsInExtent := ext.LengthBlocks * slotsPerBlock
		if remaining < slotsInExtent {
			block = ext.FirstBlock + remaining/slotsPerBlock
			offset = (remaining % slotsPerBlock) * DirEntrySize
			return
		}
		remaining -= slotsInExtent
	}
	return 0, 0
}

// Delete clears the target's data-bitmap bits, tombstones its directory
// entry, shrinks the parent's recorded size, and clears the target's
// inode-bitmap bit and record. If the target is a non-empty directory, its
// contents are removed first: regular files directly, subdirectories by
// recursing. This mirrors fs_delete_dir_files walking a directory's
// entries ahead of the directory itself in the original source this
// layout was distilled from.
func (m *Mount) Delete(p string) error {
	target, err := m.resolve(p, m.cwdInode)
	if err != nil {
		return err
	}
	if target.ID == RootInodeID {
		return fserrors.ErrInvalid.WithMessage("cannot delete the root directory")
	}
	parent, err := m.resolveParent(p, m.cwdInode)
	if err != nil {
		return err
	}
	return m.deleteTree(&target, parent, Basename(p))
}

// deleteTree removes `target`, named `name` in `parent`, recursing into
// its children first if it is a directory.
func (m *Mount) deleteTree(target *Inode, parent Inode, name string) error {
	if target.IsDir() {
		if err := m.deleteDirChildren(target); err != nil {
			return err
		}
	}

	// 1 & 2. Clear the target's data-bitmap bits, bit by bit.
	for _, ext := range target.Extents {
		if ext.Empty() {
			continue
		}
		relativeStart := ext.FirstBlock - m.sb.FirstDataBlock
		m.dataBitmap.clearRun(relativeStart, ext.LengthBlocks)
	}

	// 3. Tombstone the parent's directory entry for the target.
	found := false
	err := m.forEachDirSlot(&parent, func(slot dirSlot) (bool, error) {
		if !slot.entry.Tombstone() && slot.entry.ID == target.ID && slot.entry.Name == name {
			found = true
			return true, m.writeDirSlot(slot, DirEntry{})
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fserrors.ErrNotFound
	}

	// 4. Shrink the parent's recorded size. The tail block is not released.
	if parent.SizeBytes >= DirEntrySize {
		parent.SizeBytes -= DirEntrySize
	}
	parent.computeSizeSectors()
	parent.LastModified = Now()
	if err := m.writeInode(parent); err != nil {
		return err
	}

	// 5. Clear the inode-bitmap bit and zero the inode record.
	m.inodeBitmap.clear(target.ID)
	if err := m.writeInode(Inode{ID: target.ID}); err != nil {
		return err
	}

	nextInodeBit, err := m.inodeBitmap.firstFreeBit()
	if err == nil {
		m.sb.FirstFreeInodeBit = nextInodeBit
	}
	nextDataBit, err := m.dataBitmap.firstFreeBit()
	if err == nil {
		m.sb.FirstFreeDataBit = nextDataBit
	}
	if err := m.syncAllocationState(); err != nil {
		return err
	}

	if parent.ID == m.cwdID {
		return m.refreshCwd()
	}
	return nil
}

// deleteDirChildren removes every entry in `dir` other than "." and "..",
// recursing into subdirectories, then reloads `dir` from disk in place so
// the caller observes the post-shrink size and extents.
func (m *Mount) deleteDirChildren(dir *Inode) error {
	var children []DirEntry
	err := m.forEachDirSlot(dir, func(slot dirSlot) (bool, error) {
		if slot.entry.Tombstone() || slot.entry.Name == "." || slot.entry.Name == ".." {
			return false, nil
		}
		children = append(children, slot.entry)
		return false, nil
	})
	if err != nil {
		return err
	}

	for _, child := range children {
		// Re-read the parent on every iteration: each recursive delete
		// shrinks its SizeBytes, and that decrement must compound rather
		// than be recomputed from a stale copy.
		current, err := m.readInode(dir.ID)
		if err != nil {
			return err
		}
		childInode, err := m.readInode(child.ID)
		if err != nil {
			return err
		}
		if err := m.deleteTree(&childInode, current, child.Name); err != nil {
			return err
		}
	}

	refreshed, err := m.readInode(dir.ID)
	if err != nil {
		return err
	}
	*dir = refreshed
	return nil
}

// Rename overwrites the directory-entry name in place. Inode identity is
// preserved.
func (m *Mount) Rename(p, newName string) error {
	target, err := m.resolve(p, m.cwdInode)
	if err != nil {
		return err
	}
	parent, err := m.resolveParent(p, m.cwdInode)
	if err != nil {
		return err
	}

	oldName := Basename(p)
	found := false
	err = m.forEachDirSlot(&parent, func(slot dirSlot) (bool, error) {
		if !slot.entry.Tombstone() && slot.entry.ID == target.ID && slot.entry.Name == oldName {
			found = true
			return true, m.writeDirSlot(slot, DirEntry{ID: target.ID, Name: newName})
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fserrors.ErrNotFound
	}

	if parent.ID == m.cwdID {
		return m.refreshCwd()
	}
	return nil
}
