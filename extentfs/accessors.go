package extentfs

// Inode exposes readInode to other packages (notably extentfs/fsck), which
// need to walk the whole inode table rather than just resolve paths.
func (m *Mount) Inode(id uint32) (Inode, error) {
	return m.readInode(id)
}

// InodeBitSet reports whether the inode-bitmap bit for `id` is set.
func (m *Mount) InodeBitSet(id uint32) bool {
	return m.inodeBitmap.get(id)
}

// DataBitSet reports whether the data-bitmap bit for the data-block-relative
// index `k` is set.
func (m *Mount) DataBitSet(k uint32) bool {
	return m.dataBitmap.get(k)
}

// DirSelfAndParent returns the inode ids in a directory's slot 0 (".") and
// slot 1 ("..").
func (m *Mount) DirSelfAndParent(dir Inode) (self, parent uint32, err error) {
	selfSlot, err := m.readDirSlot(&dir, 0)
	if err != nil {
		return 0, 0, err
	}
	parentSlot, err := m.readDirSlot(&dir, 1)
	if err != nil {
		return 0, 0, err
	}
	return selfSlot.entry.ID, parentSlot.entry.ID, nil
}

// CountChildReferences counts the non-tombstone entries in `dir` whose id
// equals `childID`.
func (m *Mount) CountChildReferences(dir Inode, childID uint32) (int, error) {
	count := 0
	err := m.forEachDirSlot(&dir, func(slot dirSlot) (bool, error) {
		if !slot.entry.Tombstone() && slot.entry.ID == childID {
			count++
		}
		return false, nil
	})
	return count, err
}
