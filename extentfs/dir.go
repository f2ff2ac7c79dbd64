package extentfs

import "time"

// DirListEntry is one entry returned by List: enough metadata to implement
// `ls`-style directory iteration without a second round trip per file.
type DirListEntry struct {
	Name    string
	ID      uint32
	Size    uint32
	ModTime time.Time
	Type    InodeType
}

func (d DateTime) toTime() time.Time {
	return time.Date(
		int(d.Year), time.Month(d.Month), int(d.Day),
		int(d.Hour), int(d.Minute), int(d.Second), 0, time.UTC,
	)
}

// List walks every slot of `dir`'s direct extents, skips tombstones, and
// fetches the referenced inode for each live entry, in on-disk order (so
// "." and ".." always come first).
func (m *Mount) List(dir Inode) ([]DirListEntry, error) {
	var entries []DirListEntry
	err := m.forEachDirSlot(&dir, func(slot dirSlot) (bool, error) {
		if slot.entry.Tombstone() {
			return false, nil
		}
		child, err := m.readInode(slot.entry.ID)
		if err != nil {
			return false, err
		}
		entries = append(entries, DirListEntry{
			Name:    slot.entry.Name,
			ID:      child.ID,
			Size:    child.SizeBytes,
			ModTime: child.LastModified.toTime(),
			Type:    child.Type,
		})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListPath resolves `p` and lists it.
func (m *Mount) ListPath(p string) ([]DirListEntry, error) {
	dir, err := m.resolve(p, m.cwdInode)
	if err != nil {
		return nil, err
	}
	return m.List(dir)
}
