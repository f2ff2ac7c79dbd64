package extentfs

import (
	"path"
	"strings"

	"github.com/ringzero-os/ringzero/fserrors"
)

func splitPath(p string) (tokens []string, absolute bool) {
	absolute = strings.HasPrefix(p, "/")
	for _, tok := range strings.Split(p, "/") {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens, absolute
}

// Basename returns the final path component, exactly as create/rename use
// it for the directory-entry name.
func Basename(p string) string {
	return path.Base(p)
}

// lookupChild searches dir's direct extents for a non-tombstone entry named
// `name` and returns its inode id, or fserrors.ErrNotFound.
func (m *Mount) lookupChild(dir *Inode, name string) (uint32, error) {
	var found uint32
	err := m.forEachDirSlot(dir, func(slot dirSlot) (bool, error) {
		if !slot.entry.Tombstone() && slot.entry.Name == name {
			found = slot.entry.ID
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, fserrors.ErrNotFound
	}
	return found, nil
}

// resolve walks `p` starting from `cwd`: a leading "/" resets to root; "."
// stays on the current inode, and ".." is read from the current
// directory's slot 1 rather than looked up by name.
func (m *Mount) resolve(p string, cwd Inode) (Inode, error) {
	tokens, absolute := splitPath(p)

	current := cwd
	if absolute {
		root, err := m.readInode(RootInodeID)
		if err != nil {
			return Inode{}, err
		}
		current = root
	}

	for _, tok := range tokens {
		var nextID uint32
		switch tok {
		case ".":
			nextID = current.ID
		case "..":
			if !current.IsDir() {
				return Inode{}, fserrors.ErrNotADirectory
			}
			parentSlot, err := m.readDirSlot(&current, 1)
			if err != nil {
				return Inode{}, err
			}
			nextID = parentSlot.entry.ID
		default:
			if !current.IsDir() {
				return Inode{}, fserrors.ErrNotADirectory
			}
			id, err := m.lookupChild(&current, tok)
			if err != nil {
				return Inode{}, err
			}
			nextID = id
		}

		next, err := m.readInode(nextID)
		if err != nil {
			return Inode{}, err
		}
		current = next
	}
	return current, nil
}

// readDirSlot fetches the slot at the given linear index without scanning
// past it; used for "." / ".." which are always slots 0 and 1.
func (m *Mount) readDirSlot(dir *Inode, index int) (dirSlot, error) {
	var result dirSlot
	found := false
	err := m.forEachDirSlot(dir, func(slot dirSlot) (bool, error) {
		if slot.index == index {
			result = slot
			found = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return dirSlot{}, err
	}
	if !found {
		return dirSlot{}, fserrors.ErrInvalid.WithMessage("directory is missing required slot")
	}
	return result, nil
}

// resolveParent resolves the directory containing `p`. A slash-free path
// resolves to cwd; root is its own parent.
func (m *Mount) resolveParent(p string, cwd Inode) (Inode, error) {
	dir := path.Dir(p)
	if dir == "." {
		return cwd, nil
	}
	return m.resolve(dir, cwd)
}
