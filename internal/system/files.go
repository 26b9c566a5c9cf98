package system

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// OSFiles is the Filesystem backed by the host. Every path is resolved under
// Root, which lets a run target a mounted image instead of "/".
type OSFiles struct {
	Root string
}

// NewOSFiles returns a Filesystem rooted at root ("" or "/" for the host).
func NewOSFiles(root string) *OSFiles {
	return &OSFiles{Root: root}
}

var _ Filesystem = (*OSFiles)(nil)

func (f *OSFiles) path(p string) string {
	if f.Root == "" || f.Root == "/" {
		return p
	}
	return filepath.Join(f.Root, p)
}

// Stat implements Filesystem.
func (f *OSFiles) Stat(p string) (FileInfo, error) {
	info, err := os.Stat(f.path(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, nil
		}
		return FileInfo{}, err
	}

	out := FileInfo{Exists: true, IsDir: info.IsDir(), Mode: info.Mode(), UID: -1, GID: -1}
	if uid, gid, ok := ownerOf(info); ok {
		out.UID, out.GID = uid, gid
	}
	return out, nil
}

// ReadFile implements Filesystem.
func (f *OSFiles) ReadFile(p string) ([]byte, error) {
	return os.ReadFile(f.path(p))
}

// WriteFile writes to a temporary sibling and renames it over p.
func (f *OSFiles) WriteFile(p string, data []byte, mode os.FileMode) error {
	target := f.path(p)
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

// Mkdir implements Filesystem.
func (f *OSFiles) Mkdir(p string, mode os.FileMode) error {
	return os.Mkdir(f.path(p), mode.Perm())
}

// MkdirAll implements Filesystem.
func (f *OSFiles) MkdirAll(p string, mode os.FileMode) error {
	return os.MkdirAll(f.path(p), mode.Perm())
}

// Chmod implements Filesystem. Special bits are honoured.
func (f *OSFiles) Chmod(p string, mode os.FileMode) error {
	return os.Chmod(f.path(p), mode)
}

// Chown implements Filesystem.
func (f *OSFiles) Chown(p string, uid, gid int) error {
	return os.Chown(f.path(p), uid, gid)
}

// LookupUser resolves a user name or numeric id.
func (f *OSFiles) LookupUser(name string) (int, int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		if _, convErr := strconv.Atoi(name); convErr == nil {
			u, err = user.LookupId(name)
		}
	}
	if err != nil {
		return 0, 0, fmt.Errorf("lookup user %s: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("user %s has non-numeric uid %q", name, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("user %s has non-numeric gid %q", name, u.Gid)
	}
	return uid, gid, nil
}

// LookupGroup resolves a group name or numeric id.
func (f *OSFiles) LookupGroup(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		if _, convErr := strconv.Atoi(name); convErr == nil {
			g, err = user.LookupGroupId(name)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("lookup group %s: %w", name, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("group %s has non-numeric gid %q", name, g.Gid)
	}
	return gid, nil
}
