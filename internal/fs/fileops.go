package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"hoard/internal/core"
)

// OSFileOps is the real filesystem implementation of core.FileOps.
type OSFileOps struct{}

// NewOSFileOps creates file ops that operate on the real filesystem.
func NewOSFileOps() *OSFileOps { return &OSFileOps{} }

// Compile-time check that OSFileOps implements core.FileOps.
var _ core.FileOps = (*OSFileOps)(nil)

// SafeMove moves src to dst, creating parent directories and resolving
// filename collisions with a numeric suffix ("name (1).ext"). The chosen
// name is reserved with an exclusive create before the move, so
// concurrent movers into the same destination each get a distinct name
// and no existing file is ever replaced. The file is renamed when
// possible and copied+removed across devices.
func (o *OSFileOps) SafeMove(src, dst string) (string, error) {
	if strings.TrimSpace(dst) == "" {
		return "", fmt.Errorf("destination is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("creating destination directory: %w", err)
	}

	final, err := reserveName(dst)
	if err != nil {
		return "", err
	}

	// Fast path: same-device rename over our own placeholder.
	if err := os.Rename(src, final); err == nil {
		return final, nil
	}

	// Fallback: copy + remove handles cross-device moves.
	if err := copyFile(src, final); err != nil {
		os.Remove(final)
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("removing source after copy: %w", err)
	}
	return final, nil
}

// reserveName claims dst, or the first free "name (N).ext" variant, by
// creating it with O_EXCL. The exclusive create is the collision check:
// a concurrent claimer of the same name loses the create and advances to
// the next suffix. The returned name exists as an empty placeholder
// owned by the caller.
func reserveName(dst string) (string, error) {
	dir := filepath.Dir(dst)
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(filepath.Base(dst), ext)

	candidate := dst
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			f.Close()
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("reserving destination: %w", err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(dst)
		return fmt.Errorf("copying content: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(dst)
		return fmt.Errorf("finalizing destination: %w", closeErr)
	}
	return nil
}

// WalkFiles visits every regular file under root. prune is consulted per
// directory before descending. Errors on individual entries are skipped
// so one unreadable file cannot abort a whole tree walk.
func (o *OSFileOps) WalkFiles(root string, prune func(dir string) bool, visit func(path string, size int64) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != root && prune != nil && prune(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		return visit(p, info.Size())
	})
}

// RemoveEmptyDirs removes now-empty directories under root in repeated
// bottom-up passes: removing a leaf can empty its parent. root itself is
// preserved. Returns the number of directories removed.
func (o *OSFileOps) RemoveEmptyDirs(root string) (int, error) {
	removed := 0
	for {
		removedThisPass := 0

		var dirs []string
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && p != root {
				dirs = append(dirs, p)
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("walking for empty dirs: %w", err)
		}

		// Deepest first so children empty out before their parents are
		// considered within the same pass.
		for i := len(dirs) - 1; i >= 0; i-- {
			entries, err := os.ReadDir(dirs[i])
			if err != nil || len(entries) > 0 {
				continue
			}
			if err := os.Remove(dirs[i]); err == nil {
				removedThisPass++
			}
		}

		removed += removedThisPass
		if removedThisPass == 0 {
			return removed, nil
		}
	}
}

// IsHidden reports whether the path's base name is dot-prefixed.
func (o *OSFileOps) IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
