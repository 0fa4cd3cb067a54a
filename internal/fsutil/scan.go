// Package fsutil walks a local directory tree and produces the inventory
// map the planner and state store operate on (spec.md §4.1).
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"syncd/internal/logging"
	"syncd/internal/state"
)

// Scan walks root depth-first, applying filter, and returns a fresh
// relpath -> FileInfo map. Symlinks are not followed (so symlink cycles
// can't loop the walk); unreadable files are logged and skipped rather than
// failing the scan (spec.md §4.1). Hidden files and directories (name
// starts with ".") are skipped unconditionally, the way the teacher's own
// buildNode does — this also keeps a participant's own state file, which
// lives at the watched root, out of its own inventory.
func Scan(root string, filter PathFilter) (map[string]state.FileInfo, error) {
	if filter == nil {
		filter = Always
	}

	result := make(map[string]state.FileInfo)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Error("scan: skipping %s: %v", path, err)
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			if !filter(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !filter(relPath) {
			return nil
		}

		info, err := hashFile(path)
		if err != nil {
			logging.Error("scan: could not read %s: %v", relPath, err)
			return nil
		}
		info.Path = relPath
		result[relPath] = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// hashFile computes a streamed SHA-256 of path's contents without buffering
// the whole file in memory.
func hashFile(path string) (state.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return state.FileInfo{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return state.FileInfo{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return state.FileInfo{}, err
	}

	return state.FileInfo{
		Hash:     hex.EncodeToString(h.Sum(nil)),
		Modified: state.Truncate(st.ModTime()),
		Size:     st.Size(),
	}, nil
}
