package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanProducesInventory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("hello"), 0644))

	inv, err := Scan(dir, Always)
	require.NoError(t, err)
	require.Len(t, inv, 2)

	a, ok := inv["a.txt"]
	require.True(t, ok)
	require.Equal(t, int64(2), a.Size)
	require.NotEmpty(t, a.Hash)

	b, ok := inv["sub/b.txt"]
	require.True(t, ok)
	require.Equal(t, int64(5), b.Size)
}

func TestScanAppliesFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("k"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.tmp"), []byte("s"), 0644))

	excludes := CompileExcludes([]string{"*.tmp"})
	inv, err := Scan(dir, excludes.Filter())
	require.NoError(t, err)

	_, hasKeep := inv["keep.txt"]
	_, hasSkip := inv["skip.tmp"]
	require.True(t, hasKeep)
	require.False(t, hasSkip)
}

func TestScanSkipsExcludedDirectoryEntirely(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "x.js"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))

	excludes := CompileExcludes([]string{"node_modules"})
	inv, err := Scan(dir, excludes.Filter())
	require.NoError(t, err)

	require.Len(t, inv, 1)
	_, ok := inv["main.go"]
	require.True(t, ok)
}

func TestScanSkipsHiddenFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".sync_state.json"), []byte("{}"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "objects", "x"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "visible.txt"), []byte("v"), 0644))

	inv, err := Scan(dir, Always)
	require.NoError(t, err)

	require.Len(t, inv, 1)
	_, ok := inv["visible.txt"]
	require.True(t, ok)
}

func TestScanForwardSlashNormalizedPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "c.txt"), []byte("c"), 0644))

	inv, err := Scan(dir, Always)
	require.NoError(t, err)

	_, ok := inv["a/b/c.txt"]
	require.True(t, ok, "expected forward-slash normalized relpath key")
}
