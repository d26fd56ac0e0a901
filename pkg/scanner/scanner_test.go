package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsmirror/fsmirror/pkg/progress"
)

func writeFile(t *testing.T, fsys billy.Filesystem, name, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, name, []byte(content), 0o644))
}

func relPaths(entries []Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.RelPath)
	}
	sort.Strings(paths)
	return paths
}

func TestScanCompleteness(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "a.txt", "aaa")
	writeFile(t, fsys, "sub/b.txt", "bb")
	writeFile(t, fsys, "sub/deep/c.txt", "c")
	require.NoError(t, fsys.MkdirAll("empty", 0o755))

	entries, err := Scan(fsys, Options{Root: "/src"})
	require.NoError(t, err)

	// 3 files + 3 directories, root excluded.
	assert.Equal(t, []string{
		"a.txt", "empty", "sub", "sub/b.txt", "sub/deep", "sub/deep/c.txt",
	}, relPaths(entries))

	seen := map[string]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.RelPath], "relative paths must be unique: %s", e.RelPath)
		seen[e.RelPath] = true
	}

	// Prefix-tree invariant: every entry's parent is present, or is the root.
	for _, e := range entries {
		parent := filepath.ToSlash(filepath.Dir(e.RelPath))
		if parent == "." {
			continue
		}
		assert.True(t, seen[parent], "parent of %s must be an entry", e.RelPath)
	}
}

func TestScanEntryMetadata(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "sub/b.txt", "hello")

	entries, err := Scan(fsys, Options{Root: "/src"})
	require.NoError(t, err)

	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.RelPath] = e
	}

	f := byPath["sub/b.txt"]
	assert.Equal(t, "b.txt", f.Name)
	assert.Equal(t, int64(5), f.Size)
	assert.False(t, f.IsDir)
	assert.Equal(t, filepath.Join("/src", "sub", "b.txt"), f.FullPath)

	d := byPath["sub"]
	assert.True(t, d.IsDir)
	assert.Equal(t, int64(0), d.Size)
}

func TestScanSiblingPrefixes(t *testing.T) {
	// "ab" and "abc" share a prefix; relative paths must not bleed into
	// each other when the root prefix is stripped.
	fsys := memfs.New()
	writeFile(t, fsys, "ab/x.txt", "x")
	writeFile(t, fsys, "abc/y.txt", "y")

	entries, err := Scan(fsys, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "ab/x.txt", "abc", "abc/y.txt"}, relPaths(entries))
}

func TestScanExcludes(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "keep.txt", "k")
	writeFile(t, fsys, "debug.log", "l")
	writeFile(t, fsys, "sub/trace.log", "l")
	writeFile(t, fsys, "tmp/scratch.txt", "s")
	writeFile(t, fsys, "tmp/nested/more.txt", "m")

	entries, err := Scan(fsys, Options{
		Excludes: []string{"**/*.log", "*.log", "tmp/"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt", "sub"}, relPaths(entries))
}

func TestScanRootNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := Scan(osfs.New(missing), Options{Root: missing})
	require.Error(t, err)
}

func TestScanRootIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Scan(osfs.New(file), Options{Root: file})
	require.Error(t, err)
}

// failReadDirFS simulates a subdirectory that cannot be enumerated.
type failReadDirFS struct {
	billy.Filesystem
	fail string
}

func (f failReadDirFS) ReadDir(path string) ([]os.FileInfo, error) {
	if path == f.fail {
		return nil, errors.New("permission denied")
	}
	return f.Filesystem.ReadDir(path)
}

func TestScanSkipsUnreadableSubtree(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "ok.txt", "o")
	writeFile(t, fsys, "locked/secret.txt", "s")

	entries, err := Scan(failReadDirFS{Filesystem: fsys, fail: "locked"}, Options{})
	require.NoError(t, err, "per-directory failures must not fail the scan")

	// The directory itself was enumerable and is recorded; its children are
	// absent.
	assert.Equal(t, []string{"locked", "ok.txt"}, relPaths(entries))
}

func TestScanProgress(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, "a.txt", "a")
	writeFile(t, fsys, "sub/b.txt", "b")

	var reports []progress.Report
	tracker := progress.NewTracker(func(r progress.Report) {
		reports = append(reports, r)
	})

	entries, err := Scan(fsys, Options{Progress: tracker})
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	var last int64
	for _, r := range reports {
		assert.Equal(t, progress.PhaseScanning, r.Phase)
		assert.Equal(t, progress.TotalUnknown, r.TotalItems)
		assert.GreaterOrEqual(t, r.ItemsProcessed, last, "items processed must be monotonic")
		last = r.ItemsProcessed
	}
	assert.Equal(t, int64(len(entries)), last)
}
