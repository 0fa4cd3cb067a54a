package fsutil

import (
	"github.com/gobwas/glob"
)

// PathFilter decides whether a relative path should be included in a scan.
// It is the opaque predicate spec.md describes — the Scanner only ever
// calls it, it never knows how a filter was built.
type PathFilter func(relPath string) bool

// Always is a PathFilter that admits every path.
func Always(string) bool { return true }

// GlobFilter compiles a set of glob exclude patterns into a PathFilter.
// A path is excluded (the filter returns false) if any pattern matches the
// whole relative path, with '/' as the separator. Parent directories are not
// matched here; Scan and Watcher skip the subtree of a directory the filter
// excludes.
type GlobFilter struct {
	patterns []glob.Glob
}

// CompileExcludes compiles exclude patterns (e.g. "*.tmp", "node_modules",
// "build/**") into a GlobFilter. Invalid patterns are skipped rather than
// failing the whole filter — one bad line in a config shouldn't brick sync.
func CompileExcludes(patterns []string) *GlobFilter {
	f := &GlobFilter{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		f.patterns = append(f.patterns, g)
	}
	return f
}

// Filter returns a PathFilter backed by the compiled patterns.
func (f *GlobFilter) Filter() PathFilter {
	return func(relPath string) bool {
		for _, g := range f.patterns {
			if g.Match(relPath) {
				return false
			}
		}
		return true
	}
}
