package scanner

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultDirExcludes are directory names skipped during traversal
// regardless of the configured patterns.
var defaultDirExcludes = []string{
	".git",
	".corpusd",
	"node_modules",
	".obsidian",
	".trash",
	".idea",
	".vscode",
}

func shouldExcludeDir(name string) bool {
	for _, excl := range defaultDirExcludes {
		if strings.EqualFold(name, excl) {
			return true
		}
	}
	return false
}

// MatchesInclude reports whether relPath matches any include pattern.
// An empty pattern list includes everything.
func MatchesInclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchesAny(relPath, patterns)
}

// MatchesExclude reports whether relPath matches any exclude pattern.
// An empty pattern list excludes nothing.
func MatchesExclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matchesAny(relPath, patterns)
}

// matchesAny checks relPath against each glob pattern using doublestar for
// ** support. A directory pattern like "notes" or "notes/" matches every
// path beneath it.
func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)

	for _, pattern := range patterns {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
		if pattern == "" {
			continue
		}

		if matched, err := doublestar.PathMatch(pattern, normalized); err == nil && matched {
			return true
		}
		// Bare directory prefix.
		if strings.HasPrefix(normalized, pattern+"/") {
			return true
		}
		// Match against the basename so "*.md" style patterns work at any depth.
		if matched, err := doublestar.PathMatch(pattern, filepath.Base(normalized)); err == nil && matched {
			return true
		}
	}
	return false
}
