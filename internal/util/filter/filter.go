// Package filter decides which files of a dropped tree are taken, using
// glob patterns on the base name and on the path within the tree.
package filter

import (
	"path"
	"strings"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style) matched against the base name. Empty means include all.
	// Example: []string{"*.pdf", "*.png"}
	Include []string

	// Exclude patterns (glob-style) matched against the base name and the
	// relative path. Takes precedence over Include.
	// Example: []string{"~*", "*.tmp"}
	Exclude []string

	// PathInclude patterns match against the path relative to the dropped root.
	// Supports standard glob patterns plus ** for multi-directory matching.
	// Example: []string{"scans/*.png", "**/final/*"}
	PathInclude []string
}

// IsEmpty reports whether the config lets every file through.
func (c Config) IsEmpty() bool {
	return len(c.Include) == 0 && len(c.Exclude) == 0 && len(c.PathInclude) == 0
}

// Match reports whether the file at relPath (slash separated) is taken.
func (c Config) Match(relPath string) bool {
	if c.IsEmpty() {
		return true
	}
	relPath = strings.TrimPrefix(relPath, "/")
	base := path.Base(relPath)

	// 1. Exclude patterns first (highest priority)
	for _, pattern := range c.Exclude {
		if globMatch(pattern, base) || matchPathPattern(relPath, pattern) {
			return false
		}
	}

	// 2. Path patterns
	if len(c.PathInclude) > 0 && !matchesAny(relPath, c.PathInclude) {
		return false
	}

	// 3. Name patterns
	if len(c.Include) > 0 {
		for _, pattern := range c.Include {
			if globMatch(pattern, base) {
				return true
			}
		}
		return false
	}
	return true
}

func matchesAny(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPathPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	return err == nil && matched
}

// matchPathPattern matches a single path against a pattern.
// Supports standard glob patterns plus ** for recursive directory matching.
func matchPathPattern(p, pattern string) bool {
	if strings.Contains(pattern, "**") {
		return matchDoubleStarPattern(p, pattern)
	}
	return globMatch(pattern, p)
}

// matchDoubleStarPattern handles ** glob patterns for multi-directory matching.
// Examples:
//   - "**/foo.txt" matches "foo.txt", "a/foo.txt", "a/b/c/foo.txt"
//   - "run_1/**" matches "run_1/anything", "run_1/a/b/c/file.txt"
//   - "a/**/b.txt" matches "a/b.txt", "a/x/y/b.txt"
func matchDoubleStarPattern(p, pattern string) bool {
	if pattern == "**" {
		return true
	}

	// Leading **/ matches any prefix
	if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
		parts := strings.Split(p, "/")
		for i := range parts {
			if matchPathPattern(strings.Join(parts[i:], "/"), suffix) {
				return true
			}
		}
		return false
	}

	// Trailing /** matches any suffix
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		parts := strings.Split(p, "/")
		for i := 1; i <= len(parts); i++ {
			if globMatch(prefix, strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	// ** in the middle
	if i := strings.Index(pattern, "/**/"); i != -1 {
		prefix, suffix := pattern[:i], pattern[i+4:]
		parts := strings.Split(p, "/")
		for i := 1; i < len(parts); i++ {
			if !globMatch(prefix, strings.Join(parts[:i], "/")) {
				continue
			}
			for j := i; j < len(parts); j++ {
				if matchPathPattern(strings.Join(parts[j:], "/"), suffix) {
					return true
				}
			}
		}
		return false
	}

	// Anything else: treat ** as *
	return globMatch(strings.ReplaceAll(pattern, "**", "*"), p)
}

// ParsePatternList parses a comma-separated list of patterns into a slice.
// Example: "*.dat,*.txt" -> []string{"*.dat", "*.txt"}
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
