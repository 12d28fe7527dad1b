// Package ignore answers gitignore queries for a directory tree.
package ignore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher matches absolute paths against the .gitignore files found under
// its root. A nil *Matcher ignores nothing.
type Matcher struct {
	root    string
	matcher gitignore.Matcher
}

// Load reads every .gitignore under root (nested files apply to their own
// subtree, as in git).
func Load(root string) (*Matcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(abs), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read ignore patterns under %s: %w", abs, err)
	}
	return &Matcher{root: abs, matcher: gitignore.NewMatcher(patterns)}, nil
}

// Ignored reports whether path is excluded. Paths outside the root are never
// ignored.
func (m *Matcher) Ignored(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return m.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}
