// Package ignore provides gitignore-based file filtering using go-git
package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFile holds stencil-only patterns layered on top of git's.
const IgnoreFile = ".stencilignore"

// Matcher answers "would git track this path" for paths below Root.
type Matcher struct {
	root    string
	matcher gitignore.Matcher
}

// NewMatcher creates a matcher rooted at repoRoot with layered ignore files:
// 1. .git/info/exclude and every .gitignore below repoRoot (foundation)
// 2. .stencilignore at repoRoot (repo overrides)
// The .git directory itself is always ignored.
func NewMatcher(repoRoot string) (*Matcher, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}

	allPatterns := []gitignore.Pattern{gitignore.ParsePattern(".git", nil)}

	// ReadPatterns with nil reads .git/info/exclude and recurses through nested .gitignore files
	gitPatterns, err := gitignore.ReadPatterns(osfs.New(absRoot), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read gitignore patterns: %w", err)
	}
	allPatterns = append(allPatterns, gitPatterns...)

	if stencilPatterns, err := readIgnoreFile(filepath.Join(absRoot, IgnoreFile)); err == nil {
		for _, pattern := range stencilPatterns {
			allPatterns = append(allPatterns, gitignore.ParsePattern(pattern, nil))
		}
	}

	return &Matcher{
		root:    absRoot,
		matcher: gitignore.NewMatcher(allPatterns),
	}, nil
}

// Root returns the absolute directory patterns are anchored to.
func (m *Matcher) Root() string {
	return m.root
}

// readIgnoreFile reads patterns from a text file (like .stencilignore)
func readIgnoreFile(path string) ([]string, error) {
	cleaned := filepath.Clean(path)
	if filepath.Base(cleaned) != IgnoreFile {
		return nil, fmt.Errorf("disallowed ignore file path: %s", cleaned)
	}
	content, err := os.ReadFile(cleaned) // #nosec G304 -- path cleaned and allowlisted
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	return patterns, nil
}

// IsIgnored checks if a file should be ignored. path is absolute or relative to the working directory.
func (m *Matcher) IsIgnored(path string) bool {
	return m.match(path, false)
}

// IsIgnoredDir checks if a directory should be ignored (and thus skipped during traversal)
func (m *Matcher) IsIgnoredDir(path string) bool {
	return m.match(path, true)
}

// MatchRel matches a slash-separated path relative to Root.
func (m *Matcher) MatchRel(rel string, isDir bool) bool {
	pathParts := splitPath(rel)
	if len(pathParts) == 0 {
		return false
	}
	return m.matcher.Match(pathParts, isDir)
}

func (m *Matcher) match(path string, isDir bool) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	relPath, err := filepath.Rel(m.root, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		// Outside the repository: nothing to say about it
		return false
	}
	return m.MatchRel(filepath.ToSlash(relPath), isDir)
}

// FindRepoRoot walks up from dir to the nearest directory containing .git.
// Returns dir itself (absolute) when no repository encloses it.
func FindRepoRoot(dir string) string {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for current := absDir; ; {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir
		}
		current = parent
	}
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return []string{}
	}

	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")

	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}

	return result
}
