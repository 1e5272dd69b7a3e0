// Package tree enumerates materialized project trees and classifies how two of them differ.
package tree

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"github.com/fulmenhq/stencil/internal/gitctx"
	"github.com/fulmenhq/stencil/pkg/ignore"
	"github.com/fulmenhq/stencil/pkg/logger"
)

// Kind classifies one difference between an expected and an actual tree.
type Kind int

const (
	// Missing files exist only in the expected tree.
	Missing Kind = iota
	// Extra files exist only in the actual tree.
	Extra
	// ContentDiffers files exist in both with different content.
	ContentDiffers
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Extra:
		return "extra"
	case ContentDiffers:
		return "content differs"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Difference is one differing path, slash separated and relative to the tree roots.
type Difference struct {
	Kind Kind
	Path string
}

func (d Difference) String() string {
	switch d.Kind {
	case Missing:
		return "Missing file: " + d.Path
	case Extra:
		return "Extra file: " + d.Path
	default:
		return "Content differs: " + d.Path
	}
}

// Diff compares an ephemeral expected tree (every file it holds) with an actual project tree
// (only files git would track). Files whose base name is in ignored are dropped from both.
// Results are ordered Missing, then Extra, then ContentDiffers, each sorted by path.
func Diff(expectedRoot, actualRoot string, ignored []string) ([]Difference, error) {
	expected, err := ListAll(expectedRoot, ignored)
	if err != nil {
		return nil, err
	}
	actual, err := ListTracked(actualRoot, ignored)
	if err != nil {
		return nil, err
	}
	return Compare(expectedRoot, expected, actualRoot, actual)
}

// Compare classifies two file lists whose entries are relative to their roots.
func Compare(expectedRoot string, expected []string, actualRoot string, actual []string) ([]Difference, error) {
	inActual := make(map[string]bool, len(actual))
	for _, p := range actual {
		inActual[p] = true
	}
	inExpected := make(map[string]bool, len(expected))
	for _, p := range expected {
		inExpected[p] = true
	}

	var missing, extra, differs []string
	for p := range inExpected {
		if !inActual[p] {
			missing = append(missing, p)
			continue
		}
		same, err := SameContent(filepath.Join(expectedRoot, filepath.FromSlash(p)), filepath.Join(actualRoot, filepath.FromSlash(p)))
		if err != nil {
			return nil, err
		}
		if !same {
			differs = append(differs, p)
		}
	}
	for p := range inActual {
		if !inExpected[p] {
			extra = append(extra, p)
		}
	}

	sort.Strings(missing)
	sort.Strings(extra)
	sort.Strings(differs)

	diffs := make([]Difference, 0, len(missing)+len(extra)+len(differs))
	for _, p := range missing {
		diffs = append(diffs, Difference{Kind: Missing, Path: p})
	}
	for _, p := range extra {
		diffs = append(diffs, Difference{Kind: Extra, Path: p})
	}
	for _, p := range differs {
		diffs = append(diffs, Difference{Kind: ContentDiffers, Path: p})
	}

	logger.Debug("compared trees",
		logger.Int("expected", len(expected)),
		logger.Int("actual", len(actual)),
		logger.Int("differences", len(diffs)))
	return diffs, nil
}

// SameContent compares two files byte for byte when both hold UTF-8 text. Anything else
// is compared by size only.
func SameContent(a, b string) (bool, error) {
	left, err := os.ReadFile(a) // #nosec G304 -- paths come from a tree listing
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", a, err)
	}
	right, err := os.ReadFile(b) // #nosec G304 -- paths come from a tree listing
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", b, err)
	}
	if utf8.Valid(left) && utf8.Valid(right) {
		return bytes.Equal(left, right), nil
	}
	return len(left) == len(right), nil
}

// ListAll returns every regular file below root, sorted. A root that does not exist lists
// nothing.
func ListAll(root string, ignored []string) ([]string, error) {
	skip := nameSet(ignored)
	var files []string
	err := walkFiles(root, func(string, fs.DirEntry) (bool, error) { return false, nil }, func(rel string) {
		if !skip[filepath.Base(rel)] {
			files = append(files, rel)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ListTracked returns the files below root that git would track, sorted: everything staged in
// the index plus untracked files no ignore rule matches. Ignore rules come from the enclosing
// repository (.gitignore files, .git/info/exclude and .stencilignore).
func ListTracked(root string, ignored []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	matcher, err := ignore.NewMatcher(ignore.FindRepoRoot(absRoot))
	if err != nil {
		return nil, err
	}

	skip := nameSet(ignored)
	found := make(map[string]bool)
	add := func(rel string) {
		if !skip[filepath.Base(rel)] {
			found[rel] = true
		}
	}

	if repo, err := gitctx.Open(absRoot); err == nil {
		if prefix, err := repo.RelPath(absRoot); err == nil {
			indexed, err := repo.IndexedFiles(prefix)
			if err != nil {
				return nil, err
			}
			for _, rel := range indexed {
				if info, err := os.Stat(filepath.Join(absRoot, filepath.FromSlash(rel))); err == nil && info.Mode().IsRegular() {
					add(rel)
				}
			}
		}
	}

	err = walkFiles(absRoot, func(path string, d fs.DirEntry) (bool, error) {
		if d.IsDir() {
			return d.Name() == ".git" || matcher.IsIgnoredDir(path), nil
		}
		return matcher.IsIgnored(path), nil
	}, add)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(found))
	for rel := range found {
		files = append(files, rel)
	}
	sort.Strings(files)
	return files, nil
}

// walkFiles calls emit with the slash path of every regular file (or symlink to one) below
// root that skip does not reject. skip returning true for a directory prunes it.
func walkFiles(root string, skip func(path string, d fs.DirEntry) (bool, error), emit func(rel string)) error {
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		skipped, err := skip(path, d)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipped {
				return filepath.SkipDir
			}
			return nil
		}
		if skipped || !isFile(path, d) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		emit(filepath.ToSlash(rel))
		return nil
	})
}

func isFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[filepath.Base(name)] = true
	}
	return set
}
