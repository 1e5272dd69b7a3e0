// Package gitctx answers the version-control questions stencil asks about the template repository.
package gitctx

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned when no repository encloses the directory.
var ErrNotRepository = errors.New("not a git repository")

// ErrUnknownRevision is returned when a revision cannot be resolved.
var ErrUnknownRevision = errors.New("unknown revision")

// DirtyError lists the paths that keep a working tree from being clean.
type DirtyError struct {
	Entries []FileStatus
}

func (e *DirtyError) Error() string {
	lines := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		lines = append(lines, entry.String())
	}
	return fmt.Sprintf("repository has uncommitted changes, commit or stash them first:\n%s", strings.Join(lines, "\n"))
}

// FileStatus is one porcelain-style status line.
type FileStatus struct {
	Path     string `json:"path"`
	Staging  byte   `json:"staging"`
	Worktree byte   `json:"worktree"`
}

func (s FileStatus) String() string {
	return fmt.Sprintf("%c%c %s", s.Staging, s.Worktree, s.Path)
}

// Repo wraps the repository enclosing a directory.
type Repo struct {
	repo *git.Repository
	root string
}

// Open finds the repository enclosing dir.
func Open(dir string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNotRepository)
		}
		return nil, fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root directory.
func (r *Repo) Root() string {
	return r.root
}

// RelPath converts p (absolute or relative to the working directory) into a slash path
// relative to the worktree root.
func (r *Repo) RelPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	root, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		root = r.root
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else if resolvedDir, derr := filepath.EvalSymlinks(filepath.Dir(abs)); derr == nil {
		abs = filepath.Join(resolvedDir, filepath.Base(abs))
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside repository %s", p, r.root)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// Status returns changed paths below prefix (slash path relative to Root, "" for everything),
// sorted by path.
func (r *Repo) Status(prefix string) ([]FileStatus, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}

	var entries []FileStatus
	for p, s := range st {
		if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
			continue
		}
		if !underPrefix(p, prefix) {
			continue
		}
		entries = append(entries, FileStatus{Path: p, Staging: byte(s.Staging), Worktree: byte(s.Worktree)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// EnsureClean returns a *DirtyError when anything below prefix is modified or untracked.
func (r *Repo) EnsureClean(prefix string) error {
	entries, err := r.Status(prefix)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return &DirtyError{Entries: entries}
	}
	return nil
}

// HeadCommit returns the hash of HEAD.
func (r *Repo) HeadCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// IndexedFiles lists the paths staged in the index below prefix, relative to prefix.
func (r *Repo) IndexedFiles(prefix string) ([]string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var files []string
	for _, entry := range idx.Entries {
		if underPrefix(entry.Name, prefix) && entry.Name != strings.Trim(prefix, "/") {
			files = append(files, trimPrefix(entry.Name, prefix))
		}
	}
	sort.Strings(files)
	return files, nil
}

// HeadContent returns the content of path (relative to Root) at HEAD. The bool is false when
// HEAD does not track the path.
func (r *Repo) HeadContent(rel string) ([]byte, bool, error) {
	tree, err := r.treeAt("HEAD")
	if err != nil {
		return nil, false, err
	}
	file, err := tree.File(rel)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s at HEAD: %w", rel, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s at HEAD: %w", rel, err)
	}
	return []byte(contents), true, nil
}

// RestoreFile rewrites p from HEAD, like `git restore p`. A path HEAD does not track is left alone.
func (r *Repo) RestoreFile(p string) error {
	rel, err := r.RelPath(p)
	if err != nil {
		return err
	}
	tree, err := r.treeAt("HEAD")
	if err != nil {
		return err
	}
	file, err := tree.File(rel)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read %s at HEAD: %w", rel, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return fmt.Errorf("failed to read %s at HEAD: %w", rel, err)
	}
	mode, err := file.Mode.ToOSFileMode()
	if err != nil {
		mode = 0o644
	}
	dst := filepath.Join(r.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	return os.WriteFile(dst, []byte(contents), mode.Perm())
}

// ChangedSince returns paths below prefix that differ between rev and the working tree
// (committed since rev, or uncommitted). Keys are relative to prefix.
func (r *Repo) ChangedSince(rev, prefix string) (map[string]struct{}, error) {
	from, err := r.treeAt(rev)
	if err != nil {
		return nil, err
	}
	to, err := r.treeAt("HEAD")
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..HEAD: %w", rev, err)
	}

	changed := make(map[string]struct{})
	add := func(p string) {
		if p == "" || !underPrefix(p, prefix) {
			return
		}
		changed[trimPrefix(p, prefix)] = struct{}{}
	}
	for _, change := range changes {
		add(change.From.Name)
		add(change.To.Name)
	}

	entries, err := r.Status(prefix)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		add(entry.Path)
	}
	return changed, nil
}

func (r *Repo) treeAt(rev string) (*object.Tree, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rev, ErrUnknownRevision)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", rev, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree for %s: %w", rev, err)
	}
	return tree, nil
}

func underPrefix(p, prefix string) bool {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func trimPrefix(p, prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return p
	}
	return path.Clean(strings.TrimPrefix(strings.TrimPrefix(p, prefix), "/"))
}
