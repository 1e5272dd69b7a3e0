package scaffold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/fulmenhq/stencil/pkg/logger"
)

// Template is a loaded template repository.
type Template struct {
	// FS is the template content root (the repository root, or _subdirectory inside it).
	FS           billy.Filesystem
	Declarations *Declarations
	// Dir is the on-disk content root; empty for templates held in memory.
	Dir string
	// SrcPath and Commit are recorded in the answers record.
	SrcPath string
	Commit  string

	extraExclude []string
}

// Settings returns the template's reserved settings.
func (t *Template) Settings() Settings {
	return t.Declarations.Settings
}

// Engine returns an engine typed after the template's questions.
func (t *Template) Engine() *Engine {
	return NewEngine(t.Declarations.Questions)
}

// Exclude adds exclude globs on top of the declared ones (e.g. the project directory
// when it lives inside the template).
func (t *Template) Exclude(patterns ...string) {
	t.extraExclude = append(t.extraExclude, patterns...)
}

// IsExcluded reports whether the template-relative slash path, or any directory above it,
// matches an exclude glob.
func (t *Template) IsExcluded(rel string) bool {
	patterns := append(t.Settings().Excludes(), t.extraExclude...)
	for p := strings.Trim(path.Clean(rel), "/"); p != "." && p != ""; p = path.Dir(p) {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(strings.Trim(pattern, "/"), p); ok {
				return true
			}
		}
	}
	return false
}

// Exists reports whether the template-relative slash path is a regular file.
func (t *Template) Exists(rel string) bool {
	info, err := t.FS.Stat(rel)
	return err == nil && !info.IsDir()
}

// IsTemplated reports whether rel carries the template suffix.
func (t *Template) IsTemplated(rel string) bool {
	return strings.HasSuffix(rel, t.Settings().TemplatesSuffix)
}

// ReadFile reads a template-relative file.
func (t *Template) ReadFile(rel string) ([]byte, error) {
	f, err := t.FS.Open(rel)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// WriteFile writes a template-relative file, creating parent directories.
func (t *Template) WriteFile(rel string, data []byte, perm os.FileMode) error {
	if err := t.FS.MkdirAll(path.Dir(rel), 0o750); err != nil {
		return &DestinationWriteError{Path: rel, Wrapped: err}
	}
	f, err := t.FS.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return &DestinationWriteError{Path: rel, Wrapped: err}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return &DestinationWriteError{Path: rel, Wrapped: err}
	}
	if err := f.Close(); err != nil {
		return &DestinationWriteError{Path: rel, Wrapped: err}
	}
	return nil
}

// Walk calls fn for every non-excluded regular file, in lexical order.
func (t *Template) Walk(fn func(rel string, info os.FileInfo) error) error {
	return t.walk("", fn)
}

func (t *Template) walk(dir string, fn func(rel string, info os.FileInfo) error) error {
	entries, err := t.FS.ReadDir(dirOrRoot(dir))
	if err != nil {
		return fmt.Errorf("failed to read template directory %q: %w", dir, err)
	}
	for _, entry := range entries {
		// memfs lists its root as a child of itself
		if name := entry.Name(); name == "" || name == "." || name == ".." {
			continue
		}
		rel := path.Join(dir, entry.Name())
		if t.IsExcluded(rel) {
			continue
		}
		if entry.IsDir() {
			if err := t.walk(rel, fn); err != nil {
				return err
			}
			continue
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		if err := fn(rel, entry); err != nil {
			return err
		}
	}
	return nil
}

func dirOrRoot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

// Scratch copies the template's non-excluded files into memory so a candidate edit
// can be materialized without touching the real template.
func (t *Template) Scratch() (*Template, error) {
	scratch := &Template{
		FS:           memfs.New(),
		Declarations: t.Declarations,
		SrcPath:      t.SrcPath,
		Commit:       t.Commit,
		extraExclude: append([]string(nil), t.extraExclude...),
	}
	err := t.Walk(func(rel string, info os.FileInfo) error {
		data, err := t.ReadFile(rel)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		return scratch.WriteFile(rel, data, info.Mode().Perm())
	})
	if err != nil {
		return nil, err
	}
	return scratch, nil
}

// LoadTemplate reads the declarations at the root of fsys and returns the template.
func LoadTemplate(fsys billy.Filesystem, srcPath string) (*Template, error) {
	decl, err := readDeclarations(fsys)
	if err != nil {
		return nil, err
	}
	content := fsys
	if sub := decl.Settings.Subdirectory; sub != "" {
		if content, err = fsys.Chroot(sub); err != nil {
			return nil, &ConfigurationError{Message: "invalid _subdirectory " + sub, Wrapped: err}
		}
	}
	return &Template{FS: content, Declarations: decl, SrcPath: srcPath}, nil
}

func readDeclarations(fsys billy.Filesystem) (*Declarations, error) {
	for _, name := range []string{DeclarationsYAML, DeclarationsTOML} {
		f, err := fsys.Open(name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, &ConfigurationError{Message: "failed to open " + name, Wrapped: err}
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, &ConfigurationError{Message: "failed to read " + name, Wrapped: err}
		}
		if name == DeclarationsTOML {
			return ParseTOML(data)
		}
		return ParseYAML(data)
	}
	return nil, Configf("no %s or %s found at template root", DeclarationsYAML, DeclarationsTOML)
}

// OpenLocal loads a template from a directory. Commit is filled from HEAD when the
// directory is inside a git repository.
func OpenLocal(dir string) (*Template, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &ConfigurationError{Message: "invalid template path", Wrapped: err}
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, Configf("template directory %s does not exist", abs)
	}
	t, err := LoadTemplate(osfs.New(abs), abs)
	if err != nil {
		return nil, err
	}
	t.Dir = filepath.Join(abs, filepath.FromSlash(t.Settings().Subdirectory))
	if repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true}); err == nil {
		if head, err := repo.Head(); err == nil {
			t.Commit = head.Hash().String()
		}
	}
	return t, nil
}

// OpenRemote clones a template repository into memory and checks out ref (default branch
// when empty).
func OpenRemote(ctx context.Context, src, ref string) (*Template, error) {
	cloneURL, err := buildCloneURL(src)
	if err != nil {
		return nil, &ConfigurationError{Message: "invalid template source", Wrapped: err}
	}

	logger.Info(fmt.Sprintf("Cloning template %s", cloneURL), logger.String("ref", ref))
	fs := memfs.New()
	repo, err := git.CloneContext(ctx, memory.NewStorage(), fs, &git.CloneOptions{
		URL:  cloneURL,
		Tags: git.AllTags,
	})
	if err != nil {
		return nil, &ConfigurationError{Message: "failed to clone " + cloneURL, Wrapped: err}
	}

	var hash plumbing.Hash
	if ref != "" {
		if hash, err = resolveRefHash(repo, ref); err != nil {
			return nil, &ConfigurationError{Message: "failed to resolve template ref", Wrapped: err}
		}
		wt, err := repo.Worktree()
		if err != nil {
			return nil, fmt.Errorf("failed to open template worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", ref, err)
		}
	} else {
		head, err := repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve template HEAD: %w", err)
		}
		hash = head.Hash()
	}

	t, err := LoadTemplate(fs, src)
	if err != nil {
		return nil, err
	}
	t.Commit = hash.String()
	return t, nil
}

// Open loads a template from a local directory or a git URL.
func Open(ctx context.Context, src, ref string) (*Template, error) {
	if IsRemote(src) {
		return OpenRemote(ctx, src, ref)
	}
	if ref != "" {
		return nil, Configf("--ref only applies to remote templates")
	}
	return OpenLocal(src)
}

var shorthandRepo = regexp.MustCompile(`^[A-Za-z0-9_.\-]+/[A-Za-z0-9_.\-]+$`)

// IsRemote reports whether src names a git URL (or owner/repo shorthand) rather than a
// local directory.
func IsRemote(src string) bool {
	trimmed := strings.TrimSpace(src)
	for _, scheme := range []string{"http://", "https://", "ssh://", "file://", "git@"} {
		if strings.HasPrefix(trimmed, scheme) {
			return true
		}
	}
	if _, err := os.Stat(trimmed); err == nil {
		return false
	}
	return shorthandRepo.MatchString(trimmed)
}

func buildCloneURL(repo string) (string, error) {
	trimmed := strings.TrimSpace(repo)
	if strings.HasPrefix(trimmed, "http://") ||
		strings.HasPrefix(trimmed, "https://") ||
		strings.HasPrefix(trimmed, "ssh://") ||
		strings.HasPrefix(trimmed, "file://") ||
		strings.HasPrefix(trimmed, "git@") {
		return trimmed, nil
	}

	if strings.Contains(trimmed, "://") {
		return "", fmt.Errorf("unsupported repo URL scheme: %s", trimmed)
	}

	trimmed = strings.TrimSuffix(trimmed, ".git")
	return fmt.Sprintf("https://github.com/%s.git", trimmed), nil
}

func resolveRefHash(repository *git.Repository, ref string) (plumbing.Hash, error) {
	if hash, err := repository.ResolveRevision(plumbing.Revision(ref)); err == nil {
		return *hash, nil
	}

	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewRemoteReferenceName("origin", ref),
		plumbing.NewTagReferenceName(ref),
	}
	for _, candidate := range candidates {
		if reference, err := repository.Reference(candidate, true); err == nil {
			return reference.Hash(), nil
		}
	}

	return plumbing.ZeroHash, fmt.Errorf("ref %s not found", ref)
}
