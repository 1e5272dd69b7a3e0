package scaffold

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateWalkAndExclude(t *testing.T) {
	_, tpl := fixtureTemplate(t, fixtureDeclarations)
	tpl.Exclude("LICENSE")

	var seen []string
	require.NoError(t, tpl.Walk(func(rel string, _ os.FileInfo) error {
		seen = append(seen, rel)
		return nil
	}))
	assert.Equal(t, []string{
		"README.md.hbs",
		"src/{{ project_name_snake }}/__init__.py",
		"src/{{ project_name_snake }}/util.py.hbs",
		"{{ ui_dir }}/package.json.hbs",
	}, seen)

	assert.True(t, tpl.IsExcluded("test-proj/src/deep/file.py"))
	assert.True(t, tpl.IsExcluded("nested/cache.pyc"))
	assert.True(t, tpl.IsExcluded(".git/config"))
	assert.False(t, tpl.IsExcluded("README.md.hbs"))

	assert.True(t, tpl.Exists("README.md.hbs"))
	assert.False(t, tpl.Exists("src"))
	assert.True(t, tpl.IsTemplated("README.md.hbs"))
	assert.False(t, tpl.IsTemplated("LICENSE"))
}

func TestTemplateScratch(t *testing.T) {
	root, tpl := fixtureTemplate(t, fixtureDeclarations)

	scratch, err := tpl.Scratch()
	require.NoError(t, err)
	assert.False(t, scratch.Exists("test-proj/README.md"))

	require.NoError(t, scratch.WriteFile("README.md.hbs", []byte("# changed {{ project_name }}\n"), 0o644))
	require.NoError(t, scratch.WriteFile("docs/new.md", []byte("new\n"), 0o644))

	assert.Equal(t, "# {{ project_name }}\n", readFile(t, filepath.Join(root, "README.md.hbs")))
	assert.NoFileExists(t, filepath.Join(root, "docs", "new.md"))

	dest := t.TempDir()
	require.NoError(t, Materialize(context.Background(), scratch, resolved(scratch, Variables{}), dest, Options{}))
	assert.Equal(t, "# changed test-proj\n", readFile(t, filepath.Join(dest, "README.md")))
	assert.FileExists(t, filepath.Join(dest, "docs", "new.md"))
}

func TestLoadTemplateSubdirectory(t *testing.T) {
	fs := memfs.New()
	write := func(name, content string) {
		f, err := fs.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	write(DeclarationsYAML, "_subdirectory: template\nname: demo\n")
	write("template/hello.txt.hbs", "hello {{ name }}\n")
	write("outside.txt", "not part of the template\n")

	tpl, err := LoadTemplate(fs, "mem")
	require.NoError(t, err)
	assert.True(t, tpl.Exists("hello.txt.hbs"))
	assert.False(t, tpl.Exists("outside.txt"))
}

func TestLoadTemplateWithoutDeclarations(t *testing.T) {
	_, err := LoadTemplate(osfs.New(t.TempDir()), "empty")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestLoadTemplateTOML(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{DeclarationsTOML: "name = \"demo\"\n"})

	tpl, err := LoadTemplate(osfs.New(dir), dir)
	require.NoError(t, err)
	require.Len(t, tpl.Declarations.Questions, 1)
	assert.False(t, tpl.IsExcluded("README.md"))
	assert.True(t, tpl.IsExcluded(DeclarationsTOML))
}

func TestOpenLocal(t *testing.T) {
	root, _ := fixtureTemplate(t, fixtureDeclarations)

	tpl, err := OpenLocal(root)
	require.NoError(t, err)
	assert.Empty(t, tpl.Commit)

	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	hash, err := wt.Commit("template", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	tpl, err = OpenLocal(root)
	require.NoError(t, err)
	assert.Equal(t, hash.String(), tpl.Commit)
	assert.Equal(t, root, tpl.SrcPath)
	assert.Equal(t, root, tpl.Dir)

	_, err = OpenLocal(filepath.Join(root, "missing"))
	assert.True(t, IsConfigurationError(err))
}

func TestOpenRejectsRefForLocal(t *testing.T) {
	root, _ := fixtureTemplate(t, fixtureDeclarations)
	_, err := Open(context.Background(), root, "v1.0.0")
	assert.True(t, IsConfigurationError(err))
}

func TestIsRemote(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsRemote(dir))
	assert.False(t, IsRemote("."))
	assert.True(t, IsRemote("https://github.com/acme/template.git"))
	assert.True(t, IsRemote("git@github.com:acme/template.git"))
	assert.True(t, IsRemote("acme/template"))
	assert.False(t, IsRemote("some/deeper/path"))
}

func TestBuildCloneURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "acme/template", want: "https://github.com/acme/template.git"},
		{in: "acme/template.git", want: "https://github.com/acme/template.git"},
		{in: " https://example.com/x.git ", want: "https://example.com/x.git"},
		{in: "file:///srv/template", want: "file:///srv/template"},
		{in: "ftp://example.com/x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := buildCloneURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
