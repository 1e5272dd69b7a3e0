package tree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answersFile = ".stencil-answers.yml"

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestDiffClassifies(t *testing.T) {
	expected := t.TempDir()
	actual := t.TempDir()
	writeTree(t, expected, map[string]string{"a.txt": "X", "b.txt": "Y"})
	writeTree(t, actual, map[string]string{"a.txt": "Z", "c.txt": "W"})

	diffs, err := Diff(expected, actual, []string{answersFile})
	require.NoError(t, err)
	assert.Equal(t, []Difference{
		{Kind: Missing, Path: "b.txt"},
		{Kind: Extra, Path: "c.txt"},
		{Kind: ContentDiffers, Path: "a.txt"},
	}, diffs)
}

func TestDiffIdentical(t *testing.T) {
	files := map[string]string{"README.md": "# x\n", "src/app/main.py": "print()\n"}
	expected := t.TempDir()
	actual := t.TempDir()
	writeTree(t, expected, files)
	writeTree(t, actual, files)

	diffs, err := Diff(expected, actual, nil)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestDiffOrderingSorted(t *testing.T) {
	expected := t.TempDir()
	actual := t.TempDir()
	writeTree(t, expected, map[string]string{"z.txt": "1", "m.txt": "1", "same.txt": "1", "b/x.txt": "1", "a/x.txt": "1"})
	writeTree(t, actual, map[string]string{"same.txt": "1", "y.txt": "1", "c.txt": "1", "b/x.txt": "2", "a/x.txt": "2"})

	diffs, err := Diff(expected, actual, nil)
	require.NoError(t, err)
	var got []string
	for _, d := range diffs {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{
		"Missing file: m.txt",
		"Missing file: z.txt",
		"Extra file: c.txt",
		"Extra file: y.txt",
		"Content differs: a/x.txt",
		"Content differs: b/x.txt",
	}, got)
}

func TestDiffIgnoresAnswersFile(t *testing.T) {
	expected := t.TempDir()
	actual := t.TempDir()
	writeTree(t, expected, map[string]string{answersFile: "_commit: a\n", "nested/" + answersFile: "x"})
	writeTree(t, actual, map[string]string{answersFile: "_commit: b\n"})

	diffs, err := Diff(expected, actual, []string{answersFile})
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestDiffMissingRoots(t *testing.T) {
	actual := t.TempDir()
	writeTree(t, actual, map[string]string{"a.txt": "1"})

	diffs, err := Diff(filepath.Join(t.TempDir(), "gone"), actual, nil)
	require.NoError(t, err)
	assert.Equal(t, []Difference{{Kind: Extra, Path: "a.txt"}}, diffs)
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}

	text1 := write("t1", []byte("hello\n"))
	text2 := write("t2", []byte("hullo\n"))
	same, err := SameContent(text1, text2)
	require.NoError(t, err)
	assert.False(t, same)

	// Undecodable content falls back to comparing sizes
	bin1 := write("b1", []byte{0xff, 0xfe, 0x00, 0x01})
	bin2 := write("b2", []byte{0xff, 0xfe, 0x00, 0x02})
	bin3 := write("b3", []byte{0xff})
	same, err = SameContent(bin1, bin2)
	require.NoError(t, err)
	assert.True(t, same)
	same, err = SameContent(bin1, bin3)
	require.NoError(t, err)
	assert.False(t, same)

	_, err = SameContent(text1, filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestListTracked(t *testing.T) {
	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)
	commit := func() {
		wt, err := repo.Worktree()
		require.NoError(t, err)
		require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
		_, err = wt.Commit("update", &git.CommitOptions{
			Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
		})
		require.NoError(t, err)
	}

	writeTree(t, repoDir, map[string]string{
		"stencil.yml":              "name: x\n",
		"test-proj/a.py":           "a\n",
		"test-proj/forced.log":     "tracked before it was ignored\n",
		"test-proj/" + answersFile: "_commit: x\n",
	})
	commit()

	writeTree(t, repoDir, map[string]string{
		"test-proj/.gitignore":        "*.log\nbuild/\n",
		"test-proj/debug.log":         "noise\n",
		"test-proj/build/out.bin":     "noise\n",
		"test-proj/src/new.py":        "new\n",
		"test-proj/.stencilignore":    "# root-level only\n",
		"test-proj/node_modules/x.js": "x\n",
	})
	writeTree(t, repoDir, map[string]string{".stencilignore": "node_modules/\n"})

	files, err := ListTracked(filepath.Join(repoDir, "test-proj"), []string{answersFile})
	require.NoError(t, err)
	assert.Equal(t, []string{
		".gitignore",
		".stencilignore",
		"a.py",
		"forced.log",
		"src/new.py",
	}, files)
}

func TestListTrackedOutsideRepository(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "1", ".gitignore": "*.tmp\n", "x.tmp": "t"})

	files, err := ListTracked(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "a.txt"}, files)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "missing", Missing.String())
	assert.Equal(t, "extra", Extra.String())
	assert.Equal(t, "content differs", ContentDiffers.String())
}
