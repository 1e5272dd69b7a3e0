package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME/STENCIL_HOME at a temp dir and chdirs into another one.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STENCIL_HOME", filepath.Join(home, ".stencil"))
	work := t.TempDir()
	t.Chdir(work)
	return work
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Template)
	assert.Equal(t, "test-proj", cfg.Project)
	assert.True(t, cfg.Unsafe)
	assert.Equal(t, 3, cfg.Extract.Attempts)
	assert.Equal(t, 10*time.Second, cfg.Extract.Delay)
	assert.Equal(t, 60*time.Second, cfg.Extract.Timeout)
	assert.Equal(t, "ui/src/schemas", cfg.Schemas.Output)

	py, ok := cfg.FindCheck("python")
	require.True(t, ok)
	assert.Equal(t, []string{"uv", "run", "hatch", "run", "all-check"}, py.Check)
	js, ok := cfg.FindCheck("javascript")
	require.True(t, ok)
	assert.Equal(t, "ui", js.Dir)

	_, ok = cfg.FindCheck("rust")
	assert.False(t, ok)
}

func TestLoadConfigEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("STENCIL_PROJECT", "sample-proj")
	t.Setenv("LLAMA_CLOUD_API_KEY", "secret-key")
	t.Setenv("STENCIL_EXTRACT_ATTEMPTS", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sample-proj", cfg.Project)
	assert.Equal(t, "secret-key", cfg.Extract.APIKey)
	assert.Equal(t, 5, cfg.Extract.Attempts)
}

func TestLoadConfigDotEnv(t *testing.T) {
	work := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(work, ".env"), []byte("STENCIL_EXTRACT_PROJECT_ID=proj-123\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("STENCIL_EXTRACT_PROJECT_ID") })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "proj-123", cfg.Extract.ProjectID)
}

func TestLoadProjectConfigOverrides(t *testing.T) {
	work := isolate(t)
	content := `template: templates/app
project: generated
checks:
  - name: go
    dir: .
    check: [go, vet, ./...]
    fix: [gofmt, -w, .]
`
	require.NoError(t, os.WriteFile(filepath.Join(work, ".stencil.yaml"), []byte(content), 0o600))

	cfg, err := LoadProjectConfig()
	require.NoError(t, err)

	assert.Equal(t, "templates/app", cfg.Template)
	assert.Equal(t, filepath.Join("templates/app", "generated"), cfg.ProjectDir())
	goCheck, ok := cfg.FindCheck("go")
	require.True(t, ok)
	assert.Equal(t, []string{"gofmt", "-w", "."}, goCheck.Fix)
}

func TestProjectDirAbsolute(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "proj")
	cfg := &Config{Template: "ignored", Project: abs}
	assert.Equal(t, abs, cfg.ProjectDir())
}

func TestGetStencilHome(t *testing.T) {
	t.Setenv("STENCIL_HOME", "/custom/stencil")
	home, err := GetStencilHome()
	require.NoError(t, err)
	assert.Equal(t, "/custom/stencil", home)
}

func TestLoadProjectConfigRejectsInvalid(t *testing.T) {
	work := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(work, ".stencil.yaml"), []byte("unsafe: sometimes\n"), 0o600))

	_, err := LoadProjectConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".stencil.yaml")
}
