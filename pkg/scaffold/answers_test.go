package scaffold

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeclarations(t *testing.T) *Declarations {
	t.Helper()
	decl, err := ParseYAML([]byte(`
project_name: test-proj
project_name_snake:
  default: "{{ snake project_name }}"
  when: false
use_ui: true
label:
  type: str
  default: "true"
`))
	require.NoError(t, err)
	return decl
}

func TestMarshalAnswers(t *testing.T) {
	decl := testDeclarations(t)
	vars := Variables{
		"project_name":       "my-app",
		"project_name_snake": "my_app",
		"use_ui":             "true",
		"label":              "true",
		"zz_extra":           "kept",
		"_private":           "dropped",
	}

	data, err := MarshalAnswers(decl, vars, "/tmp/template", "abc123")
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "# "+answersHeader))
	assert.NotContains(t, out, "project_name_snake")
	assert.NotContains(t, out, "_private")
	assert.Contains(t, out, "use_ui: true\n")
	assert.Contains(t, out, "label: \"true\"\n")

	order := []string{"_commit: abc123", "_src_path: /tmp/template", "project_name: my-app", "use_ui:", "label:", "zz_extra: kept"}
	last := -1
	for _, key := range order {
		idx := strings.Index(out, key)
		require.GreaterOrEqual(t, idx, 0, "missing %q in\n%s", key, out)
		assert.Greater(t, idx, last, "%q out of order in\n%s", key, out)
		last = idx
	}

	parsed, err := ParseAnswers(data)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/template", parsed.SrcPath)
	assert.Equal(t, "abc123", parsed.Commit)
	assert.Equal(t, Variables{
		"project_name": "my-app",
		"use_ui":       "true",
		"label":        "true",
		"zz_extra":     "kept",
	}, parsed.Values)
}

func TestMarshalAnswersSkipsMissingMetadata(t *testing.T) {
	data, err := MarshalAnswers(testDeclarations(t), Variables{"project_name": "x"}, "", "")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "_commit")
	assert.NotContains(t, string(data), "_src_path")
}

func TestLoadAnswers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultAnswersFile)
	require.NoError(t, os.WriteFile(path, []byte("_src_path: ..\nproject_name: demo\nport: 8080\n"), 0o644))

	answers, err := LoadAnswers(path)
	require.NoError(t, err)
	assert.Equal(t, "..", answers.SrcPath)
	assert.Equal(t, Variables{"project_name": "demo", "port": "8080"}, answers.Values)

	_, err = LoadAnswers(filepath.Join(dir, "missing.yml"))
	assert.True(t, IsConfigurationError(err))

	_, err = ParseAnswers([]byte("- not\n- a map\n"))
	assert.True(t, IsConfigurationError(err))
}

func TestScalarTag(t *testing.T) {
	assert.Equal(t, "!!bool", scalarTag(TypeBool, "false"))
	assert.Equal(t, "!!str", scalarTag(TypeBool, "maybe"))
	assert.Equal(t, "!!int", scalarTag(TypeInt, "42"))
	assert.Equal(t, "!!str", scalarTag(TypeInt, "4.2"))
	assert.Equal(t, "!!float", scalarTag(TypeFloat, "4.2"))
	assert.Equal(t, "!!str", scalarTag(TypeString, "42"))
}
