package scaffold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYAML(t *testing.T) {
	data := []byte(`
_exclude:
  - test-proj
  - "*.pyc"
_tasks:
  - echo done
project_name:
  type: str
  default: test-proj
  help: Project name
project_name_snake:
  default: "{{ snake project_name }}"
  when: false
use_ui: true
port:
  type: int
  default: 8080
`)
	decl, err := ParseYAML(data)
	require.NoError(t, err)

	names := make([]string, 0, len(decl.Questions))
	for _, q := range decl.Questions {
		names = append(names, q.Name)
	}
	assert.Equal(t, []string{"project_name", "project_name_snake", "use_ui", "port"}, names)

	snake, ok := decl.Question("project_name_snake")
	require.True(t, ok)
	assert.True(t, snake.IsExpression())
	assert.False(t, snake.Recorded())
	assert.Equal(t, TypeString, snake.Type)

	ui, _ := decl.Question("use_ui")
	assert.Equal(t, TypeBool, ui.Type)
	assert.Equal(t, true, ui.Default)
	assert.True(t, ui.Recorded())

	port, _ := decl.Question("port")
	assert.Equal(t, TypeInt, port.Type)
	assert.False(t, port.IsExpression())

	s := decl.Settings
	assert.Equal(t, DefaultTemplatesSuffix, s.TemplatesSuffix)
	assert.Equal(t, DefaultAnswersFile, s.AnswersFile)
	assert.Equal(t, DefaultComputedDirs, s.ComputedDirs)
	assert.Equal(t, []string{"echo done"}, s.Tasks)
	assert.Contains(t, s.Excludes(), "test-proj")
	assert.Contains(t, s.Excludes(), DeclarationsYAML)
	assert.Contains(t, s.Excludes(), ".git/**")
}

func TestParseYAMLSettingsOverride(t *testing.T) {
	decl, err := ParseYAML([]byte(`
_subdirectory: /template/
_templates_suffix: .tmpl
_answers_file: .answers.yml
_computed_dirs:
  - prefix: pkg
    variable: module_name
`))
	require.NoError(t, err)
	assert.Empty(t, decl.Questions)
	assert.Equal(t, "template", decl.Settings.Subdirectory)
	assert.Equal(t, ".tmpl", decl.Settings.TemplatesSuffix)
	assert.Equal(t, ".answers.yml", decl.Settings.AnswersFile)
	assert.Equal(t, []ComputedDir{{Prefix: "pkg", Variable: "module_name"}}, decl.Settings.ComputedDirs)
}

func TestParseYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"not a mapping":    "- a\n- b\n",
		"bad yaml":         "a: [unclosed",
		"unsupported type": "x:\n  type: list\n",
		"bad when":         "x:\n  default: 1\n  when: [1]\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseYAML([]byte(input))
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err), "expected ConfigurationError, got %T", err)
		})
	}
}

func TestParseYAMLEmpty(t *testing.T) {
	decl, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, decl.Questions)
	assert.Equal(t, DefaultTemplatesSuffix, decl.Settings.TemplatesSuffix)
}

func TestParseTOML(t *testing.T) {
	data := []byte(`
_templates_suffix = ".tmpl"
_exclude = ["docs/**"]
zeta = "last"

[alpha]
type = "str"
default = "{{ zeta }}-a"
when = false

[[_computed_dirs]]
prefix = "pkg"
variable = "module"
`)
	decl, err := ParseTOML(data)
	require.NoError(t, err)

	require.Len(t, decl.Questions, 2)
	assert.Equal(t, "alpha", decl.Questions[0].Name)
	assert.Equal(t, "zeta", decl.Questions[1].Name)
	assert.False(t, decl.Questions[0].Recorded())
	assert.Equal(t, "last", decl.Questions[1].Default)

	assert.Equal(t, ".tmpl", decl.Settings.TemplatesSuffix)
	assert.Equal(t, []string{"docs/**"}, decl.Settings.Exclude)
	assert.Equal(t, []ComputedDir{{Prefix: "pkg", Variable: "module"}}, decl.Settings.ComputedDirs)

	_, err = ParseTOML([]byte("= broken"))
	assert.True(t, IsConfigurationError(err))
}
