package scaffold

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Declaration file names, looked up in this order at the template root.
const (
	DeclarationsYAML = "stencil.yml"
	DeclarationsTOML = "stencil.toml"
)

// Defaults for the reserved settings.
const (
	DefaultTemplatesSuffix = ".hbs"
	DefaultAnswersFile     = ".stencil-answers.yml"
)

// ComputedDir maps a literal directory below Prefix back to a variable-named template directory.
type ComputedDir struct {
	Prefix   string `yaml:"prefix" toml:"prefix"`
	Variable string `yaml:"variable" toml:"variable"`
}

// DefaultComputedDirs is used when a template declares none.
var DefaultComputedDirs = []ComputedDir{{Prefix: "src", Variable: "project_name_snake"}}

// alwaysExcluded never reaches a materialized project.
var alwaysExcluded = []string{DeclarationsYAML, DeclarationsTOML, ".git", ".git/**"}

// Settings are the reserved (underscore-prefixed) keys of a declarations file.
type Settings struct {
	Subdirectory    string        `yaml:"_subdirectory" toml:"_subdirectory"`
	TemplatesSuffix string        `yaml:"_templates_suffix" toml:"_templates_suffix"`
	AnswersFile     string        `yaml:"_answers_file" toml:"_answers_file"`
	Exclude         []string      `yaml:"_exclude" toml:"_exclude"`
	Tasks           []string      `yaml:"_tasks" toml:"_tasks"`
	ComputedDirs    []ComputedDir `yaml:"_computed_dirs" toml:"_computed_dirs"`
}

// Excludes returns the declared exclude globs plus the ones that always apply.
func (s Settings) Excludes() []string {
	out := make([]string, 0, len(alwaysExcluded)+len(s.Exclude))
	out = append(out, alwaysExcluded...)
	return append(out, s.Exclude...)
}

func (s *Settings) applyDefaults() {
	if s.TemplatesSuffix == "" {
		s.TemplatesSuffix = DefaultTemplatesSuffix
	}
	if s.AnswersFile == "" {
		s.AnswersFile = DefaultAnswersFile
	}
	if s.ComputedDirs == nil {
		s.ComputedDirs = append([]ComputedDir(nil), DefaultComputedDirs...)
	}
	s.Subdirectory = strings.Trim(s.Subdirectory, "/")
}

// Question types understood by Engine.Context.
const (
	TypeString = "str"
	TypeBool   = "bool"
	TypeInt    = "int"
	TypeFloat  = "float"
)

// Question is one declared variable.
type Question struct {
	Name    string
	Type    string
	Default interface{}
	Help    string
	// When false the value is computed and never written to the answers record.
	When *bool
}

// Recorded reports whether the answer belongs in the answers record.
func (q Question) Recorded() bool {
	return q.When == nil || *q.When
}

// HasDefault reports whether the question declares a default.
func (q Question) HasDefault() bool {
	return q.Default != nil
}

// IsExpression reports whether the default needs the engine to evaluate.
func (q Question) IsExpression() bool {
	s, ok := q.Default.(string)
	return ok && strings.Contains(s, "{{")
}

type questionSpec struct {
	Type    string      `yaml:"type" toml:"type"`
	Default interface{} `yaml:"default" toml:"default"`
	Help    string      `yaml:"help" toml:"help"`
	When    interface{} `yaml:"when" toml:"when"`
}

// Declarations is a parsed declarations file.
type Declarations struct {
	Settings  Settings
	Questions []Question
}

// Question returns the named question.
func (d *Declarations) Question(name string) (Question, bool) {
	for _, q := range d.Questions {
		if q.Name == name {
			return q, true
		}
	}
	return Question{}, false
}

// ParseYAML parses a stencil.yml document, keeping question declaration order.
func ParseYAML(data []byte) (*Declarations, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Message: "invalid " + DeclarationsYAML, Wrapped: err}
	}

	decl := &Declarations{}
	if len(doc.Content) == 0 {
		decl.Settings.applyDefaults()
		return decl, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, Configf("invalid %s: top level must be a mapping", DeclarationsYAML)
	}

	settings := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if strings.HasPrefix(key.Value, "_") {
			settings.Content = append(settings.Content, key, value)
			continue
		}
		var spec questionSpec
		if value.Kind == yaml.MappingNode {
			if err := value.Decode(&spec); err != nil {
				return nil, &ConfigurationError{Message: fmt.Sprintf("invalid question %q", key.Value), Wrapped: err}
			}
		} else if err := value.Decode(&spec.Default); err != nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("invalid question %q", key.Value), Wrapped: err}
		}
		q, err := newQuestion(key.Value, spec)
		if err != nil {
			return nil, err
		}
		decl.Questions = append(decl.Questions, q)
	}

	if err := settings.Decode(&decl.Settings); err != nil {
		return nil, &ConfigurationError{Message: "invalid settings in " + DeclarationsYAML, Wrapped: err}
	}
	decl.Settings.applyDefaults()
	return decl, nil
}

// ParseTOML parses a stencil.toml document. TOML tables are unordered, so questions
// are declared in key order.
func ParseTOML(data []byte) (*Declarations, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Message: "invalid " + DeclarationsTOML, Wrapped: err}
	}

	decl := &Declarations{}
	if err := toml.Unmarshal(data, &decl.Settings); err != nil {
		return nil, &ConfigurationError{Message: "invalid settings in " + DeclarationsTOML, Wrapped: err}
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		if !strings.HasPrefix(name, "_") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var spec questionSpec
		if table, ok := raw[name].(map[string]interface{}); ok {
			spec.Type, _ = table["type"].(string)
			spec.Help, _ = table["help"].(string)
			spec.Default = table["default"]
			spec.When = table["when"]
		} else {
			spec.Default = raw[name]
		}
		q, err := newQuestion(name, spec)
		if err != nil {
			return nil, err
		}
		decl.Questions = append(decl.Questions, q)
	}

	decl.Settings.applyDefaults()
	return decl, nil
}

func newQuestion(name string, spec questionSpec) (Question, error) {
	q := Question{Name: name, Type: spec.Type, Default: spec.Default, Help: spec.Help}
	if q.Type == "" {
		q.Type = inferType(spec.Default)
	}
	switch q.Type {
	case TypeString, TypeBool, TypeInt, TypeFloat:
	default:
		return Question{}, Configf("question %q: unsupported type %q", name, q.Type)
	}
	switch w := spec.When.(type) {
	case nil:
	case bool:
		q.When = &w
	case string:
		recorded := strings.TrimSpace(strings.ToLower(w)) != "false"
		q.When = &recorded
	default:
		return Question{}, Configf("question %q: when must be a boolean", name)
	}
	return q, nil
}

func inferType(v interface{}) string {
	switch v.(type) {
	case bool:
		return TypeBool
	case int, int64:
		return TypeInt
	case float64:
		return TypeFloat
	default:
		return TypeString
	}
}
