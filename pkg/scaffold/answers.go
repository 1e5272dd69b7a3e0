package scaffold

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const answersHeader = "Changes here will be overwritten by stencil; NEVER EDIT MANUALLY"

// Answers is the content of a project's answers record.
type Answers struct {
	SrcPath string
	Commit  string
	// Values holds the recorded answers; metadata keys are not included.
	Values Variables
}

// LoadAnswers reads an answers record. Keys with a leading underscore are metadata
// and never become variables.
func LoadAnswers(path string) (*Answers, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- answers record path comes from the template settings
	if err != nil {
		return nil, &ConfigurationError{Message: "failed to read answers record", Wrapped: err}
	}
	return ParseAnswers(data)
}

// ParseAnswers parses answers record content.
func ParseAnswers(data []byte) (*Answers, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Message: "invalid answers record", Wrapped: err}
	}
	answers := &Answers{Values: Variables{}}
	for key, value := range raw {
		switch {
		case key == "_src_path":
			answers.SrcPath = literal(value)
		case key == "_commit":
			answers.Commit = literal(value)
		case strings.HasPrefix(key, "_"):
		default:
			answers.Values[key] = literal(value)
		}
	}
	return answers, nil
}

// MarshalAnswers renders the answers record: metadata first, then every recorded question
// that has a value, in declaration order. Answers for undeclared names are kept, sorted.
func MarshalAnswers(decl *Declarations, vars Variables, srcPath, commit string) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	put := func(key, value, tag string) {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
		)
	}

	if commit != "" {
		put("_commit", commit, "!!str")
	}
	if srcPath != "" {
		put("_src_path", srcPath, "!!str")
	}

	declared := make(map[string]bool, len(decl.Questions))
	for _, q := range decl.Questions {
		declared[q.Name] = true
		value, ok := vars[q.Name]
		if !ok || !q.Recorded() {
			continue
		}
		put(q.Name, value, scalarTag(q.Type, value))
	}

	var extra []string
	for name := range vars {
		if !declared[name] && !strings.HasPrefix(name, "_") {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		put(name, vars[name], "!!str")
	}

	doc := &yaml.Node{Kind: yaml.DocumentNode, HeadComment: answersHeader, Content: []*yaml.Node{root}}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode answers record: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode answers record: %w", err)
	}
	return buf.Bytes(), nil
}

// scalarTag keeps typed answers unquoted when the value parses as that type.
func scalarTag(typ, value string) string {
	var probe interface{}
	if err := yaml.Unmarshal([]byte(value), &probe); err != nil {
		return "!!str"
	}
	switch typ {
	case TypeBool:
		if _, ok := probe.(bool); ok {
			return "!!bool"
		}
	case TypeInt:
		if _, ok := probe.(int); ok {
			return "!!int"
		}
	case TypeFloat:
		switch probe.(type) {
		case float64, int:
			return "!!float"
		}
	}
	return "!!str"
}
