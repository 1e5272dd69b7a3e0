package scaffold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Variables maps variable names to resolved values.
type Variables map[string]string

// Clone returns an independent copy.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Engine renders Handlebars text with the stencil helpers registered.
type Engine struct {
	types   map[string]string
	helpers map[string]interface{}
}

// NewEngine returns an engine that types context values after the given questions.
func NewEngine(questions []Question) *Engine {
	types := make(map[string]string, len(questions))
	for _, q := range questions {
		types[q.Name] = q.Type
	}
	return &Engine{types: types, helpers: transformHelpers()}
}

var (
	snakeReplacer = strings.NewReplacer("-", "_", " ", "_")
	kebabReplacer = strings.NewReplacer("_", "-", " ", "-")
	wordReplacer  = strings.NewReplacer("-", " ", "_", " ")
)

// transformHelpers are the one-argument string transforms a template may apply to a variable.
func transformHelpers() map[string]interface{} {
	return map[string]interface{}{
		"snake": func(v interface{}) raymond.SafeString {
			return raymond.SafeString(strings.ToLower(snakeReplacer.Replace(toString(v))))
		},
		"kebab": func(v interface{}) raymond.SafeString {
			return raymond.SafeString(strings.ToLower(kebabReplacer.Replace(toString(v))))
		},
		"title": func(v interface{}) raymond.SafeString {
			return raymond.SafeString(cases.Title(language.Und).String(wordReplacer.Replace(toString(v))))
		},
		"lower": func(v interface{}) raymond.SafeString { return raymond.SafeString(strings.ToLower(toString(v))) },
		"upper": func(v interface{}) raymond.SafeString { return raymond.SafeString(strings.ToUpper(toString(v))) },
	}
}

// TransformNames lists the registered transform helpers, sorted.
func TransformNames() []string {
	names := make([]string, 0, 5)
	for name := range transformHelpers() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Context converts resolved values into a render context, typing bool/int/float questions
// so conditionals see real booleans. Strings are marked safe: generated files are source
// code, not HTML, so {{ name }} and {{{ name }}} both emit the value verbatim.
func (e *Engine) Context(vars Variables) map[string]interface{} {
	ctx := make(map[string]interface{}, len(vars))
	for name, value := range vars {
		ctx[name] = e.typed(name, value)
	}
	return ctx
}

func (e *Engine) typed(name, value string) interface{} {
	switch e.types[name] {
	case TypeBool:
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
		return value != ""
	case TypeInt:
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return raymond.SafeString(value)
}

// RenderString renders expr against vars. Text without markers is returned unchanged.
func (e *Engine) RenderString(expr string, vars Variables) (string, error) {
	if !HasMarkers(expr) {
		return expr, nil
	}
	tpl, err := raymond.Parse(expr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	tpl.RegisterHelpers(e.helpers)
	out, err := tpl.Exec(e.Context(vars))
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return out, nil
}

// HasMarkers reports whether s contains template markers.
func HasMarkers(s string) bool {
	return strings.Contains(s, "{{")
}

var controlFlowPattern = regexp.MustCompile(`\{\{~?\s*(?:[#/^!>]|else\b)|\{\{\{\{`)

// HasControlFlow reports whether s uses blocks, inverse sections, else, comments or partials.
func HasControlFlow(s string) bool {
	return controlFlowPattern.MatchString(s)
}

var (
	mustachePattern = regexp.MustCompile(`\{\{\{?~?([\s\S]*?)~?\}?\}\}`)
	stringLiteral   = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	identPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*`)
)

var reservedWords = map[string]bool{
	"else": true, "this": true, "true": true, "false": true, "null": true, "undefined": true,
}

// References lists, in first-use order, the variable names expr reads. Helper names,
// literals and private data (@index) are skipped.
func (e *Engine) References(expr string) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || reservedWords[name] || seen[name] {
			return
		}
		seen[name] = true
		refs = append(refs, name)
	}

	for _, m := range mustachePattern.FindAllStringSubmatch(expr, -1) {
		body := strings.TrimSpace(m[1])
		if body == "" {
			continue
		}
		block := false
		switch body[0] {
		case '!', '/', '>':
			continue
		case '#', '^':
			block = true
			body = strings.TrimSpace(body[1:])
		case '&':
			body = strings.TrimSpace(body[1:])
		}
		// Literals keep a placeholder field so {{ snake "x" }} still reads as a call
		body = stringLiteral.ReplaceAllString(body, ` "" `)
		body = strings.NewReplacer("(", " ( ", ")", " ").Replace(body)
		fields := strings.Fields(body)
		if len(fields) == 0 {
			continue
		}
		// The first field of a call or block is a helper name
		if block || len(fields) > 1 {
			fields = fields[1:]
		}
		helperNext := false
		for _, field := range fields {
			if field == "(" {
				helperNext = true
				continue
			}
			if helperNext {
				helperNext = false
				continue
			}
			if i := strings.Index(field, "="); i >= 0 {
				field = field[i+1:]
			}
			field = strings.TrimPrefix(field, "./")
			if strings.HasPrefix(field, "@") || strings.HasPrefix(field, "../") {
				continue
			}
			if _, err := strconv.ParseFloat(field, 64); err == nil {
				continue
			}
			add(identPattern.FindString(field))
		}
	}
	return refs
}
