package reconcile

import (
	"regexp"
	"strings"

	"github.com/fulmenhq/stencil/pkg/scaffold"
)

var (
	// simpleReference matches {{ name }}, {{{ name }}} and {{ helper name }}.
	simpleReference = regexp.MustCompile(`\{\{(\{?)~?\s*(?:([A-Za-z_][A-Za-z0-9_]*)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*~?(\}?)\}\}`)
	anyMustache     = regexp.MustCompile(`\{\{\{?[\s\S]*?\}?\}\}`)
)

// AttemptResolution proposes new content for a templated file so that it renders to actual
// instead of expected. Only lines whose single variable reference renders to text found once
// in both the expected and the actual line are rewritten: the reference is kept and the
// literal text around it is taken from the actual line. Files with control flow are refused.
// The candidate is unverified; callers must re-materialize before accepting it.
func AttemptResolution(engine *scaffold.Engine, template, expected, actual string, vars scaffold.Variables) (string, bool) {
	if !scaffold.HasMarkers(template) || scaffold.HasControlFlow(template) {
		return "", false
	}

	templateLines := splitLines(template)
	expectedLines := splitLines(expected)
	actualLines := splitLines(actual)

	n := max(len(templateLines), len(expectedLines), len(actualLines))
	out := append([]string(nil), templateLines...)
	changed := false
	for i := 0; i < n; i++ {
		tl, el, al := lineAt(templateLines, i), lineAt(expectedLines, i), lineAt(actualLines, i)
		if el == al || tl == "" {
			continue
		}
		if resolved, ok := resolveLine(engine, tl, el, al, vars); ok {
			out[i] = resolved
			changed = true
		}
	}
	if !changed {
		return "", false
	}

	candidate := strings.Join(out, "\n")
	if strings.HasSuffix(template, "\n") {
		candidate += "\n"
	}
	return candidate, true
}

func resolveLine(engine *scaffold.Engine, templateLine, expectedLine, actualLine string, vars scaffold.Variables) (string, bool) {
	if len(anyMustache.FindAllString(templateLine, -1)) != 1 {
		return "", false
	}
	m := simpleReference.FindStringSubmatch(templateLine)
	if m == nil || m[1] != m[4] {
		return "", false
	}
	if helper := m[2]; helper != "" && !isTransform(helper) {
		return "", false
	}
	pattern := m[0]

	value, err := engine.RenderString(pattern, vars)
	if err != nil || value == "" {
		return "", false
	}
	expectedParts := strings.Split(expectedLine, value)
	actualParts := strings.Split(actualLine, value)
	if len(expectedParts) != 2 || len(actualParts) != 2 {
		return "", false
	}
	return actualParts[0] + pattern + actualParts[1], true
}

func isTransform(name string) bool {
	for _, t := range scaffold.TransformNames() {
		if t == name {
			return true
		}
	}
	return false
}

// splitLines splits on newlines, dropping the empty element a trailing newline leaves.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}
