package reconcile

import (
	"os"
	"path"
	"strings"

	"github.com/fulmenhq/stencil/pkg/scaffold"
)

// Mapper converts materialized project paths back to template paths for one run's variables.
type Mapper struct {
	tpl    *scaffold.Template
	engine *scaffold.Engine
	vars   scaffold.Variables

	// rendered maps materialized file and directory paths to their template spelling.
	// Built on first use.
	files map[string]string
	dirs  map[string]string
}

// NewMapper returns a mapper over t using the resolved vars.
func NewMapper(t *scaffold.Template, vars scaffold.Variables) *Mapper {
	return &Mapper{tpl: t, engine: t.Engine(), vars: vars}
}

// TemplatePath maps a materialized slash path to the template path that produces it.
// templated reports that the result carries the template suffix and must be auto-resolved
// rather than copied back.
//
// Computed-directory rules apply first (first match wins), then the suffix check. A path
// neither spelling finds in the template falls back to the rendered template layout, so
// directories named by other expressions still map back.
func (m *Mapper) TemplatePath(rel string) (string, bool) {
	rel = strings.Trim(path.Clean(rel), "/")
	candidate, ruled := m.applyComputedDirs(rel)

	if p, ok := m.withSuffix(candidate); ok {
		return p, true
	}
	if ruled || m.tpl.Exists(candidate) {
		return candidate, false
	}

	m.index()
	if src, ok := m.files[rel]; ok {
		return src, m.tpl.IsTemplated(src)
	}
	if mapped, ok := m.mapByDir(rel); ok {
		if p, ok := m.withSuffix(mapped); ok {
			return p, true
		}
		return mapped, false
	}
	return candidate, false
}

func (m *Mapper) withSuffix(p string) (string, bool) {
	suffixed := p + m.tpl.Settings().TemplatesSuffix
	if m.tpl.Exists(suffixed) {
		return suffixed, true
	}
	return "", false
}

// applyComputedDirs rewrites <prefix>/<value>/... to <prefix>/<placeholder>/... for the first
// rule whose variable value matches the segment after the prefix.
func (m *Mapper) applyComputedDirs(rel string) (string, bool) {
	segments := strings.Split(rel, "/")
	for _, rule := range m.tpl.Settings().ComputedDirs {
		prefix := splitNonEmpty(rule.Prefix)
		value := m.vars[rule.Variable]
		if value == "" || len(segments) <= len(prefix)+1 {
			continue
		}
		if !hasPrefix(segments, prefix) || segments[len(prefix)] != value {
			continue
		}
		out := append([]string(nil), segments...)
		out[len(prefix)] = m.placeholder(strings.Join(prefix, "/"), rule.Variable, value)
		return strings.Join(out, "/"), true
	}
	return rel, false
}

// placeholder prefers a directory already in the template whose name renders to value, so a
// differently spaced spelling such as {{project_name_snake}} is kept.
func (m *Mapper) placeholder(parent, variable, value string) string {
	dir := parent
	if dir == "" {
		dir = "."
	}
	if entries, err := m.tpl.FS.ReadDir(dir); err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() || !scaffold.HasMarkers(name) {
				continue
			}
			if rendered, err := m.engine.RenderString(name, m.vars); err == nil && rendered == value {
				return name
			}
		}
	}
	return "{{ " + variable + " }}"
}

// index renders every template path once.
func (m *Mapper) index() {
	if m.files != nil {
		return
	}
	m.files = make(map[string]string)
	m.dirs = make(map[string]string)
	suffix := m.tpl.Settings().TemplatesSuffix
	_ = m.tpl.Walk(func(src string, _ os.FileInfo) error {
		target, ok, err := scaffold.RenderPath(m.engine, src, m.vars, suffix)
		if err != nil || !ok {
			return nil
		}
		m.files[target] = src
		for t, s := path.Dir(target), path.Dir(src); t != "." && s != "."; t, s = path.Dir(t), path.Dir(s) {
			m.dirs[t] = s
		}
		return nil
	})
}

// mapByDir swaps the longest rendered directory prefix of rel for its template spelling.
func (m *Mapper) mapByDir(rel string) (string, bool) {
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if src, ok := m.dirs[dir]; ok && src != dir {
			return src + strings.TrimPrefix(rel, dir), true
		}
	}
	return "", false
}

func splitNonEmpty(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

func hasPrefix(segments, prefix []string) bool {
	if len(prefix) > len(segments) {
		return false
	}
	for i, p := range prefix {
		if segments[i] != p {
			return false
		}
	}
	return true
}
