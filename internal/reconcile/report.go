package reconcile

import (
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/fulmenhq/stencil/pkg/ascii"
	"github.com/fulmenhq/stencil/pkg/tree"
)

// Summary is the machine-readable form of a report.
type Summary struct {
	Mode        string          `json:"mode"`
	Drift       bool            `json:"drift"`
	Differences []string        `json:"differences"`
	Outcomes    []OutcomeRecord `json:"outcomes"`
	Unresolved  []string        `json:"unresolved,omitempty"`
}

// OutcomeRecord is one classified difference.
type OutcomeRecord struct {
	Path         string `json:"path"`
	Difference   string `json:"difference"`
	TemplatePath string `json:"template_path"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
}

// Summary flattens the report for JSON output.
func (r *Report) Summary() Summary {
	s := Summary{Mode: r.Mode.String(), Drift: r.Drift(), Differences: []string{}, Outcomes: []OutcomeRecord{}, Unresolved: r.Unresolved}
	for _, d := range r.Differences {
		s.Differences = append(s.Differences, d.String())
	}
	for _, o := range r.Outcomes {
		s.Outcomes = append(s.Outcomes, OutcomeRecord{
			Path:         o.Difference.Path,
			Difference:   o.Difference.Kind.String(),
			TemplatePath: o.TemplatePath,
			Outcome:      o.Kind.String(),
			Reason:       o.Reason,
		})
	}
	return s
}

// Print writes the human-readable report: the differences, an inline diff per changed text
// file, and a summary box of what was (or would be) done.
func (r *Report) Print(w io.Writer) {
	if !r.Drift() {
		_, _ = fmt.Fprintln(w, "✅ project matches expected template output")
		return
	}

	_, _ = fmt.Fprintf(w, "❌ Found %d differences between expected and actual:\n", len(r.Differences))
	for _, d := range r.Differences {
		_, _ = fmt.Fprintf(w, "  %s\n", d)
	}

	for _, o := range r.Outcomes {
		if o.Difference.Kind != tree.ContentDiffers {
			continue
		}
		if diff := UnifiedDiff(o.Difference.Path, o.Expected, o.Actual); diff != "" {
			_, _ = fmt.Fprintf(w, "\n%s", diff)
		} else {
			_, _ = fmt.Fprintf(w, "\n%s: (binary files differ)\n", o.Difference.Path)
		}
	}

	copied, resolved, manual := r.Count(CopyBack), r.Count(AutoResolved), r.Count(NeedsManualFix)
	title := "Would make the following changes"
	if r.Mode == ModeFix {
		title = "Applied the following changes"
	}
	lines := []string{
		title,
		fmt.Sprintf("Copy back:        %d", copied),
		fmt.Sprintf("Auto-resolve:     %d", resolved),
		fmt.Sprintf("Needs manual fix: %d", manual),
	}
	_, _ = fmt.Fprintln(w)
	ascii.DrawBox(w, lines)

	for _, o := range r.Outcomes {
		if o.Kind == NeedsManualFix {
			continue
		}
		verb := "Copy"
		if r.Mode == ModeFix {
			verb = "Copied"
		}
		if o.Kind == AutoResolved {
			verb = "Would auto-resolve"
			if r.Mode == ModeFix {
				verb = "✓ Auto-resolved"
			}
		}
		_, _ = fmt.Fprintf(w, "  %s %s → %s\n", verb, o.Difference.Path, o.TemplatePath)
	}
	if manual > 0 {
		_, _ = fmt.Fprintf(w, "\n⚠️  %d files need manual resolution:\n", manual)
		for _, o := range r.Outcomes {
			if o.Kind == NeedsManualFix {
				_, _ = fmt.Fprintf(w, "  %s → %s (%s)\n", o.Difference.Path, o.TemplatePath, o.Reason)
			}
		}
	}
	if r.Mode == ModeCheck {
		_, _ = fmt.Fprintln(w, "\nTo apply changes, run: stencil fix")
	}
}

// UnifiedDiff renders a unified diff from the expected to the actual text of path. It is
// empty when both are empty (non-text files carry no text).
func UnifiedDiff(path, expected, actual string) string {
	if expected == "" && actual == "" {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(ensureNewline(expected)),
		B:        difflib.SplitLines(ensureNewline(actual)),
		FromFile: "expected/" + path,
		ToFile:   "actual/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
