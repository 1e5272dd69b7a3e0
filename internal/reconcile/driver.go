// Package reconcile detects drift between a template and a project materialized from it, and
// propagates that drift back into the template where it can do so safely.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fulmenhq/stencil/internal/gitctx"
	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/scaffold"
	"github.com/fulmenhq/stencil/pkg/tools"
	"github.com/fulmenhq/stencil/pkg/tree"
)

// Mode selects whether classified drift is only reported or also applied.
type Mode int

const (
	ModeCheck Mode = iota
	ModeFix
)

func (m Mode) String() string {
	if m == ModeFix {
		return "fix"
	}
	return "check"
}

// OutcomeKind is the remediation chosen for one difference.
type OutcomeKind int

const (
	// CopyBack overwrites a plain template file with the project file.
	CopyBack OutcomeKind = iota
	// AutoResolved rewrites a templated file with a validated candidate.
	AutoResolved
	// NeedsManualFix is reported for a human to handle.
	NeedsManualFix
)

func (k OutcomeKind) String() string {
	switch k {
	case CopyBack:
		return "copy back"
	case AutoResolved:
		return "auto-resolved"
	default:
		return "needs manual fix"
	}
}

// Reasons attached to NeedsManualFix outcomes.
const (
	ReasonMissing          = "missing from project"
	ReasonExcluded         = "template path is excluded"
	ReasonExtraTemplated   = "extra file maps to a templated source"
	ReasonNotText          = "templated file is not UTF-8 text"
	ReasonNotApplicable    = "auto-resolution not applicable"
	ReasonValidationFailed = "candidate does not reproduce the project file"
)

// Outcome is the classification of one difference.
type Outcome struct {
	Difference   tree.Difference
	TemplatePath string
	Kind         OutcomeKind
	Reason       string
	// Content and Perm are written to TemplatePath when the outcome is applied.
	Content []byte
	Perm    os.FileMode
	// Expected and Actual hold the materialized text for display; empty when not text.
	Expected string
	Actual   string
}

// Options configures a reconciliation run.
type Options struct {
	Template *scaffold.Template
	// ProjectDir is the persistent materialized project.
	ProjectDir string
	// Overrides win over the recorded answers.
	Overrides scaffold.Variables
	// Since limits classification to paths changed in the project since this revision.
	Since string
	// RequireClean refuses to fix when the repository has uncommitted changes.
	RequireClean bool
	Unsafe       bool
	Executor     tools.ToolExecutor
}

// Report is the result of a run.
type Report struct {
	Mode        Mode
	Differences []tree.Difference
	Outcomes    []Outcome
	// Unresolved lists declared variables the resolver left absent.
	Unresolved []string
}

// Drift reports whether any difference was found.
func (r *Report) Drift() bool {
	return len(r.Differences) > 0
}

// Count returns the number of outcomes of kind.
func (r *Report) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Driver runs check and fix against one template and project.
type Driver struct {
	opts    Options
	project string
}

// New validates opts and returns a driver.
func New(opts Options) (*Driver, error) {
	if opts.Template == nil {
		return nil, scaffold.Configf("no template given")
	}
	project, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "invalid project path", Wrapped: err}
	}
	info, err := os.Stat(project)
	if err != nil || !info.IsDir() {
		return nil, scaffold.Configf("materialized project %s does not exist, run regenerate first", project)
	}
	if opts.Executor == nil {
		opts.Executor = tools.NewLocalExecutor()
	}
	d := &Driver{opts: opts, project: project}
	d.excludeProject()
	return d, nil
}

// Check classifies drift without touching the template.
func (d *Driver) Check(ctx context.Context) (*Report, error) {
	return d.run(ctx, ModeCheck)
}

// Fix classifies drift and writes CopyBack and AutoResolved outcomes into the template.
// NeedsManualFix outcomes are reported, never raised.
func (d *Driver) Fix(ctx context.Context) (*Report, error) {
	if d.opts.Template.Dir == "" {
		return nil, scaffold.Configf("fix needs a local template checkout")
	}
	if d.opts.RequireClean {
		if err := d.ensureClean(); err != nil {
			return nil, err
		}
	}
	return d.run(ctx, ModeFix)
}

func (d *Driver) run(ctx context.Context, mode Mode) (*Report, error) {
	t := d.opts.Template
	resolution, err := d.resolve()
	if err != nil {
		return nil, err
	}
	vars := resolution.Values
	if len(resolution.Unresolved) > 0 {
		logger.Debug("variables left unresolved", logger.Strings("names", resolution.Unresolved))
	}

	expected, cleanup, err := scaffold.Ephemeral(ctx, t, vars, d.materializeOptions())
	defer cleanup()
	if err != nil {
		return nil, err
	}

	diffs, err := tree.Diff(expected, d.project, []string{t.Settings().AnswersFile})
	if err != nil {
		return nil, err
	}
	if diffs, err = d.filterSince(diffs); err != nil {
		return nil, err
	}

	report := &Report{Mode: mode, Differences: diffs, Unresolved: resolution.Unresolved}
	mapper := NewMapper(t, vars)
	for _, diff := range diffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome, err := d.classify(ctx, diff, expected, mapper, vars)
		if err != nil {
			return nil, err
		}
		logger.Debug(fmt.Sprintf("%s -> %s", diff, outcome.Kind), logger.String("template_path", outcome.TemplatePath))
		report.Outcomes = append(report.Outcomes, outcome)
	}

	if mode == ModeFix {
		if err := d.apply(report.Outcomes); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (d *Driver) resolve() (scaffold.Resolution, error) {
	t := d.opts.Template
	answers, err := scaffold.LoadAnswers(filepath.Join(d.project, filepath.FromSlash(t.Settings().AnswersFile)))
	if err != nil {
		return scaffold.Resolution{}, err
	}
	seed := answers.Values.Clone()
	for k, v := range d.opts.Overrides {
		seed[k] = v
	}
	return scaffold.Resolve(t.Engine(), t.Declarations.Questions, seed), nil
}

func (d *Driver) materializeOptions() scaffold.Options {
	return scaffold.Options{Unsafe: d.opts.Unsafe, Executor: d.opts.Executor}
}

func (d *Driver) excludeProject() {
	excludeProject(d.opts.Template, d.project)
}

// excludeProject keeps a project that lives inside the template out of its own renders.
func excludeProject(t *scaffold.Template, project string) {
	if t.Dir == "" {
		return
	}
	rel, err := filepath.Rel(t.Dir, project)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	t.Exclude(filepath.ToSlash(rel))
}

func (d *Driver) ensureClean() error {
	repo, err := gitctx.Open(d.opts.Template.Dir)
	if err != nil {
		return &scaffold.ConfigurationError{Message: "cannot check working tree", Wrapped: err}
	}
	if err := repo.EnsureClean(""); err != nil {
		return &scaffold.ConfigurationError{Message: "working tree is not clean", Wrapped: err}
	}
	return nil
}

func (d *Driver) filterSince(diffs []tree.Difference) ([]tree.Difference, error) {
	if d.opts.Since == "" {
		return diffs, nil
	}
	repo, err := gitctx.Open(d.project)
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "--since needs a git repository", Wrapped: err}
	}
	prefix, err := repo.RelPath(d.project)
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "cannot locate project in repository", Wrapped: err}
	}
	changed, err := repo.ChangedSince(d.opts.Since, prefix)
	if err != nil {
		if errors.Is(err, gitctx.ErrUnknownRevision) {
			return nil, &scaffold.ConfigurationError{Message: "cannot resolve revision " + d.opts.Since, Wrapped: err}
		}
		return nil, err
	}
	var kept []tree.Difference
	for _, diff := range diffs {
		if _, ok := changed[diff.Path]; ok {
			kept = append(kept, diff)
		}
	}
	logger.Debug("filtered differences by revision",
		logger.String("since", d.opts.Since),
		logger.Int("before", len(diffs)),
		logger.Int("after", len(kept)))
	return kept, nil
}

func (d *Driver) classify(ctx context.Context, diff tree.Difference, expectedRoot string, mapper *Mapper, vars scaffold.Variables) (Outcome, error) {
	t := d.opts.Template
	templatePath, templated := mapper.TemplatePath(diff.Path)
	outcome := Outcome{Difference: diff, TemplatePath: templatePath}

	var expectedData, actualData []byte
	var actualPerm os.FileMode
	if diff.Kind != tree.Extra {
		data, err := os.ReadFile(filepath.Join(expectedRoot, filepath.FromSlash(diff.Path))) // #nosec G304 -- path comes from the tree listing
		if err != nil {
			return outcome, &scaffold.DestinationWriteError{Path: diff.Path, Wrapped: err}
		}
		expectedData = data
	}
	if diff.Kind != tree.Missing {
		actualFile := filepath.Join(d.project, filepath.FromSlash(diff.Path))
		info, err := os.Stat(actualFile)
		if err != nil {
			return outcome, fmt.Errorf("failed to stat %s: %w", actualFile, err)
		}
		data, err := os.ReadFile(actualFile) // #nosec G304 -- path comes from the tree listing
		if err != nil {
			return outcome, fmt.Errorf("failed to read %s: %w", actualFile, err)
		}
		actualData, actualPerm = data, info.Mode().Perm()
	}
	if utf8.Valid(expectedData) && utf8.Valid(actualData) {
		outcome.Expected, outcome.Actual = string(expectedData), string(actualData)
	}

	manual := func(reason string) (Outcome, error) {
		outcome.Kind, outcome.Reason = NeedsManualFix, reason
		return outcome, nil
	}

	switch {
	case diff.Kind == tree.Missing:
		return manual(ReasonMissing)
	case t.IsExcluded(templatePath):
		return manual(ReasonExcluded)
	case !templated:
		outcome.Kind, outcome.Content, outcome.Perm = CopyBack, actualData, actualPerm
		return outcome, nil
	case diff.Kind == tree.Extra:
		return manual(ReasonExtraTemplated)
	}

	templateData, err := t.ReadFile(templatePath)
	if err != nil {
		return outcome, fmt.Errorf("failed to read template file %s: %w", templatePath, err)
	}
	if !utf8.Valid(templateData) || !utf8.Valid(expectedData) || !utf8.Valid(actualData) {
		return manual(ReasonNotText)
	}

	engine := t.Engine()
	candidate, ok := AttemptResolution(engine, string(templateData), string(expectedData), string(actualData), vars)
	if !ok {
		return manual(ReasonNotApplicable)
	}
	perm := os.FileMode(0o644)
	if info, err := t.FS.Stat(templatePath); err == nil {
		perm = info.Mode().Perm()
	}
	valid, err := d.validate(ctx, templatePath, []byte(candidate), perm, actualData, vars)
	if err != nil {
		return outcome, err
	}
	if !valid {
		return manual(ReasonValidationFailed)
	}
	outcome.Kind, outcome.Content, outcome.Perm = AutoResolved, []byte(candidate), perm
	return outcome, nil
}

// validate renders a scratch copy of the template holding the candidate and compares the
// affected file with the project file, ignoring trailing whitespace.
func (d *Driver) validate(ctx context.Context, templatePath string, candidate []byte, perm os.FileMode, actual []byte, vars scaffold.Variables) (bool, error) {
	t := d.opts.Template
	scratch, err := t.Scratch()
	if err != nil {
		return false, err
	}
	if err := scratch.WriteFile(templatePath, candidate, perm); err != nil {
		return false, err
	}

	target, ok, err := scaffold.RenderPath(scratch.Engine(), templatePath, vars, scratch.Settings().TemplatesSuffix)
	if err != nil || !ok {
		return false, nil
	}

	dest, cleanup, err := scaffold.Ephemeral(ctx, scratch, vars, d.materializeOptions())
	defer cleanup()
	if err != nil {
		if scaffold.IsTemplateRenderError(err) {
			logger.Debug("candidate does not render", logger.String("path", templatePath), logger.Err(err))
			return false, nil
		}
		return false, err
	}

	got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(target))) // #nosec G304 -- path rendered from the template
	if err != nil {
		return false, nil
	}
	return trimTrailing(got) == trimTrailing(actual), nil
}

func trimTrailing(b []byte) string {
	return strings.TrimRight(string(b), " \t\r\n")
}

func (d *Driver) apply(outcomes []Outcome) error {
	t := d.opts.Template
	for _, o := range outcomes {
		if o.Kind == NeedsManualFix {
			continue
		}
		logger.Info(fmt.Sprintf("Copying %s → %s", o.Difference.Path, o.TemplatePath), logger.String("kind", o.Kind.String()))
		if err := t.WriteFile(o.TemplatePath, o.Content, o.Perm); err != nil {
			return err
		}
	}
	return nil
}
