package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/stencil/internal/gitctx"
	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/scaffold"
	"github.com/fulmenhq/stencil/pkg/tools"
)

// RegenerateOptions configures Regenerate.
type RegenerateOptions struct {
	Template   *scaffold.Template
	ProjectDir string
	// Overrides win over the recorded answers.
	Overrides scaffold.Variables
	// RequireClean refuses to run when the repository holding the project has
	// uncommitted changes.
	RequireClean bool
	Unsafe       bool
	Executor     tools.ToolExecutor
}

// Regeneration describes a completed rebuild.
type Regeneration struct {
	ProjectDir string
	Values     scaffold.Variables
	Unresolved []string
	// AnswersRestored is set when the answers record was put back to its committed content.
	AnswersRestored bool
}

// Regenerate deletes the project and rebuilds it from the template, reusing the answers
// recorded in the previous build. The answers record is then restored from HEAD so that
// the new commit hash alone does not show up as a change.
func Regenerate(ctx context.Context, opts RegenerateOptions) (*Regeneration, error) {
	t := opts.Template
	if t == nil {
		return nil, scaffold.Configf("no template given")
	}
	project, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "invalid project path", Wrapped: err}
	}

	repo, err := gitctx.Open(filepath.Dir(project))
	switch {
	case err == nil:
	case errors.Is(err, gitctx.ErrNotRepository) && !opts.RequireClean:
		repo = nil
	default:
		return nil, &scaffold.ConfigurationError{Message: "cannot check working tree", Wrapped: err}
	}
	if opts.RequireClean {
		logger.Info("Checking for uncommitted changes...")
		if err := repo.EnsureClean(""); err != nil {
			return nil, &scaffold.ConfigurationError{Message: "working tree is not clean", Wrapped: err}
		}
	}

	answersPath := filepath.Join(project, filepath.FromSlash(t.Settings().AnswersFile))
	seed := scaffold.Variables{}
	if _, err := os.Stat(answersPath); err == nil {
		answers, err := scaffold.LoadAnswers(answersPath)
		if err != nil {
			return nil, err
		}
		seed = answers.Values
	} else {
		logger.Info(fmt.Sprintf("Directory %s has no answers record, using template defaults", project))
	}
	for k, v := range opts.Overrides {
		seed[k] = v
	}
	resolution := scaffold.Resolve(t.Engine(), t.Declarations.Questions, seed)
	if len(resolution.Unresolved) > 0 {
		logger.Warn("variables left unresolved", logger.Strings("names", resolution.Unresolved))
	}

	excludeProject(t, project)
	logger.Info(fmt.Sprintf("Deleting %s", project))
	if err := scaffold.Materialize(ctx, t, resolution.Values, project, scaffold.Options{Unsafe: opts.Unsafe, Executor: opts.Executor}); err != nil {
		return nil, err
	}

	result := &Regeneration{ProjectDir: project, Values: resolution.Values, Unresolved: resolution.Unresolved}
	if repo != nil {
		before, _ := os.ReadFile(answersPath) // #nosec G304 -- answers record inside the project
		if err := repo.RestoreFile(answersPath); err != nil {
			logger.Warn("failed to restore answers record", logger.String("path", answersPath), logger.Err(err))
		} else if after, _ := os.ReadFile(answersPath); string(after) != string(before) { // #nosec G304 -- answers record inside the project
			result.AnswersRestored = true
		}
	}
	return result, nil
}

// Verify regenerates the project and returns the paths under it that now differ from
// the committed state. An empty result means the template reproduces the committed project.
func Verify(ctx context.Context, opts RegenerateOptions) ([]gitctx.FileStatus, error) {
	opts.RequireClean = false
	project, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "invalid project path", Wrapped: err}
	}
	repo, err := gitctx.Open(filepath.Dir(project))
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "verify needs the project inside a git repository", Wrapped: err}
	}
	prefix, err := repo.RelPath(project)
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "cannot locate project in repository", Wrapped: err}
	}
	if _, err := Regenerate(ctx, opts); err != nil {
		return nil, err
	}
	return repo.Status(prefix)
}
