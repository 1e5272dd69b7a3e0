/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/pkg/config"
	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/scaffold"
	"github.com/fulmenhq/stencil/pkg/tools"
)

func newLintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint [check...]",
		Short: "Run the configured checks inside the project",
		Long: `Lint runs each configured check (for example the Python and JavaScript toolchains)
inside the materialized project. Name checks to run only those.

Examples:
  stencil lint
  stencil lint javascript --fix`,
		RunE: runLint,
	}
	cmd.Flags().Bool("fix", false, "Run each check's fix command instead of its check command")
	return cmd
}

func init() {
	mustRegister("lint", ops.GroupWorkflow, ops.CategoryValidation, newLintCommand())
}

func runLint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fix, _ := cmd.Flags().GetBool("fix")
	return runChecks(cmd, cfg, args, fix)
}

// runChecks runs the named checks (all when names is empty) and returns the first failure
// after every check has run.
func runChecks(cmd *cobra.Command, cfg *config.Config, names []string, fix bool) error {
	checks := cfg.Checks
	if len(names) > 0 {
		checks = nil
		for _, name := range names {
			check, ok := cfg.FindCheck(name)
			if !ok {
				return scaffold.Configf("unknown check %q", name)
			}
			checks = append(checks, check)
		}
	}

	project := cfg.ProjectDir()
	executor := executorFor(cmd)
	out := cmd.OutOrStdout()
	var firstErr error
	for _, check := range checks {
		argv := check.Check
		if fix {
			argv = check.Fix
		}
		if len(argv) == 0 {
			logger.Debug("check has no command for this mode", logger.String("check", check.Name), logger.Bool("fix", fix))
			continue
		}
		dir := filepath.Join(project, filepath.FromSlash(check.Dir))
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return scaffold.Configf("%s directory does not exist", dir)
		}

		_, _ = fmt.Fprintf(out, "Running %s checks...\n", check.Name)
		result, err := executor.Execute(cmd.Context(), tools.ExecuteOptions{Tool: argv[0], Args: argv[1:], WorkDir: dir})
		if err != nil {
			return &scaffold.ExternalToolError{Command: argv, ExitCode: -1, Wrapped: err}
		}
		if result.ExitCode != 0 {
			toolErr := &scaffold.ExternalToolError{Command: argv, ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
			logger.Error(fmt.Sprintf("%s checks failed", check.Name), logger.Int("exit_code", result.ExitCode))
			if firstErr == nil {
				firstErr = toolErr
			}
			continue
		}
		_, _ = fmt.Fprintf(out, "✓ %s checks passed\n", check.Name)
	}
	return firstErr
}
