/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/internal/reconcile"
	"github.com/fulmenhq/stencil/pkg/config"
	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/scaffold"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report drift between the project and the template",
		Long: `Check materializes the template with the project's recorded answers into a temporary
directory and compares the result with the project. Every difference is classified as a
copy-back, an auto-resolution or a manual fix, but nothing is written.

Exits with code 12 when any difference exists.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
	cmd.Flags().String("since", "", "Only consider project files changed since this git revision")
	cmd.Flags().String("format", "text", "Report format (text|json)")
	return cmd
}

func newFixCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Copy project edits back into the template",
		Long: `Fix classifies drift like check, then writes every copy-back and auto-resolution into
the template. Files that cannot be reconciled automatically are listed for manual
resolution; they do not make the command fail.`,
		Args: cobra.NoArgs,
		RunE: runFix,
	}
	cmd.Flags().String("since", "", "Only consider project files changed since this git revision")
	cmd.Flags().String("format", "text", "Report format (text|json)")
	cmd.Flags().Bool("fix-format", false, "Run the configured formatters in the project before fixing")
	cmd.Flags().Bool("require-clean", false, "Refuse to run with uncommitted changes in the template repository")
	return cmd
}

func init() {
	mustRegister("check", ops.GroupReconcile, ops.CategoryDrift, newCheckCommand())
	mustRegister("fix", ops.GroupReconcile, ops.CategoryDrift, newFixCommand())
}

func newDriver(cmd *cobra.Command, cfg *config.Config) (*reconcile.Driver, error) {
	since, _ := cmd.Flags().GetString("since")
	if scaffold.IsRemote(cfg.Template) {
		return nil, scaffold.Configf("%s needs a local template checkout", cmd.Name())
	}
	tpl, err := scaffold.OpenLocal(cfg.Template)
	if err != nil {
		return nil, err
	}
	requireClean, _ := cmd.Flags().GetBool("require-clean")
	return reconcile.New(reconcile.Options{
		Template:     tpl,
		ProjectDir:   cfg.ProjectDir(),
		Since:        since,
		RequireClean: requireClean,
		Unsafe:       cfg.Unsafe,
		Executor:     executorFor(cmd),
	})
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	driver, err := newDriver(cmd, cfg)
	if err != nil {
		return err
	}
	logger.Info("Checking template drift", logger.String("project", cfg.ProjectDir()))
	report, err := driver.Check(cmd.Context())
	if err != nil {
		return err
	}
	if err := printReport(cmd, report); err != nil {
		return err
	}
	if report.Drift() {
		return errDriftFound
	}
	return nil
}

func runFix(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	driver, err := newDriver(cmd, cfg)
	if err != nil {
		return err
	}
	if fixFormat, _ := cmd.Flags().GetBool("fix-format"); fixFormat {
		if err := runChecks(cmd, cfg, nil, true); err != nil {
			return err
		}
	}
	logger.Info("Fixing template from project", logger.String("project", cfg.ProjectDir()))
	report, err := driver.Fix(cmd.Context())
	if err != nil {
		return err
	}
	return printReport(cmd, report)
}

func printReport(cmd *cobra.Command, report *reconcile.Report) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		data, err := json.MarshalIndent(report.Summary(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
	case "text", "":
		report.Print(out)
	default:
		return scaffold.Configf("unknown report format %q", format)
	}
	if len(report.Unresolved) > 0 {
		logger.Warn("variables left unresolved", logger.Strings("names", report.Unresolved))
	}
	return nil
}
