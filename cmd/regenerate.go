/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/internal/reconcile"
	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/scaffold"
)

func newRegenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild the project from the template and its recorded answers",
		Long: `Regenerate deletes the materialized project and renders it again from the template,
reusing the answers recorded by the previous build. The working tree must be clean.
The answers record is restored from HEAD afterwards.

Examples:
  stencil regenerate
  stencil regenerate --data project_name="My App"
  stencil regenerate --template https://github.com/acme/template.git --ref v2`,
		Args: cobra.NoArgs,
		RunE: runRegenerate,
	}
	cmd.Flags().StringArray("data", nil, "Override a template variable (key=value, repeatable)")
	cmd.Flags().String("ref", "", "Git ref to check out when --template is a URL")
	return cmd
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Regenerate the project and fail if git sees any change",
		Long: `Verify regenerates the project, then inspects git status under the project directory.
Any modified, added or deleted file means the committed project was not produced by the
committed template.`,
		Args: cobra.NoArgs,
		RunE: runVerify,
	}
}

func init() {
	mustRegister("regenerate", ops.GroupReconcile, ops.CategoryGeneration, newRegenerateCommand())
	mustRegister("verify", ops.GroupReconcile, ops.CategoryValidation, newVerifyCommand())
}

func regenerateOptions(cmd *cobra.Command, ref string) (reconcile.RegenerateOptions, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return reconcile.RegenerateOptions{}, err
	}
	tpl, err := scaffold.Open(cmd.Context(), cfg.Template, ref)
	if err != nil {
		return reconcile.RegenerateOptions{}, err
	}
	return reconcile.RegenerateOptions{
		Template:   tpl,
		ProjectDir: projectDir(cfg),
		Unsafe:     cfg.Unsafe,
		Executor:   executorFor(cmd),
	}, nil
}

func runRegenerate(cmd *cobra.Command, _ []string) error {
	pairs, _ := cmd.Flags().GetStringArray("data")
	ref, _ := cmd.Flags().GetString("ref")
	overrides, err := parseData(pairs)
	if err != nil {
		return err
	}

	opts, err := regenerateOptions(cmd, ref)
	if err != nil {
		return err
	}
	opts.Overrides = overrides
	opts.RequireClean = true

	result, err := reconcile.Regenerate(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if result.AnswersRestored {
		logger.Debug("answers record restored from HEAD")
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✅ Regenerated %s\n", result.ProjectDir)
	return nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	opts, err := regenerateOptions(cmd, "")
	if err != nil {
		return err
	}
	dirty, err := reconcile.Verify(cmd.Context(), opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(dirty) == 0 {
		_, _ = fmt.Fprintln(out, "✅ Generated files match template")
		return nil
	}
	_, _ = fmt.Fprintln(out, "❌ Regenerating the project changed committed files:")
	for _, s := range dirty {
		_, _ = fmt.Fprintf(out, "  %s\n", s)
	}
	_, _ = fmt.Fprintln(out, "\nTo fix: if these changes look good, run regenerate and commit the changes.")
	return errDriftFound
}
