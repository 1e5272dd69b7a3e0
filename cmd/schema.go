/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/pkg/schemas"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Export JSON schemas for the extraction types",
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Write one JSON schema per registered type",
		Long: fmt.Sprintf(`Export wipes the output directory and writes <Name>.json for every registered
type with all references inlined. With --typescript, TypeScript declarations are
generated next to them through npx.

Registered types: %s`, strings.Join(schemas.Names(), ", ")),
		Args: cobra.NoArgs,
		RunE: runSchemaExport,
	}
	export.Flags().String("out", "", "Output directory (defaults to schemas.output)")
	export.Flags().Bool("typescript", false, "Also generate TypeScript declarations")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print the JSON schema of one registered type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := schemas.Document(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		},
	})
	return cmd
}

func init() {
	mustRegister("schema", ops.GroupWorkflow, ops.CategoryExport, newSchemaCommand())
}

func runSchemaExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.Schemas.Output
	}

	written, err := schemas.Export(out)
	if err != nil {
		return err
	}
	if ts, _ := cmd.Flags().GetBool("typescript"); ts {
		if err := schemas.GenerateTypeScript(cmd.Context(), executorFor(cmd), out); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d schemas to %s\n", len(written), out)
	return nil
}
