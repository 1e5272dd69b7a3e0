/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/pkg/buildinfo"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show stencil version information",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show detailed build information")
	cmd.Flags().Bool("json", false, "Output version information in JSON format")
	return cmd
}

func init() {
	mustRegister("version", ops.GroupSupport, ops.CategoryInformation, newVersionCommand())
}

// versionFromSources prefers the ldflags version, then the module version, and reports
// which one was used.
func versionFromSources() (string, string) {
	if buildinfo.BinaryVersion != "" && buildinfo.BinaryVersion != "dev" {
		return buildinfo.BinaryVersion, "ldflags"
	}
	if v := buildinfo.ModuleVersion(); v != "" && v != "(devel)" {
		return v, "module"
	}
	return "dev", "default"
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	version, source := versionFromSources()
	commit := buildinfo.VCSRevision()
	if len(commit) > 8 {
		commit = commit[:8]
	}

	if jsonOutput {
		info := map[string]interface{}{
			"version":   version,
			"source":    source,
			"goVersion": runtime.Version(),
			"platform":  runtime.GOOS,
			"arch":      runtime.GOARCH,
		}
		if extended {
			if commit == "" {
				commit = "unknown"
			}
			info["gitCommit"] = commit
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	}

	_, _ = fmt.Fprintf(out, "stencil %s\n", version)
	_, _ = fmt.Fprintf(out, "Source: %s\n", source)
	if extended {
		if commit != "" {
			_, _ = fmt.Fprintf(out, "Git commit: %s\n", commit)
		}
		_, _ = fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		_, _ = fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}
