/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fulmenhq/stencil/internal/extract"
	"github.com/fulmenhq/stencil/internal/gitctx"
	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/pkg/buildinfo"
	"github.com/fulmenhq/stencil/pkg/config"
	"github.com/fulmenhq/stencil/pkg/exitcode"
	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/scaffold"
	"github.com/fulmenhq/stencil/pkg/tools"
)

// errDriftFound is returned by commands that found differences without failing.
var errDriftFound = errors.New("template drift found")

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stencil",
		Short: "Keep a project template and its materialized project in sync",
		Long: `Stencil keeps a project-generation template and the reference project materialized
from it in agreement. Edits made in the generated project can be copied back into the
template, and drift between the two is reported.

Examples:
   stencil regenerate        # Rebuild test-proj from the template and recorded answers
   stencil check             # Report drift between test-proj and the template
   stencil fix               # Copy project edits back into the template
   stencil verify            # Regenerate, then fail if git sees changes
   stencil version           # Show version (use --extended for build info)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().Bool("no-op", false, "Log external tools instead of running them")
	addLocationFlags(cmd.PersistentFlags())

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("stencil {{.Version}}\n")

	// Grouped help by command group (Reconcile → Workflow → Support)
	cmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		if cmd.HasParent() {
			cmd.Println(cmd.UsageString())
			return
		}
		reg := ops.GetRegistry()
		cmd.Println(cmd.Long)
		cmd.Println()
		sections := []struct {
			title string
			group ops.CommandGroup
		}{
			{"Reconciliation Commands:", ops.GroupReconcile},
			{"Workflow Commands:", ops.GroupWorkflow},
			{"Support Commands:", ops.GroupSupport},
		}
		for _, s := range sections {
			cmd.Println(s.title)
			for _, c := range reg.GetCommandsByGroup(s.group) {
				cmd.Printf("  %-12s %s\n", c.Name, c.Description)
			}
			cmd.Println()
		}
		cmd.Println("Flags:")
		cmd.Print(cmd.UsageString())
	})

	return cmd
}

// addLocationFlags registers the flags that override where the template and project live.
func addLocationFlags(fs *pflag.FlagSet) {
	fs.String("template", "", "Template root (local path; regenerate also accepts a git URL)")
	fs.String("project", "", "Materialized project directory (relative to the template root)")
}

// registerSubcommands adds all subcommands to the root command.
// This is called from init() for production and can be called explicitly in tests.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newRegenerateCommand())
	cmd.AddCommand(newVerifyCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newFixCommand())
	cmd.AddCommand(newLintCommand())
	cmd.AddCommand(newExtractCommand())
	cmd.AddCommand(newSchemaCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute runs the root command and exits with the code matching the failure.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitCodeFor(err)
		if !errors.Is(err, errDriftFound) {
			logger.Error("Command execution failed", logger.Err(err))
		}
		var toolErr *scaffold.ExternalToolError
		if errors.As(err, &toolErr) {
			if output := toolErr.Output(); output != "" {
				_, _ = fmt.Fprintln(os.Stderr, output)
			}
		}
		os.Exit(code)
	}
}

func init() {
	// Register all subcommands with the production rootCmd
	registerSubcommands(rootCmd)
}

// exitCodeFor maps a command error onto the stencil exit codes.
func exitCodeFor(err error) int {
	var (
		configErr *scaffold.ConfigurationError
		dirtyErr  *gitctx.DirtyError
		renderErr *scaffold.TemplateRenderError
		writeErr  *scaffold.DestinationWriteError
		toolErr   *scaffold.ExternalToolError
		apiErr    *extract.APIError
		urlErr    *url.Error
	)
	switch {
	case err == nil:
		return exitcode.Success
	case errors.Is(err, errDriftFound):
		return exitcode.DriftFound
	case errors.As(err, &configErr), errors.As(err, &dirtyErr):
		return exitcode.ConfigError
	case errors.As(err, &renderErr):
		return exitcode.RenderError
	case errors.As(err, &writeErr):
		return exitcode.FileSystemError
	case errors.As(err, &toolErr):
		return exitcode.ExternalTool
	case errors.As(err, &apiErr), errors.As(err, &urlErr):
		return exitcode.NetworkError
	default:
		return exitcode.GeneralError
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	noOp, _ := cmd.Flags().GetBool("no-op")

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "stencil",
		NoOp:      noOp,
		Output:    cmd.ErrOrStderr(),
	}

	if err := logger.Initialize(config); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
}

// loadConfig reads the configuration and applies the --template and --project overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadProjectConfig()
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "failed to load configuration", Wrapped: err}
	}
	if v, _ := cmd.Flags().GetString("template"); v != "" {
		cfg.Template = v
	}
	if v, _ := cmd.Flags().GetString("project"); v != "" {
		cfg.Project = v
	}
	return cfg, nil
}

// executorFor returns the tool executor selected by --no-op.
func executorFor(cmd *cobra.Command) tools.ToolExecutor {
	if noOp, _ := cmd.Flags().GetBool("no-op"); noOp {
		return tools.NewExecutor(tools.ModeNoOp)
	}
	return tools.NewExecutor("")
}

// projectDir places the project next to a remote template's checkout point, i.e. under the
// working directory, since a remote template has no local root.
func projectDir(cfg *config.Config) string {
	if scaffold.IsRemote(cfg.Template) && !filepath.IsAbs(cfg.Project) {
		return cfg.Project
	}
	return cfg.ProjectDir()
}

// parseData turns repeated key=value flags into template variables.
func parseData(pairs []string) (scaffold.Variables, error) {
	vars := scaffold.Variables{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, scaffold.Configf("invalid --data %q, expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// mustRegister records a command in the taxonomy registry.
func mustRegister(name string, group ops.CommandGroup, category ops.CommandCategory, cmd *cobra.Command) {
	caps := ops.GetDefaultCapabilities(group, category)
	if err := ops.RegisterCommandWithTaxonomy(name, group, category, caps, cmd, cmd.Short); err != nil {
		panic(fmt.Sprintf("Failed to register %s command: %v", name, err))
	}
}
