package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/stencil/internal/extract"
	"github.com/fulmenhq/stencil/internal/gitctx"
	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/pkg/exitcode"
	"github.com/fulmenhq/stencil/pkg/scaffold"
)

// execRoot runs a fresh command tree and returns stdout and stderr separately.
func execRoot(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	isolateConfig(t)

	cmd := newRootCommand()
	registerSubcommands(cmd)

	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	// Reduce log noise to capture clean command output for JSON parsing
	cmd.SetArgs(append([]string{"--log-level", "error", "--no-color"}, args...))
	err := cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// isolateConfig keeps user configuration and credentials out of the tests.
func isolateConfig(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STENCIL_HOME", home)
	for _, key := range []string{
		"STENCIL_TEMPLATE", "STENCIL_PROJECT", "STENCIL_TOOL_MODE",
		"STENCIL_EXTRACT_API_KEY", "LLAMA_CLOUD_API_KEY",
		"STENCIL_EXTRACT_PROJECT_ID", "LLAMA_DEPLOY_PROJECT_ID",
		"STENCIL_EXTRACT_AGENT_NAME", "LLAMA_DEPLOY_DEPLOYMENT_NAME",
	} {
		t.Setenv(key, "")
	}
}

func loggerFlags(level string, json, noColor, noOp bool) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", level, "")
	cmd.Flags().Bool("json", json, "")
	cmd.Flags().Bool("no-color", noColor, "")
	cmd.Flags().Bool("no-op", noOp, "")
	return cmd
}

func TestInitializeLogger(t *testing.T) {
	// None of these should panic
	initializeLogger(loggerFlags("info", false, false, false))
	initializeLogger(loggerFlags("debug", false, false, false))
	initializeLogger(loggerFlags("invalid", false, false, false))
	initializeLogger(loggerFlags("info", true, false, false))
	initializeLogger(loggerFlags("info", false, true, true))
}

func TestRootVersionSet(t *testing.T) {
	if rootCmd.Version == "" {
		t.Error("rootCmd.Version should not be empty")
	}
}

func TestRootHelpGroupsCommands(t *testing.T) {
	out, _, err := execRoot(t, []string{"--help"})
	if err != nil {
		t.Fatalf("--help failed: %v", err)
	}
	for _, want := range []string{"Reconciliation Commands:", "Workflow Commands:", "Support Commands:", "regenerate", "check", "extract", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Reconciliation Commands:") > strings.Index(out, "Support Commands:") {
		t.Errorf("reconciliation commands should be listed before support commands")
	}
}

func TestCommandTaxonomy(t *testing.T) {
	errs := ops.NewTaxonomyValidator().Validate(ops.GetRegistry())
	if len(errs) > 0 {
		t.Fatalf("taxonomy errors:\n%s", ops.FormatErrors(errs))
	}
	reg, ok := ops.GetRegistry().GetCommand("check")
	if !ok {
		t.Fatal("check not registered")
	}
	if !reg.Capabilities.SupportsJSON {
		t.Error("check should advertise JSON output")
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcode.Success},
		{"drift", errDriftFound, exitcode.DriftFound},
		{"config", scaffold.Configf("bad"), exitcode.ConfigError},
		{"dirty", &gitctx.DirtyError{Entries: []gitctx.FileStatus{{Path: "a", Worktree: 'M'}}}, exitcode.ConfigError},
		{"render", &scaffold.TemplateRenderError{Path: "x", Wrapped: errors.New("boom")}, exitcode.RenderError},
		{"write", &scaffold.DestinationWriteError{Path: "x", Wrapped: errors.New("boom")}, exitcode.FileSystemError},
		{"tool", &scaffold.ExternalToolError{Command: []string{"npm"}, ExitCode: 1}, exitcode.ExternalTool},
		{"api", &extract.APIError{Method: "GET", URL: "u", StatusCode: 500}, exitcode.NetworkError},
		{"wrapped", fmt.Errorf("outer: %w", scaffold.Configf("inner")), exitcode.ConfigError},
		{"other", errors.New("boom"), exitcode.GeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseData(t *testing.T) {
	vars, err := parseData([]string{"project_name=My App", "empty=", "expr=a=b"})
	if err != nil {
		t.Fatalf("parseData failed: %v", err)
	}
	if vars["project_name"] != "My App" || vars["empty"] != "" || vars["expr"] != "a=b" {
		t.Errorf("unexpected variables: %v", vars)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseData([]string{bad}); !scaffold.IsConfigurationError(err) {
			t.Errorf("parseData(%q) error = %v, want configuration error", bad, err)
		}
	}
}
