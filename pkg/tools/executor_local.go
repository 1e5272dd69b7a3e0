/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/stencil/pkg/logger"
)

// LocalExecutor runs tools installed on the local system
type LocalExecutor struct {
	shimDirs []string
}

// NewLocalExecutor creates a new LocalExecutor
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{shimDirs: shimDirectories()}
}

// Name returns the executor name
func (e *LocalExecutor) Name() string {
	return "local"
}

// IsAvailable checks if the tool is available locally
func (e *LocalExecutor) IsAvailable(tool string) bool {
	return e.FindToolPath(tool, "") != ""
}

// Execute runs the tool in opts.WorkDir with captured output.
func (e *LocalExecutor) Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error) {
	toolPath := e.FindToolPath(opts.Tool, opts.WorkDir)
	if toolPath == "" {
		return nil, fmt.Errorf("tool %s not found in PATH or shim directories", opts.Tool)
	}

	// #nosec G204 -- argv comes from template tasks or configured checks
	cmd := exec.CommandContext(ctx, toolPath, opts.Args...)
	cmd.Dir = opts.WorkDir
	cmd.Stdin = opts.Stdin
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	logger.Debug(fmt.Sprintf("executing %s", strings.Join(opts.Argv(), " ")), logger.String("dir", opts.WorkDir))
	err := cmd.Run()
	result := &ExecuteResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Executor: e.Name()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		// A non-zero exit is a result, not an execution failure.
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("failed to execute %s: %w", opts.Tool, err)
	}
	return result, nil
}

// FindToolPath looks a tool up on PATH, then in the project's node_modules/.bin below
// workDir, then in the known shim directories. It returns "" when nothing matches.
func (e *LocalExecutor) FindToolPath(tool, workDir string) string {
	if p, err := exec.LookPath(tool); err == nil {
		return p
	}

	dirs := e.shimDirs
	if workDir != "" {
		dirs = append([]string{filepath.Join(workDir, "node_modules", ".bin")}, dirs...)
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, tool)
		if runtime.GOOS == "windows" && filepath.Ext(candidate) == "" {
			candidate += ".exe"
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			logger.Debug(fmt.Sprintf("found %s in %s", tool, dir))
			return candidate
		}
	}
	return ""
}

// shimDirectories lists the existing install locations of the toolchains template checks
// rely on (bun, uv/pipx, go install, mise, scoop).
func shimDirectories() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	goBin := os.Getenv("GOBIN")
	if goBin == "" {
		goBin = filepath.Join(home, "go", "bin")
	}
	candidates := []string{
		filepath.Join(home, ".bun", "bin"),
		filepath.Join(home, ".local", "bin"),
		goBin,
		filepath.Join(home, ".local", "share", "mise", "shims"),
	}
	if runtime.GOOS == "windows" {
		candidates = append(candidates, filepath.Join(home, "scoop", "shims"))
	}

	var dirs []string
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
