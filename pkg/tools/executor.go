/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package tools

import (
	"context"
	"io"
	"os"
	"strings"
)

// ExecutionMode selects how template tasks, lint checks and schema generation run their tools.
type ExecutionMode string

const (
	// ModeLocal runs tools from PATH, the project's node_modules/.bin or a toolchain shim directory
	ModeLocal ExecutionMode = "local"
	// ModeNoOp logs the command line and reports success; used by --no-op
	ModeNoOp ExecutionMode = "noop"
)

// ExecuteOptions describes one external command.
type ExecuteOptions struct {
	// Tool is the command to run: "sh" for _tasks entries, "npm"/"uv" for lint checks,
	// "npx" for TypeScript generation.
	Tool string
	Args []string

	// WorkDir is the generated project (tasks) or the check's directory (lint).
	WorkDir string

	Stdin io.Reader

	// Env is appended to the inherited environment.
	Env map[string]string
}

// Argv returns the full command line.
func (o ExecuteOptions) Argv() []string {
	return append([]string{o.Tool}, o.Args...)
}

// ExecuteResult is the captured outcome of a command. Callers turn a non-zero ExitCode into
// scaffold.ExternalToolError carrying Stdout and Stderr.
type ExecuteResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte

	// Executor is "local" or "noop".
	Executor string
}

// ToolExecutor runs the external commands stencil delegates to.
type ToolExecutor interface {
	// Execute runs a tool with the given options. A non-zero exit is reported through
	// ExecuteResult.ExitCode, not as an error.
	Execute(ctx context.Context, opts ExecuteOptions) (*ExecuteResult, error)

	// IsAvailable reports whether tool can be found without running it.
	IsAvailable(tool string) bool

	// Name is logged with each command.
	Name() string
}

// NewExecutor returns the executor for mode. An empty mode falls back to STENCIL_TOOL_MODE,
// then to ModeLocal.
func NewExecutor(mode ExecutionMode) ToolExecutor {
	if mode == "" {
		mode = getModeFromEnv()
	}

	switch mode {
	case ModeNoOp:
		return NewNoOpExecutor()
	case ModeLocal:
		fallthrough
	default:
		return NewLocalExecutor()
	}
}

func getModeFromEnv() ExecutionMode {
	mode := os.Getenv("STENCIL_TOOL_MODE")
	switch strings.ToLower(mode) {
	case "noop", "no-op":
		return ModeNoOp
	default:
		return ModeLocal
	}
}
