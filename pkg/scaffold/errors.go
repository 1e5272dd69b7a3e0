package scaffold

import (
	"errors"
	"fmt"
	"strings"
)

// Fatal error taxonomy shared by the materializer and the reconciliation driver.
// Each kind wraps its cause so errors.Is still sees through it.

// ConfigurationError aborts a run before anything is mutated: dirty working tree,
// missing project, unreadable declarations, unresolvable revision.
type ConfigurationError struct {
	Message string
	Wrapped error
}

func (e *ConfigurationError) Error() string {
	if e.Wrapped == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Wrapped
}

// TemplateRenderError means the engine failed on a file name or file body.
type TemplateRenderError struct {
	Path    string
	Wrapped error
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Path, e.Wrapped)
}

func (e *TemplateRenderError) Unwrap() error {
	return e.Wrapped
}

// DestinationWriteError is a filesystem failure while producing output.
type DestinationWriteError struct {
	Path    string
	Wrapped error
}

func (e *DestinationWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Wrapped)
}

func (e *DestinationWriteError) Unwrap() error {
	return e.Wrapped
}

// ExternalToolError is a subprocess that exited non-zero (or could not start).
type ExternalToolError struct {
	Command  []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Wrapped  error
}

func (e *ExternalToolError) Error() string {
	cmd := strings.Join(e.Command, " ")
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", cmd, e.Wrapped)
	}
	return fmt.Sprintf("%s exited with code %d", cmd, e.ExitCode)
}

func (e *ExternalToolError) Unwrap() error {
	return e.Wrapped
}

// Output returns captured stdout and stderr for display, trimmed.
func (e *ExternalToolError) Output() string {
	var parts []string
	if out := strings.TrimSpace(string(e.Stdout)); out != "" {
		parts = append(parts, "stdout: "+out)
	}
	if errOut := strings.TrimSpace(string(e.Stderr)); errOut != "" {
		parts = append(parts, "stderr: "+errOut)
	}
	return strings.Join(parts, "\n")
}

// Configf builds a ConfigurationError without a cause.
func Configf(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsTemplateRenderError reports whether err is or wraps a TemplateRenderError.
func IsTemplateRenderError(err error) bool {
	var target *TemplateRenderError
	return errors.As(err, &target)
}
