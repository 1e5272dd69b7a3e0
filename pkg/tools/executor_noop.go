/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/stencil/pkg/logger"
)

// NoOpExecutor records commands instead of running them
type NoOpExecutor struct {
	mu    sync.Mutex
	calls []ExecuteOptions
}

// NewNoOpExecutor creates a new NoOpExecutor
func NewNoOpExecutor() *NoOpExecutor {
	return &NoOpExecutor{}
}

// Name returns the executor name
func (e *NoOpExecutor) Name() string {
	return "noop"
}

// IsAvailable always reports true
func (e *NoOpExecutor) IsAvailable(string) bool {
	return true
}

// Execute logs the command and reports success
func (e *NoOpExecutor) Execute(_ context.Context, opts ExecuteOptions) (*ExecuteResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, opts)
	e.mu.Unlock()
	logger.Info(fmt.Sprintf("[no-op] would run: %s", strings.Join(opts.Argv(), " ")), logger.String("dir", opts.WorkDir))
	return &ExecuteResult{Executor: "noop"}, nil
}

// Calls returns the recorded commands
func (e *NoOpExecutor) Calls() []ExecuteOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExecuteOptions(nil), e.calls...)
}
