package scaffold

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/safeio"
	"github.com/fulmenhq/stencil/pkg/tools"
)

// Options configures a materialization.
type Options struct {
	// Unsafe allows the template's _tasks to run in the destination.
	Unsafe bool
	// Executor runs tasks; defaults to the local executor.
	Executor tools.ToolExecutor
}

// Materialize renders t with vars into dest. dest is removed first, so every run is a full
// regeneration. Failures are TemplateRenderError, DestinationWriteError or ExternalToolError.
func Materialize(ctx context.Context, t *Template, vars Variables, dest string, opts Options) error {
	start := time.Now()
	engine := t.Engine()
	settings := t.Settings()

	if err := os.RemoveAll(dest); err != nil {
		return &DestinationWriteError{Path: dest, Wrapped: err}
	}
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return &DestinationWriteError{Path: dest, Wrapped: err}
	}

	files := 0
	err := t.Walk(func(rel string, info os.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, ok, err := RenderPath(engine, rel, vars, settings.TemplatesSuffix)
		if err != nil {
			return err
		}
		if !ok || target == settings.AnswersFile {
			return nil
		}
		data, err := t.ReadFile(rel)
		if err != nil {
			return &DestinationWriteError{Path: rel, Wrapped: fmt.Errorf("failed to read template file: %w", err)}
		}
		if t.IsTemplated(rel) {
			rendered, err := engine.RenderString(string(data), vars)
			if err != nil {
				return &TemplateRenderError{Path: rel, Wrapped: err}
			}
			data = []byte(rendered)
		}
		dst, err := safeio.JoinContained(dest, target)
		if err != nil {
			return &DestinationWriteError{Path: target, Wrapped: err}
		}
		if err := writeFile(dst, data, info.Mode().Perm()); err != nil {
			return &DestinationWriteError{Path: target, Wrapped: err}
		}
		files++
		return nil
	})
	if err != nil {
		return err
	}

	record, err := MarshalAnswers(t.Declarations, vars, t.SrcPath, t.Commit)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dest, filepath.FromSlash(settings.AnswersFile)), record, 0o644); err != nil {
		return &DestinationWriteError{Path: settings.AnswersFile, Wrapped: err}
	}

	if opts.Unsafe && len(settings.Tasks) > 0 {
		if err := runTasks(ctx, engine, settings.Tasks, vars, dest, opts.Executor); err != nil {
			return err
		}
	}

	logger.Debug("materialized template",
		logger.String("dest", dest),
		logger.Int("files", files),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// RenderPath renders every marked segment of a template-relative path and strips the
// template suffix. ok is false when a segment renders empty, meaning the file is skipped.
func RenderPath(engine *Engine, rel string, vars Variables, suffix string) (string, bool, error) {
	segments := strings.Split(rel, "/")
	for i, segment := range segments {
		if !HasMarkers(segment) {
			continue
		}
		rendered, err := engine.RenderString(segment, vars)
		if err != nil {
			return "", false, &TemplateRenderError{Path: rel, Wrapped: err}
		}
		if strings.TrimSpace(rendered) == "" {
			return "", false, nil
		}
		segments[i] = rendered
	}
	target := path.Join(segments...)
	if suffix != "" && strings.HasSuffix(rel, suffix) {
		target = strings.TrimSuffix(target, suffix)
	}
	return target, true, nil
}

func writeFile(dst string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}

func runTasks(ctx context.Context, engine *Engine, tasks []string, vars Variables, dir string, executor tools.ToolExecutor) error {
	if executor == nil {
		executor = tools.NewLocalExecutor()
	}
	for _, task := range tasks {
		command, err := engine.RenderString(task, vars)
		if err != nil {
			return &TemplateRenderError{Path: "_tasks", Wrapped: err}
		}
		argv := []string{"sh", "-c", command}
		logger.Debug("running template task", logger.String("task", command), logger.String("dir", dir))
		result, err := executor.Execute(ctx, tools.ExecuteOptions{Tool: argv[0], Args: argv[1:], WorkDir: dir})
		if err != nil {
			return &ExternalToolError{Command: argv, ExitCode: -1, Wrapped: err}
		}
		if result.ExitCode != 0 {
			return &ExternalToolError{Command: argv, ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
		}
	}
	return nil
}

// Ephemeral materializes into a fresh temporary directory. The returned cleanup removes it
// and is safe to call on every path, including after an error.
func Ephemeral(ctx context.Context, t *Template, vars Variables, opts Options) (string, func(), error) {
	tmp, err := os.MkdirTemp("", "stencil-expected-*")
	if err != nil {
		return "", func() {}, &DestinationWriteError{Path: os.TempDir(), Wrapped: err}
	}
	cleanup := func() {
		if err := os.RemoveAll(tmp); err != nil {
			logger.Warn("failed to remove temporary directory", logger.String("path", tmp), logger.Err(err))
		}
	}
	dest := filepath.Join(tmp, "project")
	if err := Materialize(ctx, t, vars, dest, opts); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return dest, cleanup, nil
}
