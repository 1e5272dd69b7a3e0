// Package extract runs the document extraction workflow: download an uploaded file,
// extract structured data with the extraction agent, validate it and record it.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/stencil/pkg/logger"
)

const (
	// StatusPendingReview marks data that satisfied the schema.
	StatusPendingReview = "pending_review"
	// StatusError marks data recorded even though it did not satisfy the schema.
	StatusError = "error"

	DefaultAttempts = 3
	DefaultDelay    = 10 * time.Second
)

// ToastLevel is the severity of a progress notification.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// Toast is a progress notification meant for a user-facing surface.
type Toast struct {
	Level   ToastLevel `json:"level"`
	Message string     `json:"message"`
}

// Step is a node of the workflow graph with its retry policy.
type Step struct {
	Name        string
	MaxAttempts int
	Delay       time.Duration
}

// Step names, in execution order.
const (
	StepDownload = "download"
	StepExtract  = "extract"
	StepRecord   = "record"
)

// StepError reports a step that failed on every attempt.
type StepError struct {
	Step     string
	Attempts int
	Wrapped  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}

// Options configures a Workflow.
type Options struct {
	// Collection is reported by Metadata.
	Collection string
	// SchemaName titles the schema in logs.
	SchemaName string
	// MaxAttempts and Delay apply to every step; zero means 3 attempts, 10s apart.
	MaxAttempts int
	Delay       time.Duration
	// TempDir receives downloads; defaults to os.TempDir().
	TempDir string
	// Observer receives toasts. Sends block until received or the run is cancelled.
	Observer chan<- Toast
}

// Result is the outcome of one run.
type Result struct {
	RunID    string `json:"run_id"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileHash string `json:"file_hash"`
	Status   string `json:"status"`
	ItemID   string `json:"item_id"`
}

// Metadata is what the UI needs to render extracted data.
type Metadata struct {
	JSONSchema              map[string]interface{} `json:"json_schema"`
	ExtractedDataCollection string                 `json:"extracted_data_collection"`
}

// Workflow processes single files through download, extract and record.
type Workflow struct {
	clients   Clients
	schemaDoc map[string]interface{}
	schema    *gojsonschema.Schema
	opts      Options
	steps     []Step
}

// New compiles the schema and prepares the step graph.
func New(clients Clients, schemaDoc map[string]interface{}, opts Options) (*Workflow, error) {
	if err := clients.validate(); err != nil {
		return nil, err
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(validationDocument(schemaDoc)))
	if err != nil {
		return nil, fmt.Errorf("invalid extraction schema %s: %w", opts.SchemaName, err)
	}

	w := &Workflow{clients: clients, schemaDoc: schemaDoc, schema: compiled, opts: opts}
	for _, name := range []string{StepDownload, StepExtract, StepRecord} {
		w.steps = append(w.steps, Step{Name: name, MaxAttempts: opts.MaxAttempts, Delay: opts.Delay})
	}
	return w, nil
}

// validationDocument drops the $schema marker; validation always uses the
// validator's own draft handling.
func validationDocument(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k == "$schema" {
			continue
		}
		out[k] = v
	}
	return out
}

// Steps returns the step graph in execution order.
func (w *Workflow) Steps() []Step {
	return append([]Step(nil), w.steps...)
}

// Metadata returns the extraction schema and the collection name.
func (w *Workflow) Metadata() Metadata {
	return Metadata{JSONSchema: w.schemaDoc, ExtractedDataCollection: w.opts.Collection}
}

type downloaded struct {
	path     string
	filename string
}

type extracted struct {
	data       map[string]interface{}
	status     string
	hash       string
	confidence map[string]interface{}
}

// Run processes one uploaded file and returns the id of the recorded item.
func (w *Workflow) Run(ctx context.Context, fileID string) (*Result, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("file id is required")
	}
	runID := uuid.NewString()
	logger.Info(fmt.Sprintf("Running file %s", fileID), logger.String("run_id", runID))

	var file downloaded
	if err := w.retry(ctx, w.steps[0], func(ctx context.Context) (err error) {
		file, err = w.download(ctx, fileID)
		return err
	}); err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove downloaded file", logger.String("path", file.path), logger.Err(err))
		}
	}()

	var data extracted
	if err := w.retry(ctx, w.steps[1], func(ctx context.Context) (err error) {
		data, err = w.extract(ctx, file)
		return err
	}); err != nil {
		return nil, err
	}

	var itemID string
	if err := w.retry(ctx, w.steps[2], func(ctx context.Context) (err error) {
		itemID, err = w.record(ctx, fileID, file, data)
		return err
	}); err != nil {
		return nil, err
	}

	return &Result{
		RunID:    runID,
		FileID:   fileID,
		FileName: file.filename,
		FileHash: data.hash,
		Status:   data.status,
		ItemID:   itemID,
	}, nil
}

func (w *Workflow) retry(ctx context.Context, step Step, fn func(context.Context) error) error {
	var err error
	attempt := 0
	for attempt < step.MaxAttempts {
		attempt++
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt == step.MaxAttempts {
			break
		}
		logger.Warn(fmt.Sprintf("step %s failed, retrying in %s", step.Name, step.Delay),
			logger.Int("attempt", attempt), logger.Err(err))
		timer := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &StepError{Step: step.Name, Attempts: attempt, Wrapped: err}
}

func (w *Workflow) toast(ctx context.Context, level ToastLevel, message string) {
	if w.opts.Observer == nil {
		return
	}
	select {
	case w.opts.Observer <- Toast{Level: level, Message: message}:
	case <-ctx.Done():
	}
}

func (w *Workflow) fail(ctx context.Context, err error, format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...) + ": " + err.Error()
	logger.Error(message)
	w.toast(ctx, ToastError, message)
	return err
}

func (w *Workflow) download(ctx context.Context, fileID string) (downloaded, error) {
	meta, err := w.clients.Files.GetFile(ctx, fileID)
	if err != nil {
		return downloaded{}, w.fail(ctx, err, "Error downloading file %s", fileID)
	}
	contentURL, err := w.clients.Files.ContentURL(ctx, fileID)
	if err != nil {
		return downloaded{}, w.fail(ctx, err, "Error downloading file %s", fileID)
	}

	filename := filepath.Base(filepath.Clean("/" + meta.Name))
	target := filepath.Join(w.opts.TempDir, filename)
	message := fmt.Sprintf("Downloading file %s to %s", contentURL, target)
	logger.Info(message)
	w.toast(ctx, ToastInfo, message)

	f, err := os.Create(target) // #nosec G304 -- file name reduced to its base inside the temp dir
	if err != nil {
		return downloaded{}, w.fail(ctx, err, "Error downloading file %s", fileID)
	}
	n, err := w.clients.Files.Download(ctx, contentURL, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return downloaded{}, w.fail(ctx, err, "Error downloading file %s", fileID)
	}
	logger.Info(fmt.Sprintf("Downloaded file %s to %s", contentURL, target), logger.Int("bytes", int(n)))
	return downloaded{path: target, filename: filename}, nil
}

func (w *Workflow) extract(ctx context.Context, file downloaded) (extracted, error) {
	content, err := os.ReadFile(file.path)
	if err != nil {
		return extracted{}, w.fail(ctx, err, "Error extracting data from file %s", file.filename)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	message := fmt.Sprintf("Extracting data from file %s", file.filename)
	logger.Info(message)
	w.toast(ctx, ToastInfo, message)

	run, err := w.clients.Extractor.Extract(ctx, file.filename, content)
	if err != nil {
		return extracted{}, w.fail(ctx, err, "Error extracting data from file %s", file.filename)
	}

	status, problems, err := w.validate(run.Data)
	if err != nil {
		return extracted{}, w.fail(ctx, err, "Error extracting data from file %s", file.filename)
	}
	if status == StatusError {
		logger.Error(fmt.Sprintf("Error validating extracted data: %s", strings.Join(problems, "; ")))
	}

	var fieldMetadata map[string]interface{}
	if run.ExtractionMetadata != nil {
		fieldMetadata, _ = run.ExtractionMetadata["field_metadata"].(map[string]interface{})
	}
	return extracted{
		data:       run.Data,
		status:     status,
		hash:       hash,
		confidence: Confidence(fieldMetadata),
	}, nil
}

// validate returns StatusPendingReview for data matching the schema and StatusError,
// with the violations, otherwise.
func (w *Workflow) validate(data map[string]interface{}) (string, []string, error) {
	// round-trip so numbers and nested values have their JSON shapes
	raw, err := json.Marshal(data)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode extracted data: %w", err)
	}
	result, err := w.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return StatusPendingReview, nil, nil
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return StatusError, problems, nil
}

func (w *Workflow) record(ctx context.Context, fileID string, file downloaded, data extracted) (string, error) {
	message := fmt.Sprintf("Recorded extracted data for file %s", file.filename)
	logger.Info(message)
	w.toast(ctx, ToastInfo, message)

	existing, err := w.clients.Data.FindByFileHash(ctx, data.hash)
	if err != nil {
		return "", w.fail(ctx, err, "Error recording extracted data for file %s", file.filename)
	}
	if len(existing) > 0 {
		logger.Info(fmt.Sprintf("Removing past data for file %s with hash %s", file.filename, data.hash))
		g, gctx := errgroup.WithContext(ctx)
		for _, item := range existing {
			id := item.ID
			g.Go(func() error {
				return w.clients.Data.Delete(gctx, id)
			})
		}
		if err := g.Wait(); err != nil {
			return "", w.fail(ctx, err, "Error recording extracted data for file %s", file.filename)
		}
	}

	itemID, err := w.clients.Data.Create(ctx, Record{
		Data:       data.data,
		Status:     data.status,
		FileID:     fileID,
		FileName:   file.filename,
		FileHash:   data.hash,
		Confidence: data.confidence,
	})
	if err != nil {
		return "", w.fail(ctx, err, "Error recording extracted data for file %s", file.filename)
	}
	return itemID, nil
}

// Confidence reduces per-field extraction metadata to {field: confidence}, recursing
// into nested objects that carry no confidence of their own.
func Confidence(fieldMetadata map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fieldMetadata))
	for key, value := range fieldMetadata {
		meta, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		if c, ok := meta["confidence"]; ok {
			out[key] = c
			continue
		}
		out[key] = Confidence(meta)
	}
	return out
}
