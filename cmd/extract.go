/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/stencil/internal/extract"
	"github.com/fulmenhq/stencil/internal/ops"
	"github.com/fulmenhq/stencil/pkg/config"
	"github.com/fulmenhq/stencil/pkg/scaffold"
	"github.com/fulmenhq/stencil/pkg/schemas"
)

func newExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run the document extraction workflow",
		Long: `Extract downloads an uploaded file, runs the extraction agent on it, validates the
result against the configured schema and records it for review.

Credentials come from the extract section of the configuration or from
LLAMA_CLOUD_API_KEY and LLAMA_DEPLOY_PROJECT_ID.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run <file-id>",
		Short: "Process one uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "metadata",
		Short: "Print the schema and collection the review UI needs",
		Args:  cobra.NoArgs,
		RunE:  runExtractMetadata,
	})
	return cmd
}

func init() {
	mustRegister("extract", ops.GroupWorkflow, ops.CategoryIntegration, newExtractCommand())
}

func newWorkflow(cfg *config.Config, observer chan<- extract.Toast) (*extract.Workflow, error) {
	doc, err := schemas.Map(cfg.Extract.Schema)
	if err != nil {
		return nil, &scaffold.ConfigurationError{Message: "invalid extract.schema", Wrapped: err}
	}
	transport := extract.NewTransport(cfg.Extract.BaseURL, cfg.Extract.APIKey, cfg.Extract.ProjectID, cfg.Extract.Timeout)
	clients := extract.NewHTTPClients(transport, cfg.Extract.AgentName, cfg.Extract.Collection)
	return extract.New(clients, doc, extract.Options{
		Collection:  cfg.Extract.Collection,
		SchemaName:  cfg.Extract.Schema,
		MaxAttempts: cfg.Extract.Attempts,
		Delay:       cfg.Extract.Delay,
		Observer:    observer,
	})
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Extract.APIKey == "" {
		return scaffold.Configf("no API key configured, set LLAMA_CLOUD_API_KEY or extract.api_key")
	}

	toasts := make(chan extract.Toast)
	workflow, err := newWorkflow(cfg, toasts)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for t := range toasts {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", t.Level, t.Message)
		}
	}()
	result, err := workflow.Run(cmd.Context(), args[0])
	close(toasts)
	<-done
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runExtractMetadata(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workflow, err := newWorkflow(cfg, nil)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(workflow.Metadata(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
