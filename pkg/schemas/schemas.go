// Package schemas holds the Go types shared with the project UI and exports them as
// JSON Schema documents (and, optionally, TypeScript declarations).
package schemas

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/fulmenhq/stencil/pkg/logger"
	"github.com/fulmenhq/stencil/pkg/scaffold"
	"github.com/fulmenhq/stencil/pkg/tools"
)

// Entry is one exported type.
type Entry struct {
	Name string
	// Value is a zero value of the type to reflect.
	Value interface{}
}

var registry = []Entry{
	{Name: "ExtractionSchema", Value: ExtractionSchema{}},
	{Name: "InvoiceSchema", Value: InvoiceSchema{}},
	{Name: "LineItem", Value: LineItem{}},
}

// Entries returns the registered types sorted by name.
func Entries() []Entry {
	out := append([]Entry(nil), registry...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the registered type with the given name.
func Lookup(name string) (Entry, bool) {
	for _, e := range registry {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Names lists the registered type names, sorted.
func Names() []string {
	var names []string
	for _, e := range Entries() {
		names = append(names, e.Name)
	}
	return names
}

func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
		Anonymous:      true,
	}
}

// Document returns the indented JSON Schema for a registered type, with every
// reference inlined.
func Document(name string) ([]byte, error) {
	entry, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	s := reflector().Reflect(entry.Value)
	s.Title = entry.Name
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema %s: %w", name, err)
	}
	return data, nil
}

// Map returns the JSON Schema for a registered type as a generic document.
func Map(name string) (map[string]interface{}, error) {
	data, err := Document(name)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema %s: %w", name, err)
	}
	return doc, nil
}

// Export removes dir, recreates it and writes <Name>.json for every registered type.
// It returns the written paths in name order.
func Export(dir string) ([]string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	var written []string
	for _, entry := range Entries() {
		data, err := Document(entry.Name)
		if err != nil {
			return nil, err
		}
		target := filepath.Join(dir, entry.Name+".json")
		if err := os.WriteFile(target, append(data, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", target, err)
		}
		logger.Info(fmt.Sprintf("Exported %s to %s.json", entry.Name, entry.Name))
		written = append(written, target)
	}
	return written, nil
}

// GenerateTypeScript turns the exported JSON documents in dir into TypeScript
// declarations next to them, then formats the directory.
func GenerateTypeScript(ctx context.Context, executor tools.ToolExecutor, dir string) error {
	if executor == nil {
		executor = tools.NewLocalExecutor()
	}
	commands := [][]string{
		{"npx", "-y", "json-schema-to-typescript@15.0.4", "-i", filepath.Join(dir, "*.json"), "-o", dir},
		{"npx", "-y", "prettier@3.5.1", "--write", dir},
	}
	for _, argv := range commands {
		result, err := executor.Execute(ctx, tools.ExecuteOptions{Tool: argv[0], Args: argv[1:]})
		if err != nil {
			return &scaffold.ExternalToolError{Command: argv, ExitCode: -1, Wrapped: err}
		}
		if result.ExitCode != 0 {
			return &scaffold.ExternalToolError{Command: argv, ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
		}
	}
	return nil
}
