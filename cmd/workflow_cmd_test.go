package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/stencil/pkg/exitcode"
)

func TestLint_NoOp(t *testing.T) {
	root := newTemplateRoot(t)
	out, _, err := execRoot(t, []string{"lint", "python", "--template", root, "--no-op"})
	if err != nil {
		t.Fatalf("lint failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "✓ python checks passed") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestLint_MissingDirectory(t *testing.T) {
	root := newTemplateRoot(t)
	// The default javascript check runs in test-proj/ui, which this template does not produce.
	_, _, err := execRoot(t, []string{"lint", "javascript", "--template", root, "--no-op"})
	if exitCodeFor(err) != exitcode.ConfigError {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestLint_UnknownCheck(t *testing.T) {
	root := newTemplateRoot(t)
	_, _, err := execRoot(t, []string{"lint", "rust", "--template", root, "--no-op"})
	if exitCodeFor(err) != exitcode.ConfigError {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSchemaExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schemas")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "Stale.json")
	if err := os.WriteFile(stale, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := execRoot(t, []string{"schema", "export", "--out", dir, "--typescript", "--no-op"})
	if err != nil {
		t.Fatalf("schema export failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Exported 3 schemas") {
		t.Errorf("unexpected output:\n%s", out)
	}
	for _, name := range []string{"ExtractionSchema", "InvoiceSchema", "LineItem"} {
		if _, err := os.Stat(filepath.Join(dir, name+".json")); err != nil {
			t.Errorf("expected %s.json: %v", name, err)
		}
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("export should wipe the output directory")
	}
}

func TestSchemaShow(t *testing.T) {
	out, _, err := execRoot(t, []string{"schema", "show", "ExtractionSchema"})
	if err != nil {
		t.Fatalf("schema show failed: %v", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("schema output is not valid JSON: %v", err)
	}
	if doc["title"] != "ExtractionSchema" {
		t.Errorf("title = %v", doc["title"])
	}

	if _, _, err := execRoot(t, []string{"schema", "show", "Nope"}); err == nil {
		t.Error("expected an error for an unknown schema")
	}
}

func TestExtractMetadata(t *testing.T) {
	out, _, err := execRoot(t, []string{"extract", "metadata"})
	if err != nil {
		t.Fatalf("extract metadata failed: %v", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		t.Fatalf("metadata output is not valid JSON: %v\n%s", err, out)
	}
	if meta["extracted_data_collection"] != "extraction-review" {
		t.Errorf("collection = %v", meta["extracted_data_collection"])
	}
	if _, ok := meta["json_schema"].(map[string]interface{}); !ok {
		t.Errorf("expected json_schema object")
	}
}

func TestExtractRun_RequiresAPIKey(t *testing.T) {
	_, _, err := execRoot(t, []string{"extract", "run", "file-1"})
	if exitCodeFor(err) != exitcode.ConfigError {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestVersion_JSON(t *testing.T) {
	out, _, err := execRoot(t, []string{"version", "--json", "--extended"})
	if err != nil {
		t.Fatalf("version --json failed: %v\n%s", err, out)
	}
	var v map[string]interface{}
	if json.Unmarshal([]byte(out), &v) != nil {
		t.Fatalf("version output is not valid JSON: %s", out)
	}
	for _, key := range []string{"version", "goVersion", "platform", "gitCommit"} {
		if _, ok := v[key].(string); !ok {
			t.Errorf("expected %s field in JSON", key)
		}
	}
}

func TestVersion_Text(t *testing.T) {
	out, _, err := execRoot(t, []string{"version"})
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "stencil ") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
