package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// configSchema describes stencil.config.yaml and .stencil.yaml documents.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "template": {"type": "string"},
    "project": {"type": "string", "minLength": 1},
    "unsafe": {"type": "boolean"},
    "checks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "check"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "dir": {"type": "string"},
          "check": {"type": "array", "minItems": 1, "items": {"type": "string"}},
          "fix": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "extract": {
      "type": "object",
      "properties": {
        "base_url": {"type": "string"},
        "api_key": {"type": "string"},
        "project_id": {"type": "string"},
        "agent_name": {"type": "string"},
        "collection": {"type": "string"},
        "schema": {"type": "string"},
        "attempts": {"type": "integer", "minimum": 1},
        "delay": {"type": "string"},
        "timeout": {"type": "string"}
      }
    },
    "schemas": {
      "type": "object",
      "properties": {
        "output": {"type": "string"}
      }
    }
  }
}`

// ValidateConfig validates a YAML (or JSON) config document against the config schema.
func ValidateConfig(configData []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(configData, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %v", err)
	}
	if doc == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %v", err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}
