package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// ValidateDocument checks a raw configuration document against the
// configuration schema. Unlike ValidateConfig it sees the document before
// defaults are applied, so unknown keys and wrongly typed values are caught.
// format is "toml", "json" or "yaml".
func ValidateDocument(data []byte, format string) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	var doc map[string]any
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}

	// The validator expects the value shapes encoding/json produces.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(normalized, &instance); err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}
	if instance == nil {
		instance = map[string]any{}
	}

	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// ValidateFile reads path and runs ValidateDocument on it. A file with an
// unknown extension is treated as TOML.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	format := formatOf(path)
	if format == "" {
		format = "toml"
	}
	return ValidateDocument(data, format)
}
