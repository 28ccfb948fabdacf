// Package schema loads dataset descriptors: the fields a synthetic
// dataset should contain plus free-form generation instructions. A
// descriptor is enough for the CLI to assemble a generation pipeline
// without writing any Go code.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Field types accepted in a descriptor.
var validTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
}

// Field describes one record field the generator should produce.
type Field struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	Example     any    `yaml:"example,omitempty"`
}

// Schema is a dataset descriptor.
type Schema struct {
	Name         string  `yaml:"name"`
	BatchSize    int     `yaml:"batchSize,omitempty"`
	Instructions string  `yaml:"instructions,omitempty"`
	Fields       []Field `yaml:"fields"`
}

// Load reads and validates a descriptor from a YAML file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML descriptor.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the descriptor for structural problems. Missing field
// types default to "string".
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema: name is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q: at least one field is required", s.Name)
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("schema %q: batchSize must be non-negative", s.Name)
	}

	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("schema %q: field %d has no name", s.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %q: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true

		if f.Type == "" {
			f.Type = "string"
		}
		if !validTypes[f.Type] {
			return fmt.Errorf("schema %q: field %q has unknown type %q", s.Name, f.Name, f.Type)
		}
	}
	return nil
}

// FieldNames returns the field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
