package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name              string
		globalJSON        string
		projectJSON       string
		expectConcurrency int
		expectEndpoint    string
		expectOutput      string
		expectError       bool
	}{
		{
			name:              "No config files - returns defaults",
			expectConcurrency: 5,
			expectEndpoint:    "http://localhost:8080/generate",
			expectOutput:      "genthetic-output.json",
		},
		{
			name:              "Global only - overrides concurrency, keeps rest",
			globalJSON:        `{"generator": {"concurrency": 10}}`,
			expectConcurrency: 10,
			expectEndpoint:    "http://localhost:8080/generate",
			expectOutput:      "genthetic-output.json",
		},
		{
			name:              "Project only - overrides endpoint",
			projectJSON:       `{"service": {"endpoint": "https://gen.internal/v1"}}`,
			expectConcurrency: 5,
			expectEndpoint:    "https://gen.internal/v1",
			expectOutput:      "genthetic-output.json",
		},
		{
			name:              "Both - project wins over global",
			globalJSON:        `{"generator": {"concurrency": 10}, "output": {"path": "global.json"}}`,
			projectJSON:       `{"output": {"path": "project.json"}}`,
			expectConcurrency: 10,
			expectEndpoint:    "http://localhost:8080/generate",
			expectOutput:      "project.json",
		},
		{
			name:        "Malformed JSON - returns error",
			globalJSON:  `{"generator": {`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			var globalPath, projectPath string
			if tt.globalJSON != "" {
				globalPath = writeConfig(t, tmpDir, "global.json", tt.globalJSON)
			}
			if tt.projectJSON != "" {
				projectPath = writeConfig(t, tmpDir, "project.json", tt.projectJSON)
			}

			cfg, err := Load(globalPath, projectPath)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if cfg.Generator.Concurrency != tt.expectConcurrency {
				t.Errorf("Expected concurrency %d, got %d", tt.expectConcurrency, cfg.Generator.Concurrency)
			}
			if cfg.Service.Endpoint != tt.expectEndpoint {
				t.Errorf("Expected endpoint %q, got %q", tt.expectEndpoint, cfg.Service.Endpoint)
			}
			if cfg.Output.Path != tt.expectOutput {
				t.Errorf("Expected output path %q, got %q", tt.expectOutput, cfg.Output.Path)
			}
		})
	}
}

func TestLoadMissingFilesAreNotErrors(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Generator.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Generator.MaxRetries)
	}
}

func TestLoadZeroFieldsDoNotClobberDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	// Explicit sections with omitted fields must leave defaults intact.
	path := writeConfig(t, tmpDir, "partial.json", `{"service": {"model": "large-v2"}, "generator": {}}`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Service.Model != "large-v2" {
		t.Errorf("Expected model large-v2, got %q", cfg.Service.Model)
	}
	if cfg.Service.TimeoutSeconds != 60 {
		t.Errorf("Expected default timeout 60, got %d", cfg.Service.TimeoutSeconds)
	}
	if cfg.Generator.Concurrency != 5 {
		t.Errorf("Expected default concurrency 5, got %d", cfg.Generator.Concurrency)
	}
}
