// Package sink persists accumulated pipeline results. Writes happen
// after every completed batch and at run completion, always with the
// full hint-stripped result set, so a crashed run leaves behind the
// latest complete snapshot.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbleigh/genthetic/internal/pipeline"
)

// JSONFile writes the result set as indented JSON to a fixed path.
// Each write replaces the previous snapshot atomically (temp file +
// rename) so readers never observe a partial file.
type JSONFile struct {
	path string
}

// NewJSONFile creates a JSON file sink. Parent directories are created
// on the first write.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the sink's target path.
func (s *JSONFile) Path() string { return s.path }

// Write implements pipeline.Sink.
func (s *JSONFile) Write(ctx context.Context, records pipeline.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Discard is a no-op sink for runs without a configured output path.
type Discard struct{}

// Write implements pipeline.Sink.
func (Discard) Write(ctx context.Context, records pipeline.Batch) error { return nil }
