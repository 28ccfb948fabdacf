package generate

import (
	"context"
	"fmt"

	"github.com/mbleigh/genthetic/internal/pipeline"
	"github.com/mbleigh/genthetic/internal/schema"
	"github.com/mbleigh/genthetic/internal/template"
)

// Stage returns a pipeline stage that generates records for every item
// in the batch. Generated fields are merged into each record without
// overwriting fields set by earlier stages; record hints are forwarded
// to the service as steering metadata.
func Stage(svc Service, s *schema.Schema, instructions string) pipeline.Stage {
	return pipeline.Stage{
		Name:      "generate:" + s.Name,
		Transform: generateTransform(svc, s, instructions),
	}
}

// CachedStage is Stage with output caching enabled, making every
// generated record visible to later batches via RunContext.Prior (and
// forcing the run into serial batch execution).
func CachedStage(svc Service, s *schema.Schema, instructions string) pipeline.Stage {
	return pipeline.Stage{
		Name:        "generate:" + s.Name,
		Transform:   generateTransform(svc, s, instructions),
		CacheOutput: true,
	}
}

func generateTransform(svc Service, s *schema.Schema, instructions string) pipeline.TransformFunc {
	return func(ctx context.Context, batch pipeline.Batch, rc *pipeline.RunContext) (pipeline.Batch, error) {
		hints := make([]any, len(batch))
		hasHints := false
		for i, rec := range batch {
			if h, ok := pipeline.Hint(rec); ok {
				hints[i] = h
				hasHints = true
			}
		}
		if !hasHints {
			hints = nil
		}

		generated, err := svc.Generate(ctx, Request{
			Count:        len(batch),
			Schema:       s,
			Instructions: instructions,
			Hints:        hints,
			Prior:        rc.Prior,
		})
		if err != nil {
			return nil, err
		}
		if len(generated) != len(batch) {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(generated), len(batch))
		}

		out := make(pipeline.Batch, len(batch))
		for i, rec := range batch {
			merged := make(pipeline.Record, len(rec)+len(generated[i]))
			for k, v := range generated[i] {
				merged[k] = v
			}
			// Fields set by earlier stages win over generated values.
			for k, v := range rec {
				merged[k] = v
			}
			out[i] = merged
		}
		return out, nil
	}
}

// FillStage returns a pipeline stage that resolves a template object
// against every record in the batch, turning function-valued template
// fields into concrete values.
func FillStage(name string, tmpl template.Object) pipeline.Stage {
	return pipeline.Stage{
		Name: name,
		Transform: func(ctx context.Context, batch pipeline.Batch, rc *pipeline.RunContext) (pipeline.Batch, error) {
			out := make(pipeline.Batch, len(batch))
			for i, rec := range batch {
				resolved, err := template.Resolve(tmpl, rec, rc)
				if err != nil {
					return nil, fmt.Errorf("record %d: %w", i, err)
				}
				out[i] = resolved
			}
			return out, nil
		},
	}
}
