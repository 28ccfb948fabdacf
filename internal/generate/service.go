// Package generate bridges the external generation service into
// pipeline stages. The service itself is a narrow collaborator: given a
// count, a dataset schema, and optional instructions, hints, and prior
// results, it must return exactly as many records as requested.
package generate

import (
	"context"
	"errors"

	"github.com/mbleigh/genthetic/internal/pipeline"
	"github.com/mbleigh/genthetic/internal/schema"
)

// ErrCountMismatch is the hard error for a service response whose
// record count does not match the request.
var ErrCountMismatch = errors.New("generation service returned wrong record count")

// Request describes one generation call.
type Request struct {
	Count        int
	Schema       *schema.Schema
	Instructions string

	// Hints carries per-record steering metadata, aligned with the
	// batch; entries may be nil.
	Hints []any

	// Prior is the flattened cached output of earlier batches, when a
	// caching stage precedes this one.
	Prior pipeline.Batch
}

// Service produces synthetic records. Implementations must return
// exactly Count records; the engine does not correct mismatches.
type Service interface {
	Generate(ctx context.Context, req Request) (pipeline.Batch, error)
}
