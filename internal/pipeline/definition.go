package pipeline

import (
	"fmt"
)

// DefaultBatchSize is used when a definition is created without an
// explicit batch size.
const DefaultBatchSize = 10

// Definition is an ordered sequence of stages plus a default batch size
// and display name. A definition is built once, then used to launch any
// number of independent runs; the stage list freezes on the first run.
type Definition struct {
	name      string
	batchSize int
	stages    []Stage
	frozen    bool
}

// NewDefinition creates a pipeline definition. batchSize <= 0 selects
// DefaultBatchSize.
func NewDefinition(name string, batchSize int) *Definition {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Definition{name: name, batchSize: batchSize}
}

// Name returns the definition's display name.
func (d *Definition) Name() string { return d.name }

// BatchSize returns the definition's default batch size.
func (d *Definition) BatchSize() int { return d.batchSize }

// Stages returns a copy of the stage list.
func (d *Definition) Stages() []Stage {
	out := make([]Stage, len(d.stages))
	copy(out, d.stages)
	return out
}

// AddStage appends a fully specified stage. Adding a stage to a frozen
// definition is a programmer error and panics.
func (d *Definition) AddStage(s Stage) *Definition {
	if d.frozen {
		panic("pipeline: definition is frozen after its first run")
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("stage-%d", len(d.stages))
	}
	d.stages = append(d.stages, s)
	return d
}

// AddTransform appends a named transform stage.
func (d *Definition) AddTransform(name string, fn TransformFunc) *Definition {
	return d.AddStage(Stage{Name: name, Transform: fn})
}

// AddTransformFunc appends an unnamed transform stage. The stage is
// auto-named stage-N by its position.
func (d *Definition) AddTransformFunc(fn TransformFunc) *Definition {
	return d.AddStage(Stage{Transform: fn})
}

// AddCachingTransform appends a named transform stage whose output is
// cached for later batches. Any caching stage forces the run into
// serial batch execution.
func (d *Definition) AddCachingTransform(name string, fn TransformFunc) *Definition {
	return d.AddStage(Stage{Name: name, Transform: fn, CacheOutput: true})
}

// cachesOutput reports whether any stage has CacheOutput set.
func (d *Definition) cachesOutput() bool {
	for _, s := range d.stages {
		if s.CacheOutput {
			return true
		}
	}
	return false
}

// freeze marks the stage list immutable.
func (d *Definition) freeze() {
	d.frozen = true
}
