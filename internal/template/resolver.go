// Package template resolves template objects into concrete records.
// A template maps field names to literals, references to other fields,
// or functions computed from the partially resolved record. Function
// fields may declare dependencies on other fields; the resolver orders
// evaluation with a topological sort and rejects cycles.
package template

import (
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/mbleigh/genthetic/internal/pipeline"
)

// Func computes a field value from the partially resolved record.
// Fields the function reads must be declared via Field.DependsOn when
// they are themselves template fields.
type Func func(item pipeline.Record, rc *pipeline.RunContext) (any, error)

// Field is a computed template field with declared dependencies on
// other template fields. Declared dependencies are resolved first.
type Field struct {
	Fn        Func
	DependsOn []string
}

// Ref copies the value of another field (template or input) verbatim.
type Ref string

// Object is a template: field name to literal, Ref, Func, or Field.
type Object map[string]any

// Resolve evaluates the template against an input item and run context,
// returning a record containing the input fields plus every resolved
// template field. The input item is not mutated. Resolve holds no
// shared state; it is safe to call concurrently with distinct records.
func Resolve(obj Object, item pipeline.Record, rc *pipeline.RunContext) (pipeline.Record, error) {
	out := make(pipeline.Record, len(item)+len(obj))
	for k, v := range item {
		out[k] = v
	}

	order, err := resolveOrder(obj)
	if err != nil {
		return nil, err
	}

	for _, name := range order {
		switch v := obj[name].(type) {
		case Ref:
			val, ok := out[string(v)]
			if !ok {
				return nil, fmt.Errorf("template: field %q references unknown field %q", name, string(v))
			}
			out[name] = val
		case Field:
			if v.Fn == nil {
				return nil, fmt.Errorf("template: field %q has no function", name)
			}
			val, err := v.Fn(out, rc)
			if err != nil {
				return nil, fmt.Errorf("template: field %q: %w", name, err)
			}
			out[name] = val
		case Func:
			val, err := v(out, rc)
			if err != nil {
				return nil, fmt.Errorf("template: field %q: %w", name, err)
			}
			out[name] = val
		case func(item pipeline.Record, rc *pipeline.RunContext) (any, error):
			val, err := v(out, rc)
			if err != nil {
				return nil, fmt.Errorf("template: field %q: %w", name, err)
			}
			out[name] = val
		default:
			out[name] = v
		}
	}

	return out, nil
}

// resolveOrder returns template field names in dependency order.
// Dependencies on fields outside the template (input item fields) are
// already satisfied and produce no edge.
func resolveOrder(obj Object) ([]string, error) {
	var edges []toposort.Edge
	for name, value := range obj {
		deps := fieldDeps(value)
		inTemplate := deps[:0]
		for _, dep := range deps {
			if _, ok := obj[dep]; ok {
				inTemplate = append(inTemplate, dep)
			}
		}
		if len(inTemplate) == 0 {
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		for _, dep := range inTemplate {
			// Edge (dep, name) means dep resolves before name.
			edges = append(edges, toposort.Edge{dep, name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("template: dependency cycle: %w", err)
	}

	order := make([]string, 0, len(obj))
	for _, name := range sorted {
		if name != nil {
			order = append(order, name.(string))
		}
	}
	if len(order) != len(obj) {
		return nil, fmt.Errorf("template: resolution order lost %d fields", len(obj)-len(order))
	}
	return order, nil
}

// fieldDeps extracts a template value's declared dependencies.
func fieldDeps(value any) []string {
	switch v := value.(type) {
	case Ref:
		return []string{string(v)}
	case Field:
		return append([]string(nil), v.DependsOn...)
	default:
		return nil
	}
}
