package explorer

import (
	"context"
	"fmt"
)

// PublishFunc computes the metrics of one publisher.
type PublishFunc func(ctx context.Context) ([]Metric, error)

// Publisher is a component that emits named metrics. A failed optional
// publisher emits nothing; a failed mandatory publisher fails the run.
type Publisher struct {
	Name     string
	Optional bool
	Publish  PublishFunc
}

// Builder registers the providers and returns the publishers of one
// component set.
type Builder func(s *Scope) []Publisher

// UnsupportedColumnTypeError is returned when no component set explores a
// column's type.
type UnsupportedColumnTypeError struct {
	Column string
	Type   ColumnType
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("column %q has unsupported type %q", e.Column, e.Type)
}

// Registry selects component sets by column type.
type Registry struct {
	// Types holds the single-column component set of each supported type.
	Types map[ColumnType]Builder
	// MultiColumn explores several columns together.
	MultiColumn Builder
	// Common runs in every exploration.
	Common []Builder
}

// Resolve returns the combined builder for the context's columns.
func (r Registry) Resolve(ec *ExplorerContext) (Builder, error) {
	if len(ec.Columns) == 0 {
		return nil, fmt.Errorf("no columns to explore")
	}
	for _, c := range ec.Columns {
		if _, ok := r.Types[c.Type]; !ok {
			return nil, &UnsupportedColumnTypeError{Column: c.Name, Type: c.Type}
		}
	}
	var specific Builder
	if len(ec.Columns) == 1 {
		specific = r.Types[ec.Columns[0].Type]
	} else {
		if r.MultiColumn == nil {
			return nil, fmt.Errorf("multi-column exploration is not supported")
		}
		specific = r.MultiColumn
	}
	builders := append(append([]Builder(nil), r.Common...), specific)
	return func(s *Scope) []Publisher {
		var out []Publisher
		for _, b := range builders {
			out = append(out, b(s)...)
		}
		return out
	}, nil
}
