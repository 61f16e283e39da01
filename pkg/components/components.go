// Package components implements the exploration components for each column
// type and the registry that selects them.
package components

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/explorer"
	"github.com/sahithikokkula/explorer/pkg/queries"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

// Config holds the tunables of the components.
type Config struct {
	// ValuesPerBucket is the target number of values per histogram bucket.
	ValuesPerBucket int64 `yaml:"values_per_bucket"`
	// MaxSuppressedCountRatio is the share of suppressed count above which a
	// finer histogram loses to a coarser one. 1 disables the filter.
	MaxSuppressedCountRatio float64 `yaml:"max_suppressed_count_ratio"`
	// SampleCount is the number of synthetic samples generated.
	SampleCount int `yaml:"sample_count"`
	// TopValues limits the distinct values reported.
	TopValues int `yaml:"top_values"`
	// CategoricalSuppressedRatio is the largest suppressed count ratio at which
	// a column still counts as categorical.
	CategoricalSuppressedRatio float64 `yaml:"categorical_suppressed_ratio"`
	// EmailRatio is the share of values that must look like addresses.
	EmailRatio float64 `yaml:"email_ratio"`
	// Confidence is the level of reported confidence intervals.
	Confidence float64 `yaml:"confidence"`
}

func DefaultConfig() Config {
	return Config{
		ValuesPerBucket:            20,
		MaxSuppressedCountRatio:    stats.DefaultMaxSuppressedCountRatio,
		SampleCount:                20,
		TopValues:                  10,
		CategoricalSuppressedRatio: 0.1,
		EmailRatio:                 0.95,
		Confidence:                 0.95,
	}
}

// NewRegistry returns the component sets of every supported column type.
func NewRegistry(cfg Config) explorer.Registry {
	numeric := Numeric(cfg)
	temporal := Datetime(cfg)
	return explorer.Registry{
		Types: map[explorer.ColumnType]explorer.Builder{
			explorer.TypeInteger:   numeric,
			explorer.TypeReal:      numeric,
			explorer.TypeText:      Text(cfg),
			explorer.TypeBoolean:   Boolean(cfg),
			explorer.TypeTimestamp: temporal,
			explorer.TypeDate:      temporal,
			explorer.TypeDatetime:  temporal,
		},
		MultiColumn: Correlation(cfg),
		Common:      []explorer.Builder{ExplorationInfo},
	}
}

// key namespaces a provider by column so multi-column scopes do not collide.
func key(col explorer.Column, name string) string {
	return col.Name + "." + name
}

// RenderValue turns an anonymized value into its metric form: the value for
// Data, nil for Null and "*" for Suppressed.
func RenderValue[T any](v anon.Value[T], render func(T) any) any {
	var out any
	v.Match(
		func(d T) { out = render(d) },
		func() { out = nil },
		func() { out = anon.SuppressedToken },
	)
	return out
}

func identity[T any](v T) any { return v }

func one[T any](rows []T, what string) (T, error) {
	var zero T
	if len(rows) != 1 {
		return zero, fmt.Errorf("%s: expected 1 row, got %d", what, len(rows))
	}
	return rows[0], nil
}

// ValueCount is a rendered value with its count.
type ValueCount struct {
	Value any     `json:"value"`
	Count int64   `json:"count"`
	Noise float64 `json:"count_noise"`
}

// distinctValues is the shared provider of a column's distinct-value table.
func distinctValues(s *explorer.Scope, col explorer.Column) *explorer.Provider[[]queries.ValueWithCount[json.RawMessage]] {
	return explorer.Provide(s, key(col, "distinct_values"),
		func(ctx context.Context, ec *explorer.ExplorerContext) ([]queries.ValueWithCount[json.RawMessage], error) {
			return explorer.Exec(ctx, ec, queries.DistinctValues[json.RawMessage]{
				Table:  ec.Table,
				Column: col.Name,
				Parse:  anon.ParseRaw,
			})
		})
}

func simpleStats[T any](s *explorer.Scope, col explorer.Column, parse anon.Parser[T]) *explorer.Provider[queries.SimpleStatsResult[T]] {
	return explorer.Provide(s, key(col, "simple_stats"),
		func(ctx context.Context, ec *explorer.ExplorerContext) (queries.SimpleStatsResult[T], error) {
			rows, err := explorer.Exec(ctx, ec, queries.SimpleStats[T]{Table: ec.Table, Column: col.Name, Parse: parse})
			if err != nil {
				return queries.SimpleStatsResult[T]{}, err
			}
			return one(rows, "simple stats")
		})
}
