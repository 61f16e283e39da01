package components

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/estimator"
	"github.com/sahithikokkula/explorer/pkg/explorer"
	"github.com/sahithikokkula/explorer/pkg/queries"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

// Info describes what is being explored.
type Info struct {
	DataSource string            `json:"data_source"`
	Table      string            `json:"table"`
	Columns    []explorer.Column `json:"columns"`
}

// ExplorationInfo publishes the exploration_info metric. It runs in every
// exploration.
func ExplorationInfo(s *explorer.Scope) []explorer.Publisher {
	ec := s.Context()
	return []explorer.Publisher{{
		Name: "exploration_info",
		Publish: func(context.Context) ([]explorer.Metric, error) {
			return []explorer.Metric{{Name: "exploration_info", Value: Info{
				DataSource: ec.DataSource,
				Table:      ec.Table,
				Columns:    ec.Columns,
			}}}, nil
		},
	}}
}

// distinctPublisher reports the distinct-value table of a column.
func distinctPublisher(cfg Config, s *explorer.Scope, col explorer.Column, optional bool) explorer.Publisher {
	values := distinctValues(s, col)
	return explorer.Publisher{
		Name:     "distinct",
		Optional: optional,
		Publish: func(ctx context.Context) ([]explorer.Metric, error) {
			rows, err := values.Result(ctx)
			if err != nil {
				return nil, err
			}
			vc := stats.ComputeValueCounts(rows)
			top := topValues(rows, cfg.TopValues)
			return []explorer.Metric{
				{Name: "distinct.is_categorical", Value: vc.TotalCount > 0 && vc.SuppressedCountRatio() <= cfg.CategoricalSuppressedRatio},
				{Name: "distinct.values", Value: top},
				{Name: "distinct.distinct_values", Value: vc.NonSuppressedRows() - vc.NullRows},
				{Name: "distinct.null_count", Value: vc.NullCount},
				{Name: "distinct.suppressed_count", Value: vc.SuppressedCount},
				{Name: "distinct.total_count", Value: vc.TotalCount},
			}, nil
		},
	}
}

// topValues returns the n most frequent non-suppressed values, the most
// frequent first. NULL is reported like any other value.
func topValues(rows []queries.ValueWithCount[json.RawMessage], n int) []ValueCount {
	out := make([]ValueCount, 0, len(rows))
	for _, r := range rows {
		if r.IsSuppressed() {
			continue
		}
		out = append(out, ValueCount{
			Value: RenderValue(r.Value, identity[json.RawMessage]),
			Count: r.Count.Count,
			Noise: r.Count.Noise(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// statsPublisher reports the extremes and row count of a column.
func statsPublisher[T any](cfg Config, s *explorer.Scope, col explorer.Column, parse anon.Parser[T], render func(T) any) explorer.Publisher {
	simple := simpleStats(s, col, parse)
	return explorer.Publisher{
		Name: "stats",
		Publish: func(ctx context.Context) ([]explorer.Metric, error) {
			st, err := simple.Result(ctx)
			if err != nil {
				return nil, err
			}
			return []explorer.Metric{
				{Name: "stats.min", Value: RenderValue(st.Min, render)},
				{Name: "stats.max", Value: RenderValue(st.Max, render)},
				{Name: "stats.count", Value: st.Count},
				{Name: "stats.count_ci", Value: estimator.CountCI(st.Count, cfg.Confidence)},
			}, nil
		},
	}
}

// Boolean explores boolean columns through their distinct values.
func Boolean(cfg Config) explorer.Builder {
	return func(s *explorer.Scope) []explorer.Publisher {
		return []explorer.Publisher{distinctPublisher(cfg, s, s.Context().Column(), false)}
	}
}
