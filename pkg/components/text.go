package components

import (
	"context"
	"encoding/json"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/estimator"
	"github.com/sahithikokkula/explorer/pkg/explorer"
	"github.com/sahithikokkula/explorer/pkg/queries"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

// EmailCheck is the outcome of the address check of a text column.
type EmailCheck struct {
	IsEmail bool               `json:"is_email"`
	Ratio   estimator.CIResult `json:"ratio"`
}

// Text explores text columns. Length and address checks need the column to
// be usable in expressions, so they are skipped for isolating columns.
func Text(cfg Config) explorer.Builder {
	return func(s *explorer.Scope) []explorer.Publisher {
		col := s.Context().Column()
		pubs := []explorer.Publisher{
			distinctPublisher(cfg, s, col, false),
			textSamples(cfg, s, col),
		}
		if col.Isolating {
			return pubs
		}
		return append(pubs, textLength(s, col), emailCheck(cfg, s, col))
	}
}

func textLength(s *explorer.Scope, col explorer.Column) explorer.Publisher {
	lengths := explorer.Provide(s, key(col, "text_lengths"),
		func(ctx context.Context, ec *explorer.ExplorerContext) ([]queries.ValueWithCount[int64], error) {
			return explorer.Exec(ctx, ec, queries.TextLengths{Table: ec.Table, Column: col.Name})
		})
	return explorer.Publisher{
		Name:     "text.length",
		Optional: true,
		Publish: func(ctx context.Context) ([]explorer.Metric, error) {
			rows, err := lengths.Result(ctx)
			if err != nil {
				return nil, err
			}
			values := make([]ValueCount, 0, len(rows))
			samples := make([]stats.WeightedSample, 0, len(rows))
			for _, r := range rows {
				values = append(values, ValueCount{
					Value: RenderValue(r.Value, identity[int64]),
					Count: r.Count.Count,
					Noise: r.Count.Noise(),
				})
				if n, ok := r.Value.Get(); ok {
					samples = append(samples, stats.WeightedSample{Value: float64(n), Weight: r.Count.Count})
				}
			}
			ms := []explorer.Metric{
				{Name: "text.length.values", Value: values},
				{Name: "text.length.value_counts", Value: stats.ComputeValueCounts(rows)},
			}
			if d, err := stats.NewDistribution(samples); err == nil {
				ms = append(ms, explorer.Metric{Name: "text.length.summary", Value: d.Summary()})
			}
			return ms, nil
		},
	}
}

func emailCheck(cfg Config, s *explorer.Scope, col explorer.Column) explorer.Publisher {
	values := distinctValues(s, col)
	emails := explorer.Provide(s, key(col, "email_count"),
		func(ctx context.Context, ec *explorer.ExplorerContext) (anon.NoisyCount, error) {
			rows, err := explorer.Exec(ctx, ec, queries.EmailCount{Table: ec.Table, Column: col.Name})
			if err != nil {
				return anon.NoisyCount{}, err
			}
			return one(rows, "email count")
		})
	return explorer.Publisher{
		Name:     "text.is_email",
		Optional: true,
		Publish: func(ctx context.Context) ([]explorer.Metric, error) {
			rows, err := values.Result(ctx)
			if err != nil {
				return nil, err
			}
			matched, err := emails.Result(ctx)
			if err != nil {
				return nil, err
			}
			var whole anon.NoisyCount
			for _, r := range rows {
				if !r.IsNull() {
					whole = whole.Add(r.Count)
				}
			}
			ratio := estimator.RatioCI(matched, whole, cfg.Confidence)
			check := EmailCheck{IsEmail: whole.Count > 0 && ratio.Estimate >= cfg.EmailRatio, Ratio: ratio}
			return []explorer.Metric{{Name: "text.is_email", Value: check}}, nil
		},
	}
}

// textSamples draws values from the visible part of the distinct-value table,
// weighted by count.
func textSamples(cfg Config, s *explorer.Scope, col explorer.Column) explorer.Publisher {
	values := distinctValues(s, col)
	return explorer.Publisher{
		Name:     "sample_values",
		Optional: true,
		Publish: func(ctx context.Context) ([]explorer.Metric, error) {
			rows, err := values.Result(ctx)
			if err != nil {
				return nil, err
			}
			var visible []json.RawMessage
			var samples []stats.WeightedSample
			for _, r := range rows {
				v, ok := r.Value.Get()
				if !ok {
					continue
				}
				samples = append(samples, stats.WeightedSample{Value: float64(len(visible)), Weight: r.Count.Count})
				visible = append(visible, v)
			}
			d, err := stats.NewDistribution(samples)
			if err != nil {
				return nil, err
			}
			picks := d.Generate(s.Rand(key(col, "sample_values")), cfg.SampleCount)
			out := make([]json.RawMessage, len(picks))
			for i, p := range picks {
				out[i] = visible[int(p)]
			}
			return []explorer.Metric{{Name: "sample_values", Value: out}}, nil
		},
	}
}
