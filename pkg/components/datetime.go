package components

import (
	"context"
	"fmt"
	"time"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/explorer"
	"github.com/sahithikokkula/explorer/pkg/queries"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

// unitWidth approximates the span of one bucket of each unit.
var unitWidth = map[stats.TimeUnit]time.Duration{
	stats.Year:    365 * 24 * time.Hour,
	stats.Quarter: 91 * 24 * time.Hour,
	stats.Month:   30 * 24 * time.Hour,
	stats.Day:     24 * time.Hour,
	stats.Hour:    time.Hour,
	stats.Minute:  time.Minute,
	stats.Second:  time.Second,
}

// DateBucket is one rendered bucket of a time unit.
type DateBucket struct {
	Value any     `json:"value"`
	Count int64   `json:"count"`
	Noise float64 `json:"count_noise"`
}

// DateBuckets are the rendered buckets of one unit.
type DateBuckets struct {
	Unit        stats.TimeUnit    `json:"unit"`
	Buckets     []DateBucket      `json:"buckets"`
	ValueCounts stats.ValueCounts `json:"value_counts"`
}

func renderBuckets[T any](u stats.UnitBuckets[T], render func(T) any) DateBuckets {
	out := DateBuckets{Unit: u.Unit, ValueCounts: u.ValueCounts, Buckets: make([]DateBucket, len(u.Buckets))}
	for i, b := range u.Buckets {
		out.Buckets[i] = DateBucket{Value: RenderValue(b.Value, render), Count: b.Count, Noise: b.Noise}
	}
	return out
}

func timeRenderer(t explorer.ColumnType) func(time.Time) any {
	layout := time.RFC3339
	if t == explorer.TypeDate {
		layout = time.DateOnly
	}
	return func(v time.Time) any { return v.UTC().Format(layout) }
}

func linearUnits(t explorer.ColumnType) []stats.TimeUnit {
	if t == explorer.TypeDate {
		return stats.DateUnits
	}
	return stats.DatetimeUnits
}

func cyclicalUnits(t explorer.ColumnType) []stats.TimeUnit {
	if t == explorer.TypeDate {
		return stats.CyclicalDateUnits
	}
	return stats.CyclicalUnits
}

func linearBuckets(s *explorer.Scope, col explorer.Column) *explorer.Provider[[]stats.UnitBuckets[time.Time]] {
	return explorer.Provide(s, key(col, "dates_linear"),
		func(ctx context.Context, ec *explorer.ExplorerContext) ([]stats.UnitBuckets[time.Time], error) {
			units := linearUnits(col.Type)
			rows, err := explorer.Exec(ctx, ec, queries.LinearTimeBuckets{Table: ec.Table, Column: col.Name, Units: units})
			if err != nil {
				return nil, err
			}
			all, err := stats.GroupByUnit(units, rows)
			if err != nil {
				return nil, err
			}
			return stats.SelectLinearUnits(all), nil
		})
}

// Datetime explores timestamp, date and datetime columns.
func Datetime(cfg Config) explorer.Builder {
	return func(s *explorer.Scope) []explorer.Publisher {
		col := s.Context().Column()
		render := timeRenderer(col.Type)
		linear := linearBuckets(s, col)
		cyclical := explorer.Provide(s, key(col, "dates_cyclical"),
			func(ctx context.Context, ec *explorer.ExplorerContext) ([]stats.UnitBuckets[int64], error) {
				lin, err := linear.Result(ctx)
				if err != nil {
					return nil, err
				}
				units := cyclicalUnits(col.Type)
				rows, err := explorer.Exec(ctx, ec, queries.CyclicalTimeBuckets{Table: ec.Table, Column: col.Name, Units: units})
				if err != nil {
					return nil, err
				}
				all, err := stats.GroupByUnit(units, rows)
				if err != nil {
					return nil, err
				}
				return stats.SelectCyclicalUnits(all, lin), nil
			})

		return []explorer.Publisher{
			statsPublisher(cfg, s, col, anon.ParseTime, render),
			{
				Name: "dates_linear",
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					units, err := linear.Result(ctx)
					if err != nil {
						return nil, err
					}
					ms := make([]explorer.Metric, len(units))
					for i, u := range units {
						ms[i] = explorer.Metric{Name: "dates_linear." + string(u.Unit), Value: renderBuckets(u, render)}
					}
					return ms, nil
				},
			},
			{
				Name:     "dates_cyclical",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					units, err := cyclical.Result(ctx)
					if err != nil {
						return nil, err
					}
					ms := make([]explorer.Metric, len(units))
					for i, u := range units {
						ms[i] = explorer.Metric{Name: "dates_cyclical." + string(u.Unit), Value: renderBuckets(u, identity[int64])}
					}
					return ms, nil
				},
			},
			{
				Name:     "sample_values",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					units, err := linear.Result(ctx)
					if err != nil {
						return nil, err
					}
					if len(units) == 0 {
						return nil, &stats.InsufficientDataError{Statistic: "date samples", Reason: "no linear buckets"}
					}
					finest := units[len(units)-1]
					d, err := dateDistribution(finest)
					if err != nil {
						return nil, err
					}
					draws := d.Generate(s.Rand(key(col, "sample_values")), cfg.SampleCount)
					out := make([]any, len(draws))
					for i, v := range draws {
						out[i] = render(time.Unix(int64(v), 0))
					}
					return []explorer.Metric{{Name: "sample_values", Value: out}}, nil
				},
			},
		}
	}
}

// dateDistribution spreads each bucket's count over the span of its unit, in
// Unix seconds.
func dateDistribution(u stats.UnitBuckets[time.Time]) (*stats.Distribution, error) {
	width, ok := unitWidth[u.Unit]
	if !ok {
		return nil, fmt.Errorf("no width for time unit %q", u.Unit)
	}
	samples := make([]stats.WeightedSample, 0, len(u.Buckets))
	for _, b := range u.Buckets {
		t, ok := b.Value.Get()
		if !ok {
			continue
		}
		samples = append(samples, stats.WeightedSample{
			Value:  float64(t.Unix()),
			Weight: b.Count,
			Width:  width.Seconds(),
		})
	}
	return stats.NewDistribution(samples)
}
