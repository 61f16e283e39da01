package components

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/estimator"
	"github.com/sahithikokkula/explorer/pkg/explorer"
	"github.com/sahithikokkula/explorer/pkg/queries"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

// bootstrapDraws and bootstrapResamples size the mean confidence interval.
const (
	bootstrapDraws     = 1000
	bootstrapResamples = 200
)

// AvgEstimate is the estimated mean with its bootstrap interval.
type AvgEstimate struct {
	Value float64            `json:"value"`
	CI    estimator.CIResult `json:"ci"`
}

func renderDecimal(d decimal.Decimal) any { return d.InexactFloat64() }

func histograms(cfg Config, s *explorer.Scope, col explorer.Column) *explorer.Provider[[]stats.Histogram] {
	simple := simpleStats(s, col, anon.ParseDecimal)
	return explorer.Provide(s, key(col, "histograms"),
		func(ctx context.Context, ec *explorer.ExplorerContext) ([]stats.Histogram, error) {
			st, err := simple.Result(ctx)
			if err != nil {
				return nil, err
			}
			lo, okLo := st.Min.Get()
			hi, okHi := st.Max.Get()
			if !okLo || !okHi {
				return nil, &stats.InsufficientDataError{Statistic: "histogram", Reason: "column bounds are not available"}
			}
			sizes, err := stats.EstimateBucketResolutions(st.Count.Count, lo.InexactFloat64(), hi.InexactFloat64(),
				cfg.ValuesPerBucket, col.Type == explorer.TypeInteger)
			if err != nil {
				return nil, err
			}
			rows, err := explorer.Exec(ctx, ec, queries.BucketedHistogram{Table: ec.Table, Column: col.Name, BucketSizes: sizes})
			if err != nil {
				return nil, err
			}
			return stats.HistogramsFromRows(sizes, rows)
		})
}

func histogram(cfg Config, s *explorer.Scope, col explorer.Column) *explorer.Provider[stats.Histogram] {
	candidates := histograms(cfg, s, col)
	return explorer.Provide(s, key(col, "histogram"),
		func(ctx context.Context, _ *explorer.ExplorerContext) (stats.Histogram, error) {
			hs, err := candidates.Result(ctx)
			if err != nil {
				return stats.Histogram{}, err
			}
			return stats.SelectHistogram(hs, cfg.MaxSuppressedCountRatio)
		})
}

func histogramDistribution(cfg Config, s *explorer.Scope, col explorer.Column) *explorer.Provider[*stats.Distribution] {
	hist := histogram(cfg, s, col)
	return explorer.Provide(s, key(col, "distribution"),
		func(ctx context.Context, _ *explorer.ExplorerContext) (*stats.Distribution, error) {
			h, err := hist.Result(ctx)
			if err != nil {
				return nil, err
			}
			return stats.DistributionFromHistogram(h)
		})
}

// Numeric explores integer and real columns.
func Numeric(cfg Config) explorer.Builder {
	return func(s *explorer.Scope) []explorer.Publisher {
		col := s.Context().Column()
		hist := histogram(cfg, s, col)
		dist := histogramDistribution(cfg, s, col)
		integer := col.Type == explorer.TypeInteger

		return []explorer.Publisher{
			statsPublisher(cfg, s, col, anon.ParseDecimal, renderDecimal),
			distinctPublisher(cfg, s, col, false),
			{
				Name:     "histogram",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					h, err := hist.Result(ctx)
					if err != nil {
						return nil, err
					}
					return []explorer.Metric{
						{Name: "histogram.bucket_size", Value: h.BucketSize},
						{Name: "histogram.buckets", Value: h.Buckets},
						{Name: "histogram.value_counts", Value: h.ValueCounts},
						{Name: "histogram.suppressed_ratio", Value: h.ValueCounts.SuppressedCountRatio()},
					}, nil
				},
			},
			{
				Name:     "quartile_estimates",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					h, err := hist.Result(ctx)
					if err != nil {
						return nil, err
					}
					q, err := stats.EstimateQuartiles(h)
					if err != nil {
						return nil, err
					}
					return []explorer.Metric{{Name: "quartile_estimates", Value: q}}, nil
				},
			},
			{
				Name:     "avg_estimate",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					h, err := hist.Result(ctx)
					if err != nil {
						return nil, err
					}
					mean, err := stats.EstimateMean(h)
					if err != nil {
						return nil, err
					}
					d, err := dist.Result(ctx)
					if err != nil {
						return nil, err
					}
					rng := s.Rand(key(col, "avg_estimate"))
					draws := d.Generate(rng, bootstrapDraws)
					ci := estimator.BootstrapCI(draws, estimator.Mean, bootstrapResamples, cfg.Confidence, rng)
					ci.Estimate = mean
					return []explorer.Metric{{Name: "avg_estimate", Value: AvgEstimate{Value: mean, CI: ci}}}, nil
				},
			},
			{
				Name:     "descriptive_stats",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					d, err := dist.Result(ctx)
					if err != nil {
						return nil, err
					}
					return []explorer.Metric{{Name: "descriptive_stats", Value: d.Summary()}}, nil
				},
			},
			{
				Name:     "sample_values",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					d, err := dist.Result(ctx)
					if err != nil {
						return nil, err
					}
					samples := d.Generate(s.Rand(key(col, "sample_values")), cfg.SampleCount)
					if integer {
						for i, v := range samples {
							samples[i] = math.Round(v)
						}
					}
					return []explorer.Metric{{Name: "sample_values", Value: samples}}, nil
				},
			},
		}
	}
}
