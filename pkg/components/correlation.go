package components

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/explorer"
	"github.com/sahithikokkula/explorer/pkg/queries"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

// ColumnCorrelation is the dependency estimate of one column combination.
type ColumnCorrelation struct {
	Columns           []string        `json:"columns"`
	CorrelationFactor float64         `json:"correlation_factor"`
	Count             anon.NoisyCount `json:"count"`
	Suppressed        anon.NoisyCount `json:"suppressed"`
}

// jointCounts holds one matrix per column combination, keyed by grouping id.
type jointCounts struct {
	columns  []string
	matrices map[int]*stats.JointProbabilityMatrix
	indices  map[int][]int
}

// projection picks how a column takes part in the multi-column query:
// numbers are bucketed at their coarsest resolution and datetimes truncated to
// the finest unit that survived linear bucketing.
func projection(cfg Config, s *explorer.Scope, col explorer.Column) func(ctx context.Context) (queries.Projection, error) {
	switch {
	case col.Type.IsNumeric():
		simple := simpleStats(s, col, anon.ParseDecimal)
		return func(ctx context.Context) (queries.Projection, error) {
			st, err := simple.Result(ctx)
			if err != nil {
				return queries.Projection{}, err
			}
			lo, okLo := st.Min.Get()
			hi, okHi := st.Max.Get()
			if !okLo || !okHi {
				return queries.ColumnProjection(col.Name), nil
			}
			sizes, err := stats.EstimateBucketResolutions(st.Count.Count, lo.InexactFloat64(), hi.InexactFloat64(),
				cfg.ValuesPerBucket, col.Type == explorer.TypeInteger)
			if err != nil {
				return queries.Projection{}, err
			}
			return queries.BucketProjection(col.Name, sizes[len(sizes)-1]), nil
		}
	case col.Type.IsTemporal():
		linear := linearBuckets(s, col)
		return func(ctx context.Context) (queries.Projection, error) {
			units, err := linear.Result(ctx)
			if err != nil {
				return queries.Projection{}, err
			}
			if len(units) == 0 {
				return queries.ColumnProjection(col.Name), nil
			}
			return queries.TruncProjection(col.Name, units[len(units)-1].Unit), nil
		}
	default:
		return func(context.Context) (queries.Projection, error) {
			return queries.ColumnProjection(col.Name), nil
		}
	}
}

func indexOf(values []anon.Value[json.RawMessage]) stats.Index {
	ix := make(stats.Index, len(values))
	for i, v := range values {
		ix[i] = string(v.Or(json.RawMessage("null")))
	}
	return ix
}

// Correlation explores the dependencies between several columns.
func Correlation(cfg Config) explorer.Builder {
	return func(s *explorer.Scope) []explorer.Publisher {
		cols := s.Context().Columns
		projections := make([]func(context.Context) (queries.Projection, error), len(cols))
		for i, c := range cols {
			projections[i] = projection(cfg, s, c)
		}
		joint := explorer.Provide(s, "correlation.joint_counts",
			func(ctx context.Context, ec *explorer.ExplorerContext) (*jointCounts, error) {
				q := queries.MultiColumnCounts{Table: ec.Table, Columns: make([]queries.Projection, len(cols))}
				for i, p := range projections {
					var err error
					if q.Columns[i], err = p(ctx); err != nil {
						return nil, err
					}
				}
				rows, err := explorer.Exec(ctx, ec, q)
				if err != nil {
					return nil, err
				}
				jc := &jointCounts{
					columns:  q.Labels(),
					matrices: make(map[int]*stats.JointProbabilityMatrix),
					indices:  make(map[int][]int),
				}
				for _, r := range rows {
					m, ok := jc.matrices[r.GroupingID]
					if !ok {
						m = stats.NewJointProbabilityMatrix(len(r.Indices))
						jc.matrices[r.GroupingID] = m
						jc.indices[r.GroupingID] = r.Indices
					}
					if r.IsSuppressed() {
						m.InsertSuppressed(r.Count)
						continue
					}
					m.Insert(indexOf(r.Values), r.Count)
				}
				return jc, nil
			})
		samples := explorer.Provide(s, "correlation.samples",
			func(ctx context.Context, _ *explorer.ExplorerContext) ([][]json.RawMessage, error) {
				jc, err := joint.Result(ctx)
				if err != nil {
					return nil, err
				}
				m, ok := jc.matrices[0]
				if !ok {
					return nil, &stats.InsufficientDataError{Statistic: "correlated samples", Reason: "no rows over all columns"}
				}
				rng := s.Rand("correlated_samples")
				out := make([][]json.RawMessage, 0, cfg.SampleCount)
				for range cfg.SampleCount {
					ix, ok := m.Sample(rng)
					if !ok {
						return nil, &stats.InsufficientDataError{Statistic: "correlated samples", Reason: "all buckets suppressed"}
					}
					row := make([]json.RawMessage, len(ix))
					for i, v := range ix {
						row[i] = json.RawMessage(v)
					}
					out = append(out, row)
				}
				return out, nil
			})

		return []explorer.Publisher{
			{
				Name: "correlations",
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					jc, err := joint.Result(ctx)
					if err != nil {
						return nil, err
					}
					ids := make([]int, 0, len(jc.matrices))
					for id := range jc.matrices {
						ids = append(ids, id)
					}
					// Most columns first. Among equal sizes a lower grouping id
					// leaves out later columns.
					sort.Slice(ids, func(i, j int) bool {
						a, b := jc.indices[ids[i]], jc.indices[ids[j]]
						if len(a) != len(b) {
							return len(a) > len(b)
						}
						return ids[i] < ids[j]
					})
					out := make([]ColumnCorrelation, len(ids))
					for i, id := range ids {
						m := jc.matrices[id]
						names := make([]string, len(jc.indices[id]))
						for j, idx := range jc.indices[id] {
							names[j] = jc.columns[idx]
						}
						out[i] = ColumnCorrelation{
							Columns:           names,
							CorrelationFactor: m.CorrelationFactor(),
							Count:             m.TotalCount(),
							Suppressed:        m.SuppressedCount(),
						}
					}
					return []explorer.Metric{{Name: "correlations", Value: out}}, nil
				},
			},
			{
				Name:     "correlated_samples",
				Optional: true,
				Publish: func(ctx context.Context) ([]explorer.Metric, error) {
					rows, err := samples.Result(ctx)
					if err != nil {
						return nil, err
					}
					return []explorer.Metric{{Name: "correlated_samples", Value: rows}}, nil
				},
			},
		}
	}
}
