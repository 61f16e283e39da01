package stats

import (
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

// Index is a tuple of column values, one canonical JSON rendering per column.
type Index []string

func (ix Index) key() string { return strings.Join(ix, "\x00") }

type jointEntry struct {
	index Index
	count anon.NoisyCount
}

// JointProbabilityMatrix accumulates counts per combination of column values
// and draws weighted samples from them. It is owned by a single computation
// and is not safe for concurrent use.
type JointProbabilityMatrix struct {
	columns    int
	entries    []*jointEntry
	byKey      map[string]*jointEntry
	suppressed anon.NoisyCount

	cumulative []int64
	total      int64
	dirty      bool
}

// NewJointProbabilityMatrix creates an empty matrix over n columns.
func NewJointProbabilityMatrix(n int) *JointProbabilityMatrix {
	return &JointProbabilityMatrix{columns: n, byKey: make(map[string]*jointEntry)}
}

func (m *JointProbabilityMatrix) Columns() int { return m.columns }

// Insert adds count to the tuple's bucket.
func (m *JointProbabilityMatrix) Insert(ix Index, count anon.NoisyCount) {
	k := ix.key()
	if e, ok := m.byKey[k]; ok {
		e.count = e.count.Add(count)
	} else {
		e = &jointEntry{index: append(Index(nil), ix...), count: count}
		m.byKey[k] = e
		m.entries = append(m.entries, e)
	}
	m.dirty = true
}

// InsertSuppressed tallies a bucket in which at least one column was
// suppressed. Suppressed mass is reported but never sampled.
func (m *JointProbabilityMatrix) InsertSuppressed(count anon.NoisyCount) {
	m.suppressed = m.suppressed.Add(count)
}

func (m *JointProbabilityMatrix) SuppressedCount() anon.NoisyCount { return m.suppressed }

// Len is the number of distinct tuples.
func (m *JointProbabilityMatrix) Len() int { return len(m.entries) }

// Count returns the accumulated count for a tuple.
func (m *JointProbabilityMatrix) Count(ix Index) (anon.NoisyCount, bool) {
	e, ok := m.byKey[ix.key()]
	if !ok {
		return anon.NoisyCount{}, false
	}
	return e.count, true
}

// TotalCount sums all non-suppressed buckets.
func (m *JointProbabilityMatrix) TotalCount() anon.NoisyCount {
	var t anon.NoisyCount
	for _, e := range m.entries {
		t = t.Add(e.count)
	}
	return t
}

// CorrelationFactor estimates how strongly the columns depend on each other.
// Perfectly correlated columns fill roughly as many buckets as the column with
// the most distinct values (the diagonal); independent columns fill many more.
func (m *JointProbabilityMatrix) CorrelationFactor() float64 {
	if m.columns < 1 || len(m.entries) == 0 {
		return 0
	}
	distinct := make([]map[string]struct{}, m.columns)
	for i := range distinct {
		distinct[i] = make(map[string]struct{})
	}
	buckets := 0
	for _, e := range m.entries {
		if e.count.Count <= 0 {
			continue
		}
		buckets++
		for i, v := range e.index {
			if i < m.columns {
				distinct[i][v] = struct{}{}
			}
		}
	}
	diagonal := 0
	for _, d := range distinct {
		if len(d) > diagonal {
			diagonal = len(d)
		}
	}
	if buckets == 0 {
		return 0
	}
	if buckets <= diagonal {
		return 1.0
	}
	return math.Pow(float64(diagonal)/float64(buckets), 1/float64(m.columns))
}

func (m *JointProbabilityMatrix) rebuild() {
	m.cumulative = m.cumulative[:0]
	m.total = 0
	for _, e := range m.entries {
		if e.count.Count > 0 {
			m.total += e.count.Count
		}
		m.cumulative = append(m.cumulative, m.total)
	}
	m.dirty = false
}

// Sample draws one tuple with probability proportional to its count.
func (m *JointProbabilityMatrix) Sample(rng *rand.Rand) (Index, bool) {
	if m.dirty || m.cumulative == nil {
		m.rebuild()
	}
	if m.total <= 0 {
		return nil, false
	}
	x := rng.Int64N(m.total)
	i := sort.Search(len(m.cumulative), func(i int) bool { return m.cumulative[i] > x })
	return m.entries[i].index, true
}

// Entries returns the tuples and counts in insertion order.
func (m *JointProbabilityMatrix) Entries() []JointCount {
	out := make([]JointCount, len(m.entries))
	for i, e := range m.entries {
		out[i] = JointCount{Values: e.index, Count: e.count}
	}
	return out
}

// JointCount is one tuple of a joint distribution.
type JointCount struct {
	Values Index           `json:"values"`
	Count  anon.NoisyCount `json:"count"`
}
