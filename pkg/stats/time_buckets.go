package stats

import (
	"fmt"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

// TimeUnit is a calendar unit used to bucket datetime columns.
type TimeUnit string

const (
	Year    TimeUnit = "year"
	Quarter TimeUnit = "quarter"
	Month   TimeUnit = "month"
	Day     TimeUnit = "day"
	Weekday TimeUnit = "weekday"
	Hour    TimeUnit = "hour"
	Minute  TimeUnit = "minute"
	Second  TimeUnit = "second"
)

// Units ordered from coarsest to finest.
var (
	DateUnits         = []TimeUnit{Year, Quarter, Month, Day}
	DatetimeUnits     = []TimeUnit{Year, Quarter, Month, Day, Hour, Minute, Second}
	CyclicalDateUnits = []TimeUnit{Quarter, Month, Day, Weekday}
	CyclicalUnits     = []TimeUnit{Quarter, Month, Day, Weekday, Hour, Minute, Second}
)

// MaxLinearSuppressedRowRatio stops linear bucketing once a finer unit
// suppresses more than this share of its rows.
var MaxLinearSuppressedRowRatio = 0.1

// CycleRule says how many buckets of Parent must be seen before Unit is
// reported as a cyclical distribution.
type CycleRule struct {
	Parent    TimeUnit
	MinCycles int
}

// CycleRules holds the thresholds of the cyclical detection. Years are never
// cyclical and have no rule.
var CycleRules = map[TimeUnit]CycleRule{
	Quarter: {Parent: Year, MinCycles: 2},
	Month:   {Parent: Year, MinCycles: 2},
	Day:     {Parent: Month, MinCycles: 2},
	Weekday: {Parent: Day, MinCycles: 14},
	Hour:    {Parent: Day, MinCycles: 2},
	Minute:  {Parent: Hour, MinCycles: 2},
	Second:  {Parent: Minute, MinCycles: 2},
}

// TimeBucket is the count of one bucket of a time unit.
type TimeBucket[T any] struct {
	Value anon.Value[T] `json:"-"`
	Count int64         `json:"count"`
	Noise float64       `json:"count_noise"`
}

// UnitBuckets are all buckets of one unit.
type UnitBuckets[T any] struct {
	Unit        TimeUnit        `json:"unit"`
	Buckets     []TimeBucket[T] `json:"buckets"`
	ValueCounts ValueCounts     `json:"value_counts"`
}

// DistinctBuckets counts buckets holding a value.
func (u UnitBuckets[T]) DistinctBuckets() int {
	n := 0
	for _, b := range u.Buckets {
		if b.Value.HasValue() {
			n++
		}
	}
	return n
}

// GroupByUnit splits grouping-sets rows whose labels are time units.
func GroupByUnit[T any](units []TimeUnit, rows []anon.GroupingSetsResult[T]) ([]UnitBuckets[T], error) {
	out := make([]UnitBuckets[T], len(units))
	pos := make(map[string]int, len(units))
	for i, u := range units {
		out[i].Unit = u
		pos[string(u)] = i
	}
	for _, row := range rows {
		i, ok := pos[row.GroupingLabel()]
		if !ok {
			return nil, fmt.Errorf("time bucket row for unknown unit %q", row.GroupingLabel())
		}
		out[i].ValueCounts = out[i].ValueCounts.Add(row)
		out[i].Buckets = append(out[i].Buckets, TimeBucket[T]{Value: row.Value, Count: row.Count.Count, Noise: row.Count.Noise()})
	}
	return out, nil
}

// SelectLinearUnits keeps units from the coarsest down, stopping before the
// first finer unit whose suppressed row ratio exceeds the threshold. The
// coarsest unit is always kept.
func SelectLinearUnits[T any](units []UnitBuckets[T]) []UnitBuckets[T] {
	out := make([]UnitBuckets[T], 0, len(units))
	for i, u := range units {
		if i > 0 && u.ValueCounts.SuppressedRowRatio() > MaxLinearSuppressedRowRatio {
			break
		}
		out = append(out, u)
	}
	return out
}

// SelectCyclicalUnits skips cyclical units until one whose parent unit has
// completed enough cycles in the linear buckets, then reports that unit and the
// finer ones until suppression exceeds the linear threshold.
func SelectCyclicalUnits[T, L any](cyclical []UnitBuckets[T], linear []UnitBuckets[L]) []UnitBuckets[T] {
	seen := make(map[TimeUnit]int, len(linear))
	for _, l := range linear {
		seen[l.Unit] = l.DistinctBuckets()
	}
	out := make([]UnitBuckets[T], 0, len(cyclical))
	skipping := true
	for _, c := range cyclical {
		if c.Unit == Year {
			continue
		}
		if skipping {
			rule, ok := CycleRules[c.Unit]
			if !ok || seen[rule.Parent] < rule.MinCycles {
				continue
			}
			skipping = false
		}
		if c.ValueCounts.SuppressedRowRatio() > MaxLinearSuppressedRowRatio {
			break
		}
		out = append(out, c)
	}
	return out
}
