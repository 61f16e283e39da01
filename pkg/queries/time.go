package queries

import (
	"fmt"
	"time"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

func unitLabels(units []stats.TimeUnit) []string {
	labels := make([]string, len(units))
	for i, u := range units {
		labels[i] = string(u)
	}
	return labels
}

// LinearTimeBuckets truncates a datetime column to each unit in one
// grouping-sets query.
type LinearTimeBuckets struct {
	Table  string
	Column string
	Units  []stats.TimeUnit
}

func (q LinearTimeBuckets) Statement() string {
	col := QuoteIdentifier(q.Column)
	exprs := make([]string, len(q.Units))
	for i, u := range q.Units {
		exprs[i] = fmt.Sprintf("date_trunc(%s, %s)", quoteLiteral(string(u)), col)
	}
	return groupingSetsStatement(q.Table, exprs, singletonSets(len(exprs)))
}

func (q LinearTimeBuckets) DecodeRow(r *anon.RowReader) (anon.GroupingSetsResult[time.Time], error) {
	return anon.DecodeGroupingSets(unitLabels(q.Units), anon.ParseTime)(r)
}

// CyclicalTimeBuckets extracts each unit's position within its cycle
// (month of year, hour of day, ...).
type CyclicalTimeBuckets struct {
	Table  string
	Column string
	Units  []stats.TimeUnit
}

func (q CyclicalTimeBuckets) Statement() string {
	col := QuoteIdentifier(q.Column)
	exprs := make([]string, len(q.Units))
	for i, u := range q.Units {
		exprs[i] = fmt.Sprintf("date_part(%s, %s)", quoteLiteral(string(u)), col)
	}
	return groupingSetsStatement(q.Table, exprs, singletonSets(len(exprs)))
}

func (q CyclicalTimeBuckets) DecodeRow(r *anon.RowReader) (anon.GroupingSetsResult[int64], error) {
	return anon.DecodeGroupingSets(unitLabels(q.Units), anon.ParseInt64)(r)
}
