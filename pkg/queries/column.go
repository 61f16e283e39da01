package queries

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

// SimpleStatsResult holds the anonymized extremes and row count of a column.
type SimpleStatsResult[T any] struct {
	Min   anon.Value[T]
	Max   anon.Value[T]
	Count anon.NoisyCount
}

// SimpleStats selects min, max and the row count of one column.
type SimpleStats[T any] struct {
	Table  string
	Column string
	Parse  anon.Parser[T]
}

func (q SimpleStats[T]) Statement() string {
	col := QuoteIdentifier(q.Column)
	return fmt.Sprintf("SELECT min(%s), max(%s), count(*), count_noise(*) FROM %s", col, col, QuoteIdentifier(q.Table))
}

func (q SimpleStats[T]) DecodeRow(r *anon.RowReader) (SimpleStatsResult[T], error) {
	var res SimpleStatsResult[T]
	var err error
	if res.Min, err = anon.ReadValue(r, q.Parse); err != nil {
		return res, err
	}
	if res.Max, err = anon.ReadValue(r, q.Parse); err != nil {
		return res, err
	}
	res.Count, err = anon.ReadNoisyCount(r)
	return res, err
}

// DistinctValues counts the rows per distinct value of a column.
type DistinctValues[T any] struct {
	Table  string
	Column string
	Parse  anon.Parser[T]
}

func (q DistinctValues[T]) Statement() string {
	col := QuoteIdentifier(q.Column)
	return fmt.Sprintf("SELECT %s, count(*), count_noise(*) FROM %s GROUP BY %s", col, QuoteIdentifier(q.Table), col)
}

func (q DistinctValues[T]) DecodeRow(r *anon.RowReader) (ValueWithCount[T], error) {
	return readValueWithCount(r, q.Parse)
}

// BucketedHistogram counts rows per bucket for several bucket sizes at once,
// one grouping set per size. Row labels are the sizes' strings.
type BucketedHistogram struct {
	Table       string
	Column      string
	BucketSizes []decimal.Decimal
}

func (q BucketedHistogram) Labels() []string {
	labels := make([]string, len(q.BucketSizes))
	for i, s := range q.BucketSizes {
		labels[i] = s.String()
	}
	return labels
}

func (q BucketedHistogram) Statement() string {
	col := QuoteIdentifier(q.Column)
	exprs := make([]string, len(q.BucketSizes))
	for i, s := range q.BucketSizes {
		exprs[i] = fmt.Sprintf("bucket(%s by %s)", col, s.String())
	}
	return groupingSetsStatement(q.Table, exprs, singletonSets(len(exprs)))
}

func (q BucketedHistogram) DecodeRow(r *anon.RowReader) (anon.GroupingSetsResult[decimal.Decimal], error) {
	return anon.DecodeGroupingSets(q.Labels(), anon.ParseDecimal)(r)
}

// TextLengths counts rows per string length.
type TextLengths struct {
	Table  string
	Column string
}

func (q TextLengths) Statement() string {
	return fmt.Sprintf("SELECT length(%s), count(*), count_noise(*) FROM %s GROUP BY 1",
		QuoteIdentifier(q.Column), QuoteIdentifier(q.Table))
}

func (q TextLengths) DecodeRow(r *anon.RowReader) (ValueWithCount[int64], error) {
	return readValueWithCount(r, anon.ParseInt64)
}

// EmailPattern is the LIKE pattern a value must match to count as an address.
const EmailPattern = "%@%.%"

// EmailCount counts the rows whose value looks like an email address.
type EmailCount struct {
	Table  string
	Column string
}

func (q EmailCount) Statement() string {
	return fmt.Sprintf("SELECT count(*), count_noise(*) FROM %s WHERE %s LIKE %s",
		QuoteIdentifier(q.Table), QuoteIdentifier(q.Column), quoteLiteral(EmailPattern))
}

func (q EmailCount) DecodeRow(r *anon.RowReader) (anon.NoisyCount, error) {
	return anon.ReadNoisyCount(r)
}
