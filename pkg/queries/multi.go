package queries

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

// Projection is a column as it appears in a multi-column query.
type Projection struct {
	Column string
	Expr   string
}

// ColumnProjection selects the column as is.
func ColumnProjection(column string) Projection {
	return Projection{Column: column, Expr: QuoteIdentifier(column)}
}

// BucketProjection selects the column bucketed by size.
func BucketProjection(column string, size decimal.Decimal) Projection {
	return Projection{Column: column, Expr: fmt.Sprintf("bucket(%s by %s)", QuoteIdentifier(column), size.String())}
}

// MultiColumnCounts counts rows for every combination of at least two of the
// projected columns.
type MultiColumnCounts struct {
	Table   string
	Columns []Projection
}

func (q MultiColumnCounts) Labels() []string {
	labels := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		labels[i] = c.Column
	}
	return labels
}

func (q MultiColumnCounts) Statement() string {
	exprs := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		exprs[i] = c.Expr
	}
	return groupingSetsStatement(q.Table, exprs, Combinations(len(exprs), 2))
}

func (q MultiColumnCounts) DecodeRow(r *anon.RowReader) (anon.MultiGroupingSetsResult[json.RawMessage], error) {
	return anon.DecodeMultiGroupingSets(q.Labels(), anon.ParseRaw)(r)
}

// TruncProjection selects a datetime column truncated to unit.
func TruncProjection(column string, unit stats.TimeUnit) Projection {
	return Projection{Column: column, Expr: fmt.Sprintf("date_trunc(%s, %s)", quoteLiteral(string(unit)), QuoteIdentifier(column))}
}
