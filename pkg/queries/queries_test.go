package queries

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/stats"
)

func reader(t *testing.T, row string) *anon.RowReader {
	t.Helper()
	var toks []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(row), &toks))
	return anon.NewRowReader(toks)
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"amount"`, QuoteIdentifier("amount"))
	assert.Equal(t, `"we""ird"`, QuoteIdentifier(`we"ird`))
}

func TestSimpleStats(t *testing.T) {
	q := SimpleStats[decimal.Decimal]{Table: "loans", Column: "amount", Parse: anon.ParseDecimal}
	assert.Equal(t, `SELECT min("amount"), max("amount"), count(*), count_noise(*) FROM "loans"`, q.Statement())

	r := reader(t, `[3.5, "*", 825, 1.5]`)
	res, err := q.DecodeRow(r)
	require.NoError(t, err)
	assert.True(t, res.Min.MustGet().Equal(decimal.RequireFromString("3.5")))
	assert.True(t, res.Max.IsSuppressed())
	assert.Equal(t, anon.NewNoisyCount(825, 1.5), res.Count)
	assert.True(t, r.Done())
}

func TestDistinctValues(t *testing.T) {
	q := DistinctValues[string]{Table: "t", Column: "status", Parse: anon.ParseString}
	assert.Equal(t, `SELECT "status", count(*), count_noise(*) FROM "t" GROUP BY "status"`, q.Statement())
	v, err := q.DecodeRow(reader(t, `[null, 12, null]`))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, int64(12), v.NoisyCount().Count)
}

func TestBucketedHistogram(t *testing.T) {
	q := BucketedHistogram{Table: "t", Column: "x", BucketSizes: []decimal.Decimal{
		decimal.RequireFromString("0.5"), decimal.NewFromInt(2), decimal.NewFromInt(10),
	}}
	assert.Equal(t,
		`SELECT grouping_id(bucket("x" by 0.5), bucket("x" by 2), bucket("x" by 10)), `+
			`bucket("x" by 0.5), bucket("x" by 2), bucket("x" by 10), count(*), count_noise(*) `+
			`FROM "t" GROUP BY GROUPING SETS (2, 3, 4)`,
		q.Statement())

	row, err := q.DecodeRow(reader(t, `[5, null, 4, null, 30, 1.2]`))
	require.NoError(t, err)
	assert.Equal(t, "2", row.GroupingLabel())
	assert.True(t, row.Value.MustGet().Equal(decimal.NewFromInt(4)))
}

func TestTextQueries(t *testing.T) {
	l := TextLengths{Table: "t", Column: "name"}
	assert.Equal(t, `SELECT length("name"), count(*), count_noise(*) FROM "t" GROUP BY 1`, l.Statement())
	v, err := l.DecodeRow(reader(t, `[7, 40, 1]`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Value.MustGet())

	e := EmailCount{Table: "t", Column: "mail"}
	assert.Equal(t, `SELECT count(*), count_noise(*) FROM "t" WHERE "mail" LIKE '%@%.%'`, e.Statement())
}

func TestTimeBucketQueries(t *testing.T) {
	lin := LinearTimeBuckets{Table: "t", Column: "ts", Units: []stats.TimeUnit{stats.Year, stats.Month}}
	assert.Contains(t, lin.Statement(), `date_trunc('year', "ts"), date_trunc('month', "ts"), count(*)`)
	assert.Contains(t, lin.Statement(), `GROUP BY GROUPING SETS (2, 3)`)
	row, err := lin.DecodeRow(reader(t, `[1, "2020-01-01T00:00:00", null, 10, 0.5]`))
	require.NoError(t, err)
	assert.Equal(t, "year", row.GroupingLabel())
	assert.Equal(t, 2020, row.Value.MustGet().Year())
	assert.Equal(t, time.January, row.Value.MustGet().Month())

	cyc := CyclicalTimeBuckets{Table: "t", Column: "ts", Units: []stats.TimeUnit{stats.Month, stats.Hour}}
	assert.Contains(t, cyc.Statement(), `date_part('hour', "ts")`)
	crow, err := cyc.DecodeRow(reader(t, `[1, 7, "*", 3, null]`))
	require.NoError(t, err)
	assert.Equal(t, "month", crow.GroupingLabel())
	assert.Equal(t, int64(7), crow.Value.MustGet())
}

func TestCombinations(t *testing.T) {
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {1, 2}, {0, 1, 2}}, Combinations(3, 2))
	assert.Empty(t, Combinations(1, 2))
}

func TestMultiColumnCounts(t *testing.T) {
	q := MultiColumnCounts{Table: "t", Columns: []Projection{
		ColumnProjection("a"),
		BucketProjection("b", decimal.NewFromInt(5)),
		ColumnProjection("c"),
	}}
	assert.Contains(t, q.Statement(), `grouping_id("a", bucket("b" by 5), "c")`)
	assert.Contains(t, q.Statement(), `GROUP BY GROUPING SETS ((2, 3), (2, 4), (3, 4), (2, 3, 4))`)

	// grouping id 2 = 0b010: a and c included.
	row, err := q.DecodeRow(reader(t, `[2, "x", null, true, 17, 1]`))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, row.Indices)
	require.Len(t, row.Values, 2)
	assert.Equal(t, `"x"`, string(row.Values[0].MustGet()))
	assert.Equal(t, `true`, string(row.Values[1].MustGet()))
	assert.Equal(t, int64(17), row.Count.Count)
}

func TestTruncProjection(t *testing.T) {
	p := TruncProjection("created", stats.Month)
	assert.Equal(t, "created", p.Column)
	assert.Equal(t, `date_trunc('month', "created")`, p.Expr)
}
