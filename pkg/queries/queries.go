// Package queries holds the statements the explorer sends to the anonymized
// query service, each paired with the decoder for its rows.
package queries

import (
	"fmt"
	"strings"

	"github.com/sahithikokkula/explorer/pkg/anon"
)

// QuoteIdentifier double-quotes a table or column name.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ValueWithCount is a grouped value and its noisy count.
type ValueWithCount[T any] struct {
	Value anon.Value[T]
	Count anon.NoisyCount
}

func (v ValueWithCount[T]) IsNull() bool               { return v.Value.IsNull() }
func (v ValueWithCount[T]) IsSuppressed() bool         { return v.Value.IsSuppressed() }
func (v ValueWithCount[T]) NoisyCount() anon.NoisyCount { return v.Count }

func readValueWithCount[T any](r *anon.RowReader, parse anon.Parser[T]) (ValueWithCount[T], error) {
	v, err := anon.ReadValue(r, parse)
	if err != nil {
		return ValueWithCount[T]{}, err
	}
	c, err := anon.ReadNoisyCount(r)
	if err != nil {
		return ValueWithCount[T]{}, err
	}
	return ValueWithCount[T]{Value: v, Count: c}, nil
}

// groupingSetsStatement renders
//
//	SELECT grouping_id(e1, ..., en), e1, ..., en, count(*), count_noise(*)
//	FROM table GROUP BY GROUPING SETS (s1, ..., sm)
//
// where each set lists 1-based indices into exprs.
func groupingSetsStatement(table string, exprs []string, sets [][]int) string {
	list := strings.Join(exprs, ", ")
	rendered := make([]string, len(sets))
	for i, set := range sets {
		pos := make([]string, len(set))
		for j, idx := range set {
			// grouping_id occupies select position 1.
			pos[j] = fmt.Sprint(idx + 2)
		}
		if len(pos) == 1 {
			rendered[i] = pos[0]
		} else {
			rendered[i] = "(" + strings.Join(pos, ", ") + ")"
		}
	}
	return fmt.Sprintf("SELECT grouping_id(%s), %s, count(*), count_noise(*) FROM %s GROUP BY GROUPING SETS (%s)",
		list, list, QuoteIdentifier(table), strings.Join(rendered, ", "))
}

func singletonSets(n int) [][]int {
	sets := make([][]int, n)
	for i := range sets {
		sets[i] = []int{i}
	}
	return sets
}

// Combinations lists every ascending index combination of size in
// [minSize, n], smaller combinations first.
func Combinations(n, minSize int) [][]int {
	var out [][]int
	for size := minSize; size <= n; size++ {
		var rec func(start int, cur []int)
		rec = func(start int, cur []int) {
			if len(cur) == size {
				out = append(out, append([]int(nil), cur...))
				return
			}
			for i := start; i < n; i++ {
				rec(i+1, append(cur, i))
			}
		}
		rec(0, nil)
	}
	return out
}
