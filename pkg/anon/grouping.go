package anon

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrArgumentOutOfRange is returned for grouping ids or indices outside the
	// range representable by the group size.
	ErrArgumentOutOfRange = errors.New("argument out of range")

	// ErrNotSingleIndex is returned when a grouping id includes zero or several
	// columns where exactly one was expected.
	ErrNotSingleIndex = errors.New("grouping id does not select exactly one column")
)

// maxGroupSize keeps 1<<n inside an int on every platform.
const maxGroupSize = 30

// GroupingIDFromIndex returns the grouping_id() value of a row in which only
// column i of n grouped columns is included. The first grouped column maps to
// the most significant bit; a 0 bit means the column is included.
func GroupingIDFromIndex(i, n int) (int, error) {
	if n < 1 || n > maxGroupSize {
		return 0, fmt.Errorf("%w: group size %d", ErrArgumentOutOfRange, n)
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: index %d for group size %d", ErrArgumentOutOfRange, i, n)
	}
	mask := (1 << n) - 1
	return mask &^ (1 << (n - 1 - i)), nil
}

// IndicesFromGroupingID returns the included column indices, ascending.
func IndicesFromGroupingID(id, n int) ([]int, error) {
	if n < 1 || n > maxGroupSize {
		return nil, fmt.Errorf("%w: group size %d", ErrArgumentOutOfRange, n)
	}
	if id < 0 || id > (1<<n)-1 {
		return nil, fmt.Errorf("%w: grouping id %d for group size %d", ErrArgumentOutOfRange, id, n)
	}
	indices := make([]int, 0, n-bits.OnesCount(uint(id)))
	for i := 0; i < n; i++ {
		if id&(1<<(n-1-i)) == 0 {
			indices = append(indices, i)
		}
	}
	return indices, nil
}

// SingleIndexFromGroupingID returns the only included column index.
func SingleIndexFromGroupingID(id, n int) (int, error) {
	indices, err := IndicesFromGroupingID(id, n)
	if err != nil {
		return -1, err
	}
	if len(indices) != 1 {
		return -1, fmt.Errorf("%w: grouping id %d includes %d of %d columns", ErrNotSingleIndex, id, len(indices), n)
	}
	return indices[0], nil
}

// GroupingIDFromIndices is the inverse of IndicesFromGroupingID.
func GroupingIDFromIndices(indices []int, n int) (int, error) {
	if n < 1 || n > maxGroupSize {
		return 0, fmt.Errorf("%w: group size %d", ErrArgumentOutOfRange, n)
	}
	id := (1 << n) - 1
	for _, i := range indices {
		if i < 0 || i >= n {
			return 0, fmt.Errorf("%w: index %d for group size %d", ErrArgumentOutOfRange, i, n)
		}
		id &^= 1 << (n - 1 - i)
	}
	return id, nil
}

// GroupingSetsResult is one row of a GROUP BY GROUPING SETS query in which each
// grouping set holds a single column.
type GroupingSetsResult[T any] struct {
	GroupingID int
	Labels     []string
	Value      Value[T]
	Count      NoisyCount
}

func (r GroupingSetsResult[T]) GroupSize() int { return len(r.Labels) }

// GroupingIndex is the index of the column this row was grouped by.
func (r GroupingSetsResult[T]) GroupingIndex() int {
	i, err := SingleIndexFromGroupingID(r.GroupingID, len(r.Labels))
	if err != nil {
		return -1
	}
	return i
}

// GroupingLabel is the label of the column this row was grouped by.
func (r GroupingSetsResult[T]) GroupingLabel() string {
	if i := r.GroupingIndex(); i >= 0 {
		return r.Labels[i]
	}
	return ""
}

func (r GroupingSetsResult[T]) IsNull() bool       { return r.Value.IsNull() }
func (r GroupingSetsResult[T]) IsSuppressed() bool { return r.Value.IsSuppressed() }
func (r GroupingSetsResult[T]) NoisyCount() NoisyCount {
	return r.Count
}

// DecodeGroupingSets returns a row decoder for single-column grouping sets.
// The row layout is: grouping_id, one token per label, count, count_noise.
func DecodeGroupingSets[T any](labels []string, parse Parser[T]) func(*RowReader) (GroupingSetsResult[T], error) {
	n := len(labels)
	return func(r *RowReader) (GroupingSetsResult[T], error) {
		res := GroupingSetsResult[T]{Labels: labels}
		idPos := r.Pos()
		id, err := ReadRequired(r, ParseInt64)
		if err != nil {
			return res, err
		}
		res.GroupingID = int(id)
		active, err := SingleIndexFromGroupingID(res.GroupingID, n)
		if err != nil {
			return res, &MalformedRowError{Index: idPos, Expected: TokenNumber, Actual: TokenNumber, Detail: err.Error()}
		}
		for i := 0; i < n; i++ {
			if i != active {
				if err := r.Skip(); err != nil {
					return res, err
				}
				continue
			}
			if res.Value, err = ReadValue(r, parse); err != nil {
				return res, err
			}
		}
		res.Count, err = ReadNoisyCount(r)
		return res, err
	}
}

// MultiGroupingSetsResult is one row of a grouping-sets query in which a set
// may hold several columns.
type MultiGroupingSetsResult[T any] struct {
	GroupingID int
	Labels     []string
	Indices    []int
	Values     []Value[T]
	Count      NoisyCount
}

// IsSuppressed reports whether any included column was suppressed.
func (r MultiGroupingSetsResult[T]) IsSuppressed() bool {
	for _, v := range r.Values {
		if v.IsSuppressed() {
			return true
		}
	}
	return false
}

// IsNull reports whether every included column is NULL.
func (r MultiGroupingSetsResult[T]) IsNull() bool {
	for _, v := range r.Values {
		if !v.IsNull() {
			return false
		}
	}
	return len(r.Values) > 0
}

func (r MultiGroupingSetsResult[T]) NoisyCount() NoisyCount { return r.Count }

// DecodeMultiGroupingSets returns a row decoder for grouping sets that may hold
// several columns. Collapsed columns still consume their token.
func DecodeMultiGroupingSets[T any](labels []string, parse Parser[T]) func(*RowReader) (MultiGroupingSetsResult[T], error) {
	n := len(labels)
	return func(r *RowReader) (MultiGroupingSetsResult[T], error) {
		res := MultiGroupingSetsResult[T]{Labels: labels}
		idPos := r.Pos()
		id, err := ReadRequired(r, ParseInt64)
		if err != nil {
			return res, err
		}
		res.GroupingID = int(id)
		if res.Indices, err = IndicesFromGroupingID(res.GroupingID, n); err != nil {
			return res, &MalformedRowError{Index: idPos, Expected: TokenNumber, Actual: TokenNumber, Detail: err.Error()}
		}
		res.Values = make([]Value[T], 0, len(res.Indices))
		next := 0
		for i := 0; i < n; i++ {
			if next >= len(res.Indices) || res.Indices[next] != i {
				if err := r.Skip(); err != nil {
					return res, err
				}
				continue
			}
			v, err := ReadValue(r, parse)
			if err != nil {
				return res, err
			}
			res.Values = append(res.Values, v)
			next++
		}
		res.Count, err = ReadNoisyCount(r)
		return res, err
	}
}
