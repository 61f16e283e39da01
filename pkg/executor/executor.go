// Package executor runs typed queries against the anonymized query service
// and decodes their rows.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sahithikokkula/explorer/pkg/anon"
	"github.com/sahithikokkula/explorer/pkg/anonapi"
)

// Runner executes a statement and waits for its result. *anonapi.Client
// implements it.
type Runner interface {
	ExecuteAndAwait(ctx context.Context, statement, dataSource string, timeout time.Duration) (*anonapi.QueryResult, error)
}

// Query is a statement together with the decoder for its rows.
type Query[T any] interface {
	Statement() string
	DecodeRow(r *anon.RowReader) (T, error)
}

// Execute runs q and decodes every row. A decoder that leaves tokens
// unconsumed is a malformed row.
func Execute[T any](ctx context.Context, runner Runner, dataSource string, q Query[T], timeout time.Duration) ([]T, error) {
	res, err := runner.ExecuteAndAwait(ctx, q.Statement(), dataSource, timeout)
	if err != nil {
		return nil, err
	}
	return DecodeRows(res, q)
}

// DecodeRows decodes the rows of a completed result with q's decoder.
func DecodeRows[T any](res *anonapi.QueryResult, q Query[T]) ([]T, error) {
	out := make([]T, 0, len(res.Rows))
	for i, row := range res.Rows {
		r := anon.NewRowReader(row.Row)
		v, err := q.DecodeRow(r)
		if err != nil {
			return nil, fmt.Errorf("query %s: row %d: %w", res.ID, i, err)
		}
		if !r.Done() {
			tok, _ := r.Next(anon.TokenEnd)
			return nil, fmt.Errorf("query %s: row %d: %w", res.ID, i, &anon.MalformedRowError{
				Index:    r.Pos() - 1,
				Expected: anon.TokenEnd,
				Actual:   anon.KindOf(tok),
				Detail:   fmt.Sprintf("decoder consumed %d of %d tokens", r.Pos()-1, r.Len()),
			})
		}
		out = append(out, v)
	}
	return out, nil
}

// QueryFunc adapts a statement and a decoder function to Query.
type QueryFunc[T any] struct {
	SQL    string
	Decode func(*anon.RowReader) (T, error)
}

func (q QueryFunc[T]) Statement() string                      { return q.SQL }
func (q QueryFunc[T]) DecodeRow(r *anon.RowReader) (T, error) { return q.Decode(r) }
