// Package anonapi is a client for the anonymized query service: it submits
// statements, polls them to completion, cancels them and lists data sources.
package anonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPollInterval         = 2 * time.Second
	DefaultMaxConcurrentQueries = 10
)

// Config configures a Client. Zero fields take the defaults.
type Config struct {
	Credential           string
	PollInterval         time.Duration
	MaxConcurrentQueries int64
	// CancelOnAbort issues a best-effort remote cancel when the caller's
	// context is canceled while a query is being awaited.
	CancelOnAbort bool
	Logger        *slog.Logger
}

// Client talks to the anonymized query service. It is safe for concurrent use
// and is meant to be created once per process and passed down.
type Client struct {
	transport     Transport
	credential    string
	pollInterval  time.Duration
	cancelOnAbort bool
	queries       *semaphore.Weighted
	logger        *slog.Logger
}

func NewClient(t Transport, cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = DefaultMaxConcurrentQueries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		transport:     t,
		credential:    cfg.Credential,
		pollInterval:  cfg.PollInterval,
		cancelOnAbort: cfg.CancelOnAbort,
		queries:       semaphore.NewWeighted(cfg.MaxConcurrentQueries),
		logger:        cfg.Logger.With(slog.String("component", "anonapi")),
	}
}

// do sends a request and decodes a 2xx JSON response into out. route is the
// endpoint template used for metrics.
func (c *Client) do(ctx context.Context, method, endpoint, route string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", route, err)
		}
		body = b
	}
	start := time.Now()
	status, resp, err := c.transport.Send(ctx, method, endpoint, c.credential, body)
	recordRequest(ctx, method, route, status, time.Since(start))
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return err
		}
		return &TransportError{Method: method, Endpoint: endpoint, Err: err}
	}
	if status < 200 || status > 299 {
		return &APIError{Method: method, Endpoint: endpoint, StatusCode: status, Description: describe(resp)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode %s response: %w", route, err)
	}
	return nil
}

// describe extracts the server's explanation from an error body.
func describe(body []byte) string {
	var e struct {
		Description string `json:"description"`
		Error       string `json:"error"`
		Message     string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Description != "":
			return e.Description
		case e.Error != "":
			return e.Error
		case e.Message != "":
			return e.Message
		}
	}
	const max = 512
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

// Submit starts a statement on a data source and returns its query id.
func (c *Client) Submit(ctx context.Context, statement, dataSource string) (string, error) {
	ctx, span := tracer.Start(ctx, "anonapi.Submit", trace.WithAttributes(
		attribute.String("anonapi.data_source", dataSource),
	))
	defer span.End()

	var resp submitResponse
	req := submitRequest{Query: submitQuery{Statement: statement, DataSourceName: dataSource}}
	if err := c.do(ctx, http.MethodPost, "queries", "queries", req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return "", err
	}
	if !resp.Success || resp.QueryID == "" {
		err := &SubmissionError{Statement: statement, Description: resp.Description}
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission rejected")
		return "", err
	}
	span.SetAttributes(attribute.String("anonapi.query_id", resp.QueryID))
	c.logger.Debug("query submitted", slog.String("query_id", resp.QueryID), slog.String("data_source", dataSource))
	return resp.QueryID, nil
}

// Poll fetches the current state of a query.
func (c *Client) Poll(ctx context.Context, queryID string) (*QueryResult, error) {
	var resp pollResponse
	if err := c.do(ctx, http.MethodGet, "queries/"+url.PathEscape(queryID), "queries/:id", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Query.ID == "" {
		resp.Query.ID = queryID
	}
	return &resp.Query, nil
}

// PollUntilComplete polls until the query completes or ctx is done, sleeping
// interval between attempts. A non-positive interval uses the client default.
// Cancellation only stops the local loop; use Cancel to stop the remote query.
func (c *Client) PollUntilComplete(ctx context.Context, queryID string, interval time.Duration) (*QueryResult, error) {
	if interval <= 0 {
		interval = c.pollInterval
	}
	for {
		r, err := c.Poll(ctx, queryID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if r.Completed {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ExecuteAndAwait submits a statement and waits at most timeout for it to
// complete. A non-positive timeout waits until ctx is done. Queries that
// complete with a server side error are returned as *QueryResultError.
func (c *Client) ExecuteAndAwait(ctx context.Context, statement, dataSource string, timeout time.Duration) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "anonapi.ExecuteAndAwait", trace.WithAttributes(
		attribute.String("anonapi.data_source", dataSource),
	))
	defer span.End()
	start := time.Now()

	if err := c.queries.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.queries.Release(1)

	id, err := c.Submit(ctx, statement, dataSource)
	if err != nil {
		recordQuery(ctx, "rejected", time.Since(start))
		return nil, err
	}
	span.SetAttributes(attribute.String("anonapi.query_id", id))

	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	r, err := c.PollUntilComplete(pollCtx, id, 0)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		recordQuery(ctx, "canceled", time.Since(start))
		if c.cancelOnAbort {
			c.abort(id)
		}
		return nil, ctx.Err()
	case pollCtx.Err() != nil:
		recordQuery(ctx, "timeout", time.Since(start))
		terr := &TimeoutError{QueryID: id, Timeout: timeout}
		span.RecordError(terr)
		span.SetStatus(codes.Error, "timeout")
		c.logger.Warn("query timed out", slog.String("query_id", id), slog.Duration("timeout", timeout))
		return nil, terr
	default:
		recordQuery(ctx, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		return nil, err
	}

	if r.Failed() {
		recordQuery(ctx, "failed", time.Since(start))
		qerr := &QueryResultError{QueryID: id, Statement: statement, State: r.State, Message: *r.Error}
		span.RecordError(qerr)
		span.SetStatus(codes.Error, "query failed")
		c.logger.Warn("query failed", slog.String("query_id", id), slog.String("state", r.State), slog.String("error", *r.Error))
		return nil, qerr
	}
	recordQuery(ctx, "completed", time.Since(start))
	span.SetAttributes(attribute.Int("anonapi.rows", len(r.Rows)))
	c.logger.Debug("query completed",
		slog.String("query_id", id),
		slog.Int("rows", len(r.Rows)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return r, nil
}

func (c *Client) abort(queryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Cancel(ctx, queryID); err != nil {
		c.logger.Warn("remote cancel failed", slog.String("query_id", queryID), slog.Any("error", err))
	}
}

// Cancel asks the service to stop a query. A query that is unknown or already
// finished is not an error.
func (c *Client) Cancel(ctx context.Context, queryID string) error {
	ctx, span := tracer.Start(ctx, "anonapi.Cancel", trace.WithAttributes(
		attribute.String("anonapi.query_id", queryID),
	))
	defer span.End()

	err := c.do(ctx, http.MethodPost, "queries/"+url.PathEscape(queryID)+"/cancel", "queries/:id/cancel", nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusGone || apiErr.StatusCode == http.StatusConflict) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		return err
	}
	c.logger.Debug("query canceled", slog.String("query_id", queryID))
	return nil
}

// DataSources lists the data sources visible to the credential.
func (c *Client) DataSources(ctx context.Context) ([]DataSource, error) {
	ctx, span := tracer.Start(ctx, "anonapi.DataSources")
	defer span.End()

	var out []DataSource
	if err := c.do(ctx, http.MethodGet, "data_sources", "data_sources", nil, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list data sources failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("anonapi.data_sources", len(out)))
	return out, nil
}
