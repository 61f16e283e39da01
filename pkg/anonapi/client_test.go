package anonapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	t            *testing.T
	pendingPolls int32
	polls        atomic.Int32
	cancels      atomic.Int32
	submitted    atomic.Value
	reject       bool
	queryError   string
	never        bool
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /queries", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "secret", r.Header.Get(CredentialHeader))
		body, _ := io.ReadAll(r.Body)
		f.submitted.Store(string(body))
		if f.reject {
			_, _ = w.Write([]byte(`{"success":false,"description":"bad statement"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"query_id":"q-1"}`))
	})
	mux.HandleFunc("GET /queries/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		if f.never || n <= f.pendingPolls {
			_, _ = w.Write([]byte(`{"query":{"completed":false,"query_state":"started"}}`))
			return
		}
		if f.queryError != "" {
			_ = json.NewEncoder(w).Encode(map[string]any{"query": map[string]any{
				"completed": true, "query_state": "error", "error": f.queryError,
			}})
			return
		}
		_, _ = w.Write([]byte(`{"query":{"completed":true,"query_state":"completed","statement":"SELECT 1",
			"error":null,"columns":["count","count_noise"],"types":["integer","real"],
			"rows":[{"row":[825,1],"occurrences":1}]}}`))
	})
	mux.HandleFunc("POST /queries/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.cancels.Add(1)
		if r.PathValue("id") == "gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("GET /data_sources", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"banking","description":"demo","tables":[{"id":"loans","columns":[
			{"name":"uid","type":"integer","user_id":true,"isolated":true},
			{"name":"amount","type":"real","user_id":false,"isolated":false},
			{"name":"status","type":"text","user_id":false,"isolated":"pending"}]}]}]`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeService) (*Client, *httptest.Server) {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c := NewClient(NewHTTPTransport(srv.URL), Config{Credential: "secret", PollInterval: time.Millisecond})
	return c, srv
}

func TestExecuteAndAwait(t *testing.T) {
	f := &fakeService{pendingPolls: 2}
	c, _ := newTestClient(t, f)

	r, err := c.ExecuteAndAwait(context.Background(), "SELECT count(*) FROM loans", "banking", time.Second)
	require.NoError(t, err)
	assert.True(t, r.Completed)
	assert.Equal(t, int32(3), f.polls.Load())
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "825", string(r.Rows[0].Row[0]))
	assert.Equal(t, "q-1", r.ID)

	var sub submitRequest
	require.NoError(t, json.Unmarshal([]byte(f.submitted.Load().(string)), &sub))
	assert.Equal(t, "banking", sub.Query.DataSourceName)
	assert.Equal(t, "SELECT count(*) FROM loans", sub.Query.Statement)
}

func TestSubmit_Rejected(t *testing.T) {
	c, _ := newTestClient(t, &fakeService{reject: true})
	_, err := c.Submit(context.Background(), "SELECT", "banking")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubmissionRejected))
	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad statement", se.Description)
}

func TestExecuteAndAwait_QueryResultError(t *testing.T) {
	c, _ := newTestClient(t, &fakeService{queryError: "column not found"})
	_, err := c.ExecuteAndAwait(context.Background(), "SELECT x FROM t", "banking", time.Second)
	var qe *QueryResultError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "column not found", qe.Message)
	assert.Equal(t, "error", qe.State)
	assert.Equal(t, "SELECT x FROM t", qe.Statement)
}

func TestExecuteAndAwait_Timeout(t *testing.T) {
	f := &fakeService{never: true}
	c, _ := newTestClient(t, f)
	_, err := c.ExecuteAndAwait(context.Background(), "SELECT", "banking", 30*time.Millisecond)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "q-1", te.QueryID)
	assert.Zero(t, f.cancels.Load(), "a local timeout does not cancel remotely")
}

func TestExecuteAndAwait_CallerCancelStaysLocal(t *testing.T) {
	f := &fakeService{never: true}
	c, _ := newTestClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.ExecuteAndAwait(ctx, "SELECT", "banking", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.cancels.Load(), "remote cancel needs CancelOnAbort or an explicit Cancel")
}

func TestExecuteAndAwait_CancelOnAbort(t *testing.T) {
	f := &fakeService{never: true}
	f.t = t
	srv := httptest.NewServer(f.handler())
	defer srv.Close()
	c := NewClient(NewHTTPTransport(srv.URL), Config{Credential: "secret", PollInterval: time.Millisecond, CancelOnAbort: true})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.ExecuteAndAwait(ctx, "SELECT", "banking", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), f.cancels.Load())
}

func TestPollUntilComplete_Canceled(t *testing.T) {
	f := &fakeService{never: true}
	c, _ := newTestClient(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.PollUntilComplete(ctx, "q-1", time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.cancels.Load())
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"description":"invalid auth-token"}`))
	}))
	defer srv.Close()
	c := NewClient(NewHTTPTransport(srv.URL), Config{})
	_, err := c.DataSources(context.Background())
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)
	assert.Equal(t, "invalid auth-token", ae.Description)
	assert.Equal(t, "data_sources", ae.Endpoint)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(NewHTTPTransport(url), Config{})
	_, err := c.Submit(context.Background(), "SELECT", "banking")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.MethodPost, te.Method)
}

func TestCancel(t *testing.T) {
	f := &fakeService{}
	c, _ := newTestClient(t, f)
	require.NoError(t, c.Cancel(context.Background(), "q-1"))
	require.NoError(t, c.Cancel(context.Background(), "gone"))
	assert.Equal(t, int32(2), f.cancels.Load())
}

func TestDataSources(t *testing.T) {
	c, _ := newTestClient(t, &fakeService{})
	ds, err := c.DataSources(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 1)
	tbl, ok := ds[0].Table("loans")
	require.True(t, ok)

	uid, _ := tbl.Column("uid")
	assert.True(t, uid.UserID)
	assert.True(t, uid.Isolated.Isolating())

	amount, _ := tbl.Column("amount")
	assert.False(t, amount.Isolated.Isolating())

	status, _ := tbl.Column("status")
	assert.True(t, status.Isolated.Isolating(), "unchecked columns count as isolating")
	assert.Equal(t, IsolationPending, status.Isolated.Status)

	_, ok = tbl.Column("missing")
	assert.False(t, ok)
}

func TestIsolation_JSON(t *testing.T) {
	for _, raw := range []string{`true`, `false`, `"failed"`, `null`} {
		var i Isolation
		require.NoError(t, json.Unmarshal([]byte(raw), &i))
		b, err := json.Marshal(i)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(b))
	}
	var i Isolation
	assert.Error(t, json.Unmarshal([]byte(`42`), &i))
}

func TestRateLimitedTransport(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	tr := NewHTTPTransport(srv.URL, WithRateLimit(1, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := tr.Send(ctx, http.MethodGet, "data_sources", "", nil)
	require.NoError(t, err)
	_, _, err = tr.Send(ctx, http.MethodGet, "data_sources", "", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, int32(1), hits.Load())
}
