package anonapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Transport sends one request to the anonymized query service. Only network
// failures are errors; any HTTP status is returned to the caller.
type Transport interface {
	Send(ctx context.Context, method, endpoint, credential string, body []byte) (int, []byte, error)
}

// CredentialHeader carries the per-call API credential.
const CredentialHeader = "auth-token"

const maxResponseBytes = 64 << 20

// HTTPTransport is a Transport over net/http. It is safe for concurrent use.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) TransportOption {
	return func(t *HTTPTransport) {
		if rps <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewHTTPTransport(baseURL string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *HTTPTransport) Send(ctx context.Context, method, endpoint, credential string, body []byte) (int, []byte, error) {
	fail := func(err error) (int, []byte, error) {
		return 0, nil, &TransportError{Method: method, Endpoint: endpoint, Err: err}
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+"/"+strings.TrimLeft(endpoint, "/"), rd)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set(CredentialHeader, credential)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(err)
	}
	return resp.StatusCode, b, nil
}
