package anonapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrSubmissionRejected matches every *SubmissionError.
var ErrSubmissionRejected = errors.New("query submission rejected")

// TransportError is a network level failure talking to the service. The
// client never retries it.
type TransportError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport failure: %v", e.Method, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response.
type APIError struct {
	Method      string
	Endpoint    string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Description)
}

// SubmissionError is returned when the service refuses a statement up front.
type SubmissionError struct {
	Statement   string
	Description string
}

func (e *SubmissionError) Error() string {
	if e.Description == "" {
		return "query submission rejected"
	}
	return "query submission rejected: " + e.Description
}

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionRejected }

// QueryResultError is a query that completed with a server side error.
type QueryResultError struct {
	QueryID   string
	Statement string
	State     string
	Message   string
}

func (e *QueryResultError) Error() string {
	return fmt.Sprintf("query %s failed in state %q: %s", e.QueryID, e.State, e.Message)
}

// TimeoutError reports that a query did not complete within the caller's
// deadline. The remote query may still be running.
type TimeoutError struct {
	QueryID string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query %s did not complete within %s", e.QueryID, e.Timeout)
}
