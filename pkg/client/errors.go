package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned (wrapped) when all retry attempts are spent.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a
	// request or one of its waits.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrClientClosed is returned when a request is dispatched after Close.
	ErrClientClosed = errors.New("client is closed")
)

// ErrorClass buckets request failures for logging and metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses that are not rate limits.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 403 responses carrying rate-limit signals.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus buckets an HTTP status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// requestCancelled reports whether a transport failure reflects the caller's
// context rather than the attempt itself. Per-attempt http.Client.Timeout
// errors match context.DeadlineExceeded on their own since Go 1.23, so only
// the context's own state separates a caller deadline from an attempt
// timeout, which stays retryable.
func requestCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}

// HTTPError is returned when the API responds with a 4xx or 5xx status that
// is not retried (or whose retries are exhausted). The message embeds the
// response body, pretty-printed when it is JSON, so the API's own
// explanation reaches logs without a second lookup.
type HTTPError struct {
	StatusCode int
	Status     string // status line, e.g. "403 Forbidden"
	URL        string
	Header     http.Header
	Body       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	var kind string
	switch {
	case e.StatusCode >= 400 && e.StatusCode < 500:
		kind = "Client Error"
	case e.StatusCode >= 500 && e.StatusCode < 600:
		kind = "Server Error"
	default:
		kind = "Unknown Error"
	}
	msg := fmt.Sprintf("%d %s: %s for URL: %s", e.StatusCode, kind, e.reason(), e.URL)
	if strings.TrimSpace(string(e.Body)) == "" {
		return msg
	}
	var v any
	if err := json.Unmarshal(e.Body, &v); err == nil {
		if pretty, err := json.MarshalIndent(v, "", "    "); err == nil {
			return msg + "\n\n" + string(pretty)
		}
	}
	return msg + "\n\n" + string(e.Body)
}

// reason returns the status reason phrase.
func (e *HTTPError) reason() string {
	if r, ok := strings.CutPrefix(e.Status, fmt.Sprintf("%d ", e.StatusCode)); ok && r != "" {
		return r
	}
	return http.StatusText(e.StatusCode)
}

// TransportError is returned when the transport keeps failing and the retry
// budget is spent. It unwraps to both ErrRetryExhausted and the last
// underlying failure.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}

// DecodeError is returned when a non-blank response body that should contain
// JSON cannot be decoded.
type DecodeError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response from %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PaginationShapeError is returned when a page body is neither a JSON array
// nor an object with exactly one list-valued field.
type PaginationShapeError struct {
	URL        string
	ListFields int
}

// Error implements the error interface.
func (e *PaginationShapeError) Error() string {
	return fmt.Sprintf("no unique items list in %s response (%d list-valued fields)", e.URL, e.ListFields)
}
