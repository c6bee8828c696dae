package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{status: 400, want: ErrorClassClient},
		{status: 403, want: ErrorClassClient},
		{status: 404, want: ErrorClassClient},
		{status: 499, want: ErrorClassClient},
		{status: 500, want: ErrorClassServer},
		{status: 503, want: ErrorClassServer},
		{status: 200, want: ""},
		{status: 302, want: ""},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRequestCancelled(t *testing.T) {
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()
	expiredCtx, cancelExpired := context.WithDeadline(context.Background(), time.Unix(0, 0))
	defer cancelExpired()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{
			name: "generic network error",
			ctx:  context.Background(),
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "timeout from net package",
			ctx:  context.Background(),
			err:  &net.OpError{Op: "dial", Err: errors.New("i/o timeout")},
			want: false,
		},
		{
			// http.Client.Timeout failures wrap DeadlineExceeded; with the
			// caller's context still live they stay retryable.
			name: "attempt timeout with live context",
			ctx:  context.Background(),
			err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
			want: false,
		},
		{
			name: "cancelled error",
			ctx:  context.Background(),
			err:  fmt.Errorf("request: %w", context.Canceled),
			want: true,
		},
		{
			name: "cancelled context",
			ctx:  cancelledCtx,
			err:  errors.New("connection reset"),
			want: true,
		},
		{
			name: "expired caller deadline",
			ctx:  expiredCtx,
			err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestCancelled(tt.ctx, tt.err); got != tt.want {
				t.Errorf("requestCancelled(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPError_Error(t *testing.T) {
	tests := []struct {
		name     string
		httpErr  *HTTPError
		expected string
	}{
		{
			name: "client error with json body",
			httpErr: &HTTPError{
				StatusCode: 404,
				Status:     "404 Not Found",
				URL:        "https://api.github.com/repos/no/such",
				Body:       []byte(`{"message": "Not Found"}`),
			},
			expected: "404 Client Error: Not Found for URL: https://api.github.com/repos/no/such\n\n{\n    \"message\": \"Not Found\"\n}",
		},
		{
			name: "server error without body",
			httpErr: &HTTPError{
				StatusCode: 502,
				Status:     "502 Bad Gateway",
				URL:        "https://api.github.com/user",
			},
			expected: "502 Server Error: Bad Gateway for URL: https://api.github.com/user",
		},
		{
			name: "whitespace body is dropped",
			httpErr: &HTTPError{
				StatusCode: 500,
				Status:     "500 Internal Server Error",
				URL:        "https://api.github.com/user",
				Body:       []byte("  \n\t "),
			},
			expected: "500 Internal Server Error: Internal Server Error for URL: https://api.github.com/user",
		},
		{
			name: "non-json body is verbatim",
			httpErr: &HTTPError{
				StatusCode: 403,
				Status:     "403 Forbidden",
				URL:        "https://api.github.com/user",
				Body:       []byte("slow down"),
			},
			expected: "403 Forbidden: Forbidden for URL: https://api.github.com/user\n\nslow down",
		},
		{
			name: "missing reason falls back to status text",
			httpErr: &HTTPError{
				StatusCode: 404,
				Status:     "",
				URL:        "https://api.github.com/user",
			},
			expected: "404 Client Error: Not Found for URL: https://api.github.com/user",
		},
		{
			name: "unknown status code",
			httpErr: &HTTPError{
				StatusCode: 999,
				Status:     "999 Weird",
				URL:        "https://api.github.com/user",
			},
			expected: "999 Unknown Error: Weird for URL: https://api.github.com/user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.httpErr.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}

	t.Run("500 reads as server error", func(t *testing.T) {
		e := &HTTPError{StatusCode: 500, Status: "500 Internal Server Error", URL: "u"}
		if !strings.Contains(e.Error(), "Server Error") {
			t.Errorf("Error() = %q, want mention of Server Error", e.Error())
		}
	})
}

func TestTransportError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	transportErr := &TransportError{
		Method:   "GET",
		URL:      "https://api.github.com/user",
		Attempts: 11,
		Err:      cause,
	}

	want := "GET https://api.github.com/user failed after 11 attempts: dial tcp: connection refused"
	if got := transportErr.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(transportErr, ErrRetryExhausted) {
		t.Error("errors.Is(err, ErrRetryExhausted) = false, want true")
	}
	if !errors.Is(transportErr, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestDecodeError(t *testing.T) {
	cause := errors.New("invalid character 'x'")
	decodeErr := &DecodeError{URL: "https://api.github.com/user", Err: cause}

	want := "decode response from https://api.github.com/user: invalid character 'x'"
	if got := decodeErr.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(decodeErr, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestPaginationShapeError(t *testing.T) {
	shapeErr := &PaginationShapeError{URL: "https://api.github.com/search/code?q=x", ListFields: 2}

	want := "no unique items list in https://api.github.com/search/code?q=x response (2 list-valued fields)"
	if got := shapeErr.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
