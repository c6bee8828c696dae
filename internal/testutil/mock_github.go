// Package testutil provides testing utilities for the GitHub client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RequestRecord captures one request the mock server received.
type RequestRecord struct {
	Method string
	Path   string
	Time   time.Time
	Header http.Header
}

// MockGitHub is a configurable mock GitHub API server for testing.
type MockGitHub struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	records           []RequestRecord
}

// NewMockGitHub creates a new mock GitHub API server.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.records = append(mock.records, RequestRecord{
			Method: r.Method,
			Path:   r.URL.Path,
			Time:   time.Now(),
			Header: r.Header.Clone(),
		})
		mock.mu.Unlock()

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		// Default handler
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockGitHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.records = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGitHub) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockGitHub) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, resp)
	})
}

// FailThenSucceed configures a path to return fail for the first failures
// requests and success afterwards.
func (m *MockGitHub) FailThenSucceed(path string, failures int, fail, success MockResponse) {
	var mu sync.Mutex
	seen := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen++
		failing := seen <= failures
		mu.Unlock()
		if failing {
			writeMockResponse(w, fail)
			return
		}
		writeMockResponse(w, success)
	})
}

// SetPaginated serves pages as the successive bodies of path, chained with
// Link rel="next" headers driven by the page query parameter.
func (m *MockGitHub) SetPaginated(path string, pages []string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if v := r.URL.Query().Get("page"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				page = n
			}
		}
		if page > len(pages) {
			http.NotFound(w, r)
			return
		}
		setRateLimitHeaders(w.Header())
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		base := m.server.URL + path
		var links []string
		if page < len(pages) {
			links = append(links, fmt.Sprintf(`<%s?page=%d>; rel="next"`, base, page+1))
		}
		links = append(links, fmt.Sprintf(`<%s?page=%d>; rel="last"`, base, len(pages)))
		w.Header().Set("Link", joinLinks(links))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[page-1]))
	})
}

// Records returns a snapshot of the requests received so far.
func (m *MockGitHub) Records() []RequestRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RequestRecord, len(m.records))
	copy(out, m.records)
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGitHub) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler provides default GitHub-like responses.
func (m *MockGitHub) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setRateLimitHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func setRateLimitHeaders(h http.Header) {
	h.Set("X-Ratelimit-Limit", "5000")
	h.Set("X-Ratelimit-Remaining", "4999")
	h.Set("X-Ratelimit-Used", "1")
	h.Set("X-Ratelimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	h.Set("X-Ratelimit-Resource", "core")
}

func joinLinks(links []string) string {
	out := ""
	for i, l := range links {
		if i > 0 {
			out += ", "
		}
		out += l
	}
	return out
}

// NewJSONResponse creates a standard 200 OK response with rate limit
// headers.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-Ratelimit-Limit":     "5000",
			"X-Ratelimit-Remaining": "4999",
			"X-Ratelimit-Used":      "1",
			"X-Ratelimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			"X-Ratelimit-Resource":  "core",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitedResponse creates a 403 primary-rate-limit response whose
// window resets after resetIn.
func NewRateLimitedResponse(resetIn time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message": "API rate limit exceeded for user.", "documentation_url": "https://docs.github.com/rest/overview/rate-limits-for-the-rest-api"}`,
		Headers: map[string]string{
			"X-Ratelimit-Limit":     "5000",
			"X-Ratelimit-Remaining": "0",
			"X-Ratelimit-Used":      "5000",
			"X-Ratelimit-Reset":     strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10),
			"X-Ratelimit-Resource":  "core",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRetryAfterResponse creates a 403 secondary-rate-limit response with a
// Retry-After hint.
func NewRetryAfterResponse(seconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message": "You have exceeded a secondary rate limit. Please wait a few minutes before you try again."}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(seconds),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewForbiddenResponse creates a plain 403 carrying no rate-limit signal.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message": "Must have admin rights to Repository.", "documentation_url": "https://docs.github.com/rest"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
