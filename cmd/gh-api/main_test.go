package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jwodder/ghreq/internal/testutil"
	"github.com/jwodder/ghreq/pkg/client"
)

func newTestClient(t *testing.T, baseURL string) *client.Client {
	t.Helper()

	cfg := client.Config{
		BaseURL:   baseURL,
		UserAgent: "gh-api-test/1.0",
		Retry:     client.RetryConfig{Retries: 0},
	}
	gh, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { gh.Close() })
	return gh
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Creating a client ensures all metrics are registered
	mock := testutil.NewMockGitHub()
	defer mock.Close()
	newTestClient(t, mock.URL())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler := promhttp.Handler()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)

	// Just verify we get prometheus output format
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}

	// The mutation wait histogram carries no labels, so it is exported
	// as soon as the package registers it
	if !strings.Contains(bodyStr, "ghreq_mutation_wait_seconds") {
		t.Error("Expected metrics output to contain ghreq_mutation_wait_seconds")
	}
}

func TestProxyHandler(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()

	mock.SetResponse("/repos/octocat/hello-world", testutil.NewJSONResponse(`{"full_name": "octocat/hello-world"}`))

	gh := newTestClient(t, mock.URL())
	handler := proxyHandler(gh, zerolog.Nop())

	t.Run("forwards_response_body", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/gh/repos/octocat/hello-world", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		if !strings.Contains(string(body), "octocat/hello-world") {
			t.Errorf("Expected proxied body, got %s", string(body))
		}
	})

	t.Run("forwards_request_body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/gh/repos/octocat/hello-world/issues",
			strings.NewReader(`{"title": "bug"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler(w, req)

		if got := mock.LastRequestHeader.Get("Content-Type"); got != "application/json" {
			t.Errorf("Expected Content-Type to pass through, got %q", got)
		}
	})

	t.Run("api_error_becomes_bad_gateway", func(t *testing.T) {
		mock.SetResponse("/missing", testutil.MockResponse{
			StatusCode: http.StatusNotFound,
			Body:       `{"message": "Not Found"}`,
		})

		req := httptest.NewRequest("GET", "/gh/missing", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		if w.Result().StatusCode != http.StatusBadGateway {
			t.Errorf("Expected status 502, got %d", w.Result().StatusCode)
		}
	})
}

func TestRequestOptions(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		opts, err := requestOptions(
			[]string{"Accept: application/vnd.github.raw"},
			[]string{"state=open", "sort=updated"},
		)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(opts) != 3 {
			t.Errorf("Expected 3 options, got %d", len(opts))
		}
	})

	t.Run("invalid_header", func(t *testing.T) {
		if _, err := requestOptions([]string{"no-colon"}, nil); err == nil {
			t.Error("Expected error for malformed header")
		}
	})

	t.Run("invalid_query", func(t *testing.T) {
		if _, err := requestOptions(nil, []string{"no-equals"}); err == nil {
			t.Error("Expected error for malformed query parameter")
		}
	})
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	want := []string{"request", "paginate", "rate-limit", "serve"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected subcommand %q to be registered", name)
		}
	}
}
