// Package client provides the core GitHub REST API request dispatcher:
// URL resolution against a base API URL, standard header handling, retries
// with rate-limit-aware backoff, a mutation-delay throttle, JSON decoding,
// and pagination.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jwodder/ghreq/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for request dispatch.
var (
	ghreqRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghreq_requests_total",
		Help: "Total requests by method and final status",
	}, []string{"method", "status"})

	ghreqRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghreq_request_duration_seconds",
		Help:    "Request duration in seconds by method, including retries and waits",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	ghreqErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghreq_errors_total",
		Help: "Total terminal request errors by class",
	}, []string{"class"})
)

// Client dispatches requests against the GitHub REST API (or an
// API-compatible service). All requests made through one client share its
// session headers, retry configuration, and mutation throttle. A client is
// safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    http.Header // session headers applied to every request
	retry      RetryConfig
	throttle   *mutationThrottle
	rateLimits *ratelimit.Tracker
	clock      clock
	config     Config
	logger     zerolog.Logger
	closed     atomic.Bool
}

// Config holds the client configuration. The zero value talks to
// api.github.com (or GITHUB_API_URL) anonymously with no Accept or version
// header, no mutation delay, and no retries; start from DefaultConfig for
// the standard GitHub behavior.
type Config struct {
	// BaseURL is the root all relative request paths are joined to. Empty
	// selects the GITHUB_API_URL environment variable, falling back to
	// DefaultAPIURL.
	BaseURL string

	// Token, when non-empty, is sent as a bearer Authorization header.
	Token string

	// UserAgent identifies the caller. Empty selects a default built from
	// the library name and version; see MakeUserAgent for building one.
	UserAgent string

	// Accept is sent as the Accept header on every request. Empty omits
	// the header.
	Accept string

	// APIVersion is sent as the X-GitHub-Api-Version header. Empty omits
	// the header.
	APIVersion string

	// Headers holds extra session headers applied to every request.
	Headers map[string]string

	// MutationDelay is the minimum spacing between mutating requests
	// (POST, PATCH, PUT, DELETE) made through this client.
	MutationDelay time.Duration

	// Retry controls retry and backoff behavior.
	Retry RetryConfig

	// Timeout bounds each individual HTTP attempt when no custom
	// HTTPClient is supplied. Zero means no timeout; per-request deadlines
	// come from the context.
	Timeout time.Duration

	// HTTPClient, when set, replaces the default transport.
	HTTPClient *http.Client

	// Redis, when set, mirrors observed rate-limit state so other
	// processes sharing the token can read it. The client works without
	// it.
	Redis *redis.Client
}

// DefaultConfig returns the standard configuration for api.github.com.
func DefaultConfig() Config {
	return Config{
		Accept:        DefaultAccept,
		APIVersion:    DefaultAPIVersion,
		MutationDelay: 1 * time.Second,
		Retry:         DefaultRetryConfig(),
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.MutationDelay < 0 {
		return nil, fmt.Errorf("mutation delay must be non-negative")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be non-negative")
	}
	if err := cfg.Retry.validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = GitHubAPIURL()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent()
	}

	headers := make(http.Header)
	if cfg.Accept != "" {
		headers.Set("Accept", cfg.Accept)
	}
	if cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+cfg.Token)
	}
	headers.Set("User-Agent", userAgent)
	if cfg.APIVersion != "" {
		headers.Set("X-Github-Api-Version", cfg.APIVersion)
	}
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := log.With().Str("component", "ghreq").Logger()

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		headers:    headers,
		retry:      cfg.Retry,
		throttle:   newMutationThrottle(cfg.MutationDelay),
		rateLimits: ratelimit.NewTracker(cfg.Redis, logger),
		clock:      realClock{},
		config:     cfg,
		logger:     logger,
	}, nil
}

// BaseURL returns the resolved base API URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET request and decodes the JSON response into out. A nil
// out discards the body.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post issues a POST request with body serialized as JSON and decodes the
// response into out. A nil body sends no payload; a nil out discards the
// response.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPost, path, body, out, opts...)
}

// Put issues a PUT request with body serialized as JSON and decodes the
// response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPut, path, body, out, opts...)
}

// Patch issues a PATCH request with body serialized as JSON and decodes the
// response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodPatch, path, body, out, opts...)
}

// Delete issues a DELETE request and decodes the JSON response, if any,
// into out.
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Request(ctx, http.MethodDelete, path, nil, out, opts...)
}

// RateLimit returns the most recently observed rate-limit state for this
// client's token. The zero snapshot means no request has reported one yet.
func (c *Client) RateLimit(ctx context.Context) (ratelimit.Snapshot, error) {
	return c.rateLimits.Snapshot(ctx)
}

// Close marks the client closed and releases idle transport connections.
// Any request dispatched afterwards fails with ErrClientClosed.
func (c *Client) Close() error {
	c.closed.Store(true)
	if c.config.HTTPClient == nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}
