package client

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry behavior.
var (
	ghreqRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghreq_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	ghreqRetryWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghreq_retry_wait_seconds",
		Help:    "Wait duration before retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"error_class"})

	ghreqRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghreq_retry_exhausted_total",
		Help: "Total number of times a request ran out of retry attempts by error class",
	}, []string{"error_class"})
)

// RetryConfig controls how failed or rate-limited requests are retried.
// The zero value disables retries; DefaultRetryConfig returns the tuning
// used against api.github.com.
type RetryConfig struct {
	// Retries is the number of retry attempts after the initial try.
	Retries int

	// BackoffFactor scales the computed wait between retries, in seconds.
	BackoffFactor float64

	// BackoffBase is the exponential growth base for successive waits.
	BackoffBase float64

	// BackoffJitter adds up to this many seconds of random noise to each
	// computed wait.
	BackoffJitter float64

	// BackoffMax caps a single computed wait. Server-provided hints
	// (Retry-After, x-ratelimit-reset) may exceed it.
	BackoffMax time.Duration

	// TotalWait bounds the cumulative time spent on one request across all
	// its retries. When a pending wait would cross the bound, the request
	// gives up instead of sleeping. Zero or negative means unbounded.
	TotalWait time.Duration

	// RetryStatuses lists HTTP status codes that are always retried. Nil
	// selects the default range 500-599; an empty non-nil slice disables
	// status-based retries.
	RetryStatuses []int
}

// DefaultRetryConfig returns the standard retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:       10,
		BackoffFactor: 1.0,
		BackoffBase:   1.25,
		BackoffJitter: 0,
		BackoffMax:    120 * time.Second,
		TotalWait:     5 * time.Minute,
	}
}

// validate checks the numeric invariants.
func (c RetryConfig) validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("retries must be non-negative")
	}
	if c.BackoffFactor < 0 {
		return fmt.Errorf("backoff factor must be non-negative")
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("backoff base must be non-negative")
	}
	if c.BackoffJitter < 0 {
		return fmt.Errorf("backoff jitter must be non-negative")
	}
	if c.BackoffMax < 0 {
		return fmt.Errorf("backoff max must be non-negative")
	}
	return nil
}

// retryableStatus reports whether status is unconditionally retried.
func (c RetryConfig) retryableStatus(status int) bool {
	if c.RetryStatuses == nil {
		return status >= 500 && status < 600
	}
	for _, s := range c.RetryStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// attemptOutcome is the result of one send: either a transport failure (Err
// set) or an HTTP response. Error response bodies are read eagerly so the
// decision logic can inspect them.
type attemptOutcome struct {
	Err    error
	Status int
	Header http.Header
	Body   []byte
}

// retryDecision is the verdict on one attempt.
type retryDecision struct {
	retry bool
	wait  time.Duration
	class ErrorClass
}

// retrier tracks the attempt count and total-wait budget for a single
// dispatch. It performs no I/O; the dispatcher owns the actual sleeps.
type retrier struct {
	cfg      RetryConfig
	clock    clock
	jitter   func() float64
	attempts int
	started  time.Time
}

func newRetrier(cfg RetryConfig, clk clock) *retrier {
	return &retrier{
		cfg:     cfg,
		clock:   clk,
		jitter:  rand.Float64,
		started: clk.Now(),
	}
}

// decide evaluates the outcome of one attempt and, when the request should
// be retried, computes the wait before the next one. A give-up verdict
// still carries the error class when the outcome was retryable but the
// attempt or time budget ran out.
//
// A 403 is retried only when it carries a rate-limit signal (a Retry-After
// header or "rate limit" in the body) or is listed in RetryStatuses; a
// generic 403 is terminal. Server wait hints win over the computed backoff
// when longer. Transport failures are always retryable here; the dispatcher
// returns cancellations before they reach the retrier.
func (r *retrier) decide(out attemptOutcome) retryDecision {
	r.attempts++
	now := r.clock.Now()
	backoff := r.backoff(r.attempts)
	var wait time.Duration
	var class ErrorClass
	switch {
	case out.Err != nil:
		wait = backoff
		class = ErrorClassNetwork
	case out.Status == http.StatusForbidden:
		switch {
		case out.Header.Get("Retry-After") != "":
			wait = max(backoff, retryAfterHint(out.Header, now))
			class = ErrorClassRateLimit
		case strings.Contains(strings.ToLower(string(out.Body)), "rate limit"):
			wait = backoff
			if out.Header.Get("X-Ratelimit-Remaining") == "0" {
				if hint, ok := rateLimitResetHint(out.Header, now); ok {
					wait = max(backoff, hint)
				}
			}
			class = ErrorClassRateLimit
		case r.cfg.retryableStatus(out.Status):
			wait = backoff
			class = ErrorClassClient
		default:
			return retryDecision{}
		}
	case r.cfg.retryableStatus(out.Status):
		wait = max(backoff, retryAfterHint(out.Header, now))
		class = classifyStatus(out.Status)
	default:
		return retryDecision{}
	}
	d := retryDecision{wait: max(wait, 0), class: class}
	if r.attempts > r.cfg.Retries {
		return d
	}
	if r.cfg.TotalWait > 0 && now.Sub(r.started)+d.wait > r.cfg.TotalWait {
		return d
	}
	d.retry = true
	return d
}

// backoff computes the wait before retry number attempts. The first retry
// uses a short fixed fraction of the factor; later retries grow
// exponentially with additive jitter, capped at BackoffMax.
func (r *retrier) backoff(attempts int) time.Duration {
	if attempts < 2 {
		return time.Duration(r.cfg.BackoffFactor * 0.1 * float64(time.Second))
	}
	b := r.cfg.BackoffFactor * math.Pow(r.cfg.BackoffBase, float64(attempts-1))
	if r.cfg.BackoffJitter > 0 {
		b += r.jitter() * r.cfg.BackoffJitter
	}
	d := time.Duration(b * float64(time.Second))
	if d > r.cfg.BackoffMax {
		d = r.cfg.BackoffMax
	}
	return max(d, 0)
}

// retryAfterHint parses a Retry-After header as integer seconds or an
// HTTP-date. Absent or malformed values yield 0 so the computed backoff
// wins.
func retryAfterHint(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return t.Sub(now)
	}
	return 0
}

// rateLimitResetHint converts an x-ratelimit-reset timestamp (Unix seconds)
// into a wait from now.
func rateLimitResetHint(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("X-Ratelimit-Reset")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Unix(secs, 0).Sub(now), true
}
