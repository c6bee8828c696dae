package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	ghreqRateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ghreq_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window by resource",
	}, []string{"resource"})

	ghreqRateLimitLimit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ghreq_rate_limit_limit",
		Help: "Request quota of the current rate limit window by resource",
	}, []string{"resource"})

	ghreqRateLimitExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghreq_rate_limit_exhausted_total",
		Help: "Total number of responses reporting an exhausted rate limit window by resource",
	}, []string{"resource"})
)

// mirrorGrace keeps mirrored snapshots readable slightly past their reset.
const mirrorGrace = time.Minute

// Tracker keeps the latest rate-limit snapshot per resource. It never gates
// or delays requests.
type Tracker struct {
	redis  *redis.Client // optional mirror, may be nil
	logger zerolog.Logger

	mu     sync.RWMutex
	latest map[string]Snapshot
}

// NewTracker creates a new rate limit tracker. redisClient may be nil, in
// which case snapshots are kept in memory only.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		latest: make(map[string]Snapshot),
	}
}

// UpdateFromHeaders records the rate-limit headers of one response.
// Responses without them are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainingStr := headers.Get("X-Ratelimit-Remaining")
	if remainingStr == "" {
		return nil
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return fmt.Errorf("parse x-ratelimit-remaining header: %w", err)
	}

	snap := Snapshot{
		Remaining:  remaining,
		Resource:   headers.Get("X-Ratelimit-Resource"),
		ObservedAt: time.Now(),
	}
	if snap.Resource == "" {
		snap.Resource = DefaultResource
	}
	if v := headers.Get("X-Ratelimit-Limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			snap.Limit = limit
		}
	}
	if v := headers.Get("X-Ratelimit-Used"); v != "" {
		if used, err := strconv.Atoi(v); err == nil {
			snap.Used = used
		}
	}
	if v := headers.Get("X-Ratelimit-Reset"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			snap.ResetAt = time.Unix(secs, 0)
		}
	}

	t.mu.Lock()
	t.latest[snap.Resource] = snap
	t.mu.Unlock()

	ghreqRateLimitRemaining.WithLabelValues(snap.Resource).Set(float64(snap.Remaining))
	if snap.Limit > 0 {
		ghreqRateLimitLimit.WithLabelValues(snap.Resource).Set(float64(snap.Limit))
	}

	switch {
	case snap.Exhausted():
		ghreqRateLimitExhaustedTotal.WithLabelValues(snap.Resource).Inc()
		t.logger.Error().
			Str("resource", snap.Resource).
			Time("reset_at", snap.ResetAt).
			Msg("Rate limit exhausted")
	case snap.Remaining < RemainingWarning:
		t.logger.Warn().
			Str("resource", snap.Resource).
			Int("remaining", snap.Remaining).
			Time("reset_at", snap.ResetAt).
			Msg("Rate limit running low")
	default:
		t.logger.Debug().
			Str("resource", snap.Resource).
			Int("remaining", snap.Remaining).
			Msg("Rate limit state updated")
	}

	if t.redis == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal rate limit snapshot: %w", err)
	}
	ttl := snap.TimeUntilReset() + mirrorGrace
	if err := t.redis.Set(ctx, RedisKeyPrefix+snap.Resource, data, ttl).Err(); err != nil {
		return fmt.Errorf("mirror rate limit snapshot to redis: %w", err)
	}
	return nil
}

// Snapshot returns the latest state of the default resource.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	return t.SnapshotFor(ctx, DefaultResource)
}

// SnapshotFor returns the latest state of one rate-limit resource. Local
// observations win over the Redis mirror; the zero snapshot means nothing
// has been observed yet.
func (t *Tracker) SnapshotFor(ctx context.Context, resource string) (Snapshot, error) {
	t.mu.RLock()
	snap, ok := t.latest[resource]
	t.mu.RUnlock()
	if ok || t.redis == nil {
		return snap, nil
	}

	data, err := t.redis.Get(ctx, RedisKeyPrefix+resource).Bytes()
	if err == redis.Nil {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get mirrored rate limit snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse mirrored rate limit snapshot: %w", err)
	}
	return snap, nil
}
