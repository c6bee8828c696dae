// Package ratelimit tracks the x-ratelimit-* headers GitHub attaches to API
// responses. Tracking is passive: the dispatcher's retry logic owns all
// waiting, while this package keeps the latest view queryable and,
// optionally, mirrors it to Redis for other processes sharing the same
// token.
package ratelimit

import (
	"time"
)

// Redis key layout for mirrored snapshots.
const (
	// RedisKeyPrefix precedes the resource name in mirrored snapshot keys.
	RedisKeyPrefix = "ghreq:rate_limit:"

	// DefaultResource is assumed when a response names no rate-limit
	// resource.
	DefaultResource = "core"
)

// RemainingWarning is the remaining-request count below which snapshot
// updates are logged as warnings.
const RemainingWarning = 100

// Snapshot is one observation of the rate-limit headers on a response.
// The zero value means no response has reported state yet.
type Snapshot struct {
	// Limit is the request quota of the current window, from
	// x-ratelimit-limit.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window, from
	// x-ratelimit-remaining.
	Remaining int `json:"remaining"`

	// Used is the number of requests spent in the window, from
	// x-ratelimit-used.
	Used int `json:"used"`

	// ResetAt is when the window resets, from x-ratelimit-reset.
	ResetAt time.Time `json:"reset_at"`

	// Resource names the rate-limit bucket the headers describe, from
	// x-ratelimit-resource.
	Resource string `json:"resource"`

	// ObservedAt is when this snapshot was taken from a response.
	ObservedAt time.Time `json:"observed_at"`
}

// IsZero reports whether no response has been observed yet.
func (s Snapshot) IsZero() bool {
	return s.ObservedAt.IsZero()
}

// IsStale reports whether the snapshot is older than maxAge.
func (s Snapshot) IsStale(maxAge time.Duration) bool {
	return time.Since(s.ObservedAt) > maxAge
}

// Exhausted reports whether the window has no requests left.
func (s Snapshot) Exhausted() bool {
	return !s.IsZero() && s.Remaining == 0
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s Snapshot) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}
