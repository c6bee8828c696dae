package client

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the mutation throttle.
var ghreqMutationWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "ghreq_mutation_wait_seconds",
	Help:    "Wait imposed on mutating requests by the mutation-delay floor",
	Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 5},
})

// mutationThrottle spaces mutating requests (POST, PATCH, PUT, DELETE) made
// through one client by at least a fixed delay. The timestamp is shared by
// all calls through the client, not tracked per endpoint, and the first
// mutating request never waits.
type mutationThrottle struct {
	delay time.Duration

	mu   sync.Mutex
	last time.Time // reserved send time of the most recent mutating request
}

func newMutationThrottle(delay time.Duration) *mutationThrottle {
	return &mutationThrottle{delay: delay}
}

// reserve claims the next send slot and returns how long the caller must
// wait before sending. Each concurrent caller gets its own slot, so any two
// mutating sends stay at least delay apart.
func (t *mutationThrottle) reserve(now time.Time) time.Duration {
	if t.delay <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := now
	if !t.last.IsZero() {
		if next := t.last.Add(t.delay); next.After(slot) {
			slot = next
		}
	}
	t.last = slot
	return slot.Sub(now)
}
