// Package metrics provides the centralized Prometheus metrics registry for
// the GitHub client. All metrics are defined in their respective packages
// (client, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ghreq_requests_total{method, status} (Counter): Dispatches by method and final status
//   - ghreq_request_duration_seconds{method} (Histogram): Dispatch duration including retries and waits
//   - ghreq_errors_total{class} (Counter): Terminal errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - ghreq_retries_total{error_class} (Counter): Retry attempts by error class
//   - ghreq_retry_wait_seconds{error_class} (Histogram): Wait before each retry by error class
//   - ghreq_retry_exhausted_total{error_class} (Counter): Requests that ran out of retry budget
//
// Mutation Throttle Metrics (pkg/client):
//   - ghreq_mutation_wait_seconds (Histogram): Wait imposed on mutating requests by the delay floor
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ghreq_rate_limit_remaining{resource} (Gauge): Requests remaining in the current window
//   - ghreq_rate_limit_limit{resource} (Gauge): Request quota of the current window
//   - ghreq_rate_limit_exhausted_total{resource} (Counter): Responses reporting an empty window
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   rate(ghreq_errors_total[5m])
//
//   # Retry Pressure by Class
//   sum by (error_class) (rate(ghreq_retries_total[5m]))
//
//   # P95 Dispatch Latency
//   histogram_quantile(0.95, rate(ghreq_request_duration_seconds_bucket[5m]))
//
//   # Remaining Quota Headroom
//   ghreq_rate_limit_remaining{resource="core"} / ghreq_rate_limit_limit{resource="core"}
//
//   # Time Lost to the Mutation Throttle
//   rate(ghreq_mutation_wait_seconds_sum[5m])
