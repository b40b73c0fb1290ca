// Package metrics exposes the Prometheus registry shared by restcsv packages.
// Metrics are defined in the packages that record them (client, cache,
// pagination, fetcher) and registered via promauto.
//
// restcsv is a batch tool with no scrape endpoint, so metrics are exported
// at the end of a run as a node_exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by restcsv.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes all metrics registered with Registry to path in the
// text exposition format. The file is replaced atomically.
func WriteTextfile(path string) error {
	return WriteTextfileFrom(path, Gatherer)
}

// WriteTextfileFrom writes the metrics gathered from g to path.
func WriteTextfileFrom(path string, g prometheus.Gatherer) error {
	if path == "" {
		return fmt.Errorf("metrics file path is required")
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - restcsv_requests_total{status} (Counter): Request attempts by HTTP status, "timeout", "connection" or "cache_hit"
//   - restcsv_request_duration_seconds (Histogram): Request attempt duration
//   - restcsv_errors_total{class} (Counter): Failed attempts by class (http, connection, timeout, generic)
//
// Retry Metrics (pkg/client):
//   - restcsv_retries_total{error_class} (Counter): Retries by error class
//   - restcsv_retry_backoff_seconds{error_class} (Histogram): Backoff delay by error class
//   - restcsv_retry_exhausted_total{error_class} (Counter): Requests that used up all attempts
//
// Cache Metrics (pkg/cache):
//   - restcsv_cache_hits_total (Counter): Response cache hits
//   - restcsv_cache_misses_total (Counter): Response cache misses
//   - restcsv_cache_errors_total{operation} (Counter): Cache errors by operation (get, set, delete, purge)
//
// Pagination Metrics (pkg/pagination):
//   - restcsv_pages_fetched_total{strategy} (Counter): Pages fetched by strategy
//
// Run Metrics (pkg/fetcher):
//   - restcsv_runs_total{strategy, outcome} (Counter): Runs by outcome (success, partial, empty, error)
//   - restcsv_records_written_total (Counter): CSV rows written
//
// Example Prometheus Queries:
//
//   # Runs that produced no output in the last day
//   increase(restcsv_runs_total{outcome=~"empty|error"}[1d])
//
//   # Retry rate by class
//   rate(restcsv_retries_total[1h])
//
//   # Cache Hit Rate
//   sum(rate(restcsv_cache_hits_total[1h])) /
//   (sum(rate(restcsv_cache_hits_total[1h])) + sum(rate(restcsv_cache_misses_total[1h])))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(restcsv_request_duration_seconds_bucket[1h]))
