// Package metrics documents the Prometheus metrics exposed by docgrab.
// Metrics are defined with promauto in the packages that own them
// (fetcher, batch, assembler, journal) to keep the dependency graph flat;
// this package is the reference inventory plus the shared registry handle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus gatherer docgrab serves its metrics from.
// All metrics register into the matching default registry automatically
// via promauto in their owning packages.
var Registry prometheus.Gatherer = prometheus.DefaultGatherer

// Handler returns an HTTP handler serving everything in Registry, for
// scraping long bulk runs.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Fetch metrics (pkg/fetcher):
//   - docgrab_fetch_requests_total{status} (Counter): fetch attempts by outcome
//   - docgrab_fetch_duration_seconds (Histogram): per-fetch wall time
//   - docgrab_fetch_failures_total{class} (Counter): failures by taxonomy class
//   - docgrab_fetch_bytes_total (Counter): bytes streamed to disk
//   - docgrab_fetch_retries_total{class} (Counter): retry attempts
//   - docgrab_fetch_retry_exhausted_total{class} (Counter): tasks that failed every attempt
//
// Batch metrics (pkg/batch):
//   - docgrab_batches_total (Counter): batches executed
//   - docgrab_batch_items_total{outcome} (Counter): batch items by outcome
//
// Conversion metrics (pkg/assembler):
//   - docgrab_convert_total{outcome} (Counter): conversions by outcome
//     (success, failure, invalid)
//   - docgrab_convert_duration_seconds (Histogram): per-document encode time
//
// Journal metrics (pkg/journal):
//   - docgrab_journal_hits_total (Counter): fetches skipped via journal
//   - docgrab_journal_misses_total (Counter): lookups with no usable entry
//   - docgrab_journal_errors_total{op} (Counter): journal operation errors
