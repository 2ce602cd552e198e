// Package ledger accumulates failure records across fetch and conversion
// phases and writes them out as a post-hoc error report.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/docgrab/docgrab/pkg/fetcher"
)

// Ledger is an append-only, concurrency-safe collection of failures.
// Order within the ledger is not semantically significant; append is
// commutative under concurrent writers.
type Ledger struct {
	mu       sync.Mutex
	failures []fetcher.Failure
	logger   zerolog.Logger
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		logger: log.With().Str("component", "ledger").Logger(),
	}
}

// Record appends one failure.
func (l *Ledger) Record(f fetcher.Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, f)
}

// RecordAll appends a slice of failures.
func (l *Ledger) RecordAll(fs []fetcher.Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, fs...)
}

// Len returns the number of recorded failures.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

// Flush writes a timestamped, human-readable report of all recorded
// failures into dir, drains the ledger, and returns the report path.
// When no failures were recorded it writes nothing and returns "": an
// empty run must never create a report or clobber one from an earlier
// run. Draining makes repeated flushes safe; each failure is reported
// exactly once.
func (l *Ledger) Flush(dir string) (string, error) {
	l.mu.Lock()
	failures := l.failures
	l.failures = nil
	l.mu.Unlock()

	if len(failures) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.RecordAll(failures)
		return "", fmt.Errorf("create report directory: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, "errors_"+now.Format("20060102_150405")+".log")

	var b strings.Builder
	fmt.Fprintf(&b, "# docgrab error report %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "# %d failure(s)\n\n", len(failures))
	for i, f := range failures {
		label := f.SourceLabel
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(&b, "[%d] source=%s page=%d class=%s\n", i+1, label, f.PageIndex, f.Class)
		fmt.Fprintf(&b, "    url:    %s\n", f.URL)
		fmt.Fprintf(&b, "    error:  %s\n", f.Message)
		fmt.Fprintf(&b, "    detail: %s\n\n", f.Detail)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		l.RecordAll(failures)
		return "", fmt.Errorf("write report: %w", err)
	}

	l.logger.Info().
		Int("failures", len(failures)).
		Str("report", path).
		Msg("Error report written")
	return path, nil
}
