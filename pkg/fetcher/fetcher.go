// Package fetcher downloads a single remote resource to disk under a
// shared concurrency bound. It is the unit of parallelism for the whole
// pipeline: many Fetch calls run concurrently, gated by one limiter.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgrab_fetch_requests_total",
		Help: "Total fetch attempts by outcome status",
	}, []string{"status"})

	fetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docgrab_fetch_duration_seconds",
		Help:    "Fetch duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgrab_fetch_failures_total",
		Help: "Total fetch failures by class",
	}, []string{"class"})

	fetchBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docgrab_fetch_bytes_total",
		Help: "Total bytes streamed to disk",
	})
)

// Task is one unit of work: a single HTTP retrieval of one URL to one
// destination. Immutable once created.
type Task struct {
	// Label identifies the source (a filename-like label from the input
	// listing). Optional; used in failure records.
	Label string

	// URL is the resource to fetch.
	URL string

	// DestinationHint, when set, overrides filename derivation.
	DestinationHint string

	// PageIndex is the 1-based page of a multi-page document. Zero is
	// treated as 1.
	PageIndex int

	// Timeout overrides the fetcher's per-request timeout when positive.
	Timeout time.Duration
}

// Result is the outcome of one fetch. Exactly one of the success fields
// and Failure is populated. URL echoes the task URL so callers fanning
// out many tasks can correlate outcomes.
type Result struct {
	URL         string
	Path        string
	ContentType string
	Failure     *Failure
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Config holds the fetcher configuration.
type Config struct {
	// OutputDir is the directory downloads are written to.
	OutputDir string

	// MaxConcurrency bounds in-flight fetches across all callers.
	MaxConcurrency int

	// Timeout is the default per-request timeout.
	Timeout time.Duration

	// ChunkSize is the copy buffer size for streaming response bodies.
	ChunkSize int

	// StrictContentType rejects unrecognized content types instead of
	// warning and persisting anyway.
	StrictContentType bool

	// UserAgent is sent with every request.
	UserAgent string

	// Retry configures per-task retries. Default: single attempt.
	Retry RetryConfig

	// HTTPClient overrides the HTTP client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(outputDir string) Config {
	return Config{
		OutputDir:      outputDir,
		MaxConcurrency: 20,
		Timeout:        30 * time.Second,
		ChunkSize:      32 * 1024,
		UserAgent:      "docgrab/1.0",
		Retry:          DefaultRetryConfig(),
	}
}

// Fetcher performs bounded-concurrency downloads. The limiter is the only
// state shared by all fetch tasks; a slot is acquired before any network
// call and released on every exit path.
type Fetcher struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
	cfg        Config
	logger     zerolog.Logger

	// claimed tracks destination paths handed out during this run so two
	// sources deriving the same filename get disambiguating suffixes
	// instead of silently overwriting each other.
	mu      sync.Mutex
	claimed map[string]string
}

// New creates a fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 32 * 1024
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Fetcher{
		httpClient: httpClient,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		cfg:        cfg,
		logger:     log.With().Str("component", "fetcher").Logger(),
		claimed:    make(map[string]string),
	}, nil
}

// Fetch downloads one resource. It never returns a Go error: every failure
// mode (network, non-2xx, timeout, disk) is captured in the Result so a
// single bad item can never unwind a batch.
func (f *Fetcher) Fetch(ctx context.Context, task Task) Result {
	start := time.Now()
	defer func() {
		fetchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if task.PageIndex < 1 {
		task.PageIndex = 1
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		fetchRequestsTotal.WithLabelValues("failure").Inc()
		fetchFailuresTotal.WithLabelValues(string(ClassTransport)).Inc()
		return Result{URL: task.URL, Failure: f.fail(task, ClassTransport, "limiter acquire cancelled", err.Error(), 0, err)}
	}
	defer f.sem.Release(1)

	var result Result
	failure := retryWithBackoff(ctx, f.cfg.Retry, f.logger, func() *Failure {
		var attemptFailure *Failure
		result, attemptFailure = f.attempt(ctx, task)
		return attemptFailure
	})
	if failure != nil {
		fetchRequestsTotal.WithLabelValues("failure").Inc()
		fetchFailuresTotal.WithLabelValues(string(failure.Class)).Inc()
		return Result{URL: task.URL, Failure: failure}
	}

	fetchRequestsTotal.WithLabelValues("success").Inc()
	f.logger.Info().
		Str("url", task.URL).
		Str("path", result.Path).
		Dur("duration", time.Since(start)).
		Msg("Download complete")
	return result
}

// fail builds a Failure record for one task and logs it.
func (f *Fetcher) fail(task Task, class Class, message, detail string, status int, err error) *Failure {
	f.logger.Warn().
		Str("url", task.URL).
		Int("page", task.PageIndex).
		Str("class", string(class)).
		Str("detail", detail).
		Msg(message)
	return &Failure{
		SourceLabel: task.Label,
		URL:         task.URL,
		Message:     message,
		Detail:      detail,
		StatusCode:  status,
		PageIndex:   task.PageIndex,
		Class:       class,
		Err:         err,
	}
}

// attempt performs one HTTP GET and streams the body to disk.
func (f *Fetcher) attempt(ctx context.Context, task Task) (Result, *Failure) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, task.URL, nil)
	if err != nil {
		return Result{}, f.fail(task, ClassTransport, "invalid request", err.Error(), 0, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Result{}, f.fail(task, ClassTransport, "request failed", err.Error(), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, f.fail(task, ClassHTTPStatus, "unexpected status "+resp.Status,
			strconv.Itoa(resp.StatusCode), resp.StatusCode, nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if !recognizedContentType(contentType) {
		if f.cfg.StrictContentType {
			return Result{}, f.fail(task, ClassValidation, "unrecognized content type",
				contentType, resp.StatusCode, nil)
		}
		f.logger.Warn().
			Str("url", task.URL).
			Str("content_type", contentType).
			Msg("Content does not look like an image, persisting anyway")
	}

	name := deriveFilename(task, resp.Header.Get("Content-Disposition"), contentType)
	destPath := f.claimPath(name, task.URL)

	if err := f.streamToFile(resp.Body, destPath); err != nil {
		return Result{}, f.fail(task, ClassIO, "write failed", err.Error(), resp.StatusCode, err)
	}

	return Result{
		URL:         task.URL,
		Path:        destPath,
		ContentType: normalizeContentType(contentType),
	}, nil
}

// claimPath reserves a destination path under the output directory,
// splicing a _2, _3, ... suffix when a different URL already claimed the
// same derived name during this run.
func (f *Fetcher) claimPath(name, url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	candidate := name
	for n := 2; ; n++ {
		p := filepath.Join(f.cfg.OutputDir, candidate)
		owner, taken := f.claimed[p]
		if !taken || owner == url {
			f.claimed[p] = url
			return p
		}
		candidate = spliceSuffix(name, fmt.Sprintf("_%d", n))
	}
}

// streamToFile copies body to destPath in fixed-size chunks, writing to a
// temporary sibling first and renaming on completion so partial downloads
// never surface under the final name.
func (f *Fetcher) streamToFile(body io.Reader, destPath string) error {
	if dir := filepath.Dir(destPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tmpPath := destPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}

	buf := make([]byte, f.cfg.ChunkSize)
	written, err := io.CopyBuffer(out, body, buf)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("stream body: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", destPath, err)
	}

	fetchBytesTotal.Add(float64(written))
	return nil
}

// Check performs a HEAD request and reports whether the URL looks like an
// image, without downloading the body.
func (f *Fetcher) Check(ctx context.Context, url string) (bool, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		return false, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("head request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	contentType := normalizeContentType(resp.Header.Get("Content-Type"))
	return recognizedContentType(contentType), contentType, nil
}
