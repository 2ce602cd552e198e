// Package batch partitions a large download set into fixed-size batches
// and runs each batch as one concurrent wave. Batches run sequentially
// relative to each other: this bounds peak task creation and gives a
// natural checkpoint for progress reporting on inputs of tens of
// thousands of URLs.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/docgrab/docgrab/pkg/fetcher"
)

// Prometheus metrics for batch coordination.
var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docgrab_batches_total",
		Help: "Total batches executed",
	})

	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgrab_batch_items_total",
		Help: "Total batch items by outcome",
	}, []string{"outcome"})
)

// Item is one entry of the input listing: an optional filename-like label
// and a URL.
type Item struct {
	Label string
	URL   string
}

// Config holds coordinator configuration.
type Config struct {
	// BatchSize is the number of items per wave.
	BatchSize int

	// Timeout is applied per task; zero defers to the fetcher default.
	Timeout time.Duration
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize: 100,
	}
}

// Coordinator sequences batches of concurrent fetches and aggregates
// success statistics. Concurrency inside a batch is bounded by the
// fetcher's shared limiter, which may span batches.
type Coordinator struct {
	fetcher *fetcher.Fetcher
	cfg     Config
	logger  zerolog.Logger

	completed atomic.Int64
	total     atomic.Int64
}

// New creates a coordinator driving the given fetcher.
func New(f *fetcher.Fetcher, cfg Config) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Coordinator{
		fetcher: f,
		cfg:     cfg,
		logger:  log.With().Str("component", "batch").Logger(),
	}
}

// Progress returns a snapshot of (completed, total) items for the run in
// flight. Purely observational; it never gates control flow.
func (c *Coordinator) Progress() (completed, total int) {
	return int(c.completed.Load()), int(c.total.Load())
}

// Run downloads every item, batch by batch, and returns the results of
// all successful downloads plus one Failure per failed item. Every input
// item yields exactly one outcome: len(ok) + len(failures) == len(items).
func (c *Coordinator) Run(ctx context.Context, items []Item) (ok []fetcher.Result, failures []fetcher.Failure) {
	if len(items) == 0 {
		return nil, nil
	}

	start := time.Now()
	total := len(items)
	c.completed.Store(0)
	c.total.Store(int64(total))

	batchCount := (total + c.cfg.BatchSize - 1) / c.cfg.BatchSize
	c.logger.Info().
		Int("items", total).
		Int("batch_size", c.cfg.BatchSize).
		Int("batches", batchCount).
		Msg("Starting batch download")

	for i := 0; i < batchCount; i++ {
		lo := i * c.cfg.BatchSize
		hi := min(lo+c.cfg.BatchSize, total)

		batchOK, batchFailures := c.runBatch(ctx, items[lo:hi])
		ok = append(ok, batchOK...)
		failures = append(failures, batchFailures...)

		batchesTotal.Inc()
		c.completed.Store(int64(hi))

		rate := float64(len(batchOK)) / float64(hi-lo) * 100
		c.logger.Info().
			Int("batch", i+1).
			Int("batches", batchCount).
			Int("completed", hi).
			Int("total", total).
			Float64("success_rate_pct", rate).
			Msg("Batch complete")
	}

	elapsed := time.Since(start)
	c.logger.Info().
		Int("succeeded", len(ok)).
		Int("failed", len(failures)).
		Int("total", total).
		Float64("success_rate_pct", float64(len(ok))/float64(total)*100).
		Dur("elapsed", elapsed).
		Dur("avg_per_item", elapsed/time.Duration(total)).
		Msg("Batch download complete")

	return ok, failures
}

// runBatch fans the items of one batch out concurrently and collects
// every outcome. Completion order within a batch is unspecified.
func (c *Coordinator) runBatch(ctx context.Context, items []Item) ([]fetcher.Result, []fetcher.Failure) {
	results := make(chan fetcher.Result, len(items))

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item Item) {
			defer wg.Done()
			results <- c.fetcher.Fetch(ctx, fetcher.Task{
				Label:           item.Label,
				URL:             item.URL,
				DestinationHint: item.Label,
				Timeout:         c.cfg.Timeout,
			})
		}(item)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var ok []fetcher.Result
	var failures []fetcher.Failure
	for res := range results {
		if res.OK() {
			batchItemsTotal.WithLabelValues("success").Inc()
			ok = append(ok, res)
		} else {
			batchItemsTotal.WithLabelValues("failure").Inc()
			failures = append(failures, *res.Failure)
		}
	}
	return ok, failures
}
