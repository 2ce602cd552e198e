package fetcher

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgrab_fetch_retries_total",
		Help: "Total number of fetch retry attempts by failure class",
	}, []string{"class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgrab_fetch_retry_exhausted_total",
		Help: "Total number of times fetch retries were exhausted by failure class",
	}, []string{"class"})
)

// RetryConfig holds the configuration for per-task retry logic.
// The default is a single attempt: downloads are cheap to re-run and the
// caller decides whether spending more attempts per item is worth it.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the backoff before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration (no retries).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       1,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff runs fn up to cfg.MaxAttempts times, backing off
// exponentially with ±20% jitter between attempts. Only transport and 5xx
// failures are retried; everything else returns immediately. Destination
// writes are temp-file-then-rename, so a retried attempt never observes a
// partial file from the previous one.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() *Failure) *Failure {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var last *Failure
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		last = fn()
		if last == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Fetch succeeded after retry")
			}
			return nil
		}

		if !shouldRetry(last) || attempt >= cfg.MaxAttempts {
			break
		}

		fetchRetriesTotal.WithLabelValues(string(last.Class)).Inc()

		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		logger.Debug().
			Str("class", string(last.Class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying fetch after backoff")

		select {
		case <-ctx.Done():
			last.Err = fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			return last
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	if cfg.MaxAttempts > 1 && shouldRetry(last) {
		fetchRetryExhaustedTotal.WithLabelValues(string(last.Class)).Inc()
		if last.Err != nil {
			last.Err = fmt.Errorf("%w: %v", ErrRetryExhausted, last.Err)
		} else {
			last.Err = ErrRetryExhausted
		}
		logger.Warn().
			Str("class", string(last.Class)).
			Int("max_attempts", cfg.MaxAttempts).
			Msg("Fetch retry attempts exhausted")
	}
	return last
}
