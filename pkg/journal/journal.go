// Package journal records completed fetches in Redis so interrupted bulk
// runs can resume without re-downloading what already landed on disk.
//
// The journal is strictly an optimization: it is optional, and every
// journal error degrades to a normal fetch. Correctness never depends on
// its contents.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for journal operations.
var (
	journalHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docgrab_journal_hits_total",
		Help: "Fetches skipped because the journal already had them",
	})

	journalMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docgrab_journal_misses_total",
		Help: "Journal lookups that found no usable entry",
	})

	journalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgrab_journal_errors_total",
		Help: "Journal operation errors by operation",
	}, []string{"op"})
)

// ErrNotJournaled indicates the URL has no journal entry.
var ErrNotJournaled = errors.New("not journaled")

const keyPrefix = "docgrab:done:"

// Entry is one journaled download.
type Entry struct {
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Config holds journal configuration.
type Config struct {
	// TTL is how long entries persist. Zero means 24h.
	TTL time.Duration
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{TTL: 24 * time.Hour}
}

// Manager stores completed-fetch entries in Redis.
type Manager struct {
	redis  *redis.Client
	cfg    Config
	logger zerolog.Logger
}

// New creates a journal manager.
func New(redisClient *redis.Client, cfg Config) (*Manager, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Manager{
		redis:  redisClient,
		cfg:    cfg,
		logger: log.With().Str("component", "journal").Logger(),
	}, nil
}

// key hashes the URL so arbitrary URLs make safe, bounded Redis keys.
func key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

// Lookup returns the journaled entry for url. Returns ErrNotJournaled
// when there is no entry, or when the entry's file no longer exists on
// disk (a stale entry is deleted on sight).
func (m *Manager) Lookup(ctx context.Context, url string) (*Entry, error) {
	data, err := m.redis.Get(ctx, key(url)).Bytes()
	if err != nil {
		if err == redis.Nil {
			journalMisses.Inc()
			return nil, ErrNotJournaled
		}
		journalErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("journal get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		journalErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("journal entry corrupt: %w", err)
	}

	if _, err := os.Stat(entry.Path); err != nil {
		m.logger.Debug().Str("url", url).Str("path", entry.Path).Msg("Journal entry stale, dropping")
		_ = m.redis.Del(ctx, key(url)).Err()
		journalMisses.Inc()
		return nil, ErrNotJournaled
	}

	journalHits.Inc()
	return &entry, nil
}

// MarkDone journals a completed fetch.
func (m *Manager) MarkDone(ctx context.Context, url, path, contentType string) error {
	entry := Entry{
		URL:         url,
		Path:        path,
		ContentType: contentType,
		FetchedAt:   time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	if err := m.redis.Set(ctx, key(url), data, m.cfg.TTL).Err(); err != nil {
		journalErrors.WithLabelValues("mark").Inc()
		return fmt.Errorf("journal set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (m *Manager) Close() error {
	return m.redis.Close()
}
