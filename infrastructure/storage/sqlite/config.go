// Package sqlite provides a SQLite-backed durable tier, for platforms
// where an embedded SQL store fits better than a log-structured KV.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MetricsRecorder receives eviction counts from the provider. The
// telemetry metrics provider satisfies it.
type MetricsRecorder interface {
	RecordEviction(ctx context.Context, tier string, count int64)
}

// Config configures the SQLite durable tier.
type Config struct {
	// DSN is the data source name (e.g., "file:cache.db?cache=shared&mode=rwc").
	DSN string

	// MaxSize is the tier's byte capacity. Clamped downward to Quota
	// when the medium reports a smaller quota, never upward.
	MaxSize int64

	// MaxEntries is the tier's entry capacity.
	MaxEntries int

	// Quota is the byte quota reported by the embedding platform.
	// Zero means unreported.
	Quota int64

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// ConnMaxLifetime is the maximum connection lifetime.
	ConnMaxLifetime time.Duration

	// JournalMode sets the SQLite journal mode (e.g., "WAL").
	JournalMode string

	// BusyTimeout sets the busy timeout in milliseconds.
	BusyTimeout int

	// Metrics receives eviction counts (nil for none).
	Metrics MetricsRecorder
}

// Option configures the SQLite durable tier.
type Option func(*Config)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(c *Config) {
		c.DSN = dsn
	}
}

// WithMaxSize sets the byte capacity.
func WithMaxSize(size int64) Option {
	return func(c *Config) {
		c.MaxSize = size
	}
}

// WithMaxEntries sets the entry capacity.
func WithMaxEntries(n int) Option {
	return func(c *Config) {
		c.MaxEntries = n
	}
}

// WithQuota sets the quota reported by the embedding platform.
func WithQuota(quota int64) Option {
	return func(c *Config) {
		c.Quota = quota
	}
}

// WithJournalMode sets the SQLite journal mode.
func WithJournalMode(mode string) Option {
	return func(c *Config) {
		c.JournalMode = mode
	}
}

// WithMetrics sets the recorder eviction counts are reported to.
func WithMetrics(rec MetricsRecorder) Option {
	return func(c *Config) {
		c.Metrics = rec
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DSN:          "file:sessioncache.db?cache=shared&mode=rwc",
		MaxSize:      256 << 20,
		MaxEntries:   10000,
		MaxOpenConns: 1,
		JournalMode:  "WAL",
		BusyTimeout:  5000,
	}
}

// ErrMigrationFailed is returned when the schema cannot be created.
var ErrMigrationFailed = errors.New("sqlite: migration failed")

// openDB opens a SQLite database with the given configuration.
func openDB(cfg Config) (*sql.DB, error) {
	dsn := cfg.DSN
	if cfg.BusyTimeout > 0 {
		dsn = fmt.Sprintf("%s&_busy_timeout=%d", dsn, cfg.BusyTimeout)
	}
	if cfg.JournalMode != "" {
		dsn = fmt.Sprintf("%s&_journal_mode=%s", dsn, cfg.JournalMode)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}
