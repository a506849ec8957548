// Package badger provides the BadgerDB-backed durable tier of the
// session cache.
package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// MetricsRecorder receives eviction counts from the provider. The
// telemetry metrics provider satisfies it.
type MetricsRecorder interface {
	RecordEviction(ctx context.Context, tier string, count int64)
}

// Config configures the durable tier.
type Config struct {
	// Dir is the directory to store data in.
	Dir string

	// InMemory uses in-memory storage (useful for testing).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// MaxSize is the tier's byte capacity. Clamped downward to Quota
	// when the medium reports a smaller quota, never upward.
	MaxSize int64

	// MaxEntries is the tier's entry capacity.
	MaxEntries int

	// Quota is the byte quota reported by the backing medium or the
	// embedding platform. Zero means unreported.
	Quota int64

	// ValueLogFileSize sets the size of value log files in bytes.
	ValueLogFileSize int64

	// GCDiscardRatio is the discard ratio for value log GC.
	GCDiscardRatio float64

	// GCInterval is the interval between GC runs. Zero disables GC.
	GCInterval time.Duration

	// KeyPrefix is added to all keys.
	KeyPrefix string

	// Logger is the badger-internal logger (nil for silent).
	Logger badger.Logger

	// Metrics receives eviction counts (nil for none).
	Metrics MetricsRecorder
}

// Option configures the durable tier.
type Option func(*Config)

// WithDir sets the data directory.
func WithDir(dir string) Option {
	return func(c *Config) {
		c.Dir = dir
	}
}

// WithInMemory enables in-memory storage.
func WithInMemory() Option {
	return func(c *Config) {
		c.InMemory = true
	}
}

// WithSyncWrites enables synchronous writes.
func WithSyncWrites() Option {
	return func(c *Config) {
		c.SyncWrites = true
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

// WithQuota sets the quota reported by the backing medium.
func WithQuota(quota int64) Option {
	return func(c *Config) {
		c.Quota = quota
	}
}

// WithGCInterval sets the value log GC interval.
func WithGCInterval(d time.Duration) Option {
	return func(c *Config) {
		c.GCInterval = d
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithLogger sets the badger-internal logger.
func WithLogger(logger badger.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
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
		Dir:              "",
		InMemory:         false,
		SyncWrites:       false,
		MaxSize:          256 << 20, // 256MB
		MaxEntries:       10000,
		ValueLogFileSize: 1 << 28,
		GCDiscardRatio:   0.5,
		GCInterval:       5 * time.Minute,
	}
}

// ErrOpenFailed is returned when the database cannot be opened.
var ErrOpenFailed = errors.New("badger: open failed")

// openDB opens a BadgerDB database with the given configuration.
func openDB(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		// Silent by default
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(ErrOpenFailed, err)
	}

	return db, nil
}
