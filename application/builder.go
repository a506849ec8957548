package application

import (
	"fmt"

	"github.com/wilson323/llmchat-sub005/domain/config"
	"github.com/wilson323/llmchat-sub005/domain/storage"
	redisremote "github.com/wilson323/llmchat-sub005/infrastructure/remote/redis"
	"github.com/wilson323/llmchat-sub005/infrastructure/resilience"
	badgertier "github.com/wilson323/llmchat-sub005/infrastructure/storage/badger"
	"github.com/wilson323/llmchat-sub005/infrastructure/storage/memory"
	sqlitetier "github.com/wilson323/llmchat-sub005/infrastructure/storage/sqlite"
	"github.com/wilson323/llmchat-sub005/infrastructure/telemetry"
)

// NewManagerFromConfig assembles a manager from a validated engine
// configuration: a memory volatile tier, a badger or sqlite durable
// tier, and optionally a redis remote behind the sync engine.
func NewManagerFromConfig(cfg *config.EngineConfig) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine config is required")
	}

	// One metrics provider covers the manager and both tiers, so
	// eviction counts land on the same meter as hits and sync stats.
	metrics := telemetry.NewMetricsProvider(telemetry.DefaultMetricsConfig())

	volatile := buildVolatileTier(cfg.Volatile, metrics)

	durable, err := buildDurableTier(cfg.Durable, metrics)
	if err != nil {
		return nil, err
	}

	mc := ManagerConfig{
		Volatile: volatile,
		Durable:  durable,
		Pusher:   buildPusherConfig(cfg.Sync),
		Metrics:  metrics,
		Sync:     buildSyncSettings(cfg.Sync),
	}

	if cfg.Remote.Enabled {
		store, err := buildRemoteStore(cfg.Remote)
		if err != nil {
			return nil, fmt.Errorf("failed to connect remote store: %w", err)
		}
		mc.Remote = store
	}

	return NewManager(mc)
}

func buildVolatileTier(cfg config.VolatileConfig, metrics memory.MetricsRecorder) storage.Provider {
	opts := []memory.Option{memory.WithMetrics(metrics)}
	if cfg.MaxSize > 0 {
		opts = append(opts, memory.WithMaxSize(cfg.MaxSize))
	}
	if cfg.MaxEntries > 0 {
		opts = append(opts, memory.WithMaxEntries(cfg.MaxEntries))
	}
	return memory.NewProvider(opts...)
}

func buildDurableTier(cfg config.DurableConfig, metrics *telemetry.MetricsProvider) (storage.Provider, error) {
	switch cfg.Backend {
	case "", "badger":
		opts := []badgertier.Option{badgertier.WithMetrics(metrics)}
		if cfg.InMemory {
			opts = append(opts, badgertier.WithInMemory())
		} else {
			opts = append(opts, badgertier.WithDir(cfg.Dir))
		}
		if cfg.MaxSize > 0 {
			opts = append(opts, badgertier.WithMaxSize(cfg.MaxSize))
		}
		if cfg.MaxEntries > 0 {
			opts = append(opts, badgertier.WithMaxEntries(cfg.MaxEntries))
		}
		if cfg.Quota > 0 {
			opts = append(opts, badgertier.WithQuota(cfg.Quota))
		}
		if d := cfg.GCInterval.Duration(); d > 0 {
			opts = append(opts, badgertier.WithGCInterval(d))
		}
		return badgertier.NewProvider(badgertier.DefaultConfig(), opts...), nil

	case "sqlite":
		opts := []sqlitetier.Option{sqlitetier.WithMetrics(metrics)}
		opts = append(opts, sqlitetier.WithDSN(cfg.DSN))
		if cfg.MaxSize > 0 {
			opts = append(opts, sqlitetier.WithMaxSize(cfg.MaxSize))
		}
		if cfg.MaxEntries > 0 {
			opts = append(opts, sqlitetier.WithMaxEntries(cfg.MaxEntries))
		}
		if cfg.Quota > 0 {
			opts = append(opts, sqlitetier.WithQuota(cfg.Quota))
		}
		return sqlitetier.NewProvider(sqlitetier.DefaultConfig(), opts...), nil

	default:
		return nil, fmt.Errorf("unsupported durable backend %q", cfg.Backend)
	}
}

func buildRemoteStore(cfg config.RemoteConfig) (*redisremote.Store, error) {
	var opts []redisremote.ConfigOption
	opts = append(opts, redisremote.WithAddress(cfg.Address))
	if cfg.Password != "" {
		opts = append(opts, redisremote.WithPassword(cfg.Password))
	}
	if cfg.DB != 0 {
		opts = append(opts, redisremote.WithDB(cfg.DB))
	}
	if cfg.KeyPrefix != "" {
		opts = append(opts, redisremote.WithKeyPrefix(cfg.KeyPrefix))
	}
	if ttl := cfg.EntryTTL.Duration(); ttl > 0 {
		opts = append(opts, redisremote.WithEntryTTL(ttl))
	}
	return redisremote.NewStore(redisremote.DefaultConfig(), opts...)
}

func buildPusherConfig(cfg config.SyncConfig) resilience.PusherConfig {
	pc := resilience.DefaultPusherConfig()
	if cfg.MaxAttempts > 0 {
		pc.RetryMaxAttempts = cfg.MaxAttempts
	}
	if d := cfg.InitialDelay.Duration(); d > 0 {
		pc.RetryInitialDelay = d
	}
	if cfg.Multiplier > 1 {
		pc.RetryBackoffMultiplier = cfg.Multiplier
	}
	return pc
}

func buildSyncSettings(cfg config.SyncConfig) SyncSettings {
	s := DefaultSyncSettings()
	s.Enabled = cfg.Enabled
	if d := cfg.Interval.Duration(); d > 0 {
		s.Interval = d
	}
	if d := cfg.MaxInterval.Duration(); d > 0 {
		s.MaxInterval = d
	}
	if cfg.BatchSize > 0 {
		s.BatchSize = cfg.BatchSize
	}
	return s
}
