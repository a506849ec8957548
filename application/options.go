package application

import (
	"time"

	"github.com/wilson323/llmchat-sub005/domain/remote"
	"github.com/wilson323/llmchat-sub005/infrastructure/resilience"
	"github.com/wilson323/llmchat-sub005/infrastructure/telemetry"
)

// Option configures the manager.
type Option func(*ManagerConfig)

// WithRemote sets the remote replication target.
func WithRemote(store remote.Store) Option {
	return func(c *ManagerConfig) {
		c.Remote = store
	}
}

// WithMetrics sets the telemetry provider.
func WithMetrics(metrics telemetry.Metrics) Option {
	return func(c *ManagerConfig) {
		c.Metrics = metrics
	}
}

// WithSyncSettings replaces the sync configuration.
func WithSyncSettings(settings SyncSettings) Option {
	return func(c *ManagerConfig) {
		c.Sync = settings
	}
}

// WithSyncInterval sets the base delay between sync rounds.
func WithSyncInterval(interval time.Duration) Option {
	return func(c *ManagerConfig) {
		c.Sync.Interval = interval
	}
}

// WithPusherConfig configures retry and circuit breaking for pushes.
func WithPusherConfig(cfg resilience.PusherConfig) Option {
	return func(c *ManagerConfig) {
		c.Pusher = cfg
	}
}

// WithEventBuffer sets the event stream capacity.
func WithEventBuffer(n int) Option {
	return func(c *ManagerConfig) {
		c.EventBuffer = n
	}
}
