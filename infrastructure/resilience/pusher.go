// Package resilience provides resilient remote replication using fortify.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/wilson323/llmchat-sub005/domain/remote"
	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// Pusher wraps a remote store with circuit breaker and retry patterns.
// Pushes that keep failing trip the breaker so the sync engine can back
// off instead of hammering an unreachable backend.
type Pusher struct {
	store   remote.Store
	breaker circuitbreaker.CircuitBreaker[struct{}]
	retry   retry.Retry[struct{}]
	timeout time.Duration
}

// PusherConfig configures the resilient pusher.
type PusherConfig struct {
	// CircuitBreakerThreshold is the number of consecutive failures before opening.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts per push.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// PushTimeout bounds a single push including its retries.
	PushTimeout time.Duration
}

// DefaultPusherConfig returns a configuration with sensible defaults.
func DefaultPusherConfig() PusherConfig {
	return PusherConfig{
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       200 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		PushTimeout:             30 * time.Second,
	}
}

// NewPusher creates a new resilient pusher around the given remote store.
func NewPusher(store remote.Store, config PusherConfig) *Pusher {
	threshold := config.CircuitBreakerThreshold
	if threshold < 1 {
		threshold = 5
	}

	return &Pusher{
		store: store,
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: uint32(threshold), // #nosec G115 -- bounds checked above
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		}),
		retry: retry.New[struct{}](retry.Config{
			MaxAttempts:   config.RetryMaxAttempts,
			InitialDelay:  config.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.RetryBackoffMultiplier,
		}),
		timeout: config.PushTimeout,
	}
}

// NewDefaultPusher creates a pusher with default configuration.
func NewDefaultPusher(store remote.Store) *Pusher {
	return NewPusher(store, DefaultPusherConfig())
}

// PushEntry uploads an entry with retry and circuit breaking applied.
// Composition order: Timeout, then Circuit Breaker, then Retry.
func (p *Pusher) PushEntry(ctx context.Context, entry *storage.Entry) error {
	return p.execute(ctx, func(ctx context.Context) error {
		return p.store.PushEntry(ctx, entry)
	})
}

// PushTombstone removes the remote copy with retry and circuit breaking applied.
func (p *Pusher) PushTombstone(ctx context.Context, key string) error {
	return p.execute(ctx, func(ctx context.Context) error {
		return p.store.PushTombstone(ctx, key)
	})
}

// PullEntry fetches the remote copy. Pulls are not retried; a miss and a
// transient failure look the same to the caller either way.
func (p *Pusher) PullEntry(ctx context.Context, key string) (*storage.Entry, bool, error) {
	return p.store.PullEntry(ctx, key)
}

func (p *Pusher) execute(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return p.retry.Do(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
	})
	return err
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (p *Pusher) CircuitBreakerState() circuitbreaker.State {
	return p.breaker.State()
}

var _ remote.Store = (*Pusher)(nil)
