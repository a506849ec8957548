// Package application provides the tiered cache manager that
// orchestrates the volatile and durable tiers plus remote sync.
package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wilson323/llmchat-sub005/domain/remote"
	"github.com/wilson323/llmchat-sub005/domain/storage"
	"github.com/wilson323/llmchat-sub005/infrastructure/logging"
	"github.com/wilson323/llmchat-sub005/infrastructure/resilience"
	"github.com/wilson323/llmchat-sub005/infrastructure/statemachine"
	"github.com/wilson323/llmchat-sub005/infrastructure/telemetry"
)

// Manager coordinates the volatile and durable tiers. Reads promote
// durable hits into the volatile tier; writes go through both tiers
// and are queued for background replication to the remote backend.
// The manager is the only component that coordinates across tiers.
type Manager struct {
	volatile storage.Provider
	durable  storage.Provider
	remote   remote.Store
	tracker  *statemachine.Tracker
	metrics  telemetry.Metrics

	syncCfg SyncSettings

	// pending maps each queued key to the generation of its latest
	// write. A sync acknowledgement carries the generation it pushed;
	// a mismatch means the key was rewritten mid-push and must stay
	// queued.
	mu         sync.Mutex
	seq        uint64
	pending    map[string]uint64
	tombstones map[string]struct{}
	synced     map[string]struct{}
	offline    bool
	started    bool

	evMu         sync.Mutex
	events       chan Event
	eventsClosed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// SyncSettings configures the background sync loop.
type SyncSettings struct {
	// Enabled turns the background loop on. Explicit Flush calls work
	// either way.
	Enabled bool
	// Interval is the base delay between sync rounds.
	Interval time.Duration
	// MaxInterval caps the backoff after failed rounds.
	MaxInterval time.Duration
	// BatchSize bounds how many entries one round pushes. Zero means
	// no bound.
	BatchSize int
}

// ManagerConfig contains configuration for the manager.
type ManagerConfig struct {
	// Volatile is the in-memory tier. Required.
	Volatile storage.Provider
	// Durable is the persistent tier. Required.
	Durable storage.Provider
	// Remote is the replication target. Optional; without it entries
	// simply stay PENDING.
	Remote remote.Store
	// Pusher configures retry and circuit breaking around Remote.
	Pusher resilience.PusherConfig
	// Metrics receives cache telemetry. Defaults to a no-op provider.
	Metrics telemetry.Metrics
	// Sync configures the background loop.
	Sync SyncSettings
	// EventBuffer is the capacity of the event stream.
	EventBuffer int
}

// DefaultSyncSettings returns the sync defaults: 30s rounds backing
// off to 2 minutes, 64 entries per round.
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Enabled:     true,
		Interval:    30 * time.Second,
		MaxInterval: 2 * time.Minute,
		BatchSize:   64,
	}
}

// NewManager creates a new manager with the given configuration.
func NewManager(config ManagerConfig, opts ...Option) (*Manager, error) {
	if config.Volatile == nil {
		return nil, errors.New("volatile tier is required")
	}
	if config.Durable == nil {
		return nil, errors.New("durable tier is required")
	}

	for _, opt := range opts {
		opt(&config)
	}

	if config.Metrics == nil {
		config.Metrics = &telemetry.NoopMetricsProvider{}
	}
	if config.Sync.Interval <= 0 {
		config.Sync.Interval = DefaultSyncSettings().Interval
	}
	if config.Sync.MaxInterval < config.Sync.Interval {
		config.Sync.MaxInterval = DefaultSyncSettings().MaxInterval
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if config.Pusher == (resilience.PusherConfig{}) {
		config.Pusher = resilience.DefaultPusherConfig()
	}

	tracker, err := statemachine.NewTracker()
	if err != nil {
		return nil, err
	}

	rs := config.Remote
	if rs != nil {
		rs = resilience.NewPusher(rs, config.Pusher)
	}

	return &Manager{
		volatile:   config.Volatile,
		durable:    config.Durable,
		remote:     rs,
		tracker:    tracker,
		metrics:    config.Metrics,
		syncCfg:    config.Sync,
		pending:    make(map[string]uint64),
		tombstones: make(map[string]struct{}),
		synced:     make(map[string]struct{}),
		events:     make(chan Event, config.EventBuffer),
		stop:       make(chan struct{}),
	}, nil
}

// Init opens both tiers and starts the background sync loop.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.volatile.Init(ctx); err != nil {
		return err
	}
	if err := m.durable.Init(ctx); err != nil {
		_ = m.volatile.Destroy(ctx)
		return err
	}

	m.tracker.Start()

	// The sync queue itself is memory-only. Rebuild it from the
	// durable tier so entries persisted PENDING before a restart are
	// still replicated.
	recovered, err := m.durable.PendingSync(ctx)
	if err != nil {
		logging.Warn().
			Add(logging.Component("manager")).
			Add(logging.ErrorField(err)).
			Msg("pending-sync recovery failed")
	}

	m.mu.Lock()
	for _, key := range recovered {
		if _, queued := m.pending[key]; !queued {
			m.seq++
			m.pending[key] = m.seq
			m.metrics.AddPending(ctx, 1)
		}
	}
	m.tracker.SetPending(len(m.pending))
	m.started = true
	m.mu.Unlock()

	if m.remote != nil && m.syncCfg.Enabled {
		m.wg.Add(1)
		go m.syncLoop()
	}

	logging.Info().
		Add(logging.Component("manager")).
		Add(logging.Bool("sync", m.remote != nil && m.syncCfg.Enabled)).
		Msg("tiered cache manager started")
	return nil
}

// Destroy stops the sync loop and releases both tiers.
func (m *Manager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
	m.tracker.Stop()

	err := errors.Join(
		m.volatile.Destroy(ctx),
		m.durable.Destroy(ctx),
	)

	m.evMu.Lock()
	m.eventsClosed = true
	close(m.events)
	m.evMu.Unlock()
	return err
}

// Get retrieves an entry. Volatile hits return immediately; durable
// hits are promoted into the volatile tier before returning. A miss in
// both tiers returns absent, and the caller owns any remote fetch.
func (m *Manager) Get(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	entry, found, err := m.volatile.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		m.metrics.RecordHit(ctx, string(storage.TierVolatile))
		return entry, true, nil
	}

	entry, found, err = m.durable.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		m.metrics.RecordMiss(ctx)
		return nil, false, nil
	}

	// Promote, keeping access stats and sync state intact. A promotion
	// failure is not a read failure.
	m.mu.Lock()
	if perr := m.volatile.SetEntry(ctx, entry); perr != nil {
		logging.Warn().
			Add(logging.Component("manager")).
			Add(logging.Key(key)).
			Add(logging.ErrorField(perr)).
			Msg("promotion to volatile tier failed")
	} else {
		entry.StorageTier = storage.TierVolatile
		m.metrics.RecordPromotion(ctx)
	}
	m.mu.Unlock()

	m.metrics.RecordHit(ctx, string(storage.TierDurable))
	return entry, true, nil
}

// Set writes through both tiers and queues the entry for sync. The
// volatile write must succeed; a durable failure is reported as a tier
// fault event and the entry stays queued for retry either way.
func (m *Manager) Set(ctx context.Context, key string, data []byte, opts storage.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()

	// Tier writes and queue bookkeeping happen under the manager lock
	// so a concurrent sync acknowledgement cannot write a stale copy
	// back over this update.
	m.mu.Lock()
	if err := m.volatile.Set(ctx, key, data, opts); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.durable.Set(ctx, key, data, opts); err != nil {
		logging.Warn().
			Add(logging.Component("manager")).
			Add(logging.Key(key)).
			Add(logging.ErrorField(err)).
			Msg("durable write failed, entry remains queued")
		ev := newEvent(EventTierFault)
		ev.Key = key
		ev.Err = err
		m.emit(ev)
		m.metrics.RecordError(ctx, "durable_write")
	}

	delete(m.synced, key)
	delete(m.tombstones, key)
	if _, queued := m.pending[key]; !queued {
		m.metrics.AddPending(ctx, 1)
	}
	m.seq++
	m.pending[key] = m.seq
	m.tracker.SetPending(len(m.pending))
	m.mu.Unlock()

	m.metrics.RecordOperationDuration(ctx, "set", time.Since(start))
	return nil
}

// Delete removes the key from both tiers. If the key had been synced,
// a tombstone is queued so the remote copy is eventually removed too.
func (m *Manager) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	foundVolatile, err1 := m.volatile.Delete(ctx, key)
	foundDurable, err2 := m.durable.Delete(ctx, key)
	if err := errors.Join(err1, err2); err != nil {
		m.mu.Unlock()
		return false, err
	}

	if _, queued := m.pending[key]; queued {
		delete(m.pending, key)
		m.metrics.AddPending(ctx, -1)
	}
	if _, wasSynced := m.synced[key]; wasSynced {
		delete(m.synced, key)
		m.tombstones[key] = struct{}{}
	}
	m.tracker.SetPending(len(m.pending))
	m.mu.Unlock()

	return foundVolatile || foundDurable, nil
}

// Exists reports whether the key is present in either tier.
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	if ok, err := m.volatile.Exists(ctx, key); err != nil || ok {
		return ok, err
	}
	return m.durable.Exists(ctx, key)
}

// MGet retrieves multiple entries, preferring the volatile tier and
// falling back per-key to the durable tier. One result element per
// input key; absent keys map to nil.
func (m *Manager) MGet(ctx context.Context, keys []string) (map[string]*storage.Entry, error) {
	result, err := m.volatile.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, key := range keys {
		if result[key] == nil {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	fromDurable, err := m.durable.MGet(ctx, missing)
	if err != nil {
		return nil, err
	}
	for key, entry := range fromDurable {
		if entry != nil {
			result[key] = entry
		}
	}
	return result, nil
}

// List returns entries from both tiers whose keys start with the
// prefix, deduplicated with the volatile copy winning, sorted by key.
func (m *Manager) List(ctx context.Context, prefix string, limit int) ([]*storage.Entry, error) {
	volEntries, err := m.volatile.List(ctx, prefix, 0)
	if err != nil {
		return nil, err
	}
	durEntries, err := m.durable.List(ctx, prefix, 0)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*storage.Entry, len(volEntries)+len(durEntries))
	for _, e := range durEntries {
		merged[e.Key] = e
	}
	for _, e := range volEntries {
		merged[e.Key] = e
	}

	out := make([]*storage.Entry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Search runs the query on both tiers, merges by key with the volatile
// copy winning ties, re-sorts by score, and truncates to the query
// limit.
func (m *Manager) Search(ctx context.Context, query storage.SearchQuery) ([]storage.SearchResult, error) {
	volResults, err := m.volatile.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	durResults, err := m.durable.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]storage.SearchResult, len(volResults)+len(durResults))
	for _, r := range durResults {
		merged[r.Key] = r
	}
	for _, r := range volResults {
		merged[r.Key] = r
	}

	results := make([]storage.SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	return query.RankResults(results), nil
}

// Cleanup purges expired entries from both tiers.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	removedVolatile, err1 := m.volatile.Cleanup(ctx)
	removedDurable, err2 := m.durable.Cleanup(ctx)
	m.metrics.RecordExpiredRemoved(ctx, string(storage.TierVolatile), int64(removedVolatile))
	m.metrics.RecordExpiredRemoved(ctx, string(storage.TierDurable), int64(removedDurable))
	return removedVolatile + removedDurable, errors.Join(err1, err2)
}

// TierStats returns per-tier statistics.
func (m *Manager) TierStats(ctx context.Context) (volatile, durable storage.Stats) {
	return m.volatile.Stats(ctx), m.durable.Stats(ctx)
}

// Health describes tier availability and sync connectivity.
type Health struct {
	// Volatile reports the in-memory tier's availability.
	Volatile bool
	// Durable reports the persistent tier's availability.
	Durable bool
	// Overall is the AND of all tiers. Callers use it to decide
	// whether to degrade to a remote-only mode.
	Overall bool
	// Connectivity is the sync engine's state.
	Connectivity statemachine.State
	// PendingCount is the current depth of the sync queue.
	PendingCount int
}

// Health reports tier availability and sync state.
func (m *Manager) Health(ctx context.Context) Health {
	vol := m.volatile.Available()
	dur := m.durable.Available()

	m.mu.Lock()
	pending := len(m.pending) + len(m.tombstones)
	m.mu.Unlock()

	return Health{
		Volatile:     vol,
		Durable:      dur,
		Overall:      vol && dur,
		Connectivity: m.tracker.State(),
		PendingCount: pending,
	}
}

// Events returns the manager's event stream. Events are dropped when
// the buffer is full rather than blocking cache operations.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) emit(ev Event) {
	m.evMu.Lock()
	defer m.evMu.Unlock()

	if m.eventsClosed {
		return
	}

	select {
	case m.events <- ev:
	default:
		logging.Debug().
			Add(logging.Component("manager")).
			Add(logging.Str("event_type", string(ev.Type))).
			Msg("event buffer full, dropping event")
	}
}
