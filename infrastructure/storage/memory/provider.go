// Package memory provides the in-process volatile tier of the session
// cache. It is size- and count-bounded with recency×frequency eviction.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wilson323/llmchat-sub005/domain/storage"
	"github.com/wilson323/llmchat-sub005/infrastructure/logging"
)

// Default capacity bounds.
const (
	DefaultMaxSize    = 10 << 20 // 10MB
	DefaultMaxEntries = 1000
)

// hysteresisRatio is the fill level eviction drains down to, so
// repeated inserts at the capacity boundary do not thrash.
const hysteresisRatio = 0.8

// MetricsRecorder receives eviction counts from the provider. The
// telemetry metrics provider satisfies it.
type MetricsRecorder interface {
	RecordEviction(ctx context.Context, tier string, count int64)
}

// Provider is the volatile tier implementation of storage.Provider.
// A single mutex guards the entry map and the size accounting, which
// serializes concurrent eviction passes by construction.
type Provider struct {
	mu          sync.Mutex
	entries     map[string]*storage.Entry
	currentSize int64
	maxSize     int64
	maxEntries  int
	hits        int64
	misses      int64
	available   bool
	metrics     MetricsRecorder
}

// Option configures the provider.
type Option func(*Provider)

// WithMaxSize sets the maximum accounted byte size.
func WithMaxSize(size int64) Option {
	return func(p *Provider) {
		p.maxSize = size
	}
}

// WithMaxEntries sets the maximum entry count.
func WithMaxEntries(n int) Option {
	return func(p *Provider) {
		p.maxEntries = n
	}
}

// WithMetrics sets the recorder eviction counts are reported to.
func WithMetrics(rec MetricsRecorder) Option {
	return func(p *Provider) {
		p.metrics = rec
	}
}

// NewProvider creates a volatile tier provider. Call Init before use.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		maxSize:    DefaultMaxSize,
		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init prepares the provider for use.
func (p *Provider) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = make(map[string]*storage.Entry)
	p.currentSize = 0
	p.available = true
	return nil
}

// Destroy releases the provider. Subsequent operations fail with
// ErrNotAvailable.
func (p *Provider) Destroy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = nil
	p.currentSize = 0
	p.available = false
	return nil
}

// Available reports whether the provider is ready for use.
func (p *Provider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Get retrieves an entry. Expired entries are deleted lazily and
// reported as misses.
func (p *Provider) Get(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return nil, false, nil
	}

	entry, ok := p.getLocked(key, time.Now())
	if !ok {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

// Peek retrieves an entry without touching access statistics.
func (p *Provider) Peek(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return nil, false, nil
	}

	entry, ok := p.entries[key]
	if !ok || entry.IsExpired(time.Now()) {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

// getLocked resolves a key against expiry and updates access
// statistics. Must be called with the lock held.
func (p *Provider) getLocked(key string, now time.Time) (*storage.Entry, bool) {
	entry, ok := p.entries[key]
	if !ok {
		p.misses++
		return nil, false
	}

	if entry.IsExpired(now) {
		p.removeLocked(key)
		p.misses++
		return nil, false
	}

	entry.Touch(now)
	p.hits++
	return entry, true
}

// Set stores a value under the key. Capacity invariants hold before
// Set returns. An entry larger than the tier on its own is logged and
// skipped rather than failing the caller.
func (p *Provider) Set(ctx context.Context, key string, data []byte, opts storage.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		return storage.ErrInvalidKey
	}

	opts.Tier = storage.TierVolatile
	return p.setEntry(storage.NewEntry(key, data, opts))
}

// SetEntry stores a fully-populated entry, preserving its access
// statistics and sync state.
func (p *Provider) SetEntry(ctx context.Context, entry *storage.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if entry == nil || entry.Key == "" {
		return storage.ErrInvalidKey
	}

	clone := entry.Clone()
	clone.StorageTier = storage.TierVolatile
	return p.setEntry(clone)
}

func (p *Provider) setEntry(entry *storage.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return storage.ErrNotAvailable
	}

	if entry.Size > p.maxSize {
		logging.Warn().
			Add(logging.Component("memory")).
			Add(logging.Key(entry.Key)).
			Add(logging.Size(entry.Size)).
			Msg("entry exceeds volatile tier capacity, skipping")
		return nil
	}

	p.removeLocked(entry.Key)
	p.ensureCapacityLocked(entry.Size)

	p.entries[entry.Key] = entry
	p.currentSize += entry.Size
	return nil
}

// ensureCapacityLocked evicts lowest-scored entries until the incoming
// size fits and both hysteresis targets are met. Must be called with
// the lock held.
func (p *Provider) ensureCapacityLocked(incoming int64) {
	if p.currentSize+incoming <= p.maxSize && len(p.entries) < p.maxEntries {
		return
	}

	targetSize := int64(hysteresisRatio * float64(p.maxSize))
	targetCount := int(hysteresisRatio * float64(p.maxEntries))

	candidates := make([]*storage.Entry, 0, len(p.entries))
	for _, e := range p.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].EvictionScore(), candidates[j].EvictionScore()
		if si != sj {
			return si < sj
		}
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	evicted := 0
	for _, e := range candidates {
		if p.currentSize+incoming <= targetSize && len(p.entries) <= targetCount {
			break
		}
		p.removeLocked(e.Key)
		evicted++
	}

	if evicted > 0 {
		if p.metrics != nil {
			p.metrics.RecordEviction(context.Background(), string(storage.TierVolatile), int64(evicted))
		}
		logging.Debug().
			Add(logging.Component("memory")).
			Add(logging.EvictedCount(evicted)).
			Add(logging.Size(p.currentSize)).
			Msg("evicted entries to restore capacity")
	}
}

// removeLocked deletes an entry and adjusts the size accounting. Must
// be called with the lock held.
func (p *Provider) removeLocked(key string) bool {
	entry, ok := p.entries[key]
	if !ok {
		return false
	}
	p.currentSize -= entry.Size
	delete(p.entries, key)
	return true
}

// Delete removes an entry. Returns false when the key was absent.
func (p *Provider) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return false, storage.ErrNotAvailable
	}
	return p.removeLocked(key), nil
}

// Exists reports whether a non-expired entry is present. It does not
// update access statistics.
func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[key]
	if !ok {
		return false, nil
	}
	return !entry.IsExpired(time.Now()), nil
}

// Clear removes all entries. Hit and miss counters are retained.
func (p *Provider) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return storage.ErrNotAvailable
	}

	p.entries = make(map[string]*storage.Entry)
	p.currentSize = 0
	return nil
}

// MGet retrieves multiple entries, one result element per input key.
func (p *Provider) MGet(ctx context.Context, keys []string) (map[string]*storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	result := make(map[string]*storage.Entry, len(keys))
	for _, key := range keys {
		if !p.available {
			result[key] = nil
			continue
		}
		if entry, ok := p.getLocked(key, now); ok {
			result[key] = entry.Clone()
		} else {
			result[key] = nil
		}
	}
	return result, nil
}

// MSet stores multiple entries.
func (p *Provider) MSet(ctx context.Context, items []storage.BatchItem) error {
	for _, item := range items {
		if err := p.Set(ctx, item.Key, item.Data, item.Opts); err != nil {
			return err
		}
	}
	return nil
}

// MDelete removes multiple entries. Returns true when every key was
// present.
func (p *Provider) MDelete(ctx context.Context, keys []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return false, storage.ErrNotAvailable
	}

	all := true
	for _, key := range keys {
		if !p.removeLocked(key) {
			all = false
		}
	}
	return all, nil
}

// List returns non-expired entries whose keys start with the prefix,
// ordered by key.
func (p *Provider) List(ctx context.Context, prefix string, limit int) ([]*storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(p.entries))
	for key, entry := range p.entries {
		if strings.HasPrefix(key, prefix) && !entry.IsExpired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	result := make([]*storage.Entry, 0, len(keys))
	for _, key := range keys {
		result = append(result, p.entries[key].Clone())
	}
	return result, nil
}

// Search scans all live entries and ranks them by relevance.
func (p *Provider) Search(ctx context.Context, query storage.SearchQuery) ([]storage.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	results := make([]storage.SearchResult, 0)
	for key, entry := range p.entries {
		if entry.IsExpired(now) || !query.Matches(entry) {
			continue
		}
		results = append(results, storage.SearchResult{
			Key:   key,
			Entry: entry.Clone(),
			Score: query.Score(entry),
		})
	}
	return query.RankResults(results), nil
}

// Stats returns aggregate statistics for the tier.
func (p *Provider) Stats(ctx context.Context) storage.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := storage.Stats{
		TotalEntries: int64(len(p.entries)),
		TotalSize:    p.currentSize,
		HitCount:     p.hits,
		MissCount:    p.misses,
	}
	for _, entry := range p.entries {
		if stats.OldestEntry.IsZero() || entry.Timestamp.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.Timestamp
		}
		if entry.Timestamp.After(stats.NewestEntry) {
			stats.NewestEntry = entry.Timestamp
		}
	}
	return stats
}

// ResetStats zeroes the hit and miss counters.
func (p *Provider) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits = 0
	p.misses = 0
}

// PendingSync returns the keys of entries awaiting remote sync, in
// key order.
func (p *Provider) PendingSync(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return nil, storage.ErrNotAvailable
	}

	var keys []string
	for key, entry := range p.entries {
		if entry.SyncStatus == storage.SyncStatusPending {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Cleanup removes every expired entry and returns how many were
// purged.
func (p *Provider) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.available {
		return 0, storage.ErrNotAvailable
	}

	now := time.Now()
	removed := 0
	for key, entry := range p.entries {
		if entry.IsExpired(now) {
			p.removeLocked(key)
			removed++
		}
	}
	return removed, nil
}

// Ensure Provider implements storage.Provider.
var _ storage.Provider = (*Provider)(nil)
