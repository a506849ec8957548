package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/wilson323/llmchat-sub005/domain/storage"
	"github.com/wilson323/llmchat-sub005/infrastructure/logging"
)

// hysteresisRatio is the fill level eviction drains down to. Eviction
// stops once the target is met; it never sweeps the whole index.
const hysteresisRatio = 0.8

// Key namespaces. Secondary indexes live beside the primary records so
// range scans by recency, expiry, owner, sync state, temperature and
// tier never need a full table walk. Index records hold the primary
// key as their value; every index mutation happens in the same
// transaction as the primary record it describes.
const (
	nsEntry     = "ent:"
	nsIdxAccess = "idx:la:"
	nsIdxCreate = "idx:ts:"
	nsIdxExpiry = "idx:exp:"
	nsIdxOwner  = "idx:owner:"
	nsIdxSync   = "idx:sync:"
	nsIdxTemp   = "idx:temp:"
	nsIdxTier   = "idx:tier:"
)

// Provider is the durable tier implementation of storage.Provider.
// Cross-operation accounting (size, count) is held in memory, rebuilt
// on Init, and guarded by a single mutex so racing writes cannot run
// overlapping eviction passes.
type Provider struct {
	cfg Config

	mu          sync.Mutex
	db          *badger.DB
	currentSize int64
	count       int

	hits      atomic.Int64
	misses    atomic.Int64
	available atomic.Bool

	gcStop chan struct{}
	gcWg   sync.WaitGroup
}

// NewProvider creates a durable tier provider. Call Init before use.
func NewProvider(cfg Config, opts ...Option) *Provider {
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Provider{cfg: cfg}
}

// Init opens the database, clamps the configured capacity to the
// medium's reported quota, rebuilds the accounting and starts value
// log GC.
func (p *Provider) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return nil
	}

	// Quota clamps downward only.
	if p.cfg.Quota > 0 && p.cfg.Quota < p.cfg.MaxSize {
		logging.Warn().
			Add(logging.Component("badger")).
			Add(logging.Size(p.cfg.Quota)).
			Msg("medium quota below configured capacity, clamping")
		p.cfg.MaxSize = p.cfg.Quota
	}

	db, err := openDB(p.cfg)
	if err != nil {
		return errors.Join(storage.ErrConnectionFailed, err)
	}
	p.db = db

	if err := p.rebuildAccountingLocked(); err != nil {
		_ = db.Close()
		p.db = nil
		return err
	}

	p.gcStop = make(chan struct{})
	if p.cfg.GCInterval > 0 {
		p.startGC(p.cfg.GCInterval, p.cfg.GCDiscardRatio)
	}

	p.available.Store(true)
	return nil
}

// rebuildAccountingLocked walks the primary records once to restore
// the in-memory size and count after a restart.
func (p *Provider) rebuildAccountingLocked() error {
	p.currentSize = 0
	p.count = 0

	return p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p.key(nsEntry)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry storage.Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return errors.Join(storage.ErrSerializationFailed, err)
			}
			p.currentSize += entry.Size
			p.count++
		}
		return nil
	})
}

// startGC starts the value log garbage collection goroutine.
func (p *Provider) startGC(interval time.Duration, discardRatio float64) {
	p.gcWg.Add(1)
	go func() {
		defer p.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.gcStop:
				return
			case <-ticker.C:
				for {
					if err := p.db.RunValueLogGC(discardRatio); err != nil {
						break
					}
				}
			}
		}
	}()
}

// Destroy stops GC and closes the database.
func (p *Provider) Destroy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	p.available.Store(false)
	close(p.gcStop)
	p.gcWg.Wait()

	err := p.db.Close()
	p.db = nil
	return err
}

// Available reports whether the provider is ready for use.
func (p *Provider) Available() bool {
	return p.available.Load()
}

// handle returns the open database, or nil when the provider is not
// available.
func (p *Provider) handle() *badger.DB {
	if !p.available.Load() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db
}

// key prepends the configured prefix.
func (p *Provider) key(parts ...string) []byte {
	out := p.cfg.KeyPrefix
	for _, part := range parts {
		out += part
	}
	return []byte(out)
}

// tsHex renders a timestamp as fixed-width hex so index keys sort
// chronologically.
func tsHex(t time.Time) string {
	return fmt.Sprintf("%016x", t.UnixMilli())
}

func parseTsHex(s string) time.Time {
	millis, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

// indexKeys returns every secondary index key for the entry.
func (p *Provider) indexKeys(e *storage.Entry) [][]byte {
	keys := [][]byte{
		p.key(nsIdxAccess, tsHex(e.LastAccessed), ":", e.Key),
		p.key(nsIdxCreate, tsHex(e.Timestamp), ":", e.Key),
		p.key(nsIdxSync, string(e.SyncStatus), ":", e.Key),
		p.key(nsIdxTemp, string(e.Temperature), ":", e.Key),
		p.key(nsIdxTier, string(e.StorageTier), ":", e.Key),
	}
	if e.OwnerID != "" {
		keys = append(keys, p.key(nsIdxOwner, e.OwnerID, ":", e.Key))
	}
	if !e.ExpiresAt.IsZero() {
		keys = append(keys, p.key(nsIdxExpiry, tsHex(e.ExpiresAt), ":", e.Key))
	}
	return keys
}

// putEntryTxn writes the primary record and its index records.
func (p *Provider) putEntryTxn(txn *badger.Txn, e *storage.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Join(storage.ErrSerializationFailed, err)
	}
	if err := txn.Set(p.key(nsEntry, e.Key), data); err != nil {
		return err
	}
	for _, idx := range p.indexKeys(e) {
		if err := txn.Set(idx, []byte(e.Key)); err != nil {
			return err
		}
	}
	return nil
}

// deleteEntryTxn removes the primary record and its index records.
func (p *Provider) deleteEntryTxn(txn *badger.Txn, e *storage.Entry) error {
	if err := txn.Delete(p.key(nsEntry, e.Key)); err != nil {
		return err
	}
	for _, idx := range p.indexKeys(e) {
		if err := txn.Delete(idx); err != nil {
			return err
		}
	}
	return nil
}

// readEntryTxn loads and decodes a primary record.
func (p *Provider) readEntryTxn(txn *badger.Txn, key string) (*storage.Entry, error) {
	item, err := txn.Get(p.key(nsEntry, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry storage.Entry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, errors.Join(storage.ErrSerializationFailed, err)
	}
	return &entry, nil
}

// Get retrieves an entry. The expiry check mirrors the volatile tier;
// access statistics are persisted in a separate read-modify-write
// transaction after the read itself.
func (p *Provider) Get(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !p.available.Load() {
		return nil, false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var entry *storage.Entry
	err := p.db.View(func(txn *badger.Txn) error {
		e, err := p.readEntryTxn(txn, key)
		entry = e
		return err
	})
	if err != nil {
		// Read path degrades to a miss.
		logging.Debug().
			Add(logging.Component("badger")).
			Add(logging.Key(key)).
			Add(logging.ErrorField(err)).
			Msg("read failed, treating as miss")
		p.misses.Add(1)
		return nil, false, nil
	}
	if entry == nil {
		p.misses.Add(1)
		return nil, false, nil
	}

	now := time.Now()
	if entry.IsExpired(now) {
		p.removeLocked(entry)
		p.misses.Add(1)
		return nil, false, nil
	}

	// Persist the access bump and move the recency index.
	stale := entry.Clone()
	entry.Touch(now)
	err = p.db.Update(func(txn *badger.Txn) error {
		if err := p.deleteEntryTxn(txn, stale); err != nil {
			return err
		}
		return p.putEntryTxn(txn, entry)
	})
	if err != nil {
		logging.Debug().
			Add(logging.Component("badger")).
			Add(logging.Key(key)).
			Add(logging.ErrorField(err)).
			Msg("access stats update failed")
	}

	p.hits.Add(1)
	return entry.Clone(), true, nil
}

// Set stores a value under the key, evicting first when the insert
// would exceed capacity. A single entry larger than the tier is
// rejected outright.
func (p *Provider) Set(ctx context.Context, key string, data []byte, opts storage.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return storage.ErrInvalidKey
	}

	opts.Tier = storage.TierDurable
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
	clone.StorageTier = storage.TierDurable
	return p.setEntry(clone)
}

func (p *Provider) setEntry(entry *storage.Entry) error {
	if !p.available.Load() {
		return storage.ErrNotAvailable
	}
	if entry.Size > p.cfg.MaxSize {
		return storage.ErrEntryTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var old *storage.Entry
	err := p.db.View(func(txn *badger.Txn) error {
		e, err := p.readEntryTxn(txn, entry.Key)
		old = e
		return err
	})
	if err != nil {
		return err
	}

	// Account the replaced copy as already gone so eviction sizes the
	// incoming entry correctly, and keep the key itself off the
	// victim list.
	if old != nil {
		p.currentSize -= old.Size
		p.count--
	}

	if err := p.ensureCapacityLocked(entry.Size, entry.Key); err != nil {
		if old != nil {
			p.currentSize += old.Size
			p.count++
		}
		return err
	}

	err = p.db.Update(func(txn *badger.Txn) error {
		if old != nil {
			if err := p.deleteEntryTxn(txn, old); err != nil {
				return err
			}
		}
		return p.putEntryTxn(txn, entry)
	})
	if err != nil {
		if old != nil {
			p.currentSize += old.Size
			p.count++
		}
		return err
	}

	p.currentSize += entry.Size
	p.count++
	return nil
}

// ensureCapacityLocked walks the recency index ascending and evicts
// until the incoming size fits and both hysteresis targets are met.
// The walk is bounded: it stops at the target instead of sweeping
// every visited entry.
func (p *Provider) ensureCapacityLocked(incoming int64, excludeKey string) error {
	if p.currentSize+incoming <= p.cfg.MaxSize && p.count < p.cfg.MaxEntries {
		return nil
	}

	targetSize := int64(hysteresisRatio * float64(p.cfg.MaxSize))
	targetCount := int(hysteresisRatio * float64(p.cfg.MaxEntries))

	var victims []*storage.Entry
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = p.key(nsIdxAccess)

		it := txn.NewIterator(opts)
		defer it.Close()

		projectedSize := p.currentSize
		projectedCount := p.count

		for it.Rewind(); it.Valid(); it.Next() {
			if projectedSize+incoming <= targetSize && projectedCount <= targetCount {
				break
			}

			keyCopy, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			primary := string(keyCopy)
			if primary == excludeKey {
				continue
			}

			entry, err := p.readEntryTxn(txn, primary)
			if err != nil {
				return err
			}
			if entry == nil {
				continue
			}

			victims = append(victims, entry)
			projectedSize -= entry.Size
			projectedCount--
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, victim := range victims {
		if err := p.removeLocked(victim); err != nil {
			return err
		}
	}

	if len(victims) > 0 {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RecordEviction(context.Background(), string(storage.TierDurable), int64(len(victims)))
		}
		logging.Debug().
			Add(logging.Component("badger")).
			Add(logging.EvictedCount(len(victims))).
			Add(logging.Size(p.currentSize)).
			Msg("evicted entries to restore capacity")
	}
	return nil
}

// removeLocked deletes an entry in its own transaction and adjusts the
// accounting. Must be called with the lock held.
func (p *Provider) removeLocked(entry *storage.Entry) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		return p.deleteEntryTxn(txn, entry)
	})
	if err != nil {
		return err
	}
	p.currentSize -= entry.Size
	p.count--
	return nil
}

// Delete removes an entry. Returns false when the key was absent.
func (p *Provider) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !p.available.Load() {
		return false, storage.ErrNotAvailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var entry *storage.Entry
	err := p.db.View(func(txn *badger.Txn) error {
		e, err := p.readEntryTxn(txn, key)
		entry = e
		return err
	})
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	if err := p.removeLocked(entry); err != nil {
		return false, err
	}
	return true, nil
}

// Peek retrieves an entry without touching access statistics.
func (p *Provider) Peek(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	db := p.handle()
	if db == nil {
		return nil, false, nil
	}

	var entry *storage.Entry
	err := db.View(func(txn *badger.Txn) error {
		e, err := p.readEntryTxn(txn, key)
		entry = e
		return err
	})
	if err != nil || entry == nil {
		return nil, false, nil
	}
	if entry.IsExpired(time.Now()) {
		return nil, false, nil
	}
	return entry, true, nil
}

// Exists reports whether a non-expired entry is present without
// touching access statistics.
func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	db := p.handle()
	if db == nil {
		return false, nil
	}

	var entry *storage.Entry
	err := db.View(func(txn *badger.Txn) error {
		e, err := p.readEntryTxn(txn, key)
		entry = e
		return err
	})
	if err != nil || entry == nil {
		return false, nil
	}
	return !entry.IsExpired(time.Now()), nil
}

// Clear removes every record in the provider's namespace. Hit and
// miss counters are retained.
func (p *Provider) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.available.Load() {
		return storage.ErrNotAvailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DropPrefix(p.key()); err != nil {
		return err
	}
	p.currentSize = 0
	p.count = 0
	return nil
}

// MGet retrieves multiple entries, one result element per input key.
func (p *Provider) MGet(ctx context.Context, keys []string) (map[string]*storage.Entry, error) {
	result := make(map[string]*storage.Entry, len(keys))
	for _, key := range keys {
		entry, found, err := p.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			result[key] = entry
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
	all := true
	for _, key := range keys {
		deleted, err := p.Delete(ctx, key)
		if err != nil {
			return false, err
		}
		if !deleted {
			all = false
		}
	}
	return all, nil
}

// List returns non-expired entries whose keys start with the prefix,
// in key order.
func (p *Provider) List(ctx context.Context, prefix string, limit int) ([]*storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db := p.handle()
	if db == nil {
		return nil, nil
	}

	now := time.Now()
	var entries []*storage.Entry

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p.key(nsEntry, prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}

			var entry storage.Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				continue
			}
			if entry.IsExpired(now) {
				continue
			}
			entries = append(entries, entry.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, nil
	}
	return entries, nil
}

// Search cursors over every primary record, applying the shared
// scoring rules so ranking matches the volatile tier. Arbitrary text
// match has no index shortcut.
func (p *Provider) Search(ctx context.Context, query storage.SearchQuery) ([]storage.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db := p.handle()
	if db == nil {
		return nil, nil
	}

	now := time.Now()
	var results []storage.SearchResult

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p.key(nsEntry)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry storage.Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				continue
			}
			if entry.IsExpired(now) || !query.Matches(&entry) {
				continue
			}
			results = append(results, storage.SearchResult{
				Key:   entry.Key,
				Entry: entry.Clone(),
				Score: query.Score(&entry),
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil
	}
	return query.RankResults(results), nil
}

// Stats returns aggregate statistics. Oldest and newest entry times
// come from the ends of the creation-time index.
func (p *Provider) Stats(ctx context.Context) storage.Stats {
	p.mu.Lock()
	stats := storage.Stats{
		TotalEntries: int64(p.count),
		TotalSize:    p.currentSize,
		HitCount:     p.hits.Load(),
		MissCount:    p.misses.Load(),
	}
	db := p.db
	p.mu.Unlock()

	if db == nil || !p.available.Load() {
		return stats
	}

	prefix := p.key(nsIdxCreate)
	_ = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		it.Rewind()
		if it.Valid() {
			stats.OldestEntry = p.indexTime(it.Item().Key())
		}
		it.Close()

		opts.Reverse = true
		rit := txn.NewIterator(opts)
		defer rit.Close()

		// Reverse iteration needs a seek past the prefix end.
		seek := append(append([]byte{}, prefix...), 0xff)
		rit.Seek(seek)
		if rit.Valid() {
			stats.NewestEntry = p.indexTime(rit.Item().Key())
		}
		return nil
	})
	return stats
}

// indexTime extracts the timestamp component of a time-ordered index
// key.
func (p *Provider) indexTime(key []byte) time.Time {
	base := len(p.key(nsIdxCreate))
	if len(key) < base+16 {
		return time.Time{}
	}
	return parseTsHex(string(key[base : base+16]))
}

// ResetStats zeroes the hit and miss counters.
func (p *Provider) ResetStats() {
	p.hits.Store(0)
	p.misses.Store(0)
}

// Cleanup walks the expiry index with an upper bound of now and
// removes only the expired entries, in one bounded pass.
func (p *Provider) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !p.available.Load() {
		return 0, storage.ErrNotAvailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bound := tsHex(time.Now())
	prefixLen := len(p.key(nsIdxExpiry))

	var victims []*storage.Entry
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = p.key(nsIdxExpiry)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) < prefixLen+16 {
				continue
			}
			if string(key[prefixLen:prefixLen+16]) > bound {
				// Index is time-ordered; everything past here is live.
				break
			}

			primaryKey, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entry, err := p.readEntryTxn(txn, string(primaryKey))
			if err != nil {
				return err
			}
			if entry != nil {
				victims = append(victims, entry)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, victim := range victims {
		if err := p.removeLocked(victim); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}

// PendingSync walks the sync-status index and returns the keys still
// marked PENDING. Index keys embed the primary key, so iteration order
// is key order.
func (p *Provider) PendingSync(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db := p.handle()
	if db == nil {
		return nil, storage.ErrNotAvailable
	}

	var keys []string
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p.key(nsIdxSync, string(storage.SyncStatusPending), ":")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			primary, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			keys = append(keys, string(primary))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DB returns the underlying BadgerDB database.
func (p *Provider) DB() *badger.DB {
	return p.db
}

// Ensure Provider implements storage.Provider.
var _ storage.Provider = (*Provider)(nil)
