package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/wilson323/llmchat-sub005/domain/storage"
	"github.com/wilson323/llmchat-sub005/infrastructure/logging"
)

// hysteresisRatio matches the other tiers so eviction behaves the same
// regardless of the backing medium.
const hysteresisRatio = 0.8

const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		key           TEXT PRIMARY KEY,
		data          BLOB NOT NULL,
		timestamp     INTEGER NOT NULL,
		last_accessed INTEGER NOT NULL,
		access_count  INTEGER NOT NULL DEFAULT 0,
		temperature   TEXT NOT NULL,
		expires_at    INTEGER,
		size          INTEGER NOT NULL,
		storage_tier  TEXT NOT NULL,
		sync_status   TEXT NOT NULL,
		owner_id      TEXT,
		title         TEXT,
		tags          TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
	CREATE INDEX IF NOT EXISTS idx_entries_last_accessed ON entries(last_accessed);
	CREATE INDEX IF NOT EXISTS idx_entries_expires_at ON entries(expires_at);
	CREATE INDEX IF NOT EXISTS idx_entries_owner ON entries(owner_id);
	CREATE INDEX IF NOT EXISTS idx_entries_sync ON entries(sync_status);
	CREATE INDEX IF NOT EXISTS idx_entries_temperature ON entries(temperature);
	CREATE INDEX IF NOT EXISTS idx_entries_tier ON entries(storage_tier);
`

const entryColumns = `key, data, timestamp, last_accessed, access_count,
	temperature, expires_at, size, storage_tier, sync_status, owner_id, title, tags`

// Provider is the SQLite implementation of storage.Provider. The
// mutex serializes writes and eviction passes; read statements run
// concurrently against the pool.
type Provider struct {
	cfg Config

	mu sync.Mutex
	db *sql.DB

	hits      atomic.Int64
	misses    atomic.Int64
	available atomic.Bool
}

// NewProvider creates a SQLite durable tier provider. Call Init
// before use.
func NewProvider(cfg Config, opts ...Option) *Provider {
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Provider{cfg: cfg}
}

// Init opens the database, applies the schema, and clamps capacity to
// the reported quota.
func (p *Provider) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return nil
	}

	if p.cfg.Quota > 0 && p.cfg.Quota < p.cfg.MaxSize {
		logging.Warn().
			Add(logging.Component("sqlite")).
			Add(logging.Size(p.cfg.Quota)).
			Msg("medium quota below configured capacity, clamping")
		p.cfg.MaxSize = p.cfg.Quota
	}

	db, err := openDB(p.cfg)
	if err != nil {
		return errors.Join(storage.ErrConnectionFailed, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return errors.Join(ErrMigrationFailed, err)
	}

	p.db = db
	p.available.Store(true)
	return nil
}

// Destroy closes the database.
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
	err := p.db.Close()
	p.db = nil
	return err
}

// Available reports whether the provider is ready for use.
func (p *Provider) Available() bool {
	return p.available.Load()
}

func scanEntry(row interface{ Scan(...any) error }) (*storage.Entry, error) {
	var (
		e         storage.Entry
		ts, la    int64
		expiresAt sql.NullInt64
		ownerID   sql.NullString
		title     sql.NullString
		tags      sql.NullString
	)

	err := row.Scan(&e.Key, &e.Data, &ts, &la, &e.AccessCount,
		&e.Temperature, &expiresAt, &e.Size, &e.StorageTier,
		&e.SyncStatus, &ownerID, &title, &tags)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.UnixMilli(ts)
	e.LastAccessed = time.UnixMilli(la)
	if expiresAt.Valid {
		e.ExpiresAt = time.UnixMilli(expiresAt.Int64)
	}
	e.OwnerID = ownerID.String
	e.Title = title.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
			return nil, errors.Join(storage.ErrSerializationFailed, err)
		}
	}
	return &e, nil
}

func entryArgs(e *storage.Entry) ([]any, error) {
	var expiresAt sql.NullInt64
	if !e.ExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: e.ExpiresAt.UnixMilli(), Valid: true}
	}

	var tags sql.NullString
	if len(e.Tags) > 0 {
		encoded, err := json.Marshal(e.Tags)
		if err != nil {
			return nil, errors.Join(storage.ErrSerializationFailed, err)
		}
		tags = sql.NullString{String: string(encoded), Valid: true}
	}

	return []any{
		e.Key, e.Data, e.Timestamp.UnixMilli(), e.LastAccessed.UnixMilli(),
		e.AccessCount, string(e.Temperature), expiresAt, e.Size,
		string(e.StorageTier), string(e.SyncStatus),
		sql.NullString{String: e.OwnerID, Valid: e.OwnerID != ""},
		sql.NullString{String: e.Title, Valid: e.Title != ""},
		tags,
	}, nil
}

// Get retrieves an entry. The access-stat bump runs as its own
// statement after the read, mirroring the durable-tier contract.
func (p *Provider) Get(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !p.available.Load() {
		return nil, false, nil
	}

	row := p.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE key = ?", key)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		p.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		p.misses.Add(1)
		return nil, false, nil
	}

	now := time.Now()
	if entry.IsExpired(now) {
		_, _ = p.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key)
		p.misses.Add(1)
		return nil, false, nil
	}

	entry.Touch(now)
	_, err = p.db.ExecContext(ctx,
		"UPDATE entries SET last_accessed = ?, access_count = ? WHERE key = ?",
		entry.LastAccessed.UnixMilli(), entry.AccessCount, key)
	if err != nil {
		logging.Debug().
			Add(logging.Component("sqlite")).
			Add(logging.Key(key)).
			Add(logging.ErrorField(err)).
			Msg("access stats update failed")
	}

	p.hits.Add(1)
	return entry, true, nil
}

// Set stores a value under the key, evicting first when the insert
// would exceed capacity.
func (p *Provider) Set(ctx context.Context, key string, data []byte, opts storage.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return storage.ErrInvalidKey
	}

	opts.Tier = storage.TierDurable
	return p.setEntry(ctx, storage.NewEntry(key, data, opts))
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
	return p.setEntry(ctx, clone)
}

func (p *Provider) setEntry(ctx context.Context, entry *storage.Entry) error {
	if !p.available.Load() {
		return storage.ErrNotAvailable
	}
	if entry.Size > p.cfg.MaxSize {
		return storage.ErrEntryTooLarge
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureCapacityLocked(ctx, entry.Size, entry.Key); err != nil {
		return err
	}

	args, err := entryArgs(entry)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count,
			temperature = excluded.temperature,
			expires_at = excluded.expires_at,
			size = excluded.size,
			storage_tier = excluded.storage_tier,
			sync_status = excluded.sync_status,
			owner_id = excluded.owner_id,
			title = excluded.title,
			tags = excluded.tags`,
		args...)
	return err
}

// usageLocked reports the current accounted size and count, excluding
// the key being replaced.
func (p *Provider) usageLocked(ctx context.Context, excludeKey string) (int64, int, error) {
	var size sql.NullInt64
	var count int
	err := p.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(size), 0), COUNT(*) FROM entries WHERE key != ?",
		excludeKey,
	).Scan(&size, &count)
	if err != nil {
		return 0, 0, err
	}
	return size.Int64, count, nil
}

// ensureCapacityLocked walks the last_accessed index ascending and
// deletes entries until the incoming size fits and both hysteresis
// targets are met.
func (p *Provider) ensureCapacityLocked(ctx context.Context, incoming int64, excludeKey string) error {
	currentSize, count, err := p.usageLocked(ctx, excludeKey)
	if err != nil {
		return err
	}
	if currentSize+incoming <= p.cfg.MaxSize && count < p.cfg.MaxEntries {
		return nil
	}

	targetSize := int64(hysteresisRatio * float64(p.cfg.MaxSize))
	targetCount := int(hysteresisRatio * float64(p.cfg.MaxEntries))

	rows, err := p.db.QueryContext(ctx,
		"SELECT key, size FROM entries WHERE key != ? ORDER BY last_accessed ASC",
		excludeKey)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	var victims []string
	for rows.Next() {
		if currentSize+incoming <= targetSize && count <= targetCount {
			break
		}

		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			return err
		}
		victims = append(victims, key)
		currentSize -= size
		count--
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_ = rows.Close()

	for _, key := range victims {
		if _, err := p.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key); err != nil {
			return err
		}
	}

	if len(victims) > 0 {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RecordEviction(ctx, string(storage.TierDurable), int64(len(victims)))
		}
		logging.Debug().
			Add(logging.Component("sqlite")).
			Add(logging.EvictedCount(len(victims))).
			Msg("evicted entries to restore capacity")
	}
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

	result, err := p.db.ExecContext(ctx, "DELETE FROM entries WHERE key = ?", key)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Peek retrieves an entry without touching access statistics.
func (p *Provider) Peek(ctx context.Context, key string) (*storage.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !p.available.Load() {
		return nil, false, nil
	}

	row := p.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE key = ?", key)

	entry, err := scanEntry(row)
	if err != nil {
		return nil, false, nil
	}
	if entry.IsExpired(time.Now()) {
		return nil, false, nil
	}
	return entry, true, nil
}

// Exists reports whether a non-expired entry is present.
func (p *Provider) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !p.available.Load() {
		return false, nil
	}

	var one int
	err := p.db.QueryRowContext(ctx,
		"SELECT 1 FROM entries WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)",
		key, time.Now().UnixMilli(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Clear removes all entries. Hit and miss counters are retained.
func (p *Provider) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.available.Load() {
		return storage.ErrNotAvailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.db.ExecContext(ctx, "DELETE FROM entries")
	return err
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
	if !p.available.Load() {
		return nil, nil
	}

	query := "SELECT " + entryColumns + ` FROM entries
		WHERE key LIKE ? ESCAPE '\'
		AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key`
	args := []any{likePrefix(prefix), time.Now().UnixMilli()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil
	}
	defer func() { _ = rows.Close() }()

	var entries []*storage.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// likePrefix escapes LIKE metacharacters in a key prefix.
func likePrefix(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}

// Search scans all live entries applying the shared scoring rules so
// ranking matches the other tiers.
func (p *Provider) Search(ctx context.Context, query storage.SearchQuery) ([]storage.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.available.Load() {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE expires_at IS NULL OR expires_at > ?",
		time.Now().UnixMilli())
	if err != nil {
		return nil, nil
	}
	defer func() { _ = rows.Close() }()

	var results []storage.SearchResult
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		if !query.Matches(entry) {
			continue
		}
		results = append(results, storage.SearchResult{
			Key:   entry.Key,
			Entry: entry,
			Score: query.Score(entry),
		})
	}
	return query.RankResults(results), nil
}

// Stats returns aggregate statistics.
func (p *Provider) Stats(ctx context.Context) storage.Stats {
	stats := storage.Stats{
		HitCount:  p.hits.Load(),
		MissCount: p.misses.Load(),
	}
	if !p.available.Load() {
		return stats
	}

	var size sql.NullInt64
	var oldest, newest sql.NullInt64
	err := p.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size), 0), MIN(timestamp), MAX(timestamp) FROM entries",
	).Scan(&stats.TotalEntries, &size, &oldest, &newest)
	if err != nil {
		return stats
	}

	stats.TotalSize = size.Int64
	if oldest.Valid {
		stats.OldestEntry = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		stats.NewestEntry = time.UnixMilli(newest.Int64)
	}
	return stats
}

// ResetStats zeroes the hit and miss counters.
func (p *Provider) ResetStats() {
	p.hits.Store(0)
	p.misses.Store(0)
}

// Cleanup deletes only the expired entries, using the expires_at
// index with an upper bound of now.
func (p *Provider) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !p.available.Load() {
		return 0, storage.ErrNotAvailable
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.db.ExecContext(ctx,
		"DELETE FROM entries WHERE expires_at IS NOT NULL AND expires_at <= ?",
		time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// PendingSync returns the keys of entries still marked PENDING, in
// key order. Served by the sync-status index.
func (p *Provider) PendingSync(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.available.Load() {
		return nil, storage.ErrNotAvailable
	}

	rows, err := p.db.QueryContext(ctx,
		"SELECT key FROM entries WHERE sync_status = ? ORDER BY key",
		string(storage.SyncStatusPending))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DB returns the underlying database connection.
func (p *Provider) DB() *sql.DB {
	return p.db
}

// Ensure Provider implements storage.Provider.
var _ storage.Provider = (*Provider)(nil)
