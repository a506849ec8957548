package storage

import (
	"context"
)

// Provider defines the uniform contract every storage tier implements.
// Implementations may be in-memory, BadgerDB, SQLite, or any other
// backend; the tiered manager composes them without knowing which.
//
// Read-path operations (Get, Exists, MGet, List, Search, Stats) degrade
// gracefully: backend failures are absorbed and reported as absent or
// zero-valued results. Write-path operations (Set, MSet) surface
// errors, since silently dropping a write is unacceptable. Delete
// distinguishes "not found" (false, nil) from a true medium failure.
type Provider interface {
	// Init opens the backing medium and prepares indexes. A provider
	// is unavailable before Init and after Destroy.
	Init(ctx context.Context) error

	// Destroy releases the backing medium.
	Destroy(ctx context.Context) error

	// Available reports whether the provider is ready for use.
	Available() bool

	// Get retrieves an entry by key. Expired entries are treated as
	// absent and lazily removed. Successful reads update the entry's
	// access statistics.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Peek retrieves an entry without updating access statistics or
	// hit/miss counters. Expired entries are treated as absent but not
	// removed. Used by the sync engine, which must not perturb eviction
	// scores.
	Peek(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores a value under the key, replacing any existing entry.
	// Capacity invariants hold before Set returns: eviction runs first
	// when the insert would exceed the tier's bounds.
	Set(ctx context.Context, key string, data []byte, opts SetOptions) error

	// SetEntry stores a fully-populated entry, preserving its access
	// statistics and sync state. Used for tier promotion and sync
	// bookkeeping.
	SetEntry(ctx context.Context, entry *Entry) error

	// Delete removes an entry. Returns false when the key was absent.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether a non-expired entry is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// MGet retrieves multiple entries. The result holds exactly one
	// element per input key; absent keys map to nil.
	MGet(ctx context.Context, keys []string) (map[string]*Entry, error)

	// MSet stores multiple entries.
	MSet(ctx context.Context, items []BatchItem) error

	// MDelete removes multiple entries. Returns true when every key
	// was present and removed.
	MDelete(ctx context.Context, keys []string) (bool, error)

	// List returns entries whose keys start with the prefix, up to
	// limit (0 = no limit).
	List(ctx context.Context, prefix string, limit int) ([]*Entry, error)

	// Search returns entries ranked by relevance score, descending.
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)

	// Stats returns aggregate statistics. Counters accumulate for the
	// provider's lifetime unless ResetStats is called.
	Stats(ctx context.Context) Stats

	// ResetStats zeroes the hit/miss counters.
	ResetStats()

	// Cleanup purges expired entries and returns how many were
	// removed.
	Cleanup(ctx context.Context) (int, error)

	// PendingSync returns the keys of entries whose sync status is
	// PENDING, in key order. The tiered manager rebuilds its sync
	// queue from the durable tier's answer after a restart.
	PendingSync(ctx context.Context) ([]string, error)
}

// BatchItem is one element of an MSet call.
type BatchItem struct {
	Key  string
	Data []byte
	Opts SetOptions
}
