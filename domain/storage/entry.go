// Package storage provides the domain contract for tiered session storage.
package storage

import (
	"time"
)

// Temperature classifies an entry's retention priority.
type Temperature string

// Temperature values.
const (
	TemperatureHot  Temperature = "HOT"
	TemperatureWarm Temperature = "WARM"
	TemperatureCold Temperature = "COLD"
)

// Tier identifies which storage tier physically holds an entry.
type Tier string

// Tier values.
const (
	TierVolatile Tier = "VOLATILE"
	TierDurable  Tier = "DURABLE"
)

// SyncStatus tracks whether the remote backend has an up-to-date copy.
type SyncStatus string

// SyncStatus values.
const (
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusError   SyncStatus = "ERROR"
)

// Entry is the unit of storage. Stores own their copy of Data; callers
// must not retain a mutable alias into a stored entry.
type Entry struct {
	// Key uniquely identifies the entry within a tier.
	Key string `json:"key"`

	// Data is the opaque payload.
	Data []byte `json:"data"`

	// Timestamp is the creation time.
	Timestamp time.Time `json:"timestamp"`

	// LastAccessed is updated on every successful, non-expired read.
	LastAccessed time.Time `json:"lastAccessed"`

	// AccessCount is incremented on every successful, non-expired read.
	AccessCount int64 `json:"accessCount"`

	// Temperature is a retention hint. New entries start WARM.
	Temperature Temperature `json:"temperature"`

	// ExpiresAt is the absolute expiry instant. Zero means no expiry.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`

	// Size is the approximate serialized byte length, used for
	// capacity accounting.
	Size int64 `json:"size"`

	// StorageTier is the tier that physically holds this copy.
	StorageTier Tier `json:"storageTier"`

	// SyncStatus reports remote synchronization state.
	SyncStatus SyncStatus `json:"syncStatus"`

	// OwnerID identifies the session owner, for search and indexing.
	OwnerID string `json:"ownerId,omitempty"`

	// Title is a human-readable label matched by text search.
	Title string `json:"title,omitempty"`

	// Tags are free-form labels matched by tag search.
	Tags []string `json:"tags,omitempty"`
}

// IsExpired reports whether the entry's expiry instant has passed.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(e.ExpiresAt)
}

// EvictionScore is the recency×frequency score used to order eviction
// candidates. Lower scores evict first: entries that are both old and
// rarely touched score lowest, while a single recent hit outweighs many
// stale ones. Entries never read since insertion score zero.
func (e *Entry) EvictionScore() float64 {
	return float64(e.LastAccessed.UnixMilli()) * float64(e.AccessCount)
}

// Clone returns a deep copy of the entry, including its payload.
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Data = make([]byte, len(e.Data))
	copy(clone.Data, e.Data)
	if e.Tags != nil {
		clone.Tags = make([]string, len(e.Tags))
		copy(clone.Tags, e.Tags)
	}
	return &clone
}

// Touch records a successful read at the given instant.
func (e *Entry) Touch(now time.Time) {
	e.LastAccessed = now
	e.AccessCount++
}

// NewEntry creates an entry for the given key and payload with the
// options applied. The entry starts WARM with its access clock set to
// the creation instant.
func NewEntry(key string, data []byte, opts SetOptions) *Entry {
	now := time.Now()

	payload := make([]byte, len(data))
	copy(payload, data)

	e := &Entry{
		Key:          key,
		Data:         payload,
		Timestamp:    now,
		LastAccessed: now,
		Temperature:  TemperatureWarm,
		ExpiresAt:    opts.ExpiresAt,
		Size:         int64(len(key) + len(data)),
		StorageTier:  opts.Tier,
		SyncStatus:   SyncStatusPending,
		OwnerID:      opts.OwnerID,
		Title:        opts.Title,
	}

	if opts.TTL > 0 {
		e.ExpiresAt = now.Add(opts.TTL)
	}
	if len(opts.Tags) > 0 {
		e.Tags = make([]string, len(opts.Tags))
		copy(e.Tags, opts.Tags)
	}
	if opts.Temperature != "" {
		e.Temperature = opts.Temperature
	}
	if e.StorageTier == "" {
		e.StorageTier = TierVolatile
	}

	return e
}

// SetOptions configures how a value is stored.
type SetOptions struct {
	// TTL is the time-to-live. Zero means no expiration.
	TTL time.Duration

	// ExpiresAt is an absolute expiry instant. TTL takes precedence
	// when both are set.
	ExpiresAt time.Time

	// OwnerID identifies the session owner.
	OwnerID string

	// Title is a human-readable label for text search.
	Title string

	// Tags are free-form labels for tag search.
	Tags []string

	// Temperature overrides the default WARM classification.
	Temperature Temperature

	// Tier records which tier the entry is being written to.
	Tier Tier
}
