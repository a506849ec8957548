package logging

import (
	"strconv"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/wilson323/llmchat-sub005/domain/storage"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for cache engine logging.

// Key adds a cache key field.
func Key(key string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("key", key)
	}
}

// TierField adds a storage tier field.
func TierField(t storage.Tier) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tier", string(t))
	}
}

// SyncState adds a sync status field.
func SyncState(s storage.SyncStatus) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("sync_status", string(s))
	}
}

// Owner adds an owner ID field.
func Owner(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("owner_id", id)
	}
}

// Size adds a byte size field.
func Size(n int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("size_bytes", n)
	}
}

// EvictedCount adds an eviction count field.
func EvictedCount(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("evicted", n)
	}
}

// PendingCount adds a pending-sync count field.
func PendingCount(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("pending", n)
	}
}

// Attempt adds a retry attempt field.
func Attempt(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("attempt", n)
	}
}

// BatchID adds a sync batch identifier field.
func BatchID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("batch_id", id)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// HitRate adds a hit-rate field.
func HitRate(rate float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("hit_rate", strconv.FormatFloat(rate, 'f', 3, 64))
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an int field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}

// Bool adds a bool field with custom key.
func Bool(key string, value bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool(key, value)
	}
}
