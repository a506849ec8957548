package application

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies manager events.
type EventType string

// Event types emitted on the manager's event stream.
const (
	// EventSyncFailed means a push for one key failed after retries.
	EventSyncFailed EventType = "sync_failed"
	// EventSyncCompleted means a sync round drained its batch.
	EventSyncCompleted EventType = "sync_completed"
	// EventWentOffline means the engine stopped attempting pushes.
	EventWentOffline EventType = "went_offline"
	// EventWentOnline means the engine resumed pushing and flushed.
	EventWentOnline EventType = "went_online"
	// EventTierFault means a tier rejected a write.
	EventTierFault EventType = "tier_fault"
)

// Event is a manager-level notification. Sync failures are reported
// here rather than as errors on the write path; local reads and writes
// never block on sync problems.
type Event struct {
	// ID uniquely identifies the event.
	ID string
	// Type classifies the event.
	Type EventType
	// Key is the affected entry key, when the event concerns one.
	Key string
	// BatchID groups events from the same sync round.
	BatchID string
	// Err carries the underlying failure, when any.
	Err error
	// Time is when the event occurred.
	Time time.Time
}

func newEvent(typ EventType) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: typ,
		Time: time.Now(),
	}
}
