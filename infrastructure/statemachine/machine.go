// Package statemachine provides the statekit integration for sync
// engine connectivity tracking.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"
)

// State is a connectivity state of the sync engine.
type State string

// Connectivity states.
const (
	// StateOnline means the remote backend is reachable and synced.
	StateOnline State = "online"
	// StateOffline means pushes are failing and writes queue locally.
	StateOffline State = "offline"
	// StateFlushing means the backend came back and queued entries
	// are being pushed.
	StateFlushing State = "flushing"
)

// Context carries connectivity state through the state machine.
type Context struct {
	// PendingCount is the number of entries awaiting sync.
	PendingCount int
	// LastFailure describes the failure that forced the engine offline.
	LastFailure string
	// OfflineSince is when the engine last went offline.
	OfflineSince time.Time
	// Transitions counts state changes, for health reporting.
	Transitions int
}

// Event types accepted by the connectivity machine.
const (
	EventDisconnect statekit.EventType = "DISCONNECT"
	EventReconnect  statekit.EventType = "RECONNECT"
	EventFlushed    statekit.EventType = "FLUSHED"
)

const (
	stateOnline   statekit.StateID = statekit.StateID(StateOnline)
	stateOffline  statekit.StateID = statekit.StateID(StateOffline)
	stateFlushing statekit.StateID = statekit.StateID(StateFlushing)
)

// NewConnectivityMachine creates the sync connectivity statechart.
// A reconnect always passes through flushing so queued writes drain
// before the engine reports itself online again.
func NewConnectivityMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("connectivity").
		WithInitial(stateOnline).
		WithContext(&Context{}).
		WithAction("recordOffline", recordOffline).
		WithAction("recordTransition", recordTransition).
		WithAction("clearFailure", clearFailure).
		State(stateOnline).
			On(EventDisconnect).Target(stateOffline).Do("recordOffline").
			Done().
		State(stateOffline).
			On(EventReconnect).Target(stateFlushing).Do("recordTransition").
			Done().
		State(stateFlushing).
			On(EventFlushed).Target(stateOnline).Do("clearFailure").
			On(EventDisconnect).Target(stateOffline).Do("recordOffline").
			Done().
		Build()
}
