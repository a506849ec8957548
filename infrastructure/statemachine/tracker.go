package statemachine

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// Tracker wraps the statekit interpreter with sync-specific
// functionality. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewTracker creates a tracker over a fresh connectivity machine.
func NewTracker() (*Tracker, error) {
	machine, err := NewConnectivityMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build connectivity machine: %w", err)
	}

	ctx := &Context{}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})

	return &Tracker{
		interp: interp,
		ctx:    ctx,
	}, nil
}

// Start initializes the tracker and enters the online state.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interp.Start()
}

// Stop stops the tracker.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interp.Stop()
}

// State returns the current connectivity state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State(t.interp.State().Value)
}

// Online reports whether the engine considers the backend reachable.
func (t *Tracker) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interp.Matches(stateOnline)
}

// Offline reports whether writes are queuing locally.
func (t *Tracker) Offline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interp.Matches(stateOffline)
}

// ReportDisconnect moves the machine offline, recording the reason.
// Harmless when already offline.
func (t *Tracker) ReportDisconnect(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interp.Matches(stateOffline) {
		t.ctx.LastFailure = reason
		return
	}
	t.interp.Send(statekit.Event{
		Type:    EventDisconnect,
		Payload: DisconnectPayload{Reason: reason},
	})
}

// ReportReconnect moves the machine from offline into flushing.
// Ignored unless the machine is offline.
func (t *Tracker) ReportReconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.interp.Matches(stateOffline) {
		return
	}
	t.interp.Send(statekit.Event{Type: EventReconnect})
}

// ReportFlushed moves the machine from flushing back online.
// Ignored unless the machine is flushing.
func (t *Tracker) ReportFlushed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.interp.Matches(stateFlushing) {
		return
	}
	t.interp.Send(statekit.Event{Type: EventFlushed})
}

// SetPending records the current depth of the sync queue.
func (t *Tracker) SetPending(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ctx.PendingCount = n
}

// Snapshot returns a copy of the tracked context.
func (t *Tracker) Snapshot() Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.ctx
}
