package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"
)

// DisconnectPayload carries the failure behind a DISCONNECT event.
type DisconnectPayload struct {
	Reason string
}

// recordOffline stamps the context when the engine loses the backend.
// In statekit, actions receive a pointer to the context. Since our
// context is *Context, actions receive **Context.
func recordOffline(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	c := *ctx
	c.Transitions++
	c.OfflineSince = time.Now()
	if payload, ok := event.Payload.(DisconnectPayload); ok {
		c.LastFailure = payload.Reason
	}
}

// recordTransition counts a state change without touching failure state.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Transitions++
}

// clearFailure resets failure tracking once the queue has drained.
func clearFailure(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	c := *ctx
	c.Transitions++
	c.LastFailure = ""
	c.OfflineSince = time.Time{}
}
