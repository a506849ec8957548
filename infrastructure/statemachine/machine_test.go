package statemachine

import (
	"testing"
)

func newStartedTracker(t *testing.T) *Tracker {
	t.Helper()

	tracker, err := NewTracker()
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	tracker.Start()
	t.Cleanup(tracker.Stop)
	return tracker
}

func TestNewConnectivityMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewConnectivityMachine()
	if err != nil {
		t.Fatalf("NewConnectivityMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewConnectivityMachine() returned nil machine")
	}
}

func TestTracker_StartsOnline(t *testing.T) {
	t.Parallel()

	tracker := newStartedTracker(t)

	if got := tracker.State(); got != StateOnline {
		t.Errorf("State() = %s, want online", got)
	}
	if !tracker.Online() {
		t.Error("Online() = false, want true")
	}
	if tracker.Offline() {
		t.Error("Offline() = true, want false")
	}
}

func TestTracker_DisconnectReconnectFlush(t *testing.T) {
	t.Parallel()

	tracker := newStartedTracker(t)

	tracker.ReportDisconnect("connection refused")
	if got := tracker.State(); got != StateOffline {
		t.Fatalf("State() after disconnect = %s, want offline", got)
	}

	snap := tracker.Snapshot()
	if snap.LastFailure != "connection refused" {
		t.Errorf("LastFailure = %q, want connection refused", snap.LastFailure)
	}
	if snap.OfflineSince.IsZero() {
		t.Error("OfflineSince should be stamped on disconnect")
	}

	tracker.ReportReconnect()
	if got := tracker.State(); got != StateFlushing {
		t.Fatalf("State() after reconnect = %s, want flushing", got)
	}

	tracker.ReportFlushed()
	if got := tracker.State(); got != StateOnline {
		t.Fatalf("State() after flush = %s, want online", got)
	}

	snap = tracker.Snapshot()
	if snap.LastFailure != "" {
		t.Errorf("LastFailure = %q after flush, want empty", snap.LastFailure)
	}
	if !snap.OfflineSince.IsZero() {
		t.Error("OfflineSince should reset after flush")
	}
}

func TestTracker_DisconnectWhileFlushing(t *testing.T) {
	t.Parallel()

	tracker := newStartedTracker(t)

	tracker.ReportDisconnect("first outage")
	tracker.ReportReconnect()
	tracker.ReportDisconnect("second outage")

	if got := tracker.State(); got != StateOffline {
		t.Errorf("State() = %s, want offline after mid-flush disconnect", got)
	}
	if snap := tracker.Snapshot(); snap.LastFailure != "second outage" {
		t.Errorf("LastFailure = %q, want second outage", snap.LastFailure)
	}
}

func TestTracker_IgnoresRedundantEvents(t *testing.T) {
	t.Parallel()

	tracker := newStartedTracker(t)

	// Reconnect and flushed make no sense while online.
	tracker.ReportReconnect()
	tracker.ReportFlushed()
	if got := tracker.State(); got != StateOnline {
		t.Errorf("State() = %s, want online", got)
	}

	// Double disconnect stays offline but keeps the latest reason.
	tracker.ReportDisconnect("first")
	tracker.ReportDisconnect("second")
	if got := tracker.State(); got != StateOffline {
		t.Errorf("State() = %s, want offline", got)
	}
	if snap := tracker.Snapshot(); snap.LastFailure != "second" {
		t.Errorf("LastFailure = %q, want second", snap.LastFailure)
	}
}

func TestTracker_SetPending(t *testing.T) {
	t.Parallel()

	tracker := newStartedTracker(t)

	tracker.SetPending(7)
	if snap := tracker.Snapshot(); snap.PendingCount != 7 {
		t.Errorf("PendingCount = %d, want 7", snap.PendingCount)
	}
}
