package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wilson323/llmchat-sub005/domain/remote"
	"github.com/wilson323/llmchat-sub005/domain/storage"
	"github.com/wilson323/llmchat-sub005/infrastructure/resilience"
	badgertier "github.com/wilson323/llmchat-sub005/infrastructure/storage/badger"
	"github.com/wilson323/llmchat-sub005/infrastructure/storage/memory"
)

// fakeRemote records pushes and can be told to reject specific keys.
// A test can gate pushes with holdPushes to interleave local writes
// with an in-flight push.
type fakeRemote struct {
	mu             sync.Mutex
	pushCalls      map[string]int
	tombstoneCalls map[string]int
	failKeys       map[string]bool
	entries        map[string]*storage.Entry
	pushStarted    chan<- string
	pushRelease    <-chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pushCalls:      make(map[string]int),
		tombstoneCalls: make(map[string]int),
		failKeys:       make(map[string]bool),
		entries:        make(map[string]*storage.Entry),
	}
}

func (f *fakeRemote) PushEntry(_ context.Context, entry *storage.Entry) error {
	f.mu.Lock()
	f.pushCalls[entry.Key]++
	failing := f.failKeys[entry.Key]
	started, release := f.pushStarted, f.pushRelease
	f.mu.Unlock()

	if started != nil {
		started <- entry.Key
		<-release
	}

	if failing {
		return remote.ErrPushFailed
	}

	f.mu.Lock()
	f.entries[entry.Key] = entry.Clone()
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) PullEntry(_ context.Context, key string) (*storage.Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[key]
	if !ok {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

func (f *fakeRemote) PushTombstone(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tombstoneCalls[key]++
	if f.failKeys[key] {
		return remote.ErrPushFailed
	}
	delete(f.entries, key)
	return nil
}

// holdPushes makes PushEntry announce each push on started and wait
// for release before completing.
func (f *fakeRemote) holdPushes(started chan<- string, release <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushStarted = started
	f.pushRelease = release
}

func (f *fakeRemote) setFailing(key string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKeys[key] = failing
}

func (f *fakeRemote) pushes(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushCalls[key]
}

func (f *fakeRemote) tombstones(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tombstoneCalls[key]
}

var _ remote.Store = (*fakeRemote)(nil)

// fastPusherConfig keeps failure tests quick by disabling retries.
func fastPusherConfig() resilience.PusherConfig {
	return resilience.PusherConfig{
		CircuitBreakerThreshold: 100,
		CircuitBreakerTimeout:   time.Second,
		RetryMaxAttempts:        1,
		RetryInitialDelay:       time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		PushTimeout:             time.Second,
	}
}

func newSyncedManager(t *testing.T, fake *fakeRemote) *Manager {
	t.Helper()
	return newTestManager(t,
		WithRemote(fake),
		WithPusherConfig(fastPusherConfig()),
	)
}

func TestManager_FlushPushesPendingEntries(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	_ = m.Set(ctx, "chat-1", []byte("a"), storage.SetOptions{})
	_ = m.Set(ctx, "chat-2", []byte("b"), storage.SetOptions{})

	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if got := fake.pushes("chat-1"); got != 1 {
		t.Errorf("chat-1 pushed %d times, want 1", got)
	}
	if got := fake.pushes("chat-2"); got != 1 {
		t.Errorf("chat-2 pushed %d times, want 1", got)
	}
	if keys := m.PendingKeys(); len(keys) != 0 {
		t.Errorf("PendingKeys() = %v, want empty after flush", keys)
	}
}

func TestManager_FlushMarksEntriesSynced(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	_ = m.Set(ctx, "chat-1", []byte("a"), storage.SetOptions{})
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	entry, found, err := m.Get(ctx, "chat-1")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if entry.SyncStatus != storage.SyncStatusSynced {
		t.Errorf("SyncStatus = %s, want SYNCED", entry.SyncStatus)
	}
}

func TestManager_RewriteReturnsEntryToPending(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	_ = m.Set(ctx, "chat-1", []byte("v1"), storage.SetOptions{})
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// A local mutation of a synced entry re-enters the queue.
	_ = m.Set(ctx, "chat-1", []byte("v2"), storage.SetOptions{})

	entry, _, err := m.Get(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.SyncStatus != storage.SyncStatusPending {
		t.Errorf("SyncStatus = %s, want PENDING after rewrite", entry.SyncStatus)
	}
	if keys := m.PendingKeys(); len(keys) != 1 || keys[0] != "chat-1" {
		t.Errorf("PendingKeys() = %v, want [chat-1]", keys)
	}
}

func TestManager_DeleteSyncedKeyPushesTombstone(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	_ = m.Set(ctx, "chat-1", []byte("v"), storage.SetOptions{})
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if _, err := m.Delete(ctx, "chat-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if got := fake.tombstones("chat-1"); got != 1 {
		t.Errorf("tombstone pushed %d times, want 1", got)
	}
	if _, ok, _ := fake.PullEntry(ctx, "chat-1"); ok {
		t.Error("remote copy should be gone after the tombstone")
	}
}

func TestManager_DeletePendingKeyNeedsNoTombstone(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	// Never flushed, so the remote never saw the key.
	_ = m.Set(ctx, "ephemeral", []byte("v"), storage.SetOptions{})
	if _, err := m.Delete(ctx, "ephemeral"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if got := fake.tombstones("ephemeral"); got != 0 {
		t.Errorf("tombstone pushed %d times, want 0", got)
	}
}

func TestManager_FailedPushKeepsEntryPending(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	fake.setFailing("stuck", true)
	_ = m.Set(ctx, "stuck", []byte("v"), storage.SetOptions{})

	if err := m.Flush(ctx); err == nil {
		t.Fatal("Flush() should report the failed push")
	}

	if keys := m.PendingKeys(); len(keys) != 1 || keys[0] != "stuck" {
		t.Errorf("PendingKeys() = %v, want [stuck]", keys)
	}
	entry, _, _ := m.Get(ctx, "stuck")
	if entry.SyncStatus != storage.SyncStatusPending {
		t.Errorf("SyncStatus = %s, want PENDING after failed push", entry.SyncStatus)
	}

	// Once the backend recovers the next flush drains the queue.
	fake.setFailing("stuck", false)
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() after recovery error = %v", err)
	}
	if keys := m.PendingKeys(); len(keys) != 0 {
		t.Errorf("PendingKeys() = %v, want empty", keys)
	}
}

func TestManager_FailedPushEmitsEvent(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	fake.setFailing("bad", true)
	_ = m.Set(ctx, "bad", []byte("v"), storage.SetOptions{})
	_ = m.Flush(ctx)

	select {
	case ev := <-m.Events():
		if ev.Type != EventSyncFailed {
			t.Errorf("event type = %s, want %s", ev.Type, EventSyncFailed)
		}
		if ev.Key != "bad" {
			t.Errorf("event key = %s, want bad", ev.Key)
		}
		if ev.Err == nil {
			t.Error("event should carry the push error")
		}
	default:
		t.Fatal("expected a sync failure event")
	}
}

func TestManager_OfflineModeQueuesWrites(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	if err := m.SetOffline(ctx, true); err != nil {
		t.Fatalf("SetOffline(true) error = %v", err)
	}
	if !m.Offline() {
		t.Fatal("manager should report offline")
	}

	keys := []string{"q-1", "q-2", "q-3"}
	for _, key := range keys {
		if err := m.Set(ctx, key, []byte("v"), storage.SetOptions{}); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	for _, key := range keys {
		if got := fake.pushes(key); got != 0 {
			t.Errorf("%s pushed %d times while offline, want 0", key, got)
		}
	}
	if got := len(m.PendingKeys()); got != len(keys) {
		t.Errorf("PendingKeys() has %d keys, want %d", got, len(keys))
	}

	// Going back online flushes the whole queue in one pass.
	if err := m.SetOffline(ctx, false); err != nil {
		t.Fatalf("SetOffline(false) error = %v", err)
	}
	if m.Offline() {
		t.Error("manager should report online")
	}
	for _, key := range keys {
		if got := fake.pushes(key); got != 1 {
			t.Errorf("%s pushed %d times after reconnect, want 1", key, got)
		}
	}
	if got := len(m.PendingKeys()); got != 0 {
		t.Errorf("PendingKeys() has %d keys after reconnect, want 0", got)
	}
}

func TestManager_SetOfflineIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	if err := m.SetOffline(ctx, false); err != nil {
		t.Fatalf("SetOffline(false) while online error = %v", err)
	}
	_ = m.SetOffline(ctx, true)
	if err := m.SetOffline(ctx, true); err != nil {
		t.Fatalf("repeated SetOffline(true) error = %v", err)
	}
	if !m.Offline() {
		t.Error("manager should remain offline")
	}
}

func TestManager_FlushBatchOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	_ = m.Set(ctx, "b", []byte("v"), storage.SetOptions{})
	_ = m.Set(ctx, "a", []byte("v"), storage.SetOptions{})
	_ = m.Set(ctx, "c", []byte("v"), storage.SetOptions{})

	keys := m.PendingKeys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("PendingKeys() = %v, want %v", keys, want)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("PendingKeys()[%d] = %s, want %s", i, keys[i], k)
		}
	}
}

func TestManager_FlushWithoutRemoteIsNoop(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	ctx := context.Background()

	_ = m.Set(ctx, "local-only", []byte("v"), storage.SetOptions{})
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() without a remote error = %v", err)
	}
	// Nothing to push to, so the queue stays put.
	if got := len(m.PendingKeys()); got != 1 {
		t.Errorf("PendingKeys() has %d keys, want 1", got)
	}
}

func TestManager_VanishedEntryIsDequeued(t *testing.T) {
	t.Parallel()

	vol := memory.NewProvider()
	dur := memory.NewProvider()
	fake := newFakeRemote()
	m, err := NewManager(ManagerConfig{
		Volatile: vol,
		Durable:  dur,
		Remote:   fake,
		Pusher:   fastPusherConfig(),
		Sync:     SyncSettings{Enabled: false},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ctx := context.Background()
	if err := m.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer func() { _ = m.Destroy(ctx) }()

	_ = m.Set(ctx, "gone", []byte("v"), storage.SetOptions{})

	// Rip the entry out from under the queue via the raw tiers.
	_, _ = vol.Delete(ctx, "gone")
	_, _ = dur.Delete(ctx, "gone")

	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := fake.pushes("gone"); got != 0 {
		t.Errorf("vanished key pushed %d times, want 0", got)
	}
	if got := len(m.PendingKeys()); got != 0 {
		t.Errorf("PendingKeys() has %d keys, want 0", got)
	}
}

func TestManager_FlushReportsFailureCounts(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	m := newSyncedManager(t, fake)
	ctx := context.Background()

	fake.setFailing("bad", true)
	_ = m.Set(ctx, "good", []byte("v"), storage.SetOptions{})
	_ = m.Set(ctx, "bad", []byte("v"), storage.SetOptions{})

	if err := m.Flush(ctx); err == nil {
		t.Fatal("Flush() should fail when any push fails")
	}

	// The healthy key still made it out.
	if got := fake.pushes("good"); got != 1 {
		t.Errorf("good pushed %d times, want 1", got)
	}
	if keys := m.PendingKeys(); len(keys) != 1 || keys[0] != "bad" {
		t.Errorf("PendingKeys() = %v, want [bad]", keys)
	}
}

func TestManager_RewriteDuringPushIsNotLost(t *testing.T) {
	t.Parallel()

	fake := newFakeRemote()
	started := make(chan string, 1)
	release := make(chan struct{})
	fake.holdPushes(started, release)

	m := newSyncedManager(t, fake)
	ctx := context.Background()

	if err := m.Set(ctx, "chat-1", []byte("v1"), storage.SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	flushDone := make(chan error, 1)
	go func() { flushDone <- m.Flush(ctx) }()

	// The first version is in flight; land a newer one underneath it.
	<-started
	if err := m.Set(ctx, "chat-1", []byte("v2"), storage.SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	close(release)

	if err := <-flushDone; err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	entry, found, err := m.Get(ctx, "chat-1")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v, want entry", found, err)
	}
	if string(entry.Data) != "v2" {
		t.Errorf("data after concurrent rewrite = %q, want v2", entry.Data)
	}
	if entry.SyncStatus != storage.SyncStatusPending {
		t.Errorf("sync status = %q, want PENDING", entry.SyncStatus)
	}
	if keys := m.PendingKeys(); len(keys) != 1 || keys[0] != "chat-1" {
		t.Errorf("PendingKeys() = %v, want [chat-1]", keys)
	}
}

func TestManager_PendingQueueSurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	open := func(fake *fakeRemote) *Manager {
		t.Helper()
		m, err := NewManager(ManagerConfig{
			Volatile: memory.NewProvider(),
			Durable:  badgertier.NewProvider(badgertier.DefaultConfig(), badgertier.WithDir(dir)),
			Remote:   fake,
			Pusher:   fastPusherConfig(),
			Sync:     SyncSettings{Enabled: false},
		})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if err := m.Init(ctx); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		return m
	}

	fake1 := newFakeRemote()
	m1 := open(fake1)
	_ = m1.Set(ctx, "chat-queued", []byte("not yet pushed"), storage.SetOptions{})
	_ = m1.Set(ctx, "chat-synced", []byte("already pushed"), storage.SetOptions{})
	fake1.setFailing("chat-queued", true)
	_ = m1.Flush(ctx)
	if err := m1.Destroy(ctx); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	fake2 := newFakeRemote()
	m2 := open(fake2)
	defer func() { _ = m2.Destroy(ctx) }()

	// Only the entry persisted PENDING comes back onto the queue.
	if keys := m2.PendingKeys(); len(keys) != 1 || keys[0] != "chat-queued" {
		t.Fatalf("PendingKeys() after restart = %v, want [chat-queued]", keys)
	}

	if err := m2.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := fake2.pushes("chat-queued"); got != 1 {
		t.Errorf("chat-queued pushed %d times after restart, want 1", got)
	}
	if got := fake2.pushes("chat-synced"); got != 0 {
		t.Errorf("chat-synced pushed %d times after restart, want 0", got)
	}
	if keys := m2.PendingKeys(); len(keys) != 0 {
		t.Errorf("PendingKeys() = %v, want empty after flush", keys)
	}
}
