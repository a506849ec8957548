package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wilson323/llmchat-sub005/domain/storage"
	"github.com/wilson323/llmchat-sub005/infrastructure/logging"
)

// syncLoop drives background replication. One goroutine, so rounds
// never overlap. The delay doubles after a failed round up to the
// configured cap and snaps back to the base interval on success.
func (m *Manager) syncLoop() {
	defer m.wg.Done()

	delay := m.syncCfg.Interval
	for {
		select {
		case <-m.stop:
			return
		case <-time.After(delay):
		}

		if m.isOffline() {
			continue
		}

		pushed, failed := m.syncRound(context.Background(), m.syncCfg.BatchSize)
		if failed > 0 {
			m.tracker.ReportDisconnect(fmt.Sprintf("%d of %d pushes failed", failed, pushed+failed))
			delay *= 2
			if delay > m.syncCfg.MaxInterval {
				delay = m.syncCfg.MaxInterval
			}
			continue
		}

		if pushed > 0 && !m.tracker.Online() {
			m.tracker.ReportReconnect()
			m.tracker.ReportFlushed()
		}
		delay = m.syncCfg.Interval
	}
}

// SetOffline toggles offline mode. While offline, writes still succeed
// locally and queue as PENDING, but no sync attempts fire. Turning
// offline mode off triggers exactly one flush of the pending set.
func (m *Manager) SetOffline(ctx context.Context, offline bool) error {
	m.mu.Lock()
	if m.offline == offline {
		m.mu.Unlock()
		return nil
	}
	m.offline = offline
	m.mu.Unlock()

	m.metrics.SetOffline(ctx, offline)

	if offline {
		m.tracker.ReportDisconnect("offline mode enabled")
		m.emit(newEvent(EventWentOffline))
		logging.Info().
			Add(logging.Component("manager")).
			Msg("offline mode enabled, writes will queue locally")
		return nil
	}

	m.tracker.ReportReconnect()
	err := m.Flush(ctx)
	if err == nil {
		m.tracker.ReportFlushed()
	}
	m.emit(newEvent(EventWentOnline))
	return err
}

// Offline reports whether offline mode is enabled.
func (m *Manager) Offline() bool {
	return m.isOffline()
}

func (m *Manager) isOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline
}

// Flush pushes every queued entry and tombstone once. Entries that
// fail stay queued; the returned error summarizes the failures.
func (m *Manager) Flush(ctx context.Context) error {
	pushed, failed := m.syncRound(ctx, 0)
	if failed > 0 {
		return fmt.Errorf("flush: %d of %d pushes failed", failed, pushed+failed)
	}
	return nil
}

// PendingKeys returns a sorted snapshot of keys awaiting sync.
func (m *Manager) PendingKeys() []string {
	m.mu.Lock()
	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// syncRound pushes up to batchSize queued entries and tombstones
// (0 = everything). Each key gets one push attempt per round; the
// pusher's internal retry policy applies within that attempt.
func (m *Manager) syncRound(ctx context.Context, batchSize int) (pushed, failed int) {
	if m.remote == nil {
		return 0, 0
	}

	batchID := uuid.NewString()
	keys, gens, tombstones := m.snapshotQueue(batchSize)
	if len(keys) == 0 && len(tombstones) == 0 {
		return 0, 0
	}

	start := time.Now()

	for _, key := range tombstones {
		if err := m.remote.PushTombstone(ctx, key); err != nil {
			failed++
			m.reportPushFailure(ctx, batchID, key, err)
			continue
		}
		pushed++
		m.mu.Lock()
		delete(m.tombstones, key)
		m.mu.Unlock()
	}

	for _, key := range keys {
		entry, found := m.peekEither(ctx, key)
		if !found {
			// Entry vanished locally (expired or evicted from both
			// tiers); nothing left to replicate.
			m.dequeue(ctx, key, gens[key])
			continue
		}

		if err := m.remote.PushEntry(ctx, entry); err != nil {
			failed++
			m.reportPushFailure(ctx, batchID, key, err)
			continue
		}

		pushed++
		m.markSynced(ctx, key, gens[key])
	}

	m.metrics.RecordSyncAttempt(ctx, failed == 0, time.Since(start))
	m.mu.Lock()
	m.tracker.SetPending(len(m.pending))
	m.mu.Unlock()

	if failed == 0 && pushed > 0 {
		ev := newEvent(EventSyncCompleted)
		ev.BatchID = batchID
		m.emit(ev)
		logging.Debug().
			Add(logging.Component("sync")).
			Add(logging.BatchID(batchID)).
			Add(logging.Int("pushed", pushed)).
			Msg("sync round completed")
	}
	return pushed, failed
}

// snapshotQueue copies up to batchSize keys out of the queue, entries
// first, tombstones filling the remainder. The returned generations
// identify which write each key's push will acknowledge.
func (m *Manager) snapshotQueue(batchSize int) (keys []string, gens map[string]uint64, tombstones []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gens = make(map[string]uint64, len(m.pending))
	for key, gen := range m.pending {
		if batchSize > 0 && len(keys) >= batchSize {
			break
		}
		keys = append(keys, key)
		gens[key] = gen
	}
	for key := range m.tombstones {
		if batchSize > 0 && len(keys)+len(tombstones) >= batchSize {
			break
		}
		tombstones = append(tombstones, key)
	}
	sort.Strings(keys)
	sort.Strings(tombstones)
	return keys, gens, tombstones
}

// peekEither reads the entry for a push without perturbing access
// statistics, preferring the volatile copy.
func (m *Manager) peekEither(ctx context.Context, key string) (*storage.Entry, bool) {
	if entry, found, err := m.volatile.Peek(ctx, key); err == nil && found {
		return entry, true
	}
	if entry, found, err := m.durable.Peek(ctx, key); err == nil && found {
		return entry, true
	}
	return nil, false
}

// markSynced acknowledges one pushed entry. The acknowledgement is
// dropped when the key advanced past the pushed generation, so a write
// that landed mid-push stays queued and keeps its data intact.
func (m *Manager) markSynced(ctx context.Context, key string, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending[key] != gen {
		return
	}

	// Flip the status on the current tier copies rather than writing
	// the pushed snapshot back.
	if entry, found := m.peekEither(ctx, key); found {
		entry.SyncStatus = storage.SyncStatusSynced
		if err := m.volatile.SetEntry(ctx, entry); err != nil {
			logging.Debug().
				Add(logging.Component("sync")).
				Add(logging.Key(key)).
				Add(logging.ErrorField(err)).
				Msg("volatile sync-state update failed")
		}
		if err := m.durable.SetEntry(ctx, entry); err != nil {
			logging.Debug().
				Add(logging.Component("sync")).
				Add(logging.Key(key)).
				Add(logging.ErrorField(err)).
				Msg("durable sync-state update failed")
		}
	}

	delete(m.pending, key)
	m.metrics.AddPending(ctx, -1)
	m.synced[key] = struct{}{}
}

func (m *Manager) dequeue(ctx context.Context, key string, gen uint64) {
	m.mu.Lock()
	if cur, queued := m.pending[key]; queued && cur == gen {
		delete(m.pending, key)
		m.metrics.AddPending(ctx, -1)
	}
	m.mu.Unlock()
}

func (m *Manager) reportPushFailure(ctx context.Context, batchID, key string, err error) {
	logging.Warn().
		Add(logging.Component("sync")).
		Add(logging.BatchID(batchID)).
		Add(logging.Key(key)).
		Add(logging.ErrorField(err)).
		Msg("push failed, entry stays queued")

	ev := newEvent(EventSyncFailed)
	ev.Key = key
	ev.BatchID = batchID
	ev.Err = err
	m.emit(ev)
	m.metrics.RecordError(ctx, "sync_push")
}
