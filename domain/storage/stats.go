package storage

import "time"

// Stats is the aggregate view over a provider. Hit and miss counters
// accumulate for the provider's lifetime and reset only on explicit
// ResetStats.
type Stats struct {
	// TotalEntries is the current number of live entries.
	TotalEntries int64

	// TotalSize is the current accounted byte size.
	TotalSize int64

	// HitCount is the number of successful, non-expired reads.
	HitCount int64

	// MissCount is the number of reads that found nothing usable.
	MissCount int64

	// OldestEntry is the creation time of the oldest live entry.
	OldestEntry time.Time

	// NewestEntry is the creation time of the newest live entry.
	NewestEntry time.Time
}

// HitRate returns hits / (hits + misses), or zero when no reads have
// happened.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}
