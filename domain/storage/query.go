package storage

import (
	"sort"
	"strings"
	"time"
)

// SortField selects the secondary ordering applied after score.
type SortField string

// SortField values.
const (
	SortByTimestamp    SortField = "timestamp"
	SortByLastAccessed SortField = "lastAccessed"
	SortByAccessCount  SortField = "accessCount"
	SortBySize         SortField = "size"
)

// SortOrder selects ascending or descending secondary ordering.
type SortOrder string

// SortOrder values.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DateRange bounds a search to entries created within [Start, End].
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SearchQuery describes a ranked search across a tier.
type SearchQuery struct {
	// Text matches as a substring against key and title.
	Text string

	// OwnerID matches exactly against the entry owner.
	OwnerID string

	// DateRange bounds the entry creation timestamp.
	DateRange *DateRange

	// Tags match against the entry's tag set.
	Tags []string

	// Limit truncates the result set (0 = no limit).
	Limit int

	// SortBy orders equal-score results. Defaults to timestamp.
	SortBy SortField

	// SortOrder defaults to descending.
	SortOrder SortOrder
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Key   string
	Entry *Entry
	Score float64
}

// Relevance scoring weights, shared by every tier so ranking is
// consistent across the cache.
const (
	scoreTextMatch  = 10
	scoreOwnerMatch = 20
	scoreDateMatch  = 15
	scoreTagMatch   = 5
)

// Score computes the relevance of an entry against the query. Zero
// means no criterion matched.
func (q SearchQuery) Score(e *Entry) float64 {
	var score float64

	if q.Text != "" {
		text := strings.ToLower(q.Text)
		if strings.Contains(strings.ToLower(e.Key), text) ||
			strings.Contains(strings.ToLower(e.Title), text) {
			score += scoreTextMatch
		}
	}

	if q.OwnerID != "" && e.OwnerID == q.OwnerID {
		score += scoreOwnerMatch
	}

	if q.DateRange != nil {
		if !e.Timestamp.Before(q.DateRange.Start) && !e.Timestamp.After(q.DateRange.End) {
			score += scoreDateMatch
		}
	}

	if len(q.Tags) > 0 && len(e.Tags) > 0 {
		tags := make(map[string]struct{}, len(e.Tags))
		for _, t := range e.Tags {
			tags[t] = struct{}{}
		}
		for _, t := range q.Tags {
			if _, ok := tags[t]; ok {
				score += scoreTagMatch
			}
		}
	}

	return score
}

// Matches reports whether the entry scores above zero for the query.
// An empty query matches everything.
func (q SearchQuery) Matches(e *Entry) bool {
	if q.Text == "" && q.OwnerID == "" && q.DateRange == nil && len(q.Tags) == 0 {
		return true
	}
	return q.Score(e) > 0
}

// RankResults sorts results by score descending, breaking ties with
// the query's SortBy/SortOrder, and truncates to the query limit.
func (q SearchQuery) RankResults(results []SearchResult) []SearchResult {
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = SortByTimestamp
	}
	asc := q.SortOrder == SortAsc

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		less := tieBreakLess(results[i].Entry, results[j].Entry, sortBy)
		if asc {
			return less
		}
		return !less
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

func tieBreakLess(a, b *Entry, field SortField) bool {
	switch field {
	case SortByLastAccessed:
		return a.LastAccessed.Before(b.LastAccessed)
	case SortByAccessCount:
		return a.AccessCount < b.AccessCount
	case SortBySize:
		return a.Size < b.Size
	default:
		return a.Timestamp.Before(b.Timestamp)
	}
}
