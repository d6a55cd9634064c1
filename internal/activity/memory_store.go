package activity

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/matthewbaird/onboarding/internal/types"
)

// DefaultRetain is how many entries MemoryStore keeps per entity.
const DefaultRetain = 500

// MemoryStore implements Store using in-memory slices. The oldest entries of
// an entity are dropped once it holds more than the retain limit.
type MemoryStore struct {
	mu      sync.RWMutex
	retain  int
	entries map[types.EntityRef][]Entry
}

// NewMemoryStore creates a new empty MemoryStore. retain <= 0 uses
// DefaultRetain.
func NewMemoryStore(retain int) *MemoryStore {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &MemoryStore{retain: retain, entries: make(map[types.EntityRef][]Entry)}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		list := append(s.entries[e.Entity], e)
		if over := len(list) - s.retain; over > 0 {
			list = slices.Delete(list, 0, over)
		}
		s.entries[e.Entity] = list
	}
	return nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, ref types.EntityRef, opts QueryOptions) ([]Entry, string, int, error) {
	s.mu.RLock()
	var matched []Entry
	for _, e := range s.entries[ref] {
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, e.Category) {
			continue
		}
		if opts.MinWeight != "" && !AtLeast(e.Weight, opts.MinWeight) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	totalCount := len(matched)

	if opts.Cursor != "" {
		if cursor, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			i := sort.Search(len(matched), func(i int) bool { return matched[i].OccurredAt.Before(cursor) })
			matched = matched[i:]
		}
	}

	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var nextCursor string
	if len(matched) > limit {
		matched = matched[:limit]
		nextCursor = matched[len(matched)-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return matched, nextCursor, totalCount, nil
}
