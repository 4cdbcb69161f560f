package cache

import (
	"sync"
	"time"
)

// Freshness tiers used across call sites. A caller picks the tier matching
// how quickly its view of the data goes stale; aggregate views refresh on
// their own cadence and pass their own max-age.
const (
	FreshnessShort  = 2 * time.Minute
	FreshnessMedium = 5 * time.Minute
	FreshnessLong   = 15 * time.Minute
)

// Store is a keyed value store with per-entry set times. Entries never expire
// on their own: Get applies the caller-supplied max-age against the entry's
// stored-at time, and mutations remove entries explicitly. Absence is a
// normal, expected outcome, never an error.
//
// The store is pure bookkeeping state with no I/O. It is unbounded and keyed
// by logical query identity (for example "items::transaction::monthly"), so
// the key population is small and fixed by the call sites.
type Store interface {
	// Get returns the value stored under key if it is present and younger
	// than maxAge. A maxAge <= 0 treats any present value as fresh.
	Get(key string, maxAge time.Duration) (any, bool)
	// Set overwrites the value under key unconditionally and stamps the
	// current time.
	Set(key string, value any)
	// Invalidate removes one entry. Removing an absent key is a no-op.
	Invalidate(key string)
	// InvalidateGroup removes several logically related keys in one call,
	// used whenever a mutation affects multiple cached views.
	InvalidateGroup(keys ...string)
	// Len reports the number of stored entries.
	Len() int
}

type entry struct {
	value    any
	storedAt time.Time
}

// memoryStore is the in-memory Store implementation. A plain mutex guards the
// map; contention is negligible at the key cardinality this store sees.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewStore creates an empty in-memory Store.
func NewStore() Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		entries: make(map[string]entry),
		now:     now,
	}
}

func (s *memoryStore) Get(key string, maxAge time.Duration) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if maxAge > 0 && s.now().Sub(e.storedAt) >= maxAge {
		return nil, false
	}
	return e.value, true
}

func (s *memoryStore) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, storedAt: s.now()}
}

func (s *memoryStore) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *memoryStore) InvalidateGroup(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
}

func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// GetAs is a type-safe wrapper around Store.Get. A stored value of the wrong
// type is treated as a miss so callers never branch on assertion failures.
func GetAs[T any](s Store, key string, maxAge time.Duration) (T, bool) {
	var zero T
	v, ok := s.Get(key, maxAge)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
