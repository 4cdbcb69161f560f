// Package cache provides the expiring in-memory store the offline-sync
// repositories coordinate through.
//
// # Overview
//
// The Store keeps one entry per logical query identity with the time it was
// set. Freshness is decided at read time: each Get carries the max-age the
// caller tolerates, so the same entry can be fresh for one view and stale for
// another. Entries are only ever removed explicitly, one at a time or as an
// invalidation group when a mutation touches several cached views at once.
//
// # Usage
//
//	store := cache.NewStore()
//	key := cache.Key("items", "transaction", "monthly")
//
//	if v, ok := cache.GetAs[[]model.Item](store, key, cache.FreshnessMedium); ok {
//		return v, nil
//	}
//	items := fetch()
//	store.Set(key, items)
//
// After a mutation:
//
//	store.InvalidateGroup(
//		cache.Key("items", "transaction", "daily"),
//		cache.Key("items", "transaction", "monthly"),
//		cache.Key("daily_total", "transaction"),
//	)
//
// # What this package is not
//
// The store is not a generic distributed cache: it has no size bounds, no
// background eviction, and no persistence. The key population is a small
// fixed vocabulary owned by the repositories, so an unbounded map is the
// right trade.
package cache
