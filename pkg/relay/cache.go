// Copyright 2024-2026 Aiku AI

package relay

// memoCache memoizes fetched entities for the lifetime of the process.
// Entries are never evicted or refreshed: the cached entities (users,
// channels, teams, posts, DM channels) are treated as immutable until
// restart. Not safe for concurrent use; it is owned by the single event
// loop.
type memoCache[V any] struct {
	entries map[string]V
}

func newMemoCache[V any]() *memoCache[V] {
	return &memoCache[V]{entries: make(map[string]V)}
}

// GetOrFetch returns the cached value for key, calling fetch on a miss.
// Fetch errors are returned as-is and not cached, so a later call retries.
func (c *memoCache[V]) GetOrFetch(key string, fetch func() (V, error)) (V, error) {
	if v, ok := c.entries[key]; ok {
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		var zero V
		return zero, err
	}
	c.entries[key] = v
	return v, nil
}

// Len returns the number of cached entries.
func (c *memoCache[V]) Len() int {
	return len(c.entries)
}
