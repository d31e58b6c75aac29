package pipeline

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

type flightEntry struct {
	res *Result
	err error
}

// flightCache memoizes one outcome per identity key and collapses
// concurrent requests for the same key into a single execution. Failed
// outcomes are memoized too: references are never retried within a
// build, so a dead URL costs one fetch no matter how many pages embed
// it.
type flightCache struct {
	mu      sync.RWMutex
	entries map[string]flightEntry
	group   singleflight.Group
}

func newFlightCache() *flightCache {
	return &flightCache{entries: make(map[string]flightEntry)}
}

// do returns the settled outcome for key, running fn at most once to
// produce it.
func (c *flightCache) do(key string, fn func() (*Result, error)) (*Result, error) {
	if e, ok := c.lookup(key); ok {
		return e.res, e.err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.settle(key, fn)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (c *flightCache) lookup(key string) (flightEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// settle produces and memoizes the outcome for key. A caller that
// missed the map lookup while a flight for the same key completed
// starts a fresh flight afterwards, so the entry check repeats here
// under the flight; fn stays at one run per key for the cache lifetime.
func (c *flightCache) settle(key string, fn func() (*Result, error)) (*Result, error) {
	if e, ok := c.lookup(key); ok {
		return e.res, e.err
	}
	res, err := fn()
	c.mu.Lock()
	c.entries[key] = flightEntry{res: res, err: err}
	c.mu.Unlock()
	return res, err
}

// len reports how many settled entries the cache holds.
func (c *flightCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
