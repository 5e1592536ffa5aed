// Package cache remembers the content hash last ingested for each watched
// file so that rewrites of identical bytes can be suppressed.
//
// The cache is pure data and lookup logic: it performs no I/O. Entries are
// spread over a fixed number of shards, each guarded by its own RWMutex, so
// classifications of different identities rarely contend while two
// classifications of the same identity are always serialized.
package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// shardCount must be a power of two.
const shardCount = 64

var (
	// ErrNotFound is returned when an identity has no cache entry.
	ErrNotFound = errors.New("cache entry not found")

	// ErrEmptyPath is returned by NewIdentity for an empty path.
	ErrEmptyPath = errors.New("empty path")
)

type shard struct {
	mu      sync.RWMutex
	entries map[Identity]*Entry
}

// Cache maps identities to the hash of their last ingested content.
type Cache struct {
	shards  [shardCount]*shard
	metrics *Metrics
	now     func() time.Time
}

// New creates an empty cache with zeroed metrics.
func New() *Cache {
	c := &Cache{
		metrics: &Metrics{},
		now:     time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[Identity]*Entry)}
	}
	return c
}

func (c *Cache) shardFor(id Identity) *shard {
	return c.shards[xxhash.Sum64String(string(id))&(shardCount-1)]
}

// Metrics returns the cache's hit/miss counters.
func (c *Cache) Metrics() *Metrics {
	return c.metrics
}

// Classify hashes content exactly once and compares it with the last hash
// recorded for id. On a miss the entry is created or overwritten before
// Classify returns. Exactly one of hits/misses is incremented per call.
func (c *Cache) Classify(id Identity, content []byte) Classification {
	return c.ClassifyHash(id, Sum(content))
}

// ClassifyHash is Classify for callers that already hold the digest.
func (c *Cache) ClassifyHash(id Identity, h Hash) Classification {
	s := c.shardFor(id)

	s.mu.Lock()
	entry, ok := s.entries[id]
	hit := ok && entry.LastHash == h
	switch {
	case hit:
		entry.LastSeenAt = c.now()
	case ok:
		entry.LastHash = h
		entry.LastSeenAt = c.now()
	default:
		s.entries[id] = &Entry{Identity: id, LastHash: h, LastSeenAt: c.now()}
	}
	s.mu.Unlock()

	c.metrics.record(hit)
	return Classification{Hit: hit, Hash: h}
}

// Get returns a copy of the entry for id.
func (c *Cache) Get(id Identity) (Entry, error) {
	s := c.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *entry, nil
}

// Remove deletes the entry for id entirely, so a later file with the same
// name starts from a clean state. It reports whether an entry existed.
func (c *Cache) Remove(id Identity) bool {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Entries returns copies of all entries sorted by identity.
func (c *Cache) Entries() []Entry {
	var out []Entry
	for _, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			out = append(out, *e)
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity < out[j].Identity
	})
	return out
}

// Restore loads entries, typically from a persisted snapshot. Existing
// entries for the same identities are overwritten. Metrics are untouched.
func (c *Cache) Restore(entries []Entry) {
	for i := range entries {
		e := entries[i]
		s := c.shardFor(e.Identity)
		s.mu.Lock()
		s.entries[e.Identity] = &e
		s.mu.Unlock()
	}
}

// Clear removes every entry. Metrics are untouched.
func (c *Cache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[Identity]*Entry)
		s.mu.Unlock()
	}
}
