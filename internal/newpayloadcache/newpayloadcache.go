// Package newpayloadcache caches engine_newPayload responses and gates
// concurrent waiters on the same block behind a liveness-aware poll so that
// an indefinite (SYNCING/ACCEPTED) response only blocks briefly before a
// definite one becomes available, rather than forever.
package newpayloadcache

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sigp/eleel/internal/enginetypes"
)

// Entry is a cached newPayload response.
type Entry struct {
	BlockNumber uint64
	Status      enginetypes.PayloadStatusV1
}

// Config configures a Cache.
type Config struct {
	Capacity int

	// RecencyCutoff bounds how far behind the highest cached block number an
	// entry may be while still being considered "live" for wait purposes.
	// Default 64.
	RecencyCutoff uint64
}

// Cache caches newPayload responses keyed by block hash. It tracks, without
// scanning, the highest block number observed, so the liveness gate in
// handler.go can decide in O(1) whether a miss is worth waiting on.
type Cache struct {
	capacity      int
	recencyCutoff uint64

	mu                     sync.Mutex
	entries                map[common.Hash]*Entry
	order                  []common.Hash // insertion order, for capacity eviction
	highestCachedBlockNum  uint64
}

// New constructs a Cache per cfg.
func New(cfg Config) *Cache {
	cutoff := cfg.RecencyCutoff
	if cutoff == 0 {
		cutoff = 64
	}
	return &Cache{
		capacity:      cfg.Capacity,
		recencyCutoff: cutoff,
		entries:       make(map[common.Hash]*Entry),
	}
}

// Get returns the cached entry for blockHash, if any.
func (c *Cache) Get(blockHash common.Hash) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[blockHash]
	return e, ok
}

// Insert records or overwrites the entry for blockHash, enforcing the
// monotonic indefinite->definite transition invariant: a definite status
// (VALID/INVALID/INVALID_BLOCK_HASH) is never overwritten by an indefinite
// one (SYNCING/ACCEPTED) for the same block hash.
func (c *Cache) Insert(blockHash common.Hash, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[blockHash]; ok {
		if existing.Status.Status.IsDefinite() && !entry.Status.Status.IsDefinite() {
			return
		}
	} else {
		if len(c.entries) >= c.capacity && c.capacity > 0 {
			c.evictOldest()
		}
		c.order = append(c.order, blockHash)
	}

	c.entries[blockHash] = entry
	if entry.BlockNumber > c.highestCachedBlockNum {
		c.highestCachedBlockNum = entry.BlockNumber
	}
}

// evictOldest drops the earliest-inserted entry. Caller must hold c.mu.
func (c *Cache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

// IsLive reports whether blockNumber is within RecencyCutoff of the highest
// block number observed so far — i.e. whether it's worth polling for a
// definite answer rather than giving up immediately.
func (c *Cache) IsLive(blockNumber uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.highestCachedBlockNum == 0 {
		return true
	}
	if blockNumber+c.recencyCutoff < c.highestCachedBlockNum {
		return false
	}
	return true
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
