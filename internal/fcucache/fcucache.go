// Package fcucache caches engine_forkchoiceUpdated responses so that
// repeated or overlapping calls from multiple consensus-layer followers are
// served from memory instead of hitting the execution engine every time.
package fcucache

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sigp/eleel/internal/enginetypes"
	"github.com/sigp/eleel/internal/lru"
)

// MatchPolicy controls how a forkchoiceState is compared against cached
// entries when looking for a reusable response.
type MatchPolicy int

const (
	// Exact requires head, safe, and finalized hashes to all match.
	Exact MatchPolicy = iota
	// Loose accepts a cached entry if head matches and the requested
	// safe/finalized hashes are each a previously observed justified or
	// finalized hash (not necessarily the exact ones cached alongside head).
	Loose
	// HeadOnly accepts a cached entry based on head hash alone.
	HeadOnly
)

// Entry is a cached forkchoiceUpdated outcome.
type Entry struct {
	State     enginetypes.ForkchoiceStateV1
	Status    enginetypes.PayloadStatusV1
	PayloadID *enginetypes.PayloadID
}

// Cache caches fcU responses keyed by head block hash, with Loose matching
// additionally consulting JustifiedSet/FinalizedSet side caches to accept
// state vectors that reference previously-seen safe/finalized hashes.
type Cache struct {
	policy MatchPolicy

	mu      sync.Mutex
	byHead  *lru.Cache[common.Hash, *Entry]
	justSet *lru.Cache[common.Hash, struct{}]
	finSet  *lru.Cache[common.Hash, struct{}]
}

// Config configures a Cache.
type Config struct {
	Policy          MatchPolicy
	Capacity        int
	SideSetCapacity int // default 4 if <= 0
}

// New constructs a Cache per cfg.
func New(cfg Config) *Cache {
	sideCap := cfg.SideSetCapacity
	if sideCap <= 0 {
		sideCap = 4
	}
	return &Cache{
		policy:  cfg.Policy,
		byHead:  lru.New[common.Hash, *Entry](cfg.Capacity),
		justSet: lru.New[common.Hash, struct{}](sideCap),
		finSet:  lru.New[common.Hash, struct{}](sideCap),
	}
}

// Lookup returns a cached Entry usable for the given forkchoiceState under
// the configured matching policy. If definiteOnly is set, an entry whose
// status is indefinite (SYNCING/ACCEPTED) is treated as a miss — used by the
// follower path, which must not hand out a stale indefinite answer when it's
// about to poll for a better one anyway.
func (c *Cache) Lookup(state enginetypes.ForkchoiceStateV1, definiteOnly bool) (*Entry, bool) {
	e, ok := c.byHead.Get(state.HeadBlockHash)
	if !ok {
		return nil, false
	}

	switch c.policy {
	case HeadOnly:
		// matched below

	case Exact:
		if e.State.SafeBlockHash != state.SafeBlockHash ||
			e.State.FinalizedBlockHash != state.FinalizedBlockHash {
			return nil, false
		}

	case Loose:
		c.mu.Lock()
		_, safeOK := c.justSet.Peek(state.SafeBlockHash)
		_, finOK := c.finSet.Peek(state.FinalizedBlockHash)
		c.mu.Unlock()
		if !(e.State.SafeBlockHash == state.SafeBlockHash || safeOK) ||
			!(e.State.FinalizedBlockHash == state.FinalizedBlockHash || finOK) {
			return nil, false
		}

	default:
		return nil, false
	}

	if definiteOnly && !e.Status.Status.IsDefinite() {
		return nil, false
	}
	return e, true
}

// Insert registers the outcome of a controller fcU call. A definite existing
// entry (VALID/INVALID/INVALID_BLOCK_HASH) is never overwritten — redundant
// controller replays or a late indefinite update must not clobber a
// settled answer. Only a genuinely new entry populates the side caches used
// by Loose matching, and only when its status is VALID, per the side caches'
// role of recording hashes the controller has declared canonical.
func (c *Cache) Insert(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.byHead.Peek(e.State.HeadBlockHash)
	if ok && existing.Status.Status.IsDefinite() {
		return
	}
	c.byHead.Put(e.State.HeadBlockHash, e)

	if !ok && e.Status.Status == enginetypes.StatusValid {
		c.justSet.Put(e.State.SafeBlockHash, struct{}{})
		c.finSet.Put(e.State.FinalizedBlockHash, struct{}{})
	}
}

// Len reports the number of cached head entries.
func (c *Cache) Len() int { return c.byHead.Len() }
