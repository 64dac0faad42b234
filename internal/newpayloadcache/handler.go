package newpayloadcache

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sigp/eleel/internal/builder"
	"github.com/sigp/eleel/internal/enginetypes"
	"github.com/sigp/eleel/internal/forks"
	"github.com/sigp/eleel/internal/metrics"
)

const pollInterval = 50 * time.Millisecond

// EngineClient is the narrow collaborator this package needs: something
// that can forward a newPayload call to the execution engine. Only the
// controller handler uses it — the client handler never reaches the engine.
type EngineClient interface {
	NewPayload(ctx context.Context, payload *enginetypes.ExecutionPayload) (enginetypes.PayloadStatusV1, error)
}

// Handler wires a Cache and an EngineClient into the two entry points the
// dispatcher calls.
type Handler struct {
	Cache   *Cache
	Engine  EngineClient
	Builder *builder.Builder
	Metrics *metrics.Metrics

	// NewPayloadWait bounds how long a follower's newPayload call will wait
	// for the controller's own call to resolve the entry to a definite
	// status. Default 2s.
	NewPayloadWait time.Duration
}

func (h *Handler) observe(hit bool) {
	if h.Metrics == nil {
		return
	}
	if hit {
		h.Metrics.CacheHits.WithLabelValues("new_payload").Inc()
	} else {
		h.Metrics.CacheMisses.WithLabelValues("new_payload").Inc()
	}
}

func (h *Handler) newPayloadWait() time.Duration {
	if h.NewPayloadWait <= 0 {
		return 2 * time.Second
	}
	return h.NewPayloadWait
}

// HandleControllerNewPayload is the only path that ever calls the real
// engine: it forwards the controller's submission, caches the result under
// the payload's block hash, and registers canonical info for the builder.
func (h *Handler) HandleControllerNewPayload(ctx context.Context, payload *enginetypes.ExecutionPayload) (enginetypes.PayloadStatusV1, error) {
	if e, ok := h.Cache.Get(payload.BlockHash); ok && e.Status.Status.IsDefinite() {
		return e.Status, nil
	}

	status, err := h.Engine.NewPayload(ctx, payload)
	if err != nil {
		return enginetypes.PayloadStatusV1{}, err
	}
	h.Cache.Insert(payload.BlockHash, &Entry{
		BlockNumber: uint64(payload.BlockNumber),
		Status:      status,
	})

	// register_canonical_payload: no-op only for the two definite-failure
	// statuses. Valid, Accepted, and Syncing all register, since the builder
	// needs PayloadInfo for any block a follower might build on top of.
	if status.Status != enginetypes.StatusInvalid && status.Status != enginetypes.StatusInvalidBlockHash && h.Builder != nil {
		baseFee := new(uint256.Int)
		if payload.BaseFeePerGas != nil {
			baseFee.SetFromBig(payload.BaseFeePerGas.ToInt())
		}
		h.Builder.RegisterCanonical(builder.CanonicalInfo{
			BlockHash:     payload.BlockHash,
			BlockNumber:   uint64(payload.BlockNumber),
			GasLimit:      uint64(payload.GasLimit),
			GasUsed:       uint64(payload.GasUsed),
			BaseFeePerGas: baseFee,
			StateRoot:     payload.StateRoot,
		})
	}
	return status, nil
}

// HandleNewPayload serves a follower's newPayload call. It never forwards to
// the engine: the controller is the only caller that drives the real EE, so
// a follower either finds its answer in the cache or is told to keep
// syncing.
//
// 1. The block hash is recomputed and checked against the payload before any
// cache lookup; a mismatch is an InvalidRequest naming both hashes.
// 2. A cache hit with a definite status returns immediately.
// 3. Otherwise, if the block is still within the liveness window, poll the
// cache — hoping the controller's own newPayload call lands — up to
// NewPayloadWait.
// 4. On a stale block or after the wait budget: accept any cached entry,
// including an indefinite one. If there is still none, verify the blob
// versioned hashes (Deneb+) and synthesize {status: Syncing}, uncached.
func (h *Handler) HandleNewPayload(ctx context.Context, payload *enginetypes.ExecutionPayload, expectedVersionedHashes []common.Hash, parentBeaconRoot *common.Hash) (enginetypes.PayloadStatusV1, error) {
	fork := forks.Bellatrix
	if h.Builder != nil {
		fork = h.Builder.ForkAtTimestamp(uint64(payload.Timestamp))
		computed, ok := h.Builder.VerifyBlockHash(payload, fork, parentBeaconRoot)
		if !ok {
			return enginetypes.PayloadStatusV1{}, fmt.Errorf("newpayloadcache: payload declares block hash %s, computed %s: %w", payload.BlockHash, computed, enginetypes.ErrInvalidBlockHash)
		}
	}

	if e, ok := h.Cache.Get(payload.BlockHash); ok && e.Status.Status.IsDefinite() {
		h.observe(true)
		return e.Status, nil
	}
	h.observe(false)

	if h.Cache.IsLive(uint64(payload.BlockNumber)) {
		deadline := time.Now().Add(h.newPayloadWait())
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			if e, ok := h.Cache.Get(payload.BlockHash); ok && e.Status.Status.IsDefinite() {
				return e.Status, nil
			}
			if time.Now().After(deadline) {
				break
			}
			select {
			case <-ctx.Done():
				return enginetypes.PayloadStatusV1{}, ctx.Err()
			case <-ticker.C:
			}
		}
	}

	if e, ok := h.Cache.Get(payload.BlockHash); ok {
		return e.Status, nil
	}
	if fork.AtLeast(forks.Deneb) {
		if err := builder.VerifyVersionedHashes(payload, expectedVersionedHashes); err != nil {
			return enginetypes.PayloadStatusV1{}, err
		}
	}
	return enginetypes.PayloadStatusV1{Status: enginetypes.StatusSyncing}, nil
}
