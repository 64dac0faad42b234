package fcucache

import (
	"context"
	"time"

	"github.com/sigp/eleel/internal/builder"
	"github.com/sigp/eleel/internal/enginetypes"
	"github.com/sigp/eleel/internal/metrics"
)

const pollInterval = 50 * time.Millisecond

// EngineClient is the narrow collaborator this package needs: something
// that can forward a forkchoiceUpdated call to the execution engine. Only
// the controller handler uses it — the client handler never reaches the
// engine.
type EngineClient interface {
	ForkchoiceUpdated(ctx context.Context, state enginetypes.ForkchoiceStateV1, attrs *enginetypes.PayloadAttributes) (enginetypes.ForkchoiceUpdatedResponse, error)
}

// Handler wires a Cache, a Builder, and an EngineClient into the two
// entry points the dispatcher calls.
type Handler struct {
	Cache   *Cache
	Builder *builder.Builder
	Engine  EngineClient
	Metrics *metrics.Metrics

	// FcuWait bounds how long a follower's forkchoiceUpdated call polls the
	// cache for a definite entry before falling back. Default 1s.
	FcuWait time.Duration
}

func (h *Handler) observe(hit bool) {
	if h.Metrics == nil {
		return
	}
	if hit {
		h.Metrics.CacheHits.WithLabelValues("fcu").Inc()
	} else {
		h.Metrics.CacheMisses.WithLabelValues("fcu").Inc()
	}
}

func (h *Handler) wait() time.Duration {
	if h.FcuWait <= 0 {
		return time.Second
	}
	return h.FcuWait
}

// HandleControllerFcu reuses a definite cached status for this forkchoice
// state if there is one; otherwise it forwards to the engine and updates
// the cache with the result. Either way it then registers the attributes
// with the builder so later attributed calls from followers can build
// dummy payloads against this head. If the head isn't yet known to the
// builder, RegisterAttributes fails and the fcU response is returned
// without a payload id.
func (h *Handler) HandleControllerFcu(ctx context.Context, state enginetypes.ForkchoiceStateV1, attrs *enginetypes.PayloadAttributes) (enginetypes.ForkchoiceUpdatedResponse, error) {
	var resp enginetypes.ForkchoiceUpdatedResponse
	if e, ok := h.Cache.Lookup(state, true); ok {
		resp = enginetypes.ForkchoiceUpdatedResponse{PayloadStatus: e.Status}
	} else {
		fresh, err := h.Engine.ForkchoiceUpdated(ctx, state, attrs)
		if err != nil {
			return enginetypes.ForkchoiceUpdatedResponse{}, err
		}
		h.Cache.Insert(&Entry{State: state, Status: fresh.PayloadStatus, PayloadID: fresh.PayloadID})
		resp = fresh
	}

	if attrs != nil && resp.PayloadID == nil && resp.PayloadStatus.Status == enginetypes.StatusValid {
		id, err := h.Builder.RegisterAttributes(state.HeadBlockHash, attrs)
		if err == nil {
			resp.PayloadID = &id
		}
	}
	return resp, nil
}

// HandleFcu serves a follower's forkchoiceUpdated call entirely from the
// cache: it never reaches the engine. It polls with definite_only lookups
// every 50ms up to FcuWait, hoping the controller's own call lands; on
// timeout it accepts any indefinite entry, and if the head was never seen
// at all it synthesizes an uncached {status: Syncing}. A PayloadID is
// attached only if the builder already minted one for this exact
// (head, attrs) pair — the follower path never mints.
func (h *Handler) HandleFcu(ctx context.Context, state enginetypes.ForkchoiceStateV1, attrs *enginetypes.PayloadAttributes) (enginetypes.ForkchoiceUpdatedResponse, error) {
	deadline := time.Now().Add(h.wait())
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var (
		e  *Entry
		hit bool
	)
	for {
		if e, hit = h.Cache.Lookup(state, true); hit {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return enginetypes.ForkchoiceUpdatedResponse{}, ctx.Err()
		case <-ticker.C:
		}
	}

	var resp enginetypes.ForkchoiceUpdatedResponse
	if hit {
		h.observe(true)
		resp = enginetypes.ForkchoiceUpdatedResponse{PayloadStatus: e.Status}
	} else {
		h.observe(false)
		if stale, ok := h.Cache.Lookup(state, false); ok {
			resp = enginetypes.ForkchoiceUpdatedResponse{PayloadStatus: stale.Status}
		} else {
			resp = enginetypes.ForkchoiceUpdatedResponse{PayloadStatus: enginetypes.PayloadStatusV1{Status: enginetypes.StatusSyncing}}
		}
	}

	if attrs != nil && h.Builder != nil {
		if id, ok := h.Builder.ExistingPayloadID(state.HeadBlockHash, attrs); ok {
			resp.PayloadID = &id
		}
	}
	return resp, nil
}
