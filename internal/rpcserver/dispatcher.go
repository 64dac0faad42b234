package rpcserver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sigp/eleel/internal/enginetypes"
	"github.com/sigp/eleel/internal/fcucache"
	"github.com/sigp/eleel/internal/metrics"
	"github.com/sigp/eleel/internal/newpayloadcache"
)

// ProxyClient is the narrow collaborator used for methods this multiplexer
// does not cache, just forwards: getClientVersion, getPayloadBodies, and
// whatever else a consensus client sends to the Engine-API endpoint.
type ProxyClient interface {
	Call(ctx context.Context, method string, params any, out any) error
}

// capabilitiesTTL bounds how long a cached engine_exchangeCapabilities
// response is reused before being refreshed from the engine.
const capabilitiesTTL = 15 * time.Minute

// Dispatcher routes JSON-RPC method calls to the fcU cache, the newPayload
// cache, or a plain passthrough to the execution engine.
type Dispatcher struct {
	FcuHandler        *fcucache.Handler
	NewPayloadHandler *newpayloadcache.Handler
	Proxy             ProxyClient
	Metrics           *metrics.Metrics

	capMu         sync.Mutex
	capResult     json.RawMessage
	capFetchedAt  time.Time
}

// forkchoiceUpdatedParams mirrors the [state, attrs] positional params of
// every engine_forkchoiceUpdatedV* method.
type forkchoiceUpdatedParams struct {
	State enginetypes.ForkchoiceStateV1
	Attrs *enginetypes.PayloadAttributes
}

func decodeFcuParams(raw json.RawMessage) (forkchoiceUpdatedParams, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return forkchoiceUpdatedParams{}, enginetypes.ErrInvalidParams
	}
	var p forkchoiceUpdatedParams
	if err := json.Unmarshal(arr[0], &p.State); err != nil {
		return forkchoiceUpdatedParams{}, enginetypes.ErrInvalidParams
	}
	if len(arr) > 1 && string(arr[1]) != "null" {
		p.Attrs = new(enginetypes.PayloadAttributes)
		if err := json.Unmarshal(arr[1], p.Attrs); err != nil {
			return forkchoiceUpdatedParams{}, enginetypes.ErrInvalidParams
		}
	}
	return p, nil
}

// newPayloadParams mirrors the full positional params of engine_newPayloadV3
// and V4: [payload, expectedBlobVersionedHashes, parentBeaconBlockRoot].
// Earlier versions simply omit the trailing elements.
type newPayloadParams struct {
	Payload               *enginetypes.ExecutionPayload
	VersionedHashes       []common.Hash
	ParentBeaconBlockRoot *common.Hash
}

func decodeNewPayloadParams(raw json.RawMessage) (newPayloadParams, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return newPayloadParams{}, enginetypes.ErrInvalidParams
	}
	p := newPayloadParams{Payload: new(enginetypes.ExecutionPayload)}
	if err := json.Unmarshal(arr[0], p.Payload); err != nil {
		return newPayloadParams{}, enginetypes.ErrInvalidParams
	}
	if len(arr) > 1 && string(arr[1]) != "null" {
		if err := json.Unmarshal(arr[1], &p.VersionedHashes); err != nil {
			return newPayloadParams{}, enginetypes.ErrInvalidParams
		}
	}
	if len(arr) > 2 && string(arr[2]) != "null" {
		p.ParentBeaconBlockRoot = new(common.Hash)
		if err := json.Unmarshal(arr[2], p.ParentBeaconBlockRoot); err != nil {
			return newPayloadParams{}, enginetypes.ErrInvalidParams
		}
	}
	return p, nil
}

// Dispatch routes a single JSON-RPC method call. isController selects which
// cache-population policy applies to forkchoiceUpdated and newPayload
// (controller calls reach the engine unless a definite answer is already
// cached, and populate the caches; client calls are served from the caches
// only).
func (d *Dispatcher) Dispatch(ctx context.Context, isController bool, method string, params json.RawMessage) (any, error) {
	switch {
	case strings.HasPrefix(method, "engine_forkchoiceUpdated"):
		p, err := decodeFcuParams(params)
		if err != nil {
			return nil, err
		}
		if isController {
			return d.FcuHandler.HandleControllerFcu(ctx, p.State, p.Attrs)
		}
		return d.FcuHandler.HandleFcu(ctx, p.State, p.Attrs)

	case strings.HasPrefix(method, "engine_newPayload"):
		p, err := decodeNewPayloadParams(params)
		if err != nil {
			return nil, err
		}
		if isController {
			return d.NewPayloadHandler.HandleControllerNewPayload(ctx, p.Payload)
		}
		return d.NewPayloadHandler.HandleNewPayload(ctx, p.Payload, p.VersionedHashes, p.ParentBeaconBlockRoot)

	case strings.HasPrefix(method, "engine_getPayloadBodies"):
		var out any
		err := d.Proxy.Call(ctx, method, rawParamsToAny(params), &out)
		return out, err

	case method == "engine_exchangeCapabilities":
		return d.exchangeCapabilities(ctx, params)

	case method == "engine_getClientVersionV1":
		var out any
		err := d.Proxy.Call(ctx, method, rawParamsToAny(params), &out)
		return out, err

	case strings.HasPrefix(method, "engine_getPayload"):
		// getPayload is served from the builder's own payload cache:
		// getPayload decodes the PayloadID out of params and looks it up
		// through FcuHandler.Builder.
		return d.getPayload(ctx, params)

	default:
		var out any
		err := d.Proxy.Call(ctx, method, rawParamsToAny(params), &out)
		return out, err
	}
}

func (d *Dispatcher) getPayload(ctx context.Context, params json.RawMessage) (any, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(params, &arr); err != nil || len(arr) == 0 {
		return nil, enginetypes.ErrInvalidParams
	}
	var id enginetypes.PayloadID
	if err := json.Unmarshal(arr[0], &id); err != nil {
		return nil, enginetypes.ErrInvalidParams
	}
	return d.FcuHandler.Builder.GetPayload(id)
}

func (d *Dispatcher) exchangeCapabilities(ctx context.Context, params json.RawMessage) (any, error) {
	d.capMu.Lock()
	if d.capResult != nil && time.Since(d.capFetchedAt) < capabilitiesTTL {
		cached := d.capResult
		d.capMu.Unlock()
		var out any
		_ = json.Unmarshal(cached, &out)
		return out, nil
	}
	d.capMu.Unlock()

	var out any
	if err := d.Proxy.Call(ctx, "engine_exchangeCapabilities", rawParamsToAny(params), &out); err != nil {
		return nil, err
	}
	encoded, _ := json.Marshal(out)

	d.capMu.Lock()
	d.capResult = encoded
	d.capFetchedAt = time.Now()
	d.capMu.Unlock()

	return out, nil
}

func rawParamsToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return []any{}
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
