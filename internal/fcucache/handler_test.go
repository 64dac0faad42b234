package fcucache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sigp/eleel/internal/builder"
	"github.com/sigp/eleel/internal/enginetypes"
	"github.com/sigp/eleel/internal/forks"
)

type fakeEngine struct {
	resp     enginetypes.ForkchoiceUpdatedResponse
	err      error
	calls    int
	lastAttr *enginetypes.PayloadAttributes
}

func (f *fakeEngine) ForkchoiceUpdated(_ context.Context, _ enginetypes.ForkchoiceStateV1, attrs *enginetypes.PayloadAttributes) (enginetypes.ForkchoiceUpdatedResponse, error) {
	f.calls++
	f.lastAttr = attrs
	return f.resp, f.err
}

func testHandler(engine *fakeEngine) *Handler {
	return &Handler{
		Cache:   New(Config{Policy: Exact, Capacity: 16}),
		Builder: builder.New(forks.MainnetSchedule(), 16),
		Engine:  engine,
	}
}

func TestHandleControllerFcuForwardsAndCaches(t *testing.T) {
	engine := &fakeEngine{resp: enginetypes.ForkchoiceUpdatedResponse{
		PayloadStatus: enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid},
	}}
	h := testHandler(engine)
	state := enginetypes.ForkchoiceStateV1{HeadBlockHash: common.HexToHash("0x01")}

	resp, err := h.HandleControllerFcu(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("HandleControllerFcu: %v", err)
	}
	if resp.PayloadStatus.Status != enginetypes.StatusValid {
		t.Fatalf("status = %s, want VALID", resp.PayloadStatus.Status)
	}
	if engine.calls != 1 {
		t.Fatalf("engine called %d times, want 1", engine.calls)
	}
	if _, ok := h.Cache.Lookup(state, false); !ok {
		t.Fatalf("controller call should populate the cache")
	}
}

func TestHandleControllerFcuPropagatesEngineError(t *testing.T) {
	wantErr := errors.New("engine unavailable")
	engine := &fakeEngine{err: wantErr}
	h := testHandler(engine)
	state := enginetypes.ForkchoiceStateV1{HeadBlockHash: common.HexToHash("0x01")}

	if _, err := h.HandleControllerFcu(context.Background(), state, nil); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if _, ok := h.Cache.Lookup(state, false); ok {
		t.Fatalf("a failed controller call should not populate the cache")
	}
}

func TestHandleFcuHitsCacheWithoutCallingEngine(t *testing.T) {
	engine := &fakeEngine{resp: enginetypes.ForkchoiceUpdatedResponse{
		PayloadStatus: enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid},
	}}
	h := testHandler(engine)
	state := enginetypes.ForkchoiceStateV1{HeadBlockHash: common.HexToHash("0x01")}

	if _, err := h.HandleControllerFcu(context.Background(), state, nil); err != nil {
		t.Fatalf("seed HandleControllerFcu: %v", err)
	}
	engine.calls = 0

	resp, err := h.HandleFcu(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("HandleFcu: %v", err)
	}
	if resp.PayloadStatus.Status != enginetypes.StatusValid {
		t.Fatalf("status = %s, want VALID", resp.PayloadStatus.Status)
	}
	if engine.calls != 0 {
		t.Fatalf("a cache hit should not call the engine, got %d calls", engine.calls)
	}
}

func TestHandleFcuMissNeverCallsEngineAndSynthesizesSyncing(t *testing.T) {
	engine := &fakeEngine{resp: enginetypes.ForkchoiceUpdatedResponse{
		PayloadStatus: enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid},
	}}
	h := testHandler(engine)
	h.FcuWait = 20 * time.Millisecond
	state := enginetypes.ForkchoiceStateV1{HeadBlockHash: common.HexToHash("0x01")}

	resp, err := h.HandleFcu(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("HandleFcu: %v", err)
	}
	if resp.PayloadStatus.Status != enginetypes.StatusSyncing {
		t.Fatalf("status = %s, want synthetic SYNCING on a total cache miss", resp.PayloadStatus.Status)
	}
	if engine.calls != 0 {
		t.Fatalf("a follower must never call the engine, got %d calls", engine.calls)
	}
	if _, ok := h.Cache.Lookup(state, false); ok {
		t.Fatalf("the synthetic SYNCING response must not be cached")
	}
}

func TestHandleFcuAcceptsIndefiniteEntryAfterWaitBudget(t *testing.T) {
	engine := &fakeEngine{}
	h := testHandler(engine)
	h.FcuWait = 20 * time.Millisecond
	state := enginetypes.ForkchoiceStateV1{HeadBlockHash: common.HexToHash("0x01")}
	h.Cache.Insert(&Entry{State: state, Status: enginetypes.PayloadStatusV1{Status: enginetypes.StatusAccepted}})

	resp, err := h.HandleFcu(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("HandleFcu: %v", err)
	}
	if resp.PayloadStatus.Status != enginetypes.StatusAccepted {
		t.Fatalf("status = %s, want the cached indefinite ACCEPTED entry", resp.PayloadStatus.Status)
	}
	if engine.calls != 0 {
		t.Fatalf("a follower must never call the engine, got %d calls", engine.calls)
	}
}

func TestHandleFcuAttachesExistingPayloadIDButNeverMints(t *testing.T) {
	engine := &fakeEngine{}
	h := testHandler(engine)
	state := enginetypes.ForkchoiceStateV1{HeadBlockHash: common.HexToHash("0x01")}
	attrs := &enginetypes.PayloadAttributes{Timestamp: 1666824023}

	h.Cache.Insert(&Entry{State: state, Status: enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}})

	resp, err := h.HandleFcu(context.Background(), state, attrs)
	if err != nil {
		t.Fatalf("HandleFcu: %v", err)
	}
	if resp.PayloadID != nil {
		t.Fatalf("a follower must never mint a PayloadID, got %s", resp.PayloadID)
	}

	h.Builder.RegisterCanonical(builder.CanonicalInfo{
		BlockHash:     state.HeadBlockHash,
		BaseFeePerGas: uint256.NewInt(1_000_000_000),
		GasLimit:      30_000_000,
	})
	id, err := h.Builder.RegisterAttributes(state.HeadBlockHash, attrs)
	if err != nil {
		t.Fatalf("RegisterAttributes: %v", err)
	}

	resp2, err := h.HandleFcu(context.Background(), state, attrs)
	if err != nil {
		t.Fatalf("HandleFcu after RegisterAttributes: %v", err)
	}
	if resp2.PayloadID == nil || *resp2.PayloadID != id {
		t.Fatalf("HandleFcu should attach the PayloadID the builder already minted for this (head, attrs) pair")
	}
}
