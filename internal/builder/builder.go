// Package builder implements the payload builder: it mints PayloadIDs for
// forkchoiceUpdated requests that carry payload attributes, and constructs
// the always-empty ("dummy") ExecutionPayload returned by getPayload. It
// never executes a real block — transaction inclusion is out of scope for
// this multiplexer, which exists to cache and deduplicate Engine-API
// traffic, not to build blocks.
package builder

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/sigp/eleel/internal/enginetypes"
	"github.com/sigp/eleel/internal/forks"
	"github.com/sigp/eleel/internal/lru"
)

// Sentinel errors returned by RegisterAttributes/GetPayload, each wrapping
// the enginetypes sentinel that determines its JSON-RPC error code.
var (
	ErrUnknownPayloadID  = fmt.Errorf("builder: unknown payload id: %w", enginetypes.ErrUnknownPayload)
	ErrUnsupportedFork   = fmt.Errorf("builder: missing required withdrawals for fork: %w", enginetypes.ErrInvalidPayloadAttributes)
	ErrMissingBeaconRoot = fmt.Errorf("builder: missing parent beacon block root: %w", enginetypes.ErrInvalidPayloadAttributes)
	ErrUnknownParent     = fmt.Errorf("builder: unknown parent block hash: %w", enginetypes.ErrInvalidPayloadAttributes)
	ErrPreBellatrixFork  = fmt.Errorf("builder: payload attributes resolve to a pre-bellatrix fork: %w", enginetypes.ErrInvalidPayloadAttributes)
	ErrBeforeGenesis     = fmt.Errorf("builder: payload attributes timestamp is before genesis: %w", enginetypes.ErrInvalidPayloadAttributes)
)

// CanonicalInfo is what the multiplexer knows about the current canonical
// head: enough to build a syntactically valid dummy child payload.
type CanonicalInfo struct {
	BlockHash     common.Hash
	BlockNumber   uint64
	GasLimit      uint64
	GasUsed       uint64
	BaseFeePerGas *uint256.Int
	StateRoot     common.Hash
}

// attrsKey is a comparable projection of PayloadAttributes suitable as a map
// key. Withdrawals are folded into a digest since slices aren't comparable.
type attrsKey struct {
	headBlockHash    common.Hash
	timestamp        uint64
	prevRandao       common.Hash
	feeRecipient     common.Address
	withdrawalsHash  common.Hash
	beaconRoot       common.Hash
	hasBeaconRoot    bool
}

func newAttrsKey(head common.Hash, a *enginetypes.PayloadAttributes) attrsKey {
	k := attrsKey{
		headBlockHash: head,
		timestamp:     uint64(a.Timestamp),
		prevRandao:    a.PrevRandao,
		feeRecipient:  a.SuggestedFeeRecipient,
	}
	h := sha256.New()
	for _, w := range a.Withdrawals {
		var buf [8 * 3]byte
		binary.BigEndian.PutUint64(buf[0:8], uint64(w.Index))
		binary.BigEndian.PutUint64(buf[8:16], uint64(w.ValidatorIndex))
		binary.BigEndian.PutUint64(buf[16:24], uint64(w.Amount))
		h.Write(buf[:])
		h.Write(w.Address[:])
	}
	copy(k.withdrawalsHash[:], h.Sum(nil))
	if a.ParentBeaconBlockRoot != nil {
		k.beaconRoot = *a.ParentBeaconBlockRoot
		k.hasBeaconRoot = true
	}
	return k
}

// Builder mints PayloadIDs and constructs dummy payloads on demand. It is
// safe for concurrent use.
type Builder struct {
	schedule forks.Schedule
	hasher   *BlockHasher

	mu            sync.Mutex
	counter       uint64
	attrsToID     map[attrsKey]enginetypes.PayloadID
	canonicalInfo map[common.Hash]CanonicalInfo

	payloads *lru.Cache[enginetypes.PayloadID, *enginetypes.GetPayloadResponse]
}

// New creates a Builder. payloadCacheSize bounds how many built payloads are
// retained for getPayload before the oldest is evicted.
func New(schedule forks.Schedule, payloadCacheSize int) *Builder {
	return &Builder{
		schedule:      schedule,
		hasher:        NewBlockHasher(),
		attrsToID:     make(map[attrsKey]enginetypes.PayloadID),
		canonicalInfo: make(map[common.Hash]CanonicalInfo),
		payloads:      lru.New[enginetypes.PayloadID, *enginetypes.GetPayloadResponse](payloadCacheSize),
	}
}

// RegisterCanonical records what is known about a canonical head block, if
// it is not already known. Insert-if-absent: once a block hash's info is
// recorded it never changes underneath an in-flight RegisterAttributes call.
func (b *Builder) RegisterCanonical(info CanonicalInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.canonicalInfo[info.BlockHash]; ok {
		return
	}
	b.canonicalInfo[info.BlockHash] = info
}

// nextPayloadID allocates the next PayloadID from the process-lifetime
// monotonic counter, packed big-endian like go-ethereum's own miner does
// for readability in logs (lexicographic order matches allocation order).
func (b *Builder) nextPayloadID() enginetypes.PayloadID {
	n := atomic.AddUint64(&b.counter, 1)
	var id enginetypes.PayloadID
	binary.BigEndian.PutUint64(id[:], n)
	return id
}

// ExistingPayloadID returns the PayloadID previously minted for this exact
// (head, attributes) pair, if any.
func (b *Builder) ExistingPayloadID(head common.Hash, attrs *enginetypes.PayloadAttributes) (enginetypes.PayloadID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.attrsToID[newAttrsKey(head, attrs)]
	return id, ok
}

// RegisterAttributes mints a new PayloadID for (head, attrs), builds the
// dummy payload for it immediately, and returns the ID. If the same (head,
// attrs) pair was already registered, the existing ID is returned and no new
// payload is built.
func (b *Builder) RegisterAttributes(head common.Hash, attrs *enginetypes.PayloadAttributes) (enginetypes.PayloadID, error) {
	if uint64(attrs.Timestamp) < b.schedule.GenesisTime {
		return enginetypes.PayloadID{}, ErrBeforeGenesis
	}
	fork := b.schedule.ForkAtTimestamp(uint64(attrs.Timestamp))
	if !fork.AtLeast(forks.Bellatrix) {
		return enginetypes.PayloadID{}, ErrPreBellatrixFork
	}
	if fork.AtLeast(forks.Capella) && attrs.Withdrawals == nil {
		return enginetypes.PayloadID{}, ErrUnsupportedFork
	}
	if fork.AtLeast(forks.Deneb) && attrs.ParentBeaconBlockRoot == nil {
		return enginetypes.PayloadID{}, ErrMissingBeaconRoot
	}

	key := newAttrsKey(head, attrs)

	b.mu.Lock()
	if id, ok := b.attrsToID[key]; ok {
		b.mu.Unlock()
		return id, nil
	}
	info, haveInfo := b.canonicalInfo[head]
	if !haveInfo {
		b.mu.Unlock()
		return enginetypes.PayloadID{}, ErrUnknownParent
	}
	id := b.nextPayloadID()
	b.attrsToID[key] = id
	b.mu.Unlock()

	resp, err := b.buildDummy(fork, info, attrs)
	if err != nil {
		return enginetypes.PayloadID{}, err
	}
	b.payloads.Put(id, resp)
	return id, nil
}

// ForkAtTimestamp resolves the fork active at the given payload timestamp,
// per this builder's configured schedule. Exported so callers that verify
// payloads this builder didn't construct (newpayloadcache's client handler)
// can determine which header fields/requests fields a given payload must
// carry.
func (b *Builder) ForkAtTimestamp(timestamp uint64) forks.Fork {
	return b.schedule.ForkAtTimestamp(timestamp)
}

// GetPayload returns the previously built payload for id.
func (b *Builder) GetPayload(id enginetypes.PayloadID) (*enginetypes.GetPayloadResponse, error) {
	resp, ok := b.payloads.Get(id)
	if !ok {
		return nil, ErrUnknownPayloadID
	}
	return resp, nil
}

// buildDummy constructs a syntactically valid, transaction-free
// ExecutionPayload as a child of the given canonical info, fork-gated for
// which optional fields must be present.
func (b *Builder) buildDummy(fork forks.Fork, parent CanonicalInfo, attrs *enginetypes.PayloadAttributes) (*enginetypes.GetPayloadResponse, error) {
	baseFee := NextBaseFee(parent.GasLimit, parent.GasUsed, parent.BaseFeePerGas)

	payload := &enginetypes.ExecutionPayload{
		ParentHash:    parent.BlockHash,
		FeeRecipient:  attrs.SuggestedFeeRecipient,
		StateRoot:     parent.StateRoot,
		ReceiptsRoot:  emptyReceiptsRoot,
		LogsBloom:     make([]byte, 256),
		PrevRandao:    attrs.PrevRandao,
		BlockNumber:   hexutil.Uint64(parent.BlockNumber + 1),
		GasLimit:      hexutil.Uint64(parent.GasLimit),
		GasUsed:       0,
		Timestamp:     attrs.Timestamp,
		ExtraData:     []byte{},
		BaseFeePerGas: (*hexutil.Big)(baseFee.ToBig()),
		Transactions:  []hexutil.Bytes{},
	}

	if fork.AtLeast(forks.Capella) {
		payload.Withdrawals = attrs.Withdrawals
		if payload.Withdrawals == nil {
			payload.Withdrawals = []*enginetypes.Withdrawal{}
		}
	}
	if fork.AtLeast(forks.Deneb) {
		zero := hexutil.Uint64(0)
		payload.BlobGasUsed = &zero
		payload.ExcessBlobGas = &zero
	}
	if fork.AtLeast(forks.Electra) {
		payload.DepositRequests = []*enginetypes.DepositRequest{}
		payload.WithdrawalRequests = []*enginetypes.WithdrawalRequest{}
		payload.ConsolidationRequests = []*enginetypes.ConsolidationRequest{}
	}

	payload.BlockHash = b.hasher.Hash(payload, fork, attrs.ParentBeaconBlockRoot)

	resp := &enginetypes.GetPayloadResponse{
		ExecutionPayload: payload,
		BlockValue:       (*hexutil.Big)(uint256.NewInt(0).ToBig()),
	}
	if fork.AtLeast(forks.Deneb) {
		resp.BlobsBundle = &enginetypes.BlobsBundleV1{
			Commitments: []hexutil.Bytes{},
			Proofs:      []hexutil.Bytes{},
			Blobs:       []hexutil.Bytes{},
		}
		override := false
		resp.ShouldOverrideBuilder = &override
	}
	return resp, nil
}

// emptyReceiptsRoot is the root of an empty receipt trie (Keccak256 of the
// RLP encoding of an empty byte string), the value every transaction-free
// payload carries.
var emptyReceiptsRoot = common.HexToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")
