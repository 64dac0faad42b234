package builder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/sigp/eleel/internal/enginetypes"
	"github.com/sigp/eleel/internal/forks"
)

// BlockHasher computes the block hash of an ExecutionPayload the same way
// an execution client computes its header hash: build the equivalent
// types.Header and hash it. This is the one piece of real cryptography the
// caching core depends on, kept behind a narrow interface so the rest of
// the builder never touches go-ethereum's block-header internals directly.
type BlockHasher struct{}

// NewBlockHasher returns the default, go-ethereum-backed hasher.
func NewBlockHasher() *BlockHasher { return &BlockHasher{} }

// Hash computes the header hash of the given payload as of the given fork.
// parentBeaconRoot is required from Deneb onward: it is part of the header
// but, unlike every other header field, is carried alongside the payload
// (in PayloadAttributes/newPayload params) rather than inside it.
func (BlockHasher) Hash(p *enginetypes.ExecutionPayload, fork forks.Fork, parentBeaconRoot *common.Hash) common.Hash {
	return payloadHeader(p, fork, parentBeaconRoot).Hash()
}

// VerifyBlockHash recomputes the header hash of an arbitrary payload (not
// one this builder constructed itself) and reports whether it matches the
// hash the payload claims, along with the computed hash for use in an error
// message naming both values.
func (b *Builder) VerifyBlockHash(p *enginetypes.ExecutionPayload, fork forks.Fork, parentBeaconRoot *common.Hash) (computed common.Hash, ok bool) {
	computed = b.hasher.Hash(p, fork, parentBeaconRoot)
	return computed, computed == p.BlockHash
}

// VerifyVersionedHashes checks that the blob versioned hashes carried by a
// payload's blob transactions match, in order, the expectedBlobVersionedHashes
// parameter supplied alongside newPayload.
func VerifyVersionedHashes(p *enginetypes.ExecutionPayload, expected []common.Hash) error {
	var got []common.Hash
	for _, raw := range p.Transactions {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			continue
		}
		got = append(got, tx.BlobHashes()...)
	}
	if len(got) != len(expected) {
		return fmt.Errorf("builder: got %d blob versioned hashes, want %d: %w", len(got), len(expected), enginetypes.ErrInvalidBlockHash)
	}
	for i := range got {
		if got[i] != expected[i] {
			return fmt.Errorf("builder: blob versioned hash %d mismatch: got %s, want %s: %w", i, got[i], expected[i], enginetypes.ErrInvalidBlockHash)
		}
	}
	return nil
}

// payloadHeader builds the types.Header equivalent to an ExecutionPayload.
// Transactions are hashed via the standard transaction-trie root the same
// way go-ethereum's own miner does; for the dummy, transaction-free
// payloads this builder emits, that root is always the empty-root hash.
func payloadHeader(p *enginetypes.ExecutionPayload, fork forks.Fork, parentBeaconRoot *common.Hash) *types.Header {
	txs := make(types.Transactions, 0, len(p.Transactions))
	for _, raw := range p.Transactions {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err == nil {
			txs = append(txs, tx)
		}
	}

	header := &types.Header{
		ParentHash:  p.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    p.FeeRecipient,
		Root:        p.StateRoot,
		TxHash:      types.DeriveSha(txs, trie.NewStackTrie(nil)),
		ReceiptHash: p.ReceiptsRoot,
		Bloom:       types.BytesToBloom(p.LogsBloom),
		Difficulty:  common.Big0,
		Number:      new(big.Int).SetUint64(uint64(p.BlockNumber)),
		GasLimit:    uint64(p.GasLimit),
		GasUsed:     uint64(p.GasUsed),
		Time:        uint64(p.Timestamp),
		Extra:       p.ExtraData,
		MixDigest:   p.PrevRandao,
		Nonce:       types.BlockNonce{},
		BaseFee:     p.BaseFeePerGas.ToInt(),
	}

	if fork.AtLeast(forks.Capella) {
		wHash := types.DeriveSha(withdrawalsToTypes(p.Withdrawals), trie.NewStackTrie(nil))
		header.WithdrawalsHash = &wHash
	}
	if fork.AtLeast(forks.Deneb) {
		if p.BlobGasUsed != nil {
			bgu := uint64(*p.BlobGasUsed)
			header.BlobGasUsed = &bgu
		}
		if p.ExcessBlobGas != nil {
			ebg := uint64(*p.ExcessBlobGas)
			header.ExcessBlobGas = &ebg
		}
		header.ParentBeaconRoot = parentBeaconRoot
		if p.DepositRequests != nil || p.WithdrawalRequests != nil || p.ConsolidationRequests != nil {
			// Electra: execution-layer requests are not folded into the
			// header. No requests hash is set, whether the requests are
			// empty (as on every dummy payload) or populated.
		}
	}
	return header
}

func withdrawalsToTypes(ws []*enginetypes.Withdrawal) types.Withdrawals {
	out := make(types.Withdrawals, 0, len(ws))
	for _, w := range ws {
		out = append(out, &types.Withdrawal{
			Index:     uint64(w.Index),
			Validator: uint64(w.ValidatorIndex),
			Address:   w.Address,
			Amount:    uint64(w.Amount),
		})
	}
	return out
}
