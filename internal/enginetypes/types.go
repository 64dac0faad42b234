// Package enginetypes defines the Engine-API wire types and JSON-RPC
// envelope shared by the caches, the payload builder, and the dispatcher.
package enginetypes

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PayloadStatus is the status string returned in a PayloadStatusV1.
type PayloadStatus string

const (
	StatusValid          PayloadStatus = "VALID"
	StatusInvalid        PayloadStatus = "INVALID"
	StatusSyncing        PayloadStatus = "SYNCING"
	StatusAccepted       PayloadStatus = "ACCEPTED"
	StatusInvalidBlockHash PayloadStatus = "INVALID_BLOCK_HASH"
)

// IsDefinite reports whether a status represents a resolved outcome
// (VALID, INVALID, INVALID_BLOCK_HASH) as opposed to an indefinite one
// (SYNCING, ACCEPTED).
func (s PayloadStatus) IsDefinite() bool {
	switch s {
	case StatusValid, StatusInvalid, StatusInvalidBlockHash:
		return true
	default:
		return false
	}
}

// PayloadID is the 8-byte identifier returned by forkchoiceUpdated and
// consumed by getPayload.
type PayloadID [8]byte

func (p PayloadID) String() string {
	return hexutil.Encode(p[:])
}

// ForkchoiceStateV1 mirrors the forkchoiceState parameter of engine_forkchoiceUpdated.
type ForkchoiceStateV1 struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// Withdrawal mirrors a single consensus-layer withdrawal.
type Withdrawal struct {
	Index          hexutil.Uint64 `json:"index"`
	ValidatorIndex hexutil.Uint64 `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	Amount         hexutil.Uint64 `json:"amount"`
}

// PayloadAttributes mirrors PayloadAttributesV1-V4. Later-version fields are
// nil/omitted when the attributes were supplied at an earlier version; the
// builder decides which fields are mandatory based on the fork active at
// Timestamp (see internal/forks).
type PayloadAttributes struct {
	Timestamp             hexutil.Uint64 `json:"timestamp"`
	PrevRandao            common.Hash    `json:"prevRandao"`
	SuggestedFeeRecipient common.Address `json:"suggestedFeeRecipient"`

	// Capella+
	Withdrawals []*Withdrawal `json:"withdrawals,omitempty"`

	// Deneb+
	ParentBeaconBlockRoot *common.Hash `json:"parentBeaconBlockRoot,omitempty"`

	// Electra+
	TargetBlobsPerBlock *hexutil.Uint64 `json:"targetBlobsPerBlock,omitempty"`
}

// ExecutionPayload mirrors ExecutionPayloadV1-V5. Later-version fields are
// nil/omitted for earlier forks.
type ExecutionPayload struct {
	ParentHash    common.Hash    `json:"parentHash"`
	FeeRecipient  common.Address `json:"feeRecipient"`
	StateRoot     common.Hash    `json:"stateRoot"`
	ReceiptsRoot  common.Hash    `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes  `json:"logsBloom"`
	PrevRandao    common.Hash    `json:"prevRandao"`
	BlockNumber   hexutil.Uint64 `json:"blockNumber"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
	GasUsed       hexutil.Uint64 `json:"gasUsed"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	ExtraData     hexutil.Bytes  `json:"extraData"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas"`
	BlockHash     common.Hash    `json:"blockHash"`
	Transactions  []hexutil.Bytes `json:"transactions"`

	// Capella+
	Withdrawals []*Withdrawal `json:"withdrawals,omitempty"`

	// Deneb+
	BlobGasUsed   *hexutil.Uint64 `json:"blobGasUsed,omitempty"`
	ExcessBlobGas *hexutil.Uint64 `json:"excessBlobGas,omitempty"`

	// Electra+
	DepositRequests       []*DepositRequest       `json:"depositRequests,omitempty"`
	WithdrawalRequests    []*WithdrawalRequest    `json:"withdrawalRequests,omitempty"`
	ConsolidationRequests []*ConsolidationRequest `json:"consolidationRequests,omitempty"`
}

// DepositRequest, WithdrawalRequest, and ConsolidationRequest are the
// Electra EIP-6110/7002/7251 execution-layer requests. Their fields are
// opaque to this multiplexer; it never inspects them, only stores and
// replays whatever the EE or CL supplied.
type DepositRequest struct {
	Pubkey                hexutil.Bytes  `json:"pubkey"`
	WithdrawalCredentials hexutil.Bytes  `json:"withdrawalCredentials"`
	Amount                hexutil.Uint64 `json:"amount"`
	Signature             hexutil.Bytes  `json:"signature"`
	Index                 hexutil.Uint64 `json:"index"`
}

type WithdrawalRequest struct {
	SourceAddress   common.Address `json:"sourceAddress"`
	ValidatorPubkey hexutil.Bytes  `json:"validatorPubkey"`
	Amount          hexutil.Uint64 `json:"amount"`
}

type ConsolidationRequest struct {
	SourceAddress common.Address `json:"sourceAddress"`
	SourcePubkey  hexutil.Bytes  `json:"sourcePubkey"`
	TargetPubkey  hexutil.Bytes  `json:"targetPubkey"`
}

// BlobsBundleV1 accompanies getPayload responses from Deneb onward.
type BlobsBundleV1 struct {
	Commitments []hexutil.Bytes `json:"commitments"`
	Proofs      []hexutil.Bytes `json:"proofs"`
	Blobs       []hexutil.Bytes `json:"blobs"`
}

// PayloadStatusV1 is the common response shape for newPayload and the
// payloadStatus field of forkchoiceUpdated's response.
type PayloadStatusV1 struct {
	Status          PayloadStatus `json:"status"`
	LatestValidHash *common.Hash  `json:"latestValidHash"`
	ValidationError *string       `json:"validationError"`
}

// ForkchoiceUpdatedResponse is the result of engine_forkchoiceUpdated.
type ForkchoiceUpdatedResponse struct {
	PayloadStatus PayloadStatusV1 `json:"payloadStatus"`
	PayloadID     *PayloadID      `json:"payloadId"`
}

// GetPayloadResponse is the result of engine_getPayload, generalized across
// V1-V4. The builder sets BlockValue on every payload; BlobsBundle and
// ShouldOverrideBuilder are set from Deneb onward and nil before it.
type GetPayloadResponse struct {
	ExecutionPayload      *ExecutionPayload `json:"executionPayload"`
	BlockValue            *hexutil.Big      `json:"blockValue,omitempty"`
	BlobsBundle           *BlobsBundleV1    `json:"blobsBundle,omitempty"`
	ShouldOverrideBuilder *bool             `json:"shouldOverrideBuilder,omitempty"`
}

// ClientVersionV1 is the result entry of engine_getClientVersionV1.
type ClientVersionV1 struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}
