package remote

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/proof-actor/x/engine"
)

// Job kinds understood by the proving service.
const (
	jobKindSingle    = "single"
	jobKindAggregate = "aggregate"
	jobKindBatch     = "batch"
)

// Job states reported by the proving service.
const (
	jobPending   = "pending"
	jobRunning   = "running"
	jobProving   = "proving"
	jobCompleted = "completed"
	jobFailed    = "failed"
	jobCancelled = "cancelled"
)

type headerRef struct {
	Number     uint64      `json:"number"`
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parent_hash"`
}

type inputRequest struct {
	ChainID uint64              `json:"chain_id"`
	Request engine.ProofRequest `json:"request"`
	Headers []headerRef         `json:"headers"`
}

type inputResponse struct {
	apiResult
	Input engine.GuestInput `json:"input"`
}

type batchInputResponse struct {
	apiResult
	Input engine.GuestBatchInput `json:"input"`
}

type batchBlocksRequest struct {
	L1Network              string `json:"l1_network"`
	Network                string `json:"network"`
	L1InclusionBlockNumber uint64 `json:"l1_inclusion_block_number"`
	BatchID                uint64 `json:"batch_id"`
}

type batchBlocksResponse struct {
	apiResult
	BlockNumbers []uint64 `json:"block_numbers"`
}

// proofJob is the body of POST /v1/proof.
type proofJob struct {
	Kind      string           `json:"kind"`
	ProofType engine.ProofType `json:"proof_type"`
	Input     json.RawMessage  `json:"input"`
	Output    json.RawMessage  `json:"output"`
	Config    json.RawMessage  `json:"config,omitempty"`
}

type submissionResponse struct {
	apiResult
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	apiResult
	Status string        `json:"status"`
	Result *engine.Proof `json:"result,omitempty"`
}

type apiResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Error   *string `json:"error,omitempty"`
}

func (r apiResult) errorMessage() string {
	if r.Error != nil {
		return *r.Error
	}
	return r.Message
}
