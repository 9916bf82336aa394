package reqpool

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/proof-actor/x/engine"
)

// RequestEntity is the kind-specific payload needed to perform a request.
type RequestEntity interface {
	Kind() RequestKind
	isRequestEntity()
}

type GuestInputRequestEntity struct {
	BlockNumber            uint64      `json:"block_number"`
	L1InclusionBlockNumber uint64      `json:"l1_inclusion_block_number"`
	Network                string      `json:"network"`
	L1Network              string      `json:"l1_network"`
	Graffiti               common.Hash `json:"graffiti"`
	BlobProofType          string      `json:"blob_proof_type"`
}

func (GuestInputRequestEntity) Kind() RequestKind { return KindGuestInput }
func (GuestInputRequestEntity) isRequestEntity()  {}

type SingleProofRequestEntity struct {
	BlockNumber            uint64            `json:"block_number"`
	L1InclusionBlockNumber uint64            `json:"l1_inclusion_block_number"`
	Network                string            `json:"network"`
	L1Network              string            `json:"l1_network"`
	Graffiti               common.Hash       `json:"graffiti"`
	Prover                 common.Address    `json:"prover"`
	ProofType              engine.ProofType  `json:"proof_type"`
	BlobProofType          string            `json:"blob_proof_type"`
	ProverArgs             engine.ProverArgs `json:"prover_args,omitempty"`
}

func (SingleProofRequestEntity) Kind() RequestKind { return KindSingleProof }
func (SingleProofRequestEntity) isRequestEntity()  {}

type AggregationRequestEntity struct {
	BlockNumbers []uint64          `json:"block_numbers"`
	Proofs       []engine.Proof    `json:"proofs"`
	ProofType    engine.ProofType  `json:"proof_type"`
	ProverArgs   engine.ProverArgs `json:"prover_args,omitempty"`
}

func (AggregationRequestEntity) Kind() RequestKind { return KindAggregation }
func (AggregationRequestEntity) isRequestEntity()  {}

type BatchGuestInputRequestEntity struct {
	BatchID                uint64      `json:"batch_id"`
	L1InclusionBlockNumber uint64      `json:"l1_inclusion_block_number"`
	Network                string      `json:"network"`
	L1Network              string      `json:"l1_network"`
	Graffiti               common.Hash `json:"graffiti"`
	BlobProofType          string      `json:"blob_proof_type"`
}

func (BatchGuestInputRequestEntity) Kind() RequestKind { return KindBatchGuestInput }
func (BatchGuestInputRequestEntity) isRequestEntity()  {}

type BatchProofRequestEntity struct {
	GuestInput BatchGuestInputRequestEntity `json:"guest_input"`
	Prover     common.Address               `json:"prover"`
	ProofType  engine.ProofType             `json:"proof_type"`
	ProverArgs engine.ProverArgs            `json:"prover_args,omitempty"`
}

func (BatchProofRequestEntity) Kind() RequestKind { return KindBatchProof }
func (BatchProofRequestEntity) isRequestEntity()  {}
