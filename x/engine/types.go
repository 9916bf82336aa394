package engine

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Proof is the artifact produced by a proving run. For input generation the payload
// carries the serialized guest input instead of a proof.
type Proof struct {
	Proof    string `json:"proof,omitempty"`
	Quote    string `json:"quote,omitempty"`
	UUID     string `json:"uuid,omitempty"`
	KzgProof string `json:"kzg_proof,omitempty"`
}

// ProverArgs are opaque, prover specific arguments. Two keys are understood by the actor:
// "guest_input" (JSON string of a GuestInput) and "batch_guest_input" (EncodeBatchInput output).
type ProverArgs map[string]json.RawMessage

const (
	ArgGuestInput      = "guest_input"
	ArgBatchGuestInput = "batch_guest_input"
)

// String returns the string stored under key. ok is false when the key is absent.
func (a ProverArgs) String(key string) (string, bool, error) {
	raw, ok := a[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, fmt.Errorf("prover arg %s is not a string: %w", key, err)
	}
	return s, true, nil
}

// WithString returns a copy of the args with key set to the JSON string s.
func (a ProverArgs) WithString(key, s string) ProverArgs {
	out := make(ProverArgs, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	raw, _ := json.Marshal(s)
	out[key] = raw
	return out
}

// Config serializes the args as the JSON object handed to the prover.
func (a ProverArgs) Config() (json.RawMessage, error) {
	if a == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(a)
}

// ProofRequest is everything an engine needs to build inputs and prove them.
type ProofRequest struct {
	BlockNumber            uint64         `json:"block_number"`
	BatchID                uint64         `json:"batch_id"`
	L1InclusionBlockNumber uint64         `json:"l1_inclusion_block_number"`
	Network                string         `json:"network"`
	L1Network              string         `json:"l1_network"`
	Graffiti               common.Hash    `json:"graffiti"`
	Prover                 common.Address `json:"prover"`
	ProofType              ProofType      `json:"proof_type"`
	BlobProofType          string         `json:"blob_proof_type"`
	ProverArgs             ProverArgs     `json:"prover_args,omitempty"`
	L2BlockNumbers         []uint64       `json:"l2_block_numbers,omitempty"`
}

// ProverData identifies who a proof is produced for.
type ProverData struct {
	Prover   common.Address `json:"prover"`
	Graffiti common.Hash    `json:"graffiti"`
}

// GuestInput is the precomputed input of a single block proof.
type GuestInput struct {
	ChainID                uint64      `json:"chain_id"`
	BlockNumber            uint64      `json:"block_number"`
	BlockHash              common.Hash `json:"block_hash"`
	ParentHash             common.Hash `json:"parent_hash"`
	L1InclusionBlockNumber uint64      `json:"l1_inclusion_block_number"`
	ProverData             ProverData  `json:"prover_data"`
	Witness                []byte      `json:"witness"`
}

// GuestOutput is the public output committed by a single block proof.
type GuestOutput struct {
	Header common.Hash `json:"header"`
	Hash   common.Hash `json:"hash"`
}

// GuestBatchInput spans every block proposed by one batch transaction.
type GuestBatchInput struct {
	BatchID                uint64       `json:"batch_id"`
	ChainID                uint64       `json:"chain_id"`
	L1InclusionBlockNumber uint64       `json:"l1_inclusion_block_number"`
	Inputs                 []GuestInput `json:"inputs"`
	BlobData               []byte       `json:"blob_data"`
}

// GuestBatchOutput is the public output committed by a batch proof.
type GuestBatchOutput struct {
	BlockHashes []common.Hash `json:"block_hashes"`
	Hash        common.Hash   `json:"hash"`
}

// AggregationGuestInput carries the child proofs to aggregate.
type AggregationGuestInput struct {
	Proofs []Proof `json:"proofs"`
}

// AggregationGuestOutput is the aggregated commitment; the actor always passes the zero hash.
type AggregationGuestOutput struct {
	Hash common.Hash `json:"hash"`
}

// ProofKey locates an in-flight proof so it can be cancelled.
type ProofKey struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   common.Hash `json:"block_hash"`
	ProofType   ProofType   `json:"proof_type"`
}

func (k ProofKey) String() string {
	return fmt.Sprintf("%d/%d/%s/%d", k.ChainID, k.BlockNumber, k.BlockHash.Hex(), uint8(k.ProofType))
}
