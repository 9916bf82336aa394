package reqpool

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/proof-actor/x/engine"
)

// RequestKind discriminates the five request variants.
type RequestKind string

const (
	KindGuestInput      RequestKind = "guest_input"
	KindBatchGuestInput RequestKind = "batch_guest_input"
	KindSingleProof     RequestKind = "single_proof"
	KindAggregation     RequestKind = "aggregation"
	KindBatchProof      RequestKind = "batch_proof"
)

var kindRank = map[RequestKind]int{
	KindGuestInput:      0,
	KindBatchGuestInput: 1,
	KindSingleProof:     2,
	KindAggregation:     3,
	KindBatchProof:      4,
}

// Valid reports whether k names a known request kind.
func (k RequestKind) Valid() bool {
	_, ok := kindRank[k]
	return ok
}

// RequestKey identifies a request in the pool and is the token carried on the actor's
// internal queue. String is the stable display and storage form.
type RequestKey interface {
	Kind() RequestKind
	String() string
	isRequestKey()
}

// CompareKeys orders keys by kind, then by display form.
func CompareKeys(a, b RequestKey) int {
	if c := cmp.Compare(kindRank[a.Kind()], kindRank[b.Kind()]); c != 0 {
		return c
	}
	return strings.Compare(a.String(), b.String())
}

type GuestInputRequestKey struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   common.Hash `json:"block_hash"`
}

func (GuestInputRequestKey) Kind() RequestKind { return KindGuestInput }
func (GuestInputRequestKey) isRequestKey()     {}

func (k GuestInputRequestKey) String() string {
	return fmt.Sprintf("GuestInput(chain=%d, block=%d, hash=%s)", k.ChainID, k.BlockNumber, k.BlockHash.Hex())
}

type BatchGuestInputRequestKey struct {
	ChainID           uint64 `json:"chain_id"`
	BatchID           uint64 `json:"batch_id"`
	L1InclusionHeight uint64 `json:"l1_inclusion_height"`
}

func (BatchGuestInputRequestKey) Kind() RequestKind { return KindBatchGuestInput }
func (BatchGuestInputRequestKey) isRequestKey()     {}

func (k BatchGuestInputRequestKey) String() string {
	return fmt.Sprintf("BatchGuestInput(chain=%d, batch=%d, l1=%d)", k.ChainID, k.BatchID, k.L1InclusionHeight)
}

type SingleProofRequestKey struct {
	ChainID     uint64           `json:"chain_id"`
	BlockNumber uint64           `json:"block_number"`
	BlockHash   common.Hash      `json:"block_hash"`
	ProofType   engine.ProofType `json:"proof_type"`
	Prover      common.Address   `json:"prover"`
}

func (SingleProofRequestKey) Kind() RequestKind { return KindSingleProof }
func (SingleProofRequestKey) isRequestKey()     {}

func (k SingleProofRequestKey) String() string {
	return fmt.Sprintf("SingleProof(chain=%d, block=%d, hash=%s, type=%s, prover=%s)",
		k.ChainID, k.BlockNumber, k.BlockHash.Hex(), k.ProofType, k.Prover.Hex())
}

// ProofKey is the engine-level identity used to cancel the in-flight proof.
func (k SingleProofRequestKey) ProofKey() engine.ProofKey {
	return engine.ProofKey{
		ChainID:     k.ChainID,
		BlockNumber: k.BlockNumber,
		BlockHash:   k.BlockHash,
		ProofType:   k.ProofType,
	}
}

type AggregationRequestKey struct {
	ProofType    engine.ProofType `json:"proof_type"`
	BlockNumbers []uint64         `json:"block_numbers"`
}

func (AggregationRequestKey) Kind() RequestKind { return KindAggregation }
func (AggregationRequestKey) isRequestKey()     {}

func (k AggregationRequestKey) String() string {
	blocks := make([]string, len(k.BlockNumbers))
	for i, n := range k.BlockNumbers {
		blocks[i] = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("Aggregation(type=%s, blocks=[%s])", k.ProofType, strings.Join(blocks, ","))
}

type BatchProofRequestKey struct {
	GuestInputKey BatchGuestInputRequestKey `json:"guest_input_key"`
	ProofType     engine.ProofType          `json:"proof_type"`
	Prover        common.Address            `json:"prover"`
}

func (BatchProofRequestKey) Kind() RequestKind { return KindBatchProof }
func (BatchProofRequestKey) isRequestKey()     {}

func (k BatchProofRequestKey) String() string {
	return fmt.Sprintf("BatchProof(chain=%d, batch=%d, l1=%d, type=%s, prover=%s)",
		k.GuestInputKey.ChainID, k.GuestInputKey.BatchID, k.GuestInputKey.L1InclusionHeight, k.ProofType, k.Prover.Hex())
}
