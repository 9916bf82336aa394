package engine

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/core/types"
)

// Engine performs the proof computations for every request kind.
type Engine interface {
	GenerateInput(ctx context.Context, l1, l2 ChainSpec, req ProofRequest, provider BlockDataProvider) (GuestInput, error)
	GetOutput(input GuestInput) (GuestOutput, error)
	Prove(ctx context.Context, req ProofRequest, input GuestInput, output GuestOutput, ids IDStore) (Proof, error)

	AggregateProofs(
		ctx context.Context,
		proofType ProofType,
		input AggregationGuestInput,
		output AggregationGuestOutput,
		config json.RawMessage,
		ids IDStore,
	) (Proof, error)

	// ParseBatchProposal resolves the L2 block numbers proposed by a batch transaction.
	ParseBatchProposal(ctx context.Context, l1, l2 ChainSpec, l1InclusionBlock, batchID uint64) ([]uint64, error)
	GenerateBatchInput(ctx context.Context, l1, l2 ChainSpec, req ProofRequest, provider BlockDataProvider) (GuestBatchInput, error)
	GetBatchOutput(input GuestBatchInput) (GuestBatchOutput, error)
	BatchProve(ctx context.Context, req ProofRequest, input GuestBatchInput, output GuestBatchOutput, ids IDStore) (Proof, error)

	// CancelProof aborts the in-flight proof recorded under key.
	// It returns ErrNoDataForQuery when nothing is recorded.
	CancelProof(ctx context.Context, proofType ProofType, key ProofKey, ids IDStore) error
}

// IDStore records remote proof ids so that in-flight proofs can be cancelled.
type IDStore interface {
	StoreID(ctx context.Context, key ProofKey, id string) error
	ReadID(ctx context.Context, key ProofKey) (string, error)
	RemoveID(ctx context.Context, key ProofKey) error
}

// BlockDataProvider serves chain data for the blocks an input is built from.
type BlockDataProvider interface {
	// Headers returns the headers of the provider's blocks in ascending order.
	Headers(ctx context.Context) ([]*types.Header, error)
	Close()
}

// ProviderFactory opens a BlockDataProvider on rpcURL for the given block numbers.
type ProviderFactory func(ctx context.Context, rpcURL string, blocks []uint64) (BlockDataProvider, error)
