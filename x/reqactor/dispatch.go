package reqactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/proof-actor/x/engine"
	"github.com/compose-network/proof-actor/x/reqpool"
)

// The adapters below translate one request entity into engine calls. They never write
// request status; the supervisor owns every transition.

func (b *backend) generateGuestInput(
	ctx context.Context,
	key reqpool.RequestKey,
	e reqpool.GuestInputRequestEntity,
) (engine.Proof, error) {
	b.log.Info().Str("request_key", key.String()).Msg("Generating guest input")

	l1, l2, err := b.resolveChains(e.L1Network, e.Network)
	if err != nil {
		return engine.Proof{}, err
	}
	req := engine.ProofRequest{
		BlockNumber:            e.BlockNumber,
		L1InclusionBlockNumber: e.L1InclusionBlockNumber,
		Network:                e.Network,
		L1Network:              e.L1Network,
		Graffiti:               e.Graffiti,
		BlobProofType:          e.BlobProofType,
	}

	input, err := b.generateInput(ctx, l1, l2, req)
	if err != nil {
		return engine.Proof{}, err
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to serialize guest input: %w", err)
	}
	return engine.Proof{Proof: string(raw)}, nil
}

func (b *backend) proveSingle(
	ctx context.Context,
	key reqpool.RequestKey,
	e reqpool.SingleProofRequestEntity,
) (engine.Proof, error) {
	b.log.Info().Str("request_key", key.String()).Msg("Generating single proof")

	l1, l2, err := b.resolveChains(e.L1Network, e.Network)
	if err != nil {
		return engine.Proof{}, err
	}
	req := engine.ProofRequest{
		BlockNumber:            e.BlockNumber,
		L1InclusionBlockNumber: e.L1InclusionBlockNumber,
		Network:                e.Network,
		L1Network:              e.L1Network,
		Graffiti:               e.Graffiti,
		Prover:                 e.Prover,
		ProofType:              e.ProofType,
		BlobProofType:          e.BlobProofType,
		ProverArgs:             e.ProverArgs,
	}

	input, cached, err := cachedGuestInput(e)
	if err != nil {
		return engine.Proof{}, err
	}
	if !cached {
		input, err = b.generateInput(ctx, l1, l2, req)
		if err != nil {
			return engine.Proof{}, err
		}
	}

	output, err := b.engine.GetOutput(input)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to get output: %w", err)
	}
	proof, err := b.engine.Prove(ctx, req, input, output, b.pool)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to generate single proof: %w", err)
	}
	return proof, nil
}

// cachedGuestInput returns the guest input carried in the prover args, with the prover
// identity replaced by the entity's.
func cachedGuestInput(e reqpool.SingleProofRequestEntity) (engine.GuestInput, bool, error) {
	raw, ok, err := e.ProverArgs.String(engine.ArgGuestInput)
	if err != nil || !ok {
		return engine.GuestInput{}, false, err
	}
	var input engine.GuestInput
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return engine.GuestInput{}, false, fmt.Errorf("failed to deserialize guest_input: %w", err)
	}
	input.ProverData = engine.ProverData{Prover: e.Prover, Graffiti: e.Graffiti}
	return input, true, nil
}

func (b *backend) proveAggregation(
	ctx context.Context,
	key reqpool.RequestKey,
	e reqpool.AggregationRequestEntity,
) (engine.Proof, error) {
	b.log.Info().Str("request_key", key.String()).Int("proofs", len(e.Proofs)).Msg("Generating aggregation proof")

	proofType := e.ProofType
	if k, ok := key.(reqpool.AggregationRequestKey); ok {
		proofType = k.ProofType
	}
	config, err := e.ProverArgs.Config()
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to serialize prover args: %w", err)
	}

	input := engine.AggregationGuestInput{Proofs: e.Proofs}
	output := engine.AggregationGuestOutput{Hash: common.Hash{}}
	proof, err := b.engine.AggregateProofs(ctx, proofType, input, output, config, b.pool)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to generate aggregation proof: %w", err)
	}
	return proof, nil
}

func (b *backend) generateBatchGuestInput(
	ctx context.Context,
	key reqpool.RequestKey,
	e reqpool.BatchGuestInputRequestEntity,
) (engine.Proof, error) {
	b.log.Info().Str("request_key", key.String()).Msg("Generating batch guest input")

	l2, req, err := b.batchRequest(ctx, reqpool.BatchProofRequestEntity{GuestInput: e})
	if err != nil {
		return engine.Proof{}, err
	}
	input, err := b.generateBatchInput(ctx, l2, req)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to generate batch guest input: %w", err)
	}
	encoded, err := engine.EncodeBatchInput(input)
	if err != nil {
		return engine.Proof{}, err
	}
	b.log.Debug().
		Str("request_key", key.String()).
		Int("blocks", len(input.Inputs)).
		Int("encoded_bytes", len(encoded)).
		Msg("Encoded batch guest input")
	return engine.Proof{Proof: encoded}, nil
}

func (b *backend) proveBatch(
	ctx context.Context,
	key reqpool.RequestKey,
	e reqpool.BatchProofRequestEntity,
) (engine.Proof, error) {
	b.log.Info().Str("request_key", key.String()).Msg("Generating batch proof")

	l2, req, err := b.batchRequest(ctx, e)
	if err != nil {
		return engine.Proof{}, err
	}

	var input engine.GuestBatchInput
	encoded, ok, err := e.ProverArgs.String(engine.ArgBatchGuestInput)
	switch {
	case err != nil:
		return engine.Proof{}, fmt.Errorf("failed to read batch_guest_input: %w", err)
	case ok:
		input, err = engine.DecodeBatchInput(encoded)
		if err != nil {
			return engine.Proof{}, err
		}
	default:
		b.log.Warn().Str("request_key", key.String()).Msg("Rebuilding batch guest input")
		input, err = b.generateBatchInput(ctx, l2, req)
		if err != nil {
			return engine.Proof{}, fmt.Errorf("failed to generate batch guest input: %w", err)
		}
	}

	output, err := b.engine.GetBatchOutput(input)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to get guest batch output: %w", err)
	}
	proof, err := b.engine.BatchProve(ctx, req, input, output, b.pool)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("failed to generate batch proof: %w", err)
	}
	return proof, nil
}

// batchRequest resolves the blocks proposed by the batch and builds the engine request.
func (b *backend) batchRequest(
	ctx context.Context,
	e reqpool.BatchProofRequestEntity,
) (engine.ChainSpec, engine.ProofRequest, error) {
	gi := e.GuestInput
	l1, l2, err := b.resolveChains(gi.L1Network, gi.Network)
	if err != nil {
		return engine.ChainSpec{}, engine.ProofRequest{}, err
	}
	blocks, err := b.engine.ParseBatchProposal(ctx, l1, l2, gi.L1InclusionBlockNumber, gi.BatchID)
	if err != nil {
		return engine.ChainSpec{}, engine.ProofRequest{}, fmt.Errorf("could not parse L1 batch proposal tx: %w", err)
	}
	if len(blocks) == 0 {
		return engine.ChainSpec{}, engine.ProofRequest{}, fmt.Errorf("batch %d proposes no blocks", gi.BatchID)
	}
	return l2, engine.ProofRequest{
		BatchID:                gi.BatchID,
		L1InclusionBlockNumber: gi.L1InclusionBlockNumber,
		Network:                gi.Network,
		L1Network:              gi.L1Network,
		Graffiti:               gi.Graffiti,
		Prover:                 e.Prover,
		ProofType:              e.ProofType,
		BlobProofType:          gi.BlobProofType,
		ProverArgs:             e.ProverArgs,
		L2BlockNumbers:         blocks,
	}, nil
}

func (b *backend) generateInput(
	ctx context.Context,
	l1, l2 engine.ChainSpec,
	req engine.ProofRequest,
) (engine.GuestInput, error) {
	if req.BlockNumber == 0 {
		return engine.GuestInput{}, errors.New("genesis block cannot be proven")
	}
	provider, err := b.providers(ctx, l2.RPC, []uint64{req.BlockNumber - 1, req.BlockNumber})
	if err != nil {
		return engine.GuestInput{}, fmt.Errorf("failed to create rpc block data provider: %w", err)
	}
	defer provider.Close()

	input, err := b.engine.GenerateInput(ctx, l1, l2, req, provider)
	if err != nil {
		return engine.GuestInput{}, fmt.Errorf("failed to generate input: %w", err)
	}
	return input, nil
}

func (b *backend) generateBatchInput(
	ctx context.Context,
	l2 engine.ChainSpec,
	req engine.ProofRequest,
) (engine.GuestBatchInput, error) {
	first, last := req.L2BlockNumbers[0], req.L2BlockNumbers[len(req.L2BlockNumbers)-1]
	if first == 0 || last < first {
		return engine.GuestBatchInput{}, fmt.Errorf("invalid batch block range [%d, %d]", first, last)
	}
	if last-first >= MaxBatchBlocks {
		return engine.GuestBatchInput{}, fmt.Errorf("batch block range [%d, %d] exceeds %d blocks", first, last, MaxBatchBlocks)
	}
	// parent of the first block, then the batch itself
	count := int(last-first) + 2
	blocks := make([]uint64, count)
	for i := range blocks {
		blocks[i] = first - 1 + uint64(i)
	}
	provider, err := b.providers(ctx, l2.RPC, blocks)
	if err != nil {
		return engine.GuestBatchInput{}, fmt.Errorf("failed to create rpc block data provider: %w", err)
	}
	defer provider.Close()

	l1, _ := b.chainSpecs.GetChainSpec(req.L1Network)
	return b.engine.GenerateBatchInput(ctx, l1, l2, req, provider)
}

func (b *backend) resolveChains(l1Network, l2Network string) (engine.ChainSpec, engine.ChainSpec, error) {
	l1, err := b.chainSpecs.MustGet(l1Network)
	if err != nil {
		return engine.ChainSpec{}, engine.ChainSpec{}, fmt.Errorf("resolve l1 chain: %w", err)
	}
	l2, err := b.chainSpecs.MustGet(l2Network)
	if err != nil {
		return engine.ChainSpec{}, engine.ChainSpec{}, fmt.Errorf("resolve l2 chain: %w", err)
	}
	return l1, l2, nil
}
