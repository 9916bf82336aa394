package engine

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveOutput computes the public output a single block proof commits to.
func DeriveOutput(input GuestInput) (GuestOutput, error) {
	if input.BlockHash == (common.Hash{}) {
		return GuestOutput{}, errors.New("guest input has no block hash")
	}
	return GuestOutput{
		Header: input.BlockHash,
		Hash:   commitment(input),
	}, nil
}

// DeriveBatchOutput computes the public output of a batch proof: the per-block commitments
// chained into one hash.
func DeriveBatchOutput(input GuestBatchInput) (GuestBatchOutput, error) {
	if len(input.Inputs) == 0 {
		return GuestBatchOutput{}, errors.New("guest batch input has no blocks")
	}
	out := GuestBatchOutput{BlockHashes: make([]common.Hash, 0, len(input.Inputs))}
	parts := make([][]byte, 0, len(input.Inputs)+1)
	parts = append(parts, u64(input.BatchID))
	for _, in := range input.Inputs {
		if in.BlockHash == (common.Hash{}) {
			return GuestBatchOutput{}, errors.New("guest batch input contains a block without hash")
		}
		out.BlockHashes = append(out.BlockHashes, in.BlockHash)
		c := commitment(in)
		parts = append(parts, c.Bytes())
	}
	out.Hash = crypto.Keccak256Hash(parts...)
	return out, nil
}

func commitment(in GuestInput) common.Hash {
	return crypto.Keccak256Hash(
		u64(in.ChainID),
		u64(in.BlockNumber),
		in.BlockHash.Bytes(),
		in.ParentHash.Bytes(),
		in.ProverData.Prover.Bytes(),
		in.ProverData.Graffiti.Bytes(),
	)
}

func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
