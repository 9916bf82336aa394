package chaindata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/compose-network/proof-actor/x/engine"
)

type headerReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	Close()
}

var _ engine.BlockDataProvider = (*RPCProvider)(nil)

// RPCProvider serves headers for a fixed set of blocks from an execution client.
type RPCProvider struct {
	client headerReader
	blocks []uint64
	log    zerolog.Logger
}

// NewRPCProvider dials rpcURL. blocks are deduplicated and sorted.
func NewRPCProvider(ctx context.Context, rpcURL string, blocks []uint64, log zerolog.Logger) (*RPCProvider, error) {
	if rpcURL == "" {
		return nil, errors.New("rpc url is required")
	}
	if len(blocks) == 0 {
		return nil, errors.New("at least one block is required")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return newRPCProvider(client, blocks, log), nil
}

func newRPCProvider(client headerReader, blocks []uint64, log zerolog.Logger) *RPCProvider {
	return &RPCProvider{
		client: client,
		blocks: normalize(blocks),
		log:    log.With().Str("component", "chain-data").Logger(),
	}
}

// Factory adapts NewRPCProvider to engine.ProviderFactory.
func Factory(log zerolog.Logger) engine.ProviderFactory {
	return func(ctx context.Context, rpcURL string, blocks []uint64) (engine.BlockDataProvider, error) {
		return NewRPCProvider(ctx, rpcURL, blocks, log)
	}
}

// Blocks returns the block numbers the provider serves.
func (p *RPCProvider) Blocks() []uint64 {
	return append([]uint64(nil), p.blocks...)
}

// Headers fetches every configured header and checks that consecutive headers link up.
func (p *RPCProvider) Headers(ctx context.Context) ([]*types.Header, error) {
	headers := make([]*types.Header, 0, len(p.blocks))
	for _, n := range p.blocks {
		h, err := p.client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, fmt.Errorf("fetch header %d: %w", n, err)
		}
		if h.Number == nil || h.Number.Uint64() != n {
			return nil, fmt.Errorf("rpc returned header %v for block %d", h.Number, n)
		}
		if len(headers) > 0 {
			prev := headers[len(headers)-1]
			if prev.Number.Uint64()+1 == n && h.ParentHash != prev.Hash() {
				return nil, fmt.Errorf("header %d does not extend header %d", n, prev.Number.Uint64())
			}
		}
		headers = append(headers, h)
	}

	p.log.Debug().
		Uint64("first_block", p.blocks[0]).
		Uint64("last_block", p.blocks[len(p.blocks)-1]).
		Int("headers", len(headers)).
		Msg("fetched chain data")

	return headers, nil
}

func (p *RPCProvider) Close() {
	p.client.Close()
}

func normalize(blocks []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(blocks))
	out := make([]uint64, 0, len(blocks))
	for _, b := range blocks {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
