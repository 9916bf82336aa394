package reqactor

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/proof-actor/x/engine"
	"github.com/compose-network/proof-actor/x/reqpool"
)

const (
	testL1 = "ethereum"
	testL2 = "taiko"
)

func testChainSpecs(t *testing.T) engine.SupportedChainSpecs {
	t.Helper()
	specs, err := engine.NewSupportedChainSpecs(
		engine.ChainSpec{Name: testL1, ChainID: 1, RPC: "http://l1"},
		engine.ChainSpec{Name: testL2, ChainID: 167000, RPC: "http://l2", IsTaiko: true},
	)
	require.NoError(t, err)
	return specs
}

func blockHash(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n + 1000))
}

// fakeEngine counts invocations and runs work for every proving call.
type fakeEngine struct {
	// work runs inside Prove, AggregateProofs and BatchProve.
	work func(ctx context.Context, kind string) (engine.Proof, error)

	running    atomic.Int64
	maxRunning atomic.Int64

	mu          sync.Mutex
	calls       map[string]int
	lastRequest engine.ProofRequest
	lastInput   any
	lastOutput  any
	lastConfig  json.RawMessage
	cancelled   []engine.ProofKey
	cancelErr   error
	batchBlocks []uint64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{calls: make(map[string]int), batchBlocks: []uint64{10, 11, 12}}
}

func (f *fakeEngine) record(method string, req *engine.ProofRequest, input, output any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if req != nil {
		f.lastRequest = *req
	}
	if input != nil {
		f.lastInput = input
	}
	if output != nil {
		f.lastOutput = output
	}
}

func (f *fakeEngine) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeEngine) runWork(ctx context.Context, kind string) (engine.Proof, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxRunning.Load()
		if n <= m || f.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}
	if f.work == nil {
		return engine.Proof{Proof: "0x" + kind}, nil
	}
	return f.work(ctx, kind)
}

func (f *fakeEngine) GenerateInput(
	ctx context.Context,
	_, l2 engine.ChainSpec,
	req engine.ProofRequest,
	provider engine.BlockDataProvider,
) (engine.GuestInput, error) {
	f.record("GenerateInput", &req, nil, nil)
	headers, err := provider.Headers(ctx)
	if err != nil {
		return engine.GuestInput{}, err
	}
	return engine.GuestInput{
		ChainID:     l2.ChainID,
		BlockNumber: req.BlockNumber,
		BlockHash:   blockHash(req.BlockNumber),
		ParentHash:  headers[0].Hash(),
		ProverData:  engine.ProverData{Prover: req.Prover, Graffiti: req.Graffiti},
	}, nil
}

func (f *fakeEngine) GetOutput(input engine.GuestInput) (engine.GuestOutput, error) {
	return engine.DeriveOutput(input)
}

func (f *fakeEngine) Prove(
	ctx context.Context,
	req engine.ProofRequest,
	input engine.GuestInput,
	output engine.GuestOutput,
	_ engine.IDStore,
) (engine.Proof, error) {
	f.record("Prove", &req, input, output)
	return f.runWork(ctx, "single")
}

func (f *fakeEngine) AggregateProofs(
	ctx context.Context,
	proofType engine.ProofType,
	input engine.AggregationGuestInput,
	output engine.AggregationGuestOutput,
	config json.RawMessage,
	_ engine.IDStore,
) (engine.Proof, error) {
	f.record("AggregateProofs", &engine.ProofRequest{ProofType: proofType}, input, output)
	f.mu.Lock()
	f.lastConfig = config
	f.mu.Unlock()
	return f.runWork(ctx, "aggregate")
}

func (f *fakeEngine) ParseBatchProposal(context.Context, engine.ChainSpec, engine.ChainSpec, uint64, uint64) ([]uint64, error) {
	f.record("ParseBatchProposal", nil, nil, nil)
	return f.batchBlocks, nil
}

func (f *fakeEngine) GenerateBatchInput(
	_ context.Context,
	_, l2 engine.ChainSpec,
	req engine.ProofRequest,
	_ engine.BlockDataProvider,
) (engine.GuestBatchInput, error) {
	f.record("GenerateBatchInput", &req, nil, nil)
	in := engine.GuestBatchInput{BatchID: req.BatchID, ChainID: l2.ChainID, L1InclusionBlockNumber: req.L1InclusionBlockNumber}
	for _, n := range req.L2BlockNumbers {
		in.Inputs = append(in.Inputs, engine.GuestInput{ChainID: l2.ChainID, BlockNumber: n, BlockHash: blockHash(n)})
	}
	return in, nil
}

func (f *fakeEngine) GetBatchOutput(input engine.GuestBatchInput) (engine.GuestBatchOutput, error) {
	return engine.DeriveBatchOutput(input)
}

func (f *fakeEngine) BatchProve(
	ctx context.Context,
	req engine.ProofRequest,
	input engine.GuestBatchInput,
	output engine.GuestBatchOutput,
	_ engine.IDStore,
) (engine.Proof, error) {
	f.record("BatchProve", &req, input, output)
	return f.runWork(ctx, "batch")
}

func (f *fakeEngine) CancelProof(_ context.Context, _ engine.ProofType, key engine.ProofKey, _ engine.IDStore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CancelProof"]++
	f.cancelled = append(f.cancelled, key)
	return f.cancelErr
}

// fakeProviders records the block ranges providers were opened for.
type fakeProviders struct {
	mu     sync.Mutex
	ranges [][]uint64
}

func (p *fakeProviders) factory(_ context.Context, _ string, blocks []uint64) (engine.BlockDataProvider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ranges = append(p.ranges, append([]uint64(nil), blocks...))
	return &headerProvider{blocks: blocks}, nil
}

func (p *fakeProviders) last() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ranges) == 0 {
		return nil
	}
	return p.ranges[len(p.ranges)-1]
}

type headerProvider struct {
	blocks []uint64
}

func (h *headerProvider) Headers(context.Context) ([]*types.Header, error) {
	out := make([]*types.Header, 0, len(h.blocks))
	for _, n := range h.blocks {
		out = append(out, &types.Header{Number: new(big.Int).SetUint64(n), Difficulty: big.NewInt(0)})
	}
	return out, nil
}

func (h *headerProvider) Close() {}

// flakyPool fails the first failReads lookups and the first failTerminal terminal writes.
type flakyPool struct {
	*reqpool.MemoryPool
	failReads    atomic.Int64
	failStatus   atomic.Bool
	failTerminal atomic.Int64
}

func (p *flakyPool) UpdateStatusIf(
	ctx context.Context,
	key reqpool.RequestKey,
	status reqpool.StatusWithContext,
	from ...reqpool.StatusKind,
) (bool, error) {
	if status.Kind().Terminal() && status.Kind() != reqpool.StatusCancelled && p.failTerminal.Add(-1) >= 0 {
		return false, errStoreDown
	}
	return p.MemoryPool.UpdateStatusIf(ctx, key, status, from...)
}

var errStoreDown = errors.New("store unavailable")

func (p *flakyPool) Get(ctx context.Context, key reqpool.RequestKey) (reqpool.RequestEntity, reqpool.StatusWithContext, bool, error) {
	if p.failReads.Add(-1) >= 0 {
		return nil, reqpool.StatusWithContext{}, false, errStoreDown
	}
	return p.MemoryPool.Get(ctx, key)
}

func (p *flakyPool) GetStatus(ctx context.Context, key reqpool.RequestKey) (reqpool.StatusWithContext, bool, error) {
	if p.failStatus.Load() {
		return reqpool.StatusWithContext{}, false, errStoreDown
	}
	return p.MemoryPool.GetStatus(ctx, key)
}

type harness struct {
	actor     *Actor
	pool      reqpool.Pool
	engine    *fakeEngine
	providers *fakeProviders
}

type harnessOption func(*Config)

func withConcurrency(n int64) harnessOption {
	return func(c *Config) { c.MaxProvingConcurrency = n }
}

func withChannelSize(n int) harnessOption {
	return func(c *Config) { c.InternalChannelSize = n }
}

func withPool(p reqpool.Pool) harnessOption {
	return func(c *Config) { c.Pool = p }
}

func testConfig(t *testing.T, eng *fakeEngine, providers *fakeProviders) Config {
	t.Helper()
	return Config{
		Pool:                  reqpool.NewMemoryPool(zerolog.Nop()),
		ChainSpecs:            testChainSpecs(t),
		Engine:                eng,
		Providers:             providers.factory,
		MaxProvingConcurrency: 4,
		InternalChannelSize:   64,
		RecheckInterval:       20 * time.Millisecond,
		SignalRetryInterval:   5 * time.Millisecond,
		Logger:                zerolog.Nop(),
	}
}

func newHarness(t *testing.T, eng *fakeEngine, opts ...harnessOption) *harness {
	t.Helper()
	providers := &fakeProviders{}
	cfg := testConfig(t, eng, providers)
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a, err := Start(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		cancel()
		a.Wait()
	})
	return &harness{actor: a, pool: cfg.Pool, engine: eng, providers: providers}
}

func (h *harness) status(t *testing.T, key reqpool.RequestKey) reqpool.StatusWithContext {
	t.Helper()
	st, ok, err := h.pool.GetStatus(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	return st
}

func (h *harness) waitFor(t *testing.T, key reqpool.RequestKey, want reqpool.StatusKind) reqpool.StatusWithContext {
	t.Helper()
	var last reqpool.StatusWithContext
	require.Eventually(t, func() bool {
		st, ok, err := h.pool.GetStatus(context.Background(), key)
		if err != nil || !ok {
			return false
		}
		last = st
		return st.Kind() == want
	}, 2*time.Second, 5*time.Millisecond, "request %s never reached %s", key, want)
	return last
}

func singleRequest(block uint64) (reqpool.SingleProofRequestKey, reqpool.SingleProofRequestEntity) {
	prover := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	key := reqpool.SingleProofRequestKey{
		ChainID:     167000,
		BlockNumber: block,
		BlockHash:   blockHash(block),
		ProofType:   engine.ProofTypeSp1,
		Prover:      prover,
	}
	entity := reqpool.SingleProofRequestEntity{
		BlockNumber:            block,
		L1InclusionBlockNumber: block + 1,
		Network:                testL2,
		L1Network:              testL1,
		Prover:                 prover,
		ProofType:              engine.ProofTypeSp1,
	}
	return key, entity
}

// blockingWork parks every proving call until release is closed.
func blockingWork(release <-chan struct{}) func(context.Context, string) (engine.Proof, error) {
	return func(ctx context.Context, kind string) (engine.Proof, error) {
		select {
		case <-release:
			return engine.Proof{Proof: "0x" + kind}, nil
		case <-ctx.Done():
			return engine.Proof{}, ctx.Err()
		}
	}
}
