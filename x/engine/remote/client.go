package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-actor/x/engine"
)

const defaultPollInterval = 5 * time.Second

var _ engine.Engine = (*Client)(nil)

// Client implements engine.Engine over a proving service REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	pollEvery  time.Duration
	log        zerolog.Logger
}

// NewClient constructs an engine client for the given base URL.
func NewClient(rawURL string, httpClient *http.Client, pollEvery time.Duration, log zerolog.Logger) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if pollEvery <= 0 {
		pollEvery = defaultPollInterval
	}
	logger := log.With().Str("component", "engine-client").Logger()

	logger.Info().
		Str("base_url", rawURL).
		Dur("timeout", httpClient.Timeout).
		Dur("poll_interval", pollEvery).
		Msg("Remote proof engine client initialized")

	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		pollEvery:  pollEvery,
		log:        logger,
	}, nil
}

func (c *Client) GenerateInput(
	ctx context.Context,
	l1, l2 engine.ChainSpec,
	req engine.ProofRequest,
	provider engine.BlockDataProvider,
) (engine.GuestInput, error) {
	refs, err := headerRefs(ctx, provider)
	if err != nil {
		return engine.GuestInput{}, err
	}

	var res inputResponse
	body := inputRequest{ChainID: l2.ChainID, Request: req, Headers: refs}
	if err := c.post(ctx, c.buildURL("input"), body, &res); err != nil {
		return engine.GuestInput{}, fmt.Errorf("generate input: %w", err)
	}
	if !res.Success {
		return engine.GuestInput{}, fmt.Errorf("engine rejected input generation: %s", res.errorMessage())
	}
	return res.Input, nil
}

func (c *Client) GetOutput(input engine.GuestInput) (engine.GuestOutput, error) {
	return engine.DeriveOutput(input)
}

func (c *Client) Prove(
	ctx context.Context,
	req engine.ProofRequest,
	input engine.GuestInput,
	output engine.GuestOutput,
	ids engine.IDStore,
) (engine.Proof, error) {
	config, err := req.ProverArgs.Config()
	if err != nil {
		return engine.Proof{}, fmt.Errorf("serialize prover args: %w", err)
	}
	key := engine.ProofKey{
		ChainID:     input.ChainID,
		BlockNumber: input.BlockNumber,
		BlockHash:   input.BlockHash,
		ProofType:   req.ProofType,
	}
	return c.runJob(ctx, jobKindSingle, req.ProofType, input, output, config, ids, &key)
}

func (c *Client) AggregateProofs(
	ctx context.Context,
	proofType engine.ProofType,
	input engine.AggregationGuestInput,
	output engine.AggregationGuestOutput,
	config json.RawMessage,
	ids engine.IDStore,
) (engine.Proof, error) {
	return c.runJob(ctx, jobKindAggregate, proofType, input, output, config, ids, nil)
}

func (c *Client) ParseBatchProposal(
	ctx context.Context,
	l1, l2 engine.ChainSpec,
	l1InclusionBlock, batchID uint64,
) ([]uint64, error) {
	var res batchBlocksResponse
	body := batchBlocksRequest{
		L1Network:              l1.Name,
		Network:                l2.Name,
		L1InclusionBlockNumber: l1InclusionBlock,
		BatchID:                batchID,
	}
	if err := c.post(ctx, c.buildURL("batch", "blocks"), body, &res); err != nil {
		return nil, fmt.Errorf("parse batch proposal: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("engine rejected batch proposal lookup: %s", res.errorMessage())
	}
	if len(res.BlockNumbers) == 0 {
		return nil, fmt.Errorf("batch %d proposes no blocks", batchID)
	}
	return res.BlockNumbers, nil
}

func (c *Client) GenerateBatchInput(
	ctx context.Context,
	l1, l2 engine.ChainSpec,
	req engine.ProofRequest,
	provider engine.BlockDataProvider,
) (engine.GuestBatchInput, error) {
	refs, err := headerRefs(ctx, provider)
	if err != nil {
		return engine.GuestBatchInput{}, err
	}

	var res batchInputResponse
	body := inputRequest{ChainID: l2.ChainID, Request: req, Headers: refs}
	if err := c.post(ctx, c.buildURL("batch", "input"), body, &res); err != nil {
		return engine.GuestBatchInput{}, fmt.Errorf("generate batch input: %w", err)
	}
	if !res.Success {
		return engine.GuestBatchInput{}, fmt.Errorf("engine rejected batch input generation: %s", res.errorMessage())
	}
	return res.Input, nil
}

func (c *Client) GetBatchOutput(input engine.GuestBatchInput) (engine.GuestBatchOutput, error) {
	return engine.DeriveBatchOutput(input)
}

func (c *Client) BatchProve(
	ctx context.Context,
	req engine.ProofRequest,
	input engine.GuestBatchInput,
	output engine.GuestBatchOutput,
	ids engine.IDStore,
) (engine.Proof, error) {
	config, err := req.ProverArgs.Config()
	if err != nil {
		return engine.Proof{}, fmt.Errorf("serialize prover args: %w", err)
	}
	key := engine.ProofKey{
		ChainID:     input.ChainID,
		BlockNumber: input.BatchID,
		ProofType:   req.ProofType,
	}
	return c.runJob(ctx, jobKindBatch, req.ProofType, input, output, config, ids, &key)
}

// CancelProof aborts the job recorded under key.
func (c *Client) CancelProof(ctx context.Context, proofType engine.ProofType, key engine.ProofKey, ids engine.IDStore) error {
	if ids == nil {
		return engine.ErrNoDataForQuery
	}
	jobID, err := ids.ReadID(ctx, key)
	if err != nil {
		return err
	}

	var res apiResult
	if err := c.post(ctx, c.buildURL("proof", jobID, "cancel"), struct{}{}, &res); err != nil {
		return fmt.Errorf("cancel %s job %s: %w", proofType, jobID, err)
	}
	if !res.Success {
		return fmt.Errorf("engine refused to cancel job %s: %s", jobID, res.errorMessage())
	}

	c.log.Info().Str("job_id", jobID).Str("proof_key", key.String()).Msg("proof job cancelled")
	return ids.RemoveID(ctx, key)
}

func (c *Client) runJob(
	ctx context.Context,
	kind string,
	proofType engine.ProofType,
	input, output any,
	config json.RawMessage,
	ids engine.IDStore,
	key *engine.ProofKey,
) (engine.Proof, error) {
	rawInput, err := json.Marshal(input)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("marshal %s input: %w", kind, err)
	}
	rawOutput, err := json.Marshal(output)
	if err != nil {
		return engine.Proof{}, fmt.Errorf("marshal %s output: %w", kind, err)
	}

	c.log.Info().
		Str("kind", kind).
		Str("proof_type", proofType.String()).
		Int("input_bytes", len(rawInput)).
		Msg("requesting proof generation")

	var sub submissionResponse
	job := proofJob{Kind: kind, ProofType: proofType, Input: rawInput, Output: rawOutput, Config: config}
	if err := c.post(ctx, c.buildURL("proof"), job, &sub); err != nil {
		return engine.Proof{}, fmt.Errorf("submit %s proof: %w", kind, err)
	}
	if !sub.Success {
		return engine.Proof{}, fmt.Errorf("engine rejected %s job: %s", kind, sub.errorMessage())
	}
	if sub.RequestID == "" {
		return engine.Proof{}, errors.New("engine response missing request_id")
	}

	if key != nil && ids != nil {
		if err := ids.StoreID(ctx, *key, sub.RequestID); err != nil {
			c.log.Warn().Err(err).Str("job_id", sub.RequestID).Msg("failed to record proof id")
		}
		defer func() {
			// a cancelled job's id is already gone
			if err := ids.RemoveID(context.WithoutCancel(ctx), *key); err != nil && !engine.IsNoDataForQuery(err) {
				c.log.Warn().Err(err).Str("job_id", sub.RequestID).Msg("failed to remove proof id")
			}
		}()
	}

	c.log.Info().Str("job_id", sub.RequestID).Str("kind", kind).Msg("proof job submitted successfully")
	return c.waitForJob(ctx, sub.RequestID)
}

func (c *Client) waitForJob(ctx context.Context, jobID string) (engine.Proof, error) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		status, err := c.getStatus(ctx, jobID)
		if err != nil {
			c.log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to fetch proof status")
		} else {
			switch strings.ToLower(status.Status) {
			case jobPending, jobRunning, jobProving:
			case jobCompleted:
				if status.Result == nil || status.Result.Proof == "" {
					return engine.Proof{}, fmt.Errorf("job %s completed with empty proof", jobID)
				}
				return *status.Result, nil
			case jobFailed:
				msg := status.errorMessage()
				if msg == "" {
					msg = "prover reported failure"
				}
				return engine.Proof{}, fmt.Errorf("job %s failed: %s", jobID, msg)
			case jobCancelled:
				return engine.Proof{}, fmt.Errorf("job %s was cancelled", jobID)
			default:
				c.log.Warn().Str("job_id", jobID).Str("status", status.Status).Msg("Unknown proof job status")
			}
		}

		select {
		case <-ctx.Done():
			return engine.Proof{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getStatus(ctx context.Context, jobID string) (statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("proof", jobID), nil)
	if err != nil {
		return statusResponse{}, fmt.Errorf("prepare status request: %w", err)
	}
	var status statusResponse
	if err := c.do(req, &status); err != nil {
		return statusResponse{}, err
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.log.Error().
			Int("status_code", res.StatusCode).
			Str("path", req.URL.Path).
			Str("response", string(msg)).
			Msg("engine returned error response")
		return fmt.Errorf("engine returned %s: %s", res.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}

func (c *Client) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path, "v1"}, elem...)...)
	return clone.String()
}

func headerRefs(ctx context.Context, provider engine.BlockDataProvider) ([]headerRef, error) {
	if provider == nil {
		return nil, nil
	}
	headers, err := provider.Headers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain data: %w", err)
	}
	refs := make([]headerRef, 0, len(headers))
	for _, h := range headers {
		refs = append(refs, headerRef{Number: h.Number.Uint64(), Hash: h.Hash(), ParentHash: h.ParentHash})
	}
	return refs, nil
}
