package reqactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-actor/x/engine"
	"github.com/compose-network/proof-actor/x/reqpool"
)

// ErrNotInPool is returned when cancelling a request the pool does not know.
var ErrNotInPool = errors.New("request is not in pool")

// backend is the actor's control loop. Only serve and the handlers it calls touch the
// command path; proving tasks and signalers share the handles below.
type backend struct {
	pool       reqpool.Pool
	chainSpecs engine.SupportedChainSpecs
	engine     engine.Engine
	providers  engine.ProviderFactory

	internal chan reqpool.RequestKey
	gate     *admissionGate
	halted   atomic.Bool

	recheckInterval     time.Duration
	signalRetryInterval time.Duration

	// taskCtx bounds proving tasks; signalCtx is cancelled when serve returns.
	taskCtx   context.Context
	signalCtx context.Context
	tasks     sync.WaitGroup

	metrics *Metrics
	log     zerolog.Logger
}

func newBackend(taskCtx, signalCtx context.Context, cfg Config) *backend {
	return &backend{
		pool:                cfg.Pool,
		chainSpecs:          cfg.ChainSpecs,
		engine:              cfg.Engine,
		providers:           cfg.Providers,
		internal:            make(chan reqpool.RequestKey, cfg.InternalChannelSize),
		gate:                newAdmissionGate(cfg.MaxProvingConcurrency),
		recheckInterval:     cfg.RecheckInterval,
		signalRetryInterval: cfg.SignalRetryInterval,
		taskCtx:             taskCtx,
		signalCtx:           signalCtx,
		metrics:             cfg.Metrics,
		log:                 cfg.Logger,
	}
}

// serve multiplexes the command, internal and pause channels until both external channels
// are closed or ctx is done. The internal channel has no outside producer, so it does not
// keep the loop alive on its own.
func (b *backend) serve(ctx context.Context, commands <-chan command, pause <-chan struct{}) {
	defer b.log.Info().Msg("Actor backend exited")

	for commands != nil || pause != nil {
		select {
		case <-ctx.Done():
			return

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			key := cmd.action.RequestKey()
			status, err := b.handleExternalAction(ctx, cmd.action)
			b.metrics.recordAction(actionName(cmd.action), resultLabel(err))

			// recheck whatever the result, so a fault above cannot drop the request
			b.ensureSignal(key)

			// reply is buffered; a caller that went away is not our concern
			cmd.reply <- response{status: status, err: err}

		case key := <-b.internal:
			b.handleInternalSignal(ctx, key)

		case _, ok := <-pause:
			if !ok {
				pause = nil
				continue
			}
			b.log.Info().Msg("Actor backend received pause signal, halting")
			if err := b.halt(); err != nil {
				b.log.Error().Err(err).Msg("Actor backend failed to halt")
			}
		}
	}
}

func (b *backend) handleExternalAction(ctx context.Context, action Action) (reqpool.StatusWithContext, error) {
	key := action.RequestKey()
	log := b.log.With().Str("request_key", key.String()).Logger()

	switch a := action.(type) {
	case ProveAction:
		status, ok, err := b.pool.GetStatus(ctx, key)
		if err != nil {
			log.Error().Err(err).Msg("Failed to get status of prove action")
			return reqpool.StatusWithContext{}, err
		}
		if !ok {
			log.Debug().Msg("Prove action for a request not in pool, registering")
			return b.register(ctx, key, a.Entity)
		}
		switch status.Kind() {
		case reqpool.StatusRegistered, reqpool.StatusWorkInProgress, reqpool.StatusSuccess:
			log.Debug().Stringer("status", status.Status).Msg("Prove action for a known request, skipping")
			return status, nil
		default:
			log.Warn().Stringer("status", status.Status).Msg("Prove action for a finished request, re-registering")
			return b.register(ctx, key, a.Entity)
		}

	case CancelAction:
		status, ok, err := b.pool.GetStatus(ctx, key)
		if err != nil {
			log.Error().Err(err).Msg("Failed to get status of cancel action")
			return reqpool.StatusWithContext{}, err
		}
		if !ok {
			log.Warn().Msg("Cancel action for a request not in pool, skipping")
			return reqpool.StatusWithContext{}, ErrNotInPool
		}
		switch status.Kind() {
		case reqpool.StatusRegistered, reqpool.StatusWorkInProgress:
			log.Debug().Stringer("status", status.Status).Msg("Cancel action, cancelling")
			return b.cancel(ctx, key, status)
		default:
			log.Debug().Stringer("status", status.Status).Msg("Cancel action for a finished request, skipping")
			return status, nil
		}

	default:
		return reqpool.StatusWithContext{}, fmt.Errorf("unsupported action %T", action)
	}
}

// handleInternalSignal moves key on to its next step.
func (b *backend) handleInternalSignal(ctx context.Context, key reqpool.RequestKey) {
	log := b.log.With().Str("request_key", key.String()).Logger()

	entity, status, ok, err := b.pool.Get(ctx, key)
	if err != nil {
		b.metrics.recordRecheck("error")
		log.Warn().Err(err).Msg("Failed to get request on recheck, retrying later")
		b.ensureSignalAfter(key, b.recheckInterval)
		return
	}
	if !ok {
		b.metrics.recordRecheck("missing")
		log.Warn().Msg("Recheck for a request not in pool, skipping")
		return
	}
	b.metrics.recordRecheck(string(status.Kind()))

	switch status.Kind() {
	case reqpool.StatusRegistered:
		if b.halted.Load() {
			log.Debug().Msg("Actor halted, deferring registered request")
			b.ensureSignalAfter(key, b.recheckInterval)
			return
		}
		log.Debug().Str("kind", string(entity.Kind())).Msg("Recheck of a registered request, proving")
		b.prove(key, entity)
		// the supervisor's own writes may be lost; keep polling
		b.ensureSignal(key)

	case reqpool.StatusWorkInProgress:
		log.Debug().Dur("elapsed", time.Since(status.Timestamp)).Msg("Recheck of a work-in-progress request")
		b.ensureSignalAfter(key, b.recheckInterval)

	default:
		log.Debug().Stringer("status", status.Status).Msg("Recheck of a finished request, done")
	}
}

func (b *backend) register(
	ctx context.Context,
	key reqpool.RequestKey,
	entity reqpool.RequestEntity,
) (reqpool.StatusWithContext, error) {
	if entity == nil || entity.Kind() != key.Kind() {
		return reqpool.StatusWithContext{}, fmt.Errorf("entity does not match %s request", key.Kind())
	}
	status := reqpool.NewRegistered()
	if err := b.pool.Add(ctx, key, entity, status); err != nil {
		return reqpool.StatusWithContext{}, err
	}
	b.metrics.recordTransition(string(key.Kind()), string(status.Kind()))
	return status, nil
}

func (b *backend) cancel(
	ctx context.Context,
	key reqpool.RequestKey,
	old reqpool.StatusWithContext,
) (reqpool.StatusWithContext, error) {
	log := b.log.With().Str("request_key", key.String()).Logger()

	switch old.Kind() {
	case reqpool.StatusRegistered, reqpool.StatusWorkInProgress:
	default:
		log.Warn().Stringer("status", old.Status).Msg("Cancel action for a request no longer pending, skipping")
		return old, nil
	}

	if single, ok := key.(reqpool.SingleProofRequestKey); ok && old.Kind() == reqpool.StatusWorkInProgress {
		err := b.engine.CancelProof(ctx, single.ProofType, single.ProofKey(), b.pool)
		switch {
		case err == nil:
		case engine.IsNoDataForQuery(err):
			log.Warn().Msg("Cancel action, but the proof is already cancelled or not yet started")
		default:
			log.Error().Err(err).Msg("Cancel action, but failed to cancel proof")
			return reqpool.StatusWithContext{}, fmt.Errorf("failed to cancel proof: %w", err)
		}
	}

	status := reqpool.NewCancelled()
	written, err := b.pool.UpdateStatusIf(ctx, key, status, reqpool.StatusRegistered, reqpool.StatusWorkInProgress)
	if err != nil {
		return reqpool.StatusWithContext{}, err
	}
	if !written {
		// finished between the read and the write
		current, ok, err := b.pool.GetStatus(ctx, key)
		if err != nil {
			return reqpool.StatusWithContext{}, err
		}
		if !ok {
			return reqpool.StatusWithContext{}, ErrNotInPool
		}
		log.Warn().Stringer("status", current.Status).Msg("Request finished before it could be cancelled")
		return current, nil
	}
	b.metrics.recordTransition(string(key.Kind()), string(status.Kind()))
	return status, nil
}

// halt stops admission of new work. In-flight work runs to completion and commands are
// still served. Calling it again is a no-op.
func (b *backend) halt() error {
	if !b.halted.CompareAndSwap(false, true) {
		b.log.Debug().Msg("Actor backend already halted")
		return nil
	}
	b.metrics.recordHalt()
	stats := b.gate.Stats()
	b.log.Info().
		Int64("in_flight", stats.InUse).
		Int64("queued", stats.Waiting).
		Msg("Actor backend halted, draining in-flight work")
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
