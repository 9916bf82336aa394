package reqactor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/compose-network/proof-actor/x/engine"
	"github.com/compose-network/proof-actor/x/reqpool"
)

// prove claims key for work and spawns its computation under the admission gate. The
// returned channel is closed once the task holds a permit and the request is still in
// progress; it is nil when the work was not started. The loop never waits on it.
func (b *backend) prove(key reqpool.RequestKey, entity reqpool.RequestEntity) <-chan struct{} {
	log := b.log.With().Str("request_key", key.String()).Logger()

	// Registered -> WorkInProgress is the only way in, so a key is never computed twice.
	claimed, err := b.pool.UpdateStatusIf(b.taskCtx, key, reqpool.NewWorkInProgress(), reqpool.StatusRegistered)
	if err != nil {
		log.Error().Err(err).Str("status", string(reqpool.StatusWorkInProgress)).Msg("Failed to update request status")
		return nil
	}
	if !claimed {
		log.Warn().Msg("Prove skipped, request is no longer registered")
		return nil
	}
	b.metrics.recordTransition(string(key.Kind()), string(reqpool.StatusWorkInProgress))

	admitted := make(chan struct{})
	b.tasks.Add(1)
	go func() {
		defer b.tasks.Done()
		defer b.watch(key)
		b.run(key, entity, admitted)
	}()
	return admitted
}

// run waits for a permit, invokes the engine and records the outcome.
func (b *backend) run(key reqpool.RequestKey, entity reqpool.RequestEntity, admitted chan<- struct{}) {
	log := b.log.With().Str("request_key", key.String()).Logger()

	err := b.gate.Acquire(b.taskCtx)
	b.metrics.recordGate(b.gate.Stats())
	if err != nil {
		// shutting down while queued; hand the request back for recovery
		log.Warn().Err(err).Msg("Proving task stopped before admission")
		b.release(key)
		return
	}
	defer func() {
		b.gate.Release()
		b.metrics.recordGate(b.gate.Stats())
	}()

	// cancelled while queued: give the permit back without touching the engine
	if status, ok, err := b.pool.GetStatus(b.taskCtx, key); err == nil && (!ok || status.Kind() != reqpool.StatusWorkInProgress) {
		log.Info().Stringer("status", status.Status).Msg("Request left work-in-progress while queued, skipping")
		return
	}
	close(admitted)

	start := time.Now()
	proof, err := b.dispatch(b.taskCtx, key, entity)
	elapsed := time.Since(start)

	var status reqpool.StatusWithContext
	if err != nil {
		b.metrics.recordProving(string(key.Kind()), "failed", elapsed.Seconds())
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Failed to prove request")
		status = reqpool.NewFailed(err.Error())
	} else {
		b.metrics.recordProving(string(key.Kind()), "success", elapsed.Seconds())
		log.Info().Dur("elapsed", elapsed).Int("proof_len", len(proof.Proof)).Msg("Successfully proved request")
		status = reqpool.NewSuccess(proof)
	}
	b.finish(key, status)
}

// watch converts a panicking proving task into a Failed status.
func (b *backend) watch(key reqpool.RequestKey) {
	r := recover()
	if r == nil {
		return
	}
	b.metrics.recordPanic()
	b.log.Error().
		Str("request_key", key.String()).
		Interface("panic", r).
		Bytes("stack", debug.Stack()).
		Msg("Proving task panicked")
	b.finish(key, reqpool.NewFailed(fmt.Sprintf("proving task panicked: %v", r)))
}

// finish writes a terminal status unless the request left WorkInProgress meanwhile. Store
// failures are retried until the write lands or the actor stops.
func (b *backend) finish(key reqpool.RequestKey, status reqpool.StatusWithContext) {
	log := b.log.With().Str("request_key", key.String()).Logger()

	ctx := context.WithoutCancel(b.taskCtx)
	var written bool
	write := func() error {
		var err error
		written, err = b.pool.UpdateStatusIf(ctx, key, status, reqpool.StatusWorkInProgress)
		return err
	}
	notify := func(err error, next time.Duration) {
		log.Error().Err(err).Stringer("status", status.Status).Dur("retry_in", next).Msg("Failed to update request status, retrying")
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(b.recheckInterval), b.signalCtx)
	if err := backoff.RetryNotify(write, policy, notify); err != nil {
		log.Error().Err(err).Stringer("status", status.Status).Msg("Gave up updating request status")
		return
	}
	if !written {
		b.metrics.recordDroppedCompletion()
		log.Warn().Stringer("status", status.Status).Msg("Request is no longer in progress, dropping result")
		return
	}
	b.metrics.recordTransition(string(key.Kind()), string(status.Kind()))
}

func (b *backend) release(key reqpool.RequestKey) {
	ctx := context.WithoutCancel(b.taskCtx)
	if _, err := b.pool.UpdateStatusIf(ctx, key, reqpool.NewRegistered(), reqpool.StatusWorkInProgress); err != nil {
		b.log.Error().Err(err).Str("request_key", key.String()).Msg("Failed to release request")
	}
}

func (b *backend) dispatch(ctx context.Context, key reqpool.RequestKey, entity reqpool.RequestEntity) (engine.Proof, error) {
	switch e := entity.(type) {
	case reqpool.GuestInputRequestEntity:
		return b.generateGuestInput(ctx, key, e)
	case reqpool.SingleProofRequestEntity:
		return b.proveSingle(ctx, key, e)
	case reqpool.AggregationRequestEntity:
		return b.proveAggregation(ctx, key, e)
	case reqpool.BatchGuestInputRequestEntity:
		return b.generateBatchGuestInput(ctx, key, e)
	case reqpool.BatchProofRequestEntity:
		return b.proveBatch(ctx, key, e)
	default:
		return engine.Proof{}, fmt.Errorf("unsupported request entity %T", entity)
	}
}
