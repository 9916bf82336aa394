package reqactor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-actor/x/engine"
	"github.com/compose-network/proof-actor/x/reqpool"
)

// ErrActorClosed is returned by commands sent after Close or after the loop exited.
var ErrActorClosed = errors.New("request actor is closed")

// Actor is the handle callers use to drive the request actor.
type Actor struct {
	commands chan command
	pause    chan struct{}
	done     chan struct{}

	mu     sync.RWMutex
	closed bool

	backend *backend
	log     zerolog.Logger
}

// Start validates cfg and runs the actor loop in the background until ctx is done or
// Close is called.
func Start(ctx context.Context, cfg Config) (*Actor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid actor config: %w", err)
	}

	signalCtx, stop := context.WithCancel(ctx)
	b := newBackend(ctx, signalCtx, cfg)

	a := &Actor{
		commands: make(chan command),
		pause:    make(chan struct{}),
		done:     make(chan struct{}),
		backend:  b,
		log:      cfg.Logger,
	}

	go func() {
		defer close(a.done)
		defer stop()
		b.serve(ctx, a.commands, a.pause)
	}()

	a.log.Info().
		Int64("max_proving_concurrency", cfg.MaxProvingConcurrency).
		Int("internal_channel_size", cfg.InternalChannelSize).
		Dur("recheck_interval", cfg.RecheckInterval).
		Msg("Request actor started")
	return a, nil
}

// Act submits action and waits for the loop's reply.
func (a *Actor) Act(ctx context.Context, action Action) (reqpool.StatusWithContext, error) {
	if action == nil || action.RequestKey() == nil {
		return reqpool.StatusWithContext{}, errors.New("action has no request key")
	}

	reply := make(chan response, 1)
	if err := a.send(ctx, command{action: action, reply: reply}); err != nil {
		return reqpool.StatusWithContext{}, err
	}

	select {
	case res := <-reply:
		return res.status, res.err
	case <-ctx.Done():
		return reqpool.StatusWithContext{}, ctx.Err()
	}
}

// Prove is shorthand for Act with a ProveAction.
func (a *Actor) Prove(ctx context.Context, key reqpool.RequestKey, entity reqpool.RequestEntity) (reqpool.StatusWithContext, error) {
	return a.Act(ctx, ProveAction{Key: key, Entity: entity})
}

// Cancel is shorthand for Act with a CancelAction.
func (a *Actor) Cancel(ctx context.Context, key reqpool.RequestKey) (reqpool.StatusWithContext, error) {
	return a.Act(ctx, CancelAction{Key: key})
}

// Pause asks the loop to halt: no new work is admitted, in-flight work drains.
func (a *Actor) Pause(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrActorClosed
	}
	select {
	case a.pause <- struct{}{}:
		return nil
	case <-a.done:
		return ErrActorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) send(ctx context.Context, cmd command) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrActorClosed
	}
	select {
	case a.commands <- cmd:
		return nil
	case <-a.done:
		return ErrActorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recover resumes requests left by a previous process: work-in-progress entries go back to
// registered and every registered entry is rechecked. It returns the number rechecked.
func (a *Actor) Recover(ctx context.Context) (int, error) {
	entries, err := a.backend.pool.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list request pool: %w", err)
	}

	n := 0
	for _, e := range entries {
		switch e.Status.Kind() {
		case reqpool.StatusWorkInProgress:
			ok, err := a.backend.pool.UpdateStatusIf(ctx, e.Key, reqpool.NewRegistered(), reqpool.StatusWorkInProgress)
			if err != nil {
				return n, fmt.Errorf("reset %s: %w", e.Key, err)
			}
			if !ok {
				continue
			}
			a.log.Warn().Str("request_key", e.Key.String()).Msg("Reset interrupted request to registered")
		case reqpool.StatusRegistered:
		default:
			continue
		}
		a.backend.ensureSignal(e.Key)
		n++
	}

	a.log.Info().Int("requests", n).Int("pool_size", len(entries)).Msg("Request pool recovered")
	return n, nil
}

// Close stops accepting commands and waits for the loop to exit. In-flight proving tasks
// keep running; Wait blocks on them.
func (a *Actor) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.commands)
		close(a.pause)
	}
	a.mu.Unlock()
	<-a.done
}

// Wait blocks until every spawned proving task has returned.
func (a *Actor) Wait() {
	a.backend.tasks.Wait()
}

// Done is closed once the loop has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

func (a *Actor) Pool() reqpool.Pool {
	return a.backend.pool
}

func (a *Actor) ChainSpecs() engine.SupportedChainSpecs {
	return a.backend.chainSpecs
}

// GateStats reports the admission gate occupancy.
func (a *Actor) GateStats() GateStats {
	return a.backend.gate.Stats()
}

// Halted reports whether Pause took effect.
func (a *Actor) Halted() bool {
	return a.backend.halted.Load()
}
