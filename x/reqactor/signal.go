package reqactor

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/compose-network/proof-actor/x/reqpool"
)

var errInternalQueueFull = errors.New("internal queue full")

// ensureSignal pushes key onto the internal queue from a background goroutine, retrying at
// a fixed interval until the queue accepts it or the actor stops.
func (b *backend) ensureSignal(key reqpool.RequestKey) {
	b.ensureSignalAfter(key, 0)
}

// ensureSignalAfter is ensureSignal with an initial delay.
func (b *backend) ensureSignalAfter(key reqpool.RequestKey, after time.Duration) {
	go func() {
		if after > 0 {
			timer := time.NewTimer(after)
			defer timer.Stop()
			select {
			case <-b.signalCtx.Done():
				return
			case <-timer.C:
			}
		}

		push := func() error {
			select {
			case b.internal <- key:
				return nil
			default:
				return errInternalQueueFull
			}
		}
		notify := func(err error, next time.Duration) {
			b.metrics.recordSignalRetry()
			b.log.Error().
				Err(err).
				Str("request_key", key.String()).
				Dur("retry_in", next).
				Msg("Failed to send internal signal, retrying")
		}

		policy := backoff.WithContext(backoff.NewConstantBackOff(b.signalRetryInterval), b.signalCtx)
		if err := backoff.RetryNotify(push, policy, notify); err != nil {
			b.log.Debug().Err(err).Str("request_key", key.String()).Msg("Internal signal dropped, actor stopped")
		}
	}()
}
