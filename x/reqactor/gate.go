package reqactor

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// GateStats is a snapshot of the admission gate.
type GateStats struct {
	Max     int64 `json:"max"`
	InUse   int64 `json:"in_use"`
	Waiting int64 `json:"waiting"`
}

// admissionGate bounds concurrent engine invocations.
type admissionGate struct {
	sem     *semaphore.Weighted
	max     int64
	inUse   atomic.Int64
	waiting atomic.Int64
}

func newAdmissionGate(max int64) *admissionGate {
	return &admissionGate{sem: semaphore.NewWeighted(max), max: max}
}

// Acquire blocks until a permit is held or ctx is done.
func (g *admissionGate) Acquire(ctx context.Context) error {
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return err
	}
	g.inUse.Add(1)
	return nil
}

func (g *admissionGate) Release() {
	g.inUse.Add(-1)
	g.sem.Release(1)
}

func (g *admissionGate) Stats() GateStats {
	return GateStats{Max: g.max, InUse: g.inUse.Load(), Waiting: g.waiting.Load()}
}
