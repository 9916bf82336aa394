package reqpool

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-actor/x/engine"
)

var _ Pool = (*MemoryPool)(nil)

type memoryRecord struct {
	key    RequestKey
	entity RequestEntity
	status StatusWithContext
}

// MemoryPool implements an in-memory Pool; suitable for tests and single-instance deployments.
type MemoryPool struct {
	mu       sync.RWMutex
	requests map[string]memoryRecord
	proofIDs map[string]string
	log      zerolog.Logger
}

// NewMemoryPool returns an empty MemoryPool.
func NewMemoryPool(log zerolog.Logger) *MemoryPool {
	return &MemoryPool{
		requests: make(map[string]memoryRecord),
		proofIDs: make(map[string]string),
		log:      log.With().Str("component", "request-pool").Logger(),
	}
}

func (m *MemoryPool) Add(_ context.Context, key RequestKey, entity RequestEntity, status StatusWithContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[key.String()] = memoryRecord{key: key, entity: entity, status: status}
	m.log.Debug().Str("request_key", key.String()).Stringer("status", status.Status).Msg("Request added")
	return nil
}

func (m *MemoryPool) Get(_ context.Context, key RequestKey) (RequestEntity, StatusWithContext, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.requests[key.String()]
	if !ok {
		return nil, StatusWithContext{}, false, nil
	}
	return rec.entity, rec.status, true, nil
}

func (m *MemoryPool) GetStatus(_ context.Context, key RequestKey) (StatusWithContext, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.requests[key.String()]
	if !ok {
		return StatusWithContext{}, false, nil
	}
	return rec.status, true, nil
}

func (m *MemoryPool) UpdateStatus(_ context.Context, key RequestKey, status StatusWithContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.requests[key.String()]
	if !ok {
		return ErrNotFound
	}
	m.setStatus(rec, status)
	return nil
}

func (m *MemoryPool) UpdateStatusIf(
	_ context.Context,
	key RequestKey,
	status StatusWithContext,
	from ...StatusKind,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.requests[key.String()]
	if !ok {
		return false, ErrNotFound
	}
	if !statusIn(rec.status.Kind(), from) {
		return false, nil
	}
	m.setStatus(rec, status)
	return true, nil
}

func (m *MemoryPool) setStatus(rec memoryRecord, status StatusWithContext) {
	prev := rec.status.Kind()
	rec.status = status
	m.requests[rec.key.String()] = rec
	m.log.Debug().
		Str("request_key", rec.key.String()).
		Str("from", string(prev)).
		Str("to", string(status.Kind())).
		Msg("Request status updated")
}

func (m *MemoryPool) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.requests))
	for _, rec := range m.requests {
		out = append(out, Entry{Key: rec.key, Entity: rec.entity, Status: rec.status})
	}
	slices.SortFunc(out, func(a, b Entry) int { return CompareKeys(a.Key, b.Key) })
	return out, nil
}

func (m *MemoryPool) StoreID(_ context.Context, key engine.ProofKey, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.proofIDs[key.String()] = id
	return nil
}

func (m *MemoryPool) ReadID(_ context.Context, key engine.ProofKey) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.proofIDs[key.String()]
	if !ok {
		return "", engine.ErrNoDataForQuery
	}
	return id, nil
}

func (m *MemoryPool) RemoveID(_ context.Context, key engine.ProofKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.proofIDs[key.String()]; !ok {
		return engine.ErrNoDataForQuery
	}
	delete(m.proofIDs, key.String())
	return nil
}
