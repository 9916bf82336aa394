package reqpool

import (
	"context"
	"errors"
	"slices"

	"github.com/compose-network/proof-actor/x/engine"
)

// ErrNotFound is returned by writes addressed to a key that is not in the pool.
var ErrNotFound = errors.New("request not found")

// Entry is one pool record.
type Entry struct {
	Key    RequestKey        `json:"key"`
	Entity RequestEntity     `json:"entity"`
	Status StatusWithContext `json:"status"`
}

// Pool is the persistent request status store. Lookups report absence with ok=false and a nil
// error; err is reserved for store failures. Implementations must give read-your-writes
// consistency per key.
type Pool interface {
	engine.IDStore

	// Add inserts or overwrites the entry under key.
	Add(ctx context.Context, key RequestKey, entity RequestEntity, status StatusWithContext) error
	Get(ctx context.Context, key RequestKey) (RequestEntity, StatusWithContext, bool, error)
	GetStatus(ctx context.Context, key RequestKey) (StatusWithContext, bool, error)
	// UpdateStatus replaces the status of an existing entry.
	UpdateStatus(ctx context.Context, key RequestKey, status StatusWithContext) error
	// UpdateStatusIf replaces the status only when the current status is one of from.
	// It reports whether the write happened; the check and the write are atomic.
	UpdateStatusIf(ctx context.Context, key RequestKey, status StatusWithContext, from ...StatusKind) (bool, error)
	// List returns every entry ordered by CompareKeys.
	List(ctx context.Context) ([]Entry, error)
}

func statusIn(kind StatusKind, from []StatusKind) bool {
	return slices.Contains(from, kind)
}
