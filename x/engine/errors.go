package engine

import (
	"errors"
	"strings"
)

var (
	// ErrNoDataForQuery is returned when no proof id is recorded for a ProofKey.
	ErrNoDataForQuery = errors.New("no data for query")

	// ErrUnsupportedNetwork is returned when a network is missing from the chain spec table.
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// IsNoDataForQuery reports whether err means "nothing to cancel". Remote engines only hand back
// the message, so the text is matched too.
func IsNoDataForQuery(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoDataForQuery) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), ErrNoDataForQuery.Error())
}
