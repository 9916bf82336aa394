package reqpool

import (
	"fmt"
	"time"

	"github.com/compose-network/proof-actor/x/engine"
)

// StatusKind is the lifecycle state of a request.
type StatusKind string

const (
	StatusRegistered     StatusKind = "registered"
	StatusWorkInProgress StatusKind = "work_in_progress"
	StatusSuccess        StatusKind = "success"
	StatusCancelled      StatusKind = "cancelled"
	StatusFailed         StatusKind = "failed"
)

// Terminal reports whether no further transition happens without a resubmission.
func (k StatusKind) Terminal() bool {
	switch k {
	case StatusSuccess, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Status is one lifecycle state; Proof is set for success, Error for failure.
type Status struct {
	Kind  StatusKind    `json:"kind"`
	Proof *engine.Proof `json:"proof,omitempty"`
	Error string        `json:"error,omitempty"`
}

func (s Status) String() string {
	switch s.Kind {
	case StatusFailed:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Error)
	default:
		return string(s.Kind)
	}
}

// StatusWithContext is a Status stamped with the time of the transition.
type StatusWithContext struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s StatusWithContext) Kind() StatusKind { return s.Status.Kind }

func NewRegistered() StatusWithContext {
	return stamp(Status{Kind: StatusRegistered})
}

func NewWorkInProgress() StatusWithContext {
	return stamp(Status{Kind: StatusWorkInProgress})
}

func NewSuccess(proof engine.Proof) StatusWithContext {
	return stamp(Status{Kind: StatusSuccess, Proof: &proof})
}

func NewCancelled() StatusWithContext {
	return stamp(Status{Kind: StatusCancelled})
}

func NewFailed(msg string) StatusWithContext {
	return stamp(Status{Kind: StatusFailed, Error: msg})
}

func stamp(s Status) StatusWithContext {
	return StatusWithContext{Status: s, Timestamp: time.Now().UTC()}
}
