package reqactor

import "github.com/compose-network/proof-actor/x/reqpool"

// Action is an external command.
type Action interface {
	RequestKey() reqpool.RequestKey
	isAction()
}

// ProveAction registers a request, or returns its status when already known.
type ProveAction struct {
	Key    reqpool.RequestKey
	Entity reqpool.RequestEntity
}

func (a ProveAction) RequestKey() reqpool.RequestKey { return a.Key }
func (ProveAction) isAction()                        {}

// CancelAction cancels a registered or in-progress request.
type CancelAction struct {
	Key reqpool.RequestKey
}

func (a CancelAction) RequestKey() reqpool.RequestKey { return a.Key }
func (CancelAction) isAction()                        {}

func actionName(a Action) string {
	switch a.(type) {
	case ProveAction:
		return "prove"
	case CancelAction:
		return "cancel"
	default:
		return "unknown"
	}
}

type response struct {
	status reqpool.StatusWithContext
	err    error
}

type command struct {
	action Action
	reply  chan<- response
}
