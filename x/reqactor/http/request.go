package http

import (
	"github.com/compose-network/proof-actor/x/reqpool"
)

// requestView is the JSON form of one pool entry.
type requestView struct {
	Kind   reqpool.RequestKind       `json:"kind"`
	Key    reqpool.RequestKey        `json:"key"`
	Entity reqpool.RequestEntity     `json:"entity,omitempty"`
	Status reqpool.StatusWithContext `json:"status"`
}

type statusView struct {
	Kind   reqpool.RequestKind       `json:"kind"`
	Key    string                    `json:"key"`
	Status reqpool.StatusWithContext `json:"status"`
}

type listView struct {
	Requests []requestView `json:"requests"`
	Total    int           `json:"total"`
}
