package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/proof-actor/server/api"
	"github.com/compose-network/proof-actor/x/reqactor"
	"github.com/compose-network/proof-actor/x/reqpool"
)

// maxBodyBytes caps request bodies; cached guest inputs can be large.
const maxBodyBytes = 64 << 20

// Actor is the part of reqactor.Actor the handlers use.
type Actor interface {
	Act(ctx context.Context, action reqactor.Action) (reqpool.StatusWithContext, error)
	Pause(ctx context.Context) error
	Pool() reqpool.Pool
}

type Handler struct {
	actor Actor
	log   zerolog.Logger
}

func NewHandler(actor Actor, log zerolog.Logger) *Handler {
	return &Handler{
		actor: actor,
		log:   log.With().Str("component", "requests-http").Logger(),
	}
}

func (h *Handler) handleProve(w http.ResponseWriter, r *http.Request) {
	var env reqpool.EntityEnvelope
	if !decodeBody(w, r, &env) {
		return
	}
	key, entity, err := env.Decode()
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	status, err := h.actor.Act(r.Context(), reqactor.ProveAction{Key: key, Entity: entity})
	if err != nil {
		h.writeActionError(w, r, key, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, statusView{Kind: key.Kind(), Key: key.String(), Status: status})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}

	status, err := h.actor.Act(r.Context(), reqactor.CancelAction{Key: key})
	if err != nil {
		h.writeActionError(w, r, key, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, statusView{Kind: key.Kind(), Key: key.String(), Status: status})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := decodeKey(w, r)
	if !ok {
		return
	}

	entity, status, found, err := h.actor.Pool().Get(r.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("request_key", key.String()).Msg("Failed to read request")
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error(), nil)
		return
	}
	if !found {
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found", reqactor.ErrNotInPool.Error(), nil)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, requestView{Kind: key.Kind(), Key: key, Entity: entity, Status: status})
}

// handleList returns every request, optionally filtered with ?status= and ?kind=.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	statusFilter := reqpool.StatusKind(strings.TrimSpace(r.URL.Query().Get("status")))
	kindFilter := reqpool.RequestKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kindFilter != "" && !kindFilter.Valid() {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_kind", "unknown request kind", nil)
		return
	}

	entries, err := h.actor.Pool().List(r.Context())
	if err != nil {
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error(), nil)
		return
	}

	out := listView{Requests: make([]requestView, 0, len(entries))}
	for _, e := range entries {
		if statusFilter != "" && e.Status.Kind() != statusFilter {
			continue
		}
		if kindFilter != "" && e.Key.Kind() != kindFilter {
			continue
		}
		out.Requests = append(out.Requests, requestView{Kind: e.Key.Kind(), Key: e.Key, Status: e.Status})
	}
	out.Total = len(out.Requests)
	apicommon.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.actor.Pause(r.Context()); err != nil {
		h.writeActionError(w, r, nil, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusAccepted, map[string]any{"status": "halted"})
}

func (h *Handler) writeActionError(w http.ResponseWriter, r *http.Request, key reqpool.RequestKey, err error) {
	evt := h.log.Warn().Err(err)
	if key != nil {
		evt = evt.Str("request_key", key.String())
	}
	evt.Msg("Request action failed")

	switch {
	case errors.Is(err, reqactor.ErrNotInPool):
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, reqactor.ErrActorClosed):
		apicommon.WriteError(w, r, http.StatusServiceUnavailable, "actor_closed", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		apicommon.WriteError(w, r, http.StatusGatewayTimeout, "timeout", err.Error(), nil)
	default:
		apicommon.WriteError(w, r, http.StatusInternalServerError, "action_failed", err.Error(), nil)
	}
}

func decodeKey(w http.ResponseWriter, r *http.Request) (reqpool.RequestKey, bool) {
	var env reqpool.KeyEnvelope
	if !decodeBody(w, r, &env) {
		return nil, false
	}
	key, err := env.DecodeKey()
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return nil, false
	}
	return key, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return false
	}
	return true
}
