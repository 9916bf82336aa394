package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeProve, h.handleProve).Methods(http.MethodPost).Name(routeNameProve)
	r.HandleFunc(routeCancel, h.handleCancel).Methods(http.MethodPost).Name(routeNameCancel)
	r.HandleFunc(routeStatus, h.handleStatus).Methods(http.MethodPost).Name(routeNameStatus)
	r.HandleFunc(routeList, h.handleList).Methods(http.MethodGet).Name(routeNameList)
	r.HandleFunc(routePause, h.handlePause).Methods(http.MethodPost).Name(routeNamePause)
}
