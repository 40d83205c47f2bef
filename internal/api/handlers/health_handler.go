package handlers

import (
	"net/http"

	"github.com/manualforge/ragcore/internal/core"
)

type HealthHandler struct {
	store core.Store
	index core.SearchIndex
}

func NewHealthHandler(store core.Store, index core.SearchIndex) *HealthHandler {
	return &HealthHandler{store: store, index: index}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbOK := h.store.Ping(r.Context()) == nil
	indexOK := h.index.HealthCheck(r.Context())

	status := http.StatusOK
	if !dbOK || !indexOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{
		"database":     dbOK,
		"search_index": indexOK,
	})
}
