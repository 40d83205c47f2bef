package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	appMiddleware "github.com/manualforge/ragcore/internal/api/middlewares"
	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/models"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

type SearchHandler struct {
	embedder core.EmbeddingProvider
	index    core.SearchIndex
	log      *logger.Logger
}

func NewSearchHandler(embedder core.EmbeddingProvider, index core.SearchIndex, log *logger.Logger) *SearchHandler {
	return &SearchHandler{embedder: embedder, index: index, log: log}
}

type SearchRequest struct {
	Query        string   `json:"query"`
	TopK         int      `json:"top_k"`
	Mode         string   `json:"mode"`          // "vector" or "hybrid"
	VectorWeight *float64 `json:"vector_weight"` // hybrid only, default 0.7
	MinScore     float64  `json:"min_score"`     // vector only
}

type SearchResponse struct {
	Hits []models.SearchHit `json:"hits"`
	Mode string             `json:"mode"`
}

// Query returns ranked chunk hits for the tenant, for downstream manual
// generation or RAG-assisted prompting.
func (h *SearchHandler) Query(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := appMiddleware.TenantID(r.Context())
	if !ok {
		http.Error(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	if req.Mode == "" {
		req.Mode = "hybrid"
	}

	vecs, err := h.embedder.EmbedTexts(r.Context(), []string{req.Query})
	if err != nil || len(vecs) != 1 {
		http.Error(w, fmt.Sprintf("query embedding failed: %v", err), http.StatusInternalServerError)
		return
	}

	var hits []models.SearchHit
	switch req.Mode {
	case "vector":
		hits, err = h.index.VectorSearch(r.Context(), vecs[0], tenantID, req.TopK, req.MinScore)
	case "hybrid":
		weight := 0.7
		if req.VectorWeight != nil {
			weight = *req.VectorWeight
		}
		hits, err = h.index.HybridSearch(r.Context(), req.Query, vecs[0], tenantID, req.TopK, weight)
	default:
		http.Error(w, fmt.Sprintf("unknown search mode: %q", req.Mode), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("search failed", "tenant_id", tenantID, "mode", req.Mode, "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}

	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits, Mode: req.Mode})
}
