package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appMiddleware "github.com/manualforge/ragcore/internal/api/middlewares"
	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/core/ingest"
	"github.com/manualforge/ragcore/internal/core/objectstore"
	"github.com/manualforge/ragcore/internal/models"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

type MaterialHandler struct {
	store core.Store
	obj   core.ObjectStore
	orch  *ingest.Orchestrator
	log   *logger.Logger
}

func NewMaterialHandler(store core.Store, obj core.ObjectStore, orch *ingest.Orchestrator, log *logger.Logger) *MaterialHandler {
	return &MaterialHandler{store: store, obj: obj, orch: orch, log: log}
}

// Upload stores the file under a tenant-scoped key, creates the material
// and its first ingestion job, and enqueues processing.
func (h *MaterialHandler) Upload(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := appMiddleware.TenantID(r.Context())
	if !ok {
		http.Error(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	cleanFilename := filepath.Base(header.Filename)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(cleanFilename)), ".")
	fileType := models.FileType(ext)
	if !fileType.Valid() {
		http.Error(w, fmt.Sprintf("unsupported file type: %q", ext), http.StatusBadRequest)
		return
	}

	materialID := uuid.NewString()
	storedFilename := materialID + "." + ext
	key := objectstore.TenantKey(tenantID, materialID, storedFilename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if _, err := h.obj.Upload(uploadCtx, tenantID, key, file, contentType); err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	material := &models.Material{
		ID:               materialID,
		TenantID:         tenantID,
		Title:            valueOr(r.FormValue("title"), cleanFilename),
		Description:      r.FormValue("description"),
		OriginalFilename: cleanFilename,
		StoredFilename:   storedFilename,
		FileType:         fileType,
		FileSize:         header.Size,
		StorageKey:       key,
		Status:           models.StatusPending,
	}
	if err := h.store.CreateMaterial(r.Context(), material); err != nil {
		h.log.Error("material insert failed", "material_id", materialID, "error", err)
		http.Error(w, "failed to store material", http.StatusInternalServerError)
		return
	}

	job, err := h.createJob(r, material)
	if err != nil {
		http.Error(w, "failed to create job", http.StatusInternalServerError)
		return
	}

	if err := h.orch.SubmitMaterial(r.Context(), material.ID, job.ID); err != nil {
		h.log.Error("submit failed", "material_id", material.ID, "job_id", job.ID, "error", err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"material": material,
		"job_id":   job.ID,
	})
}

// Reprocess starts a fresh ingestion attempt for an existing material.
// The new run fully replaces the prior chunk set.
func (h *MaterialHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := appMiddleware.TenantID(r.Context())
	if !ok {
		http.Error(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	materialID := chi.URLParam(r, "id")
	material, err := h.store.GetMaterialForTenant(r.Context(), materialID, tenantID)
	if err != nil || material == nil {
		http.Error(w, "material not found", http.StatusNotFound)
		return
	}
	if material.Status == models.StatusProcessing {
		http.Error(w, "material is already processing", http.StatusConflict)
		return
	}

	job, err := h.createJob(r, material)
	if err != nil {
		http.Error(w, "failed to create job", http.StatusInternalServerError)
		return
	}
	if err := h.orch.SubmitMaterial(r.Context(), material.ID, job.ID); err != nil {
		h.log.Error("submit failed", "material_id", material.ID, "job_id", job.ID, "error", err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID})
}

func (h *MaterialHandler) createJob(r *http.Request, material *models.Material) (*models.Job, error) {
	job := &models.Job{
		ID:           uuid.NewString(),
		JobType:      models.JobTypeRAGIndex,
		Status:       models.StatusPending,
		TenantID:     material.TenantID,
		UserID:       appMiddleware.UserID(r.Context()),
		ResourceType: "material",
		ResourceID:   material.ID,
		CurrentStep:  "queued",
	}
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		h.log.Error("job insert failed", "material_id", material.ID, "error", err)
		return nil, err
	}
	return job, nil
}

// List returns the tenant's active materials, newest first.
func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := appMiddleware.TenantID(r.Context())
	if !ok {
		http.Error(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	materials, err := h.store.ListMaterialsByTenant(r.Context(), tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

// Get is the status polling endpoint: status, progress, error message and
// chunk/indexed counts all ride on the material row.
func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := appMiddleware.TenantID(r.Context())
	if !ok {
		http.Error(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	material, err := h.store.GetMaterialForTenant(r.Context(), chi.URLParam(r, "id"), tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if material == nil {
		http.Error(w, "material not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, material)
}

// Delete soft-deletes the material and removes its index documents.
func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := appMiddleware.TenantID(r.Context())
	if !ok {
		http.Error(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	deleted, err := h.orch.DeleteMaterial(r.Context(), chi.URLParam(r, "id"), tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_index_docs": deleted})
}

// GetJob is the job polling endpoint.
func (h *MaterialHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := appMiddleware.TenantID(r.Context())
	if !ok {
		http.Error(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	job, err := h.store.GetJobByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if job == nil || job.TenantID != tenantID {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
