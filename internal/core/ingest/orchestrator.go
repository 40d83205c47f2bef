package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/core/extract"
	"github.com/manualforge/ragcore/internal/core/objectstore"
	"github.com/manualforge/ragcore/internal/models"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

// Progress checkpoints per pipeline stage. Monotonic by construction.
const (
	progressStart   = 0
	progressExtract = 10
	progressEnrich  = 30
	progressChunk   = 50
	progressEmbed   = 70
	progressIndex   = 95
)

// Config tunes the ingestion pipeline.
type Config struct {
	TargetTokens  int
	OverlapTokens int
	ScratchDir    string // empty means os.TempDir
	QueueSize     int
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.TargetTokens <= 0 {
		out.TargetTokens = DefaultChunkTokens
	}
	if out.OverlapTokens < 0 {
		out.OverlapTokens = DefaultOverlapTokens
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	return &out
}

// Orchestrator drives the end-to-end pipeline for one material per job:
// download, extract, enrich, chunk, embed, persist, index, finalize. One
// worker processes one material at a time; materials are independent, so
// workers never share mutable state beyond the store and the index.
type Orchestrator struct {
	store     core.Store
	obj       core.ObjectStore
	embedder  core.EmbeddingProvider
	extractor core.Extractor
	enricher  core.MetadataEnricher
	index     core.SearchIndex
	cfg       *Config
	log       *logger.Logger
	jobs      chan string
}

func NewOrchestrator(
	store core.Store,
	obj core.ObjectStore,
	embedder core.EmbeddingProvider,
	extractor core.Extractor,
	enricher core.MetadataEnricher,
	index core.SearchIndex,
	cfg *Config,
	log *logger.Logger,
) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:     store,
		obj:       obj,
		embedder:  embedder,
		extractor: extractor,
		enricher:  enricher,
		index:     index,
		cfg:       cfg,
		log:       log,
		jobs:      make(chan string, cfg.QueueSize),
	}
}

// Start launches numWorkers goroutines reading job ids from the queue.
func (o *Orchestrator) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					o.log.Info("ingest worker shutting down", "worker", w)
					return
				case jobID := <-o.jobs:
					if err := o.ProcessOne(ctx, jobID); err != nil {
						o.log.Error("ingestion failed", "worker", w, "job_id", jobID, "error", err)
					}
				}
			}
		}(w)
	}
}

// SubmitMaterial enqueues one ingestion attempt. Idempotent per job id:
// a job that already started or finished is not enqueued again.
func (o *Orchestrator) SubmitMaterial(ctx context.Context, materialID, jobID string) error {
	job, err := o.store.GetJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.ResourceID != materialID {
		return fmt.Errorf("job %s belongs to material %s, not %s", jobID, job.ResourceID, materialID)
	}
	if job.Status != models.StatusPending {
		o.log.Info("skipping submit for non-pending job", "job_id", jobID, "status", job.Status)
		return nil
	}

	select {
	case o.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessOne executes the full pipeline for the job's material. Fatal stage
// errors mark both the material and the job failed with the error text;
// enrichment and per-chunk indexing failures degrade instead of aborting.
func (o *Orchestrator) ProcessOne(ctx context.Context, jobID string) error {
	job, err := o.store.GetJobByID(ctx, jobID)
	if err != nil || job == nil {
		return fmt.Errorf("job not found %s: %w", jobID, err)
	}

	started, err := o.store.StartJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	if !started {
		o.log.Info("job already taken or finished, skipping", "job_id", jobID)
		return nil
	}

	material, err := o.store.GetMaterialByID(ctx, job.ResourceID)
	if err != nil || material == nil {
		msg := fmt.Sprintf("material not found: %s", job.ResourceID)
		_ = o.store.FailJob(ctx, jobID, msg)
		return fmt.Errorf("%s: %w", msg, err)
	}

	log := o.log.With("material_id", material.ID, "job_id", jobID, "tenant_id", material.TenantID)
	startedAt := time.Now()

	result, perr := o.runPipeline(ctx, material, job, log)
	if perr != nil {
		log.Error("pipeline failed", "error", perr)
		_ = o.store.FailMaterial(ctx, material.ID, perr.Error())
		_ = o.store.FailJob(ctx, jobID, perr.Error())
		return perr
	}

	if err := o.store.FinalizeMaterial(ctx, material.ID, result.chunkCount, result.indexedCount, o.index.IndexName()); err != nil {
		// the material must not sit in "processing" forever when the final
		// write fails; a poller needs a terminal state either way
		msg := fmt.Sprintf("finalize material: %v", err)
		_ = o.store.FailMaterial(ctx, material.ID, msg)
		_ = o.store.FailJob(ctx, jobID, msg)
		return fmt.Errorf("%w: %s", ErrPersistence, msg)
	}
	if err := o.store.CompleteJob(ctx, jobID, models.Metadata{
		"chunk_count":   result.chunkCount,
		"indexed_count": result.indexedCount,
	}); err != nil {
		return fmt.Errorf("%w: complete job: %v", ErrPersistence, err)
	}

	log.Info("material ingested",
		"chunks", result.chunkCount,
		"indexed", result.indexedCount,
		"elapsed", time.Since(startedAt))
	return nil
}

type pipelineResult struct {
	chunkCount   int
	indexedCount int
}

func (o *Orchestrator) runPipeline(ctx context.Context, material *models.Material, job *models.Job, log *logger.Logger) (*pipelineResult, error) {
	o.progress(ctx, material.ID, job.ID, progressStart, "starting")

	// Download to a scratch file. The defer guarantees removal on every
	// exit path, success or failure.
	scratch, err := o.scratchFile(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer os.Remove(scratch)

	if err := o.obj.DownloadToFile(ctx, material.TenantID, material.StorageKey, scratch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}

	// Extract.
	text, extractMeta, err := o.extractor.Extract(scratch, material.FileType)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(text)) < extract.MinTextLength {
		return nil, fmt.Errorf("%w: got %d characters", ErrInsufficientContent, len(strings.TrimSpace(text)))
	}
	o.progress(ctx, material.ID, job.ID, progressExtract, "text extracted")

	// Enrich. Degrades to a placeholder on failure; the metadata is
	// persisted either way.
	docMeta := o.enricher.Enrich(ctx, material.Title, text)
	if docMeta == nil {
		docMeta = models.Metadata{}
	}
	docMeta["extraction"] = extractMeta
	if err := o.store.SetMaterialMetadata(ctx, material.ID, docMeta); err != nil {
		log.Warn("persisting document metadata failed", "error", err)
	}
	o.progress(ctx, material.ID, job.ID, progressEnrich, "metadata enriched")

	// Chunk.
	textChunks := SplitText(text, o.cfg.TargetTokens, o.cfg.OverlapTokens)
	if len(textChunks) == 0 {
		return nil, ErrNoChunks
	}
	o.progress(ctx, material.ID, job.ID, progressChunk, fmt.Sprintf("split into %d chunks", len(textChunks)))

	// Embed every chunk text in one logical step. Partial results are
	// never persisted: any failure here fails the material.
	texts := make([]string, len(textChunks))
	for i, c := range textChunks {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(textChunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbedding, len(vectors), len(textChunks))
	}
	o.progress(ctx, material.ID, job.ID, progressEmbed, "embeddings generated")

	// Persist: old chunks deleted and the new set inserted in one
	// transaction, chunk_index dense 0..N-1 in source order.
	rows := make([]models.Chunk, len(textChunks))
	for i, c := range textChunks {
		rows[i] = models.Chunk{
			ID:         uuid.NewString(),
			MaterialID: material.ID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			TokenCount: c.TokenCount,
			Metadata: models.Metadata{
				"source_file": material.OriginalFilename,
				"file_type":   string(material.FileType),
			},
		}
	}
	if err := o.store.ReplaceMaterialChunks(ctx, material.ID, rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Index. Per-chunk failures are counted, not fatal: the result payload
	// reports indexed vs attempted so callers can detect partial indexing.
	indexed := 0
	if err := o.index.EnsureIndex(ctx); err != nil {
		log.Error("ensure index failed, material will not be searchable", "error", err)
	} else {
		for i, row := range rows {
			doc := core.IndexDoc{
				ChunkID:    row.ID,
				MaterialID: material.ID,
				TenantID:   material.TenantID,
				Text:       row.Text,
				ChunkIndex: row.ChunkIndex,
				Embedding:  vectors[i],
				Metadata:   row.Metadata,
			}
			if err := o.index.IndexChunk(ctx, doc); err != nil {
				log.Warn("indexing chunk failed", "chunk_id", row.ID, "chunk_index", row.ChunkIndex, "error", err)
				continue
			}
			if err := o.store.MarkChunkIndexed(ctx, row.ID, row.ID); err != nil {
				log.Warn("marking chunk indexed failed", "chunk_id", row.ID, "error", err)
			}
			indexed++

			pct := progressEmbed + (progressIndex-progressEmbed)*(i+1)/len(rows)
			o.progress(ctx, material.ID, job.ID, pct, fmt.Sprintf("indexed %d/%d chunks", i+1, len(rows)))
		}
	}
	o.progress(ctx, material.ID, job.ID, progressIndex, "indexing finished")

	return &pipelineResult{chunkCount: len(rows), indexedCount: indexed}, nil
}

// scratchFile allocates a temp file carrying the material's extension so
// format-sniffing extractors behave.
func (o *Orchestrator) scratchFile(material *models.Material) (string, error) {
	dir := o.cfg.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "material-*."+string(material.FileType))
	if err != nil {
		return "", err
	}
	path := f.Name()
	_ = f.Close()
	return path, nil
}

// progress records a checkpoint on both the material and the job. Best
// effort: a failed progress write never aborts the pipeline.
func (o *Orchestrator) progress(ctx context.Context, materialID, jobID string, pct int, step string) {
	if err := o.store.UpdateMaterialProgress(ctx, materialID, models.StatusProcessing, pct); err != nil {
		o.log.Warn("material progress update failed", "material_id", materialID, "error", err)
	}
	if err := o.store.UpdateJobProgress(ctx, jobID, pct, step); err != nil {
		o.log.Warn("job progress update failed", "job_id", jobID, "error", err)
	}
}

// DeleteMaterial soft-deletes a material and removes its documents from the
// search index. Object-store deletion is deferred to a cleanup task.
func (o *Orchestrator) DeleteMaterial(ctx context.Context, materialID string, tenantID int64) (int64, error) {
	material, err := o.store.GetMaterialForTenant(ctx, materialID, tenantID)
	if err != nil {
		return 0, err
	}
	if material == nil {
		return 0, fmt.Errorf("material not found: %s", materialID)
	}
	if err := objectstore.ValidateTenantKey(material.StorageKey, tenantID); err != nil {
		return 0, err
	}
	if err := o.store.SoftDeleteMaterial(ctx, materialID, tenantID); err != nil {
		return 0, err
	}
	deleted, err := o.index.DeleteMaterialChunks(ctx, materialID, tenantID)
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
