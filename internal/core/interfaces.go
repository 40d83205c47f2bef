package core

import (
	"context"
	"io"

	"github.com/manualforge/ragcore/internal/models"
)

// Store defines all relational persistence the ingestion core needs.
// It abstracts Postgres so higher layers never depend on a specific DB.
type Store interface {
	CreateMaterial(ctx context.Context, m *models.Material) error
	GetMaterialByID(ctx context.Context, id string) (*models.Material, error)
	GetMaterialForTenant(ctx context.Context, id string, tenantID int64) (*models.Material, error)
	ListMaterialsByTenant(ctx context.Context, tenantID int64) ([]models.Material, error)
	UpdateMaterialProgress(ctx context.Context, id, status string, progress int) error
	SetMaterialMetadata(ctx context.Context, id string, md models.Metadata) error
	FinalizeMaterial(ctx context.Context, id string, chunkCount, indexedCount int, indexName string) error
	FailMaterial(ctx context.Context, id, errMsg string) error
	SoftDeleteMaterial(ctx context.Context, id string, tenantID int64) error

	// ReplaceMaterialChunks deletes all existing chunks for the material and
	// inserts the new set in one transaction.
	ReplaceMaterialChunks(ctx context.Context, materialID string, chunks []models.Chunk) error
	GetChunksByMaterial(ctx context.Context, materialID string) ([]models.Chunk, error)
	MarkChunkIndexed(ctx context.Context, chunkID, indexDocID string) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, id string) (*models.Job, error)
	// StartJob moves a pending job to processing. Returns false when the job
	// was not pending, which makes submission idempotent per job id.
	StartJob(ctx context.Context, id string) (bool, error)
	UpdateJobProgress(ctx context.Context, id string, progress int, step string) error
	CompleteJob(ctx context.Context, id string, result models.Metadata) error
	FailJob(ctx context.Context, id, errMsg string) error

	Ping(ctx context.Context) error
	Close() error
}

// ObjectStore defines interactions with S3 or any object storage.
// Keys are always tenant-prefixed; implementations must refuse keys that do
// not match the expected tenant prefix.
type ObjectStore interface {
	Upload(ctx context.Context, tenantID int64, key string, data io.Reader, contentType string) (uri string, err error)
	Download(ctx context.Context, tenantID int64, key string) ([]byte, error)
	DownloadToFile(ctx context.Context, tenantID int64, key, localPath string) error
	Delete(ctx context.Context, tenantID int64, key string) error
}

// EmbeddingProvider turns texts into fixed-dimension vectors, order preserved.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider is a plain text-completion call used by metadata enrichment.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// MetadataEnricher classifies a document and summarizes it. Enrichment is
// best-effort by contract: implementations degrade instead of erroring.
type MetadataEnricher interface {
	Enrich(ctx context.Context, title, text string) models.Metadata
}

// Extractor turns a local file of a declared type into plain text plus
// format-specific extraction metadata (page/sheet/paragraph counts).
type Extractor interface {
	Extract(path string, fileType models.FileType) (text string, meta models.Metadata, err error)
}

// IndexDoc is the externally held counterpart of a chunk. ChunkID is the
// deterministic upsert key: re-indexing overwrites, never duplicates.
type IndexDoc struct {
	ChunkID    string
	MaterialID string
	TenantID   int64
	Text       string
	ChunkIndex int
	Embedding  []float32
	Metadata   models.Metadata
}

// SearchIndex owns the vector+keyword index lifecycle and query surface.
// Every method that reads or deletes takes tenantID; the filter is applied
// in the query itself, not by application-level trust.
type SearchIndex interface {
	EnsureIndex(ctx context.Context) error
	IndexChunk(ctx context.Context, doc IndexDoc) error
	VectorSearch(ctx context.Context, embedding []float32, tenantID int64, topK int, minScore float64) ([]models.SearchHit, error)
	HybridSearch(ctx context.Context, queryText string, embedding []float32, tenantID int64, topK int, vectorWeight float64) ([]models.SearchHit, error)
	DeleteMaterialChunks(ctx context.Context, materialID string, tenantID int64) (int64, error)
	CountMaterialChunks(ctx context.Context, materialID string, tenantID int64) (int64, error)
	HealthCheck(ctx context.Context) bool
	IndexName() string
}
