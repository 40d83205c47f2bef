package models

import (
	"time"
)

// FileType enumerates the document formats the extraction layer understands.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeXLSX FileType = "xlsx"
	FileTypeCSV  FileType = "csv"
)

// Valid reports whether ft is one of the supported formats.
func (ft FileType) Valid() bool {
	switch ft {
	case FileTypePDF, FileTypeDOCX, FileTypeXLSX, FileTypeCSV:
		return true
	}
	return false
}

// Processing status values shared by materials and jobs.
// Transitions only move forward: pending -> processing -> completed|failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Metadata is a free-form JSON document. Enrichment, extraction and the
// search index all attach differently shaped payloads, so this stays an
// open map rather than a fixed struct.
type Metadata map[string]any

// Material represents one reference document owned by exactly one tenant.
type Material struct {
	ID               string    `db:"id" json:"id"`
	TenantID         int64     `db:"tenant_id" json:"tenant_id"`
	Title            string    `db:"title" json:"title"`
	Description      string    `db:"description" json:"description"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	StoredFilename   string    `db:"stored_filename" json:"stored_filename"`
	FileType         FileType  `db:"file_type" json:"file_type"`
	FileSize         int64     `db:"file_size" json:"file_size"`
	StorageKey       string    `db:"storage_key" json:"storage_key"`
	Status           string    `db:"processing_status" json:"processing_status"`
	Progress         int       `db:"processing_progress" json:"processing_progress"`
	ErrorMessage     string    `db:"error_message" json:"error_message,omitempty"`
	DocMetadata      Metadata  `db:"doc_metadata" json:"doc_metadata,omitempty"`
	SearchIndexed    bool      `db:"search_indexed" json:"search_indexed"`
	IndexName        string    `db:"index_name" json:"index_name,omitempty"`
	ChunkCount       int       `db:"chunk_count" json:"chunk_count"`
	IndexedCount     int       `db:"indexed_count" json:"indexed_count"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Chunk is one retrievable unit of text derived from a material.
// ChunkIndex values for a material form a dense 0..N-1 sequence in the
// order the chunks were cut from the source text.
type Chunk struct {
	ID         string    `db:"id" json:"id"`
	MaterialID string    `db:"material_id" json:"material_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"chunk_text" json:"chunk_text"`
	TokenCount int       `db:"token_count" json:"token_count"`
	Metadata   Metadata  `db:"metadata" json:"metadata,omitempty"`
	IndexDocID string    `db:"index_doc_id" json:"index_doc_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Job tracks one asynchronous ingestion attempt for one material.
// Reprocessing a material creates a new job; jobs never move backward.
type Job struct {
	ID           string     `db:"id" json:"id"`
	JobType      string     `db:"job_type" json:"job_type"`
	Status       string     `db:"status" json:"status"`
	TenantID     int64      `db:"tenant_id" json:"tenant_id"`
	UserID       string     `db:"user_id" json:"user_id"`
	ResourceType string     `db:"resource_type" json:"resource_type"`
	ResourceID   string     `db:"resource_id" json:"resource_id"`
	Progress     int        `db:"progress" json:"progress"`
	CurrentStep  string     `db:"current_step" json:"current_step"`
	Result       Metadata   `db:"result" json:"result,omitempty"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// JobTypeRAGIndex is the only job type the ingestion core dispatches today.
const JobTypeRAGIndex = "rag_index"

// SearchHit is one ranked result returned by the search index.
type SearchHit struct {
	ChunkID    string   `json:"chunk_id"`
	MaterialID string   `json:"material_id"`
	Text       string   `json:"text"`
	ChunkIndex int      `json:"chunk_index"`
	Metadata   Metadata `json:"metadata,omitempty"`
	Score      float64  `json:"score"`
}
