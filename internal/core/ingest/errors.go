package ingest

import "errors"

// Fatal pipeline errors. Any of these aborts the material's ingestion and
// lands verbatim in material.error_message and job.error_message.
// Extraction-stage errors (unsupported format, failed parse) come from the
// extract package; tenant-scoping violations from the core package.
var (
	ErrDownload            = errors.New("material download failed")
	ErrInsufficientContent = errors.New("extracted text below minimum length")
	ErrNoChunks            = errors.New("chunking produced no chunks")
	ErrEmbedding           = errors.New("embedding service failed")
	ErrPersistence         = errors.New("chunk persistence failed")
)
