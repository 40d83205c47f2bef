package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/manualforge/ragcore/internal/config"
	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.Store = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the underlying pool so the search index client can share it.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// marshalMeta maps a free-form metadata map onto a jsonb parameter.
func marshalMeta(md models.Metadata) (any, error) {
	if md == nil {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func unmarshalMeta(raw []byte) models.Metadata {
	if len(raw) == 0 {
		return nil
	}
	var md models.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil
	}
	return md
}

// Materials

func (c *DatabaseClient) CreateMaterial(ctx context.Context, m *models.Material) error {
	if m == nil {
		return errors.New("nil material")
	}
	md, err := marshalMeta(m.DocMetadata)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO materials
			(id, tenant_id, title, description, original_filename, stored_filename,
			 file_type, file_size, storage_key, processing_status, processing_progress,
			 doc_metadata, active, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, now(), now())
	`
	_, err = c.db.ExecContext(ctx, q,
		m.ID, m.TenantID, m.Title, m.Description, m.OriginalFilename, m.StoredFilename,
		m.FileType, m.FileSize, m.StorageKey, m.Status, m.Progress, md)
	return err
}

const materialColumns = `
	id, tenant_id, title, description, original_filename, stored_filename,
	file_type, file_size, storage_key, processing_status, processing_progress,
	error_message, doc_metadata, search_indexed, index_name, chunk_count,
	indexed_count, active, created_at, updated_at
`

func scanMaterial(row interface{ Scan(...any) error }) (*models.Material, error) {
	var m models.Material
	var md []byte
	err := row.Scan(
		&m.ID, &m.TenantID, &m.Title, &m.Description, &m.OriginalFilename, &m.StoredFilename,
		&m.FileType, &m.FileSize, &m.StorageKey, &m.Status, &m.Progress,
		&m.ErrorMessage, &md, &m.SearchIndexed, &m.IndexName, &m.ChunkCount,
		&m.IndexedCount, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.DocMetadata = unmarshalMeta(md)
	return &m, nil
}

func (c *DatabaseClient) GetMaterialByID(ctx context.Context, id string) (*models.Material, error) {
	q := `SELECT ` + materialColumns + ` FROM materials WHERE id = $1`
	return scanMaterial(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) GetMaterialForTenant(ctx context.Context, id string, tenantID int64) (*models.Material, error) {
	q := `SELECT ` + materialColumns + ` FROM materials WHERE id = $1 AND tenant_id = $2 AND active`
	return scanMaterial(c.db.QueryRowContext(ctx, q, id, tenantID))
}

func (c *DatabaseClient) ListMaterialsByTenant(ctx context.Context, tenantID int64) ([]models.Material, error) {
	q := `SELECT ` + materialColumns + ` FROM materials WHERE tenant_id = $1 AND active ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateMaterialProgress(ctx context.Context, id, status string, progress int) error {
	// GREATEST keeps progress monotonic even under a misbehaving caller.
	const q = `
		UPDATE materials
		SET processing_status = $2,
		    processing_progress = GREATEST(processing_progress, $3),
		    updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, progress)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("material not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) SetMaterialMetadata(ctx context.Context, id string, md models.Metadata) error {
	b, err := marshalMeta(md)
	if err != nil {
		return err
	}
	const q = `UPDATE materials SET doc_metadata = $2, updated_at = now() WHERE id = $1`
	_, err = c.db.ExecContext(ctx, q, id, b)
	return err
}

// searchIndexed reports whether enough chunks landed in the index for the
// material to count as searchable: at least a majority of the chunk set.
// Partial results below that are visible through indexed_count instead.
func searchIndexed(chunkCount, indexedCount int) bool {
	return indexedCount > 0 && indexedCount*2 >= chunkCount
}

func (c *DatabaseClient) FinalizeMaterial(ctx context.Context, id string, chunkCount, indexedCount int, indexName string) error {
	const q = `
		UPDATE materials
		SET processing_status = $2,
		    processing_progress = 100,
		    search_indexed = $3,
		    index_name = $4,
		    chunk_count = $5,
		    indexed_count = $6,
		    error_message = '',
		    updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, models.StatusCompleted, searchIndexed(chunkCount, indexedCount), indexName, chunkCount, indexedCount)
	return err
}

func (c *DatabaseClient) FailMaterial(ctx context.Context, id, errMsg string) error {
	const q = `
		UPDATE materials
		SET processing_status = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, models.StatusFailed, errMsg)
	return err
}

func (c *DatabaseClient) SoftDeleteMaterial(ctx context.Context, id string, tenantID int64) error {
	const q = `
		UPDATE materials
		SET active = FALSE, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`
	res, err := c.db.ExecContext(ctx, q, id, tenantID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("material not found: %s", id)
	}
	return nil
}

// Chunks

// ReplaceMaterialChunks swaps the material's chunk set atomically: the old
// rows are deleted and the new ones inserted in the same transaction, so a
// reader never observes the two sets coexisting.
func (c *DatabaseClient) ReplaceMaterialChunks(ctx context.Context, materialID string, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM material_chunks WHERE material_id = $1`, materialID); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO material_chunks
			(id, material_id, chunk_index, chunk_text, token_count, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		md, err := marshalMeta(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, materialID, ch.ChunkIndex, ch.Text, ch.TokenCount, md,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByMaterial(ctx context.Context, materialID string) ([]models.Chunk, error) {
	const q = `
		SELECT id, material_id, chunk_index, chunk_text, token_count, metadata, index_doc_id, created_at
		FROM material_chunks
		WHERE material_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var ch models.Chunk
		var md []byte
		if err := rows.Scan(
			&ch.ID, &ch.MaterialID, &ch.ChunkIndex, &ch.Text, &ch.TokenCount, &md, &ch.IndexDocID, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		ch.Metadata = unmarshalMeta(md)
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) MarkChunkIndexed(ctx context.Context, chunkID, indexDocID string) error {
	const q = `UPDATE material_chunks SET index_doc_id = $2 WHERE id = $1`
	_, err := c.db.ExecContext(ctx, q, chunkID, indexDocID)
	return err
}

// Jobs

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO jobs
			(id, job_type, status, tenant_id, user_id, resource_type, resource_id,
			 progress, current_step, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`
	_, err := c.db.ExecContext(ctx, q,
		job.ID, job.JobType, job.Status, job.TenantID, job.UserID,
		job.ResourceType, job.ResourceID, job.Progress, job.CurrentStep)
	return err
}

func (c *DatabaseClient) GetJobByID(ctx context.Context, id string) (*models.Job, error) {
	const q = `
		SELECT id, job_type, status, tenant_id, user_id, resource_type, resource_id,
		       progress, current_step, result, error_message, created_at, started_at, completed_at
		FROM jobs WHERE id = $1
	`
	var j models.Job
	var result []byte
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&j.ID, &j.JobType, &j.Status, &j.TenantID, &j.UserID, &j.ResourceType, &j.ResourceID,
		&j.Progress, &j.CurrentStep, &result, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.Result = unmarshalMeta(result)
	return &j, nil
}

func (c *DatabaseClient) StartJob(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE jobs
		SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusProcessing, models.StatusPending)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *DatabaseClient) UpdateJobProgress(ctx context.Context, id string, progress int, step string) error {
	const q = `
		UPDATE jobs
		SET progress = GREATEST(progress, $2), current_step = $3
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, progress, step)
	return err
}

func (c *DatabaseClient) CompleteJob(ctx context.Context, id string, result models.Metadata) error {
	b, err := marshalMeta(result)
	if err != nil {
		return err
	}
	const q = `
		UPDATE jobs
		SET status = $2, progress = 100, result = $3, completed_at = now()
		WHERE id = $1
	`
	_, err = c.db.ExecContext(ctx, q, id, models.StatusCompleted, b)
	return err
}

func (c *DatabaseClient) FailJob(ctx context.Context, id, errMsg string) error {
	const q = `
		UPDATE jobs
		SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, models.StatusFailed, errMsg)
	return err
}
