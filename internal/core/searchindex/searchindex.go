package searchindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/models"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

const (
	// DefaultIndexName is the shared index table; isolation lives in the
	// tenant_id column, not in per-tenant tables.
	DefaultIndexName = "rag_chunk_index"

	// candidateMultiplier widens the inner ANN scan beyond top_k to offset
	// hnsw recall loss. The tenant filter is applied inside the query, so
	// this is a recall cushion, not a correctness requirement.
	candidateMultiplier = 10
)

// Client manages the vector+keyword index held in Postgres: a pgvector
// column for ANN search and a generated tsvector column for keyword search.
type Client struct {
	db        *sql.DB
	table     string
	vectorDim int
	log       *logger.Logger
}

var _ core.SearchIndex = (*Client)(nil)

func NewClient(db *sql.DB, vectorDim int, log *logger.Logger) (*Client, error) {
	if db == nil {
		return nil, fmt.Errorf("searchindex: nil db")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("searchindex: invalid vector dim %d", vectorDim)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{db: db, table: DefaultIndexName, vectorDim: vectorDim, log: log}, nil
}

func (c *Client) IndexName() string {
	return c.table
}

// checkTenant rejects unscoped queries before they reach the database.
func checkTenant(tenantID int64) error {
	if tenantID <= 0 {
		return fmt.Errorf("%w: tenant id %d", core.ErrTenantIsolation, tenantID)
	}
	return nil
}

// EnsureIndex creates the index table and its access paths if absent.
// Safe to call concurrently: everything is IF NOT EXISTS and duplicate
// creation races are swallowed.
func (c *Client) EnsureIndex(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				chunk_id    TEXT PRIMARY KEY,
				material_id TEXT NOT NULL,
				tenant_id   BIGINT NOT NULL,
				chunk_text  TEXT NOT NULL,
				chunk_index INTEGER NOT NULL,
				embedding   vector(%d) NOT NULL,
				metadata    JSONB,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
				text_search TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', chunk_text)) STORED
			)`, c.table, c.vectorDim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tenant_material_idx ON %s (tenant_id, material_id)`, c.table, c.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, c.table, c.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_text_idx ON %s USING gin (text_search)`, c.table, c.table),
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}

// isAlreadyExists matches the duplicate-object errors Postgres raises when
// two callers race the same IF NOT EXISTS statement.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "42P07") ||
		strings.Contains(msg, "23505")
}

// IndexChunk upserts one document keyed by chunk id. Re-indexing the same
// chunk id overwrites, never duplicates.
func (c *Client) IndexChunk(ctx context.Context, doc core.IndexDoc) error {
	if err := checkTenant(doc.TenantID); err != nil {
		return err
	}
	if doc.ChunkID == "" {
		return fmt.Errorf("index chunk: empty chunk id")
	}
	if len(doc.Embedding) != c.vectorDim {
		return fmt.Errorf("index chunk %s: vector dim %d, want %d", doc.ChunkID, len(doc.Embedding), c.vectorDim)
	}

	var md any
	if doc.Metadata != nil {
		b, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("index chunk %s: marshal metadata: %w", doc.ChunkID, err)
		}
		md = b
	}

	q := fmt.Sprintf(`
		INSERT INTO %s
			(chunk_id, material_id, tenant_id, chunk_text, chunk_index, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (chunk_id) DO UPDATE SET
			material_id = EXCLUDED.material_id,
			tenant_id   = EXCLUDED.tenant_id,
			chunk_text  = EXCLUDED.chunk_text,
			chunk_index = EXCLUDED.chunk_index,
			embedding   = EXCLUDED.embedding,
			metadata    = EXCLUDED.metadata
	`, c.table)

	_, err := c.db.ExecContext(ctx, q,
		doc.ChunkID, doc.MaterialID, doc.TenantID, doc.Text, doc.ChunkIndex,
		pgvector.NewVector(doc.Embedding), md)
	if err != nil {
		return fmt.Errorf("index chunk %s: %w", doc.ChunkID, err)
	}
	return nil
}

// VectorSearch runs ANN search restricted to the tenant, returning up to
// topK hits with cosine similarity >= minScore. The tenant filter sits in
// the WHERE clause, so it is applied before result ranking, not after.
func (c *Client) VectorSearch(ctx context.Context, embedding []float32, tenantID int64, topK int, minScore float64) ([]models.SearchHit, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	hits, err := c.vectorCandidates(ctx, embedding, tenantID, topK*candidateMultiplier)
	if err != nil {
		return nil, err
	}

	out := make([]models.SearchHit, 0, topK)
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		out = append(out, h)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// HybridSearch fuses keyword relevance and vector similarity into one
// ranked list: score = vectorWeight*cosine + (1-vectorWeight)*ts_rank,
// with the keyword signal normalized against the best keyword candidate.
// The signals add up, so a document matching both outranks single-signal
// matches.
func (c *Client) HybridSearch(ctx context.Context, queryText string, embedding []float32, tenantID int64, topK int, vectorWeight float64) ([]models.SearchHit, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	if vectorWeight < 0 {
		vectorWeight = 0
	}
	if vectorWeight > 1 {
		vectorWeight = 1
	}

	pool := topK * candidateMultiplier

	vhits, err := c.vectorCandidates(ctx, embedding, tenantID, pool)
	if err != nil {
		return nil, err
	}
	khits, err := c.keywordCandidates(ctx, queryText, tenantID, pool)
	if err != nil {
		return nil, err
	}

	return fuseHybrid(vhits, khits, vectorWeight, topK), nil
}

func (c *Client) vectorCandidates(ctx context.Context, embedding []float32, tenantID int64, limit int) ([]models.SearchHit, error) {
	if len(embedding) != c.vectorDim {
		return nil, fmt.Errorf("vector search: query dim %d, want %d", len(embedding), c.vectorDim)
	}
	q := fmt.Sprintf(`
		SELECT chunk_id, material_id, chunk_text, chunk_index, metadata,
		       1 - (embedding <=> $1) AS score
		FROM %s
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, c.table)

	return c.queryHits(ctx, q, pgvector.NewVector(embedding), tenantID, limit)
}

func (c *Client) keywordCandidates(ctx context.Context, queryText string, tenantID int64, limit int) ([]models.SearchHit, error) {
	q := fmt.Sprintf(`
		SELECT chunk_id, material_id, chunk_text, chunk_index, metadata,
		       ts_rank_cd(text_search, plainto_tsquery('simple', $1)) AS score
		FROM %s
		WHERE tenant_id = $2
		  AND text_search @@ plainto_tsquery('simple', $1)
		ORDER BY score DESC
		LIMIT $3
	`, c.table)

	return c.queryHits(ctx, q, queryText, tenantID, limit)
}

func (c *Client) queryHits(ctx context.Context, q string, args ...any) ([]models.SearchHit, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		var md []byte
		if err := rows.Scan(&h.ChunkID, &h.MaterialID, &h.Text, &h.ChunkIndex, &md, &h.Score); err != nil {
			return nil, err
		}
		if len(md) > 0 {
			_ = json.Unmarshal(md, &h.Metadata)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteMaterialChunks removes every indexed document for the material,
// scoped to the tenant. A material that was never indexed deletes zero rows.
func (c *Client) DeleteMaterialChunks(ctx context.Context, materialID string, tenantID int64) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE material_id = $1 AND tenant_id = $2`, c.table)
	res, err := c.db.ExecContext(ctx, q, materialID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("delete material chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *Client) CountMaterialChunks(ctx context.Context, materialID string, tenantID int64) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE material_id = $1 AND tenant_id = $2`, c.table)
	var n int64
	if err := c.db.QueryRowContext(ctx, q, materialID, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count material chunks: %w", err)
	}
	return n, nil
}

// HealthCheck reports whether the index is reachable. Never errors.
func (c *Client) HealthCheck(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.db.PingContext(pingCtx); err != nil {
		c.log.Warn("search index health check failed", "error", err)
		return false
	}
	return true
}
