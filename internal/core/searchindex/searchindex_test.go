package searchindex

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manualforge/ragcore/internal/core"
)

// A minimal database/sql driver backed by an in-memory document set. It
// honors the tenant_id bind parameter the way Postgres would and records
// every query and tenant argument, so the scoping of the real SQL paths can
// be asserted without a live database.

type stubDoc struct {
	chunkID    string
	materialID string
	tenantID   int64
	text       string
	chunkIndex int
	score      float64
}

type stubIndexDB struct {
	mu         sync.Mutex
	docs       []stubDoc
	queries    []string
	tenantArgs []int64
}

func (s *stubIndexDB) record(query string, tenantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.tenantArgs = append(s.tenantArgs, tenantID)
}

var (
	stubRegistry sync.Map // dsn -> *stubIndexDB
	registerStub sync.Once
)

type stubDriver struct{}

func (stubDriver) Open(dsn string) (driver.Conn, error) {
	v, ok := stubRegistry.Load(dsn)
	if !ok {
		return nil, fmt.Errorf("unknown stub dsn %q", dsn)
	}
	return &stubConn{db: v.(*stubIndexDB)}, nil
}

type stubConn struct {
	db *stubIndexDB
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported")
}
func (c *stubConn) Close() error              { return nil }
func (c *stubConn) Begin() (driver.Tx, error) { return nil, fmt.Errorf("tx not supported") }

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("unexpected arg count %d", len(args))
	}
	tenantID, ok := args[1].Value.(int64)
	if !ok {
		return nil, fmt.Errorf("tenant arg is %T, not int64", args[1].Value)
	}
	limit, _ := args[2].Value.(int64)
	c.db.record(query, tenantID)

	keyword := strings.Contains(query, "plainto_tsquery")
	var needle string
	if keyword {
		needle, _ = args[0].Value.(string)
	}

	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	var out []stubDoc
	for _, d := range c.db.docs {
		if d.tenantID != tenantID {
			continue
		}
		if keyword && !strings.Contains(d.text, needle) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return &stubRows{docs: out}, nil
}

type stubRows struct {
	docs []stubDoc
	pos  int
}

func (r *stubRows) Columns() []string {
	return []string{"chunk_id", "material_id", "chunk_text", "chunk_index", "metadata", "score"}
}

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.docs) {
		return io.EOF
	}
	d := r.docs[r.pos]
	r.pos++
	dest[0] = d.chunkID
	dest[1] = d.materialID
	dest[2] = d.text
	dest[3] = int64(d.chunkIndex)
	dest[4] = nil
	dest[5] = d.score
	return nil
}

func newStubClient(t *testing.T, docs []stubDoc) (*Client, *stubIndexDB) {
	t.Helper()
	registerStub.Do(func() {
		sql.Register("searchindex-stub", stubDriver{})
	})

	sdb := &stubIndexDB{docs: docs}
	dsn := t.Name()
	stubRegistry.Store(dsn, sdb)

	db, err := sql.Open("searchindex-stub", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c, err := NewClient(db, 3, nil)
	require.NoError(t, err)
	return c, sdb
}

// Two tenants holding byte-identical content. A search as one tenant must
// never surface the other tenant's chunks.
func twoTenantDocs() []stubDoc {
	return []stubDoc{
		{chunkID: "t1-c0", materialID: "m1", tenantID: 1, text: "forklift safety checklist", chunkIndex: 0, score: 0.95},
		{chunkID: "t1-c1", materialID: "m1", tenantID: 1, text: "daily inspection procedure", chunkIndex: 1, score: 0.80},
		{chunkID: "t2-c0", materialID: "m2", tenantID: 2, text: "forklift safety checklist", chunkIndex: 0, score: 0.95},
		{chunkID: "t2-c1", materialID: "m2", tenantID: 2, text: "daily inspection procedure", chunkIndex: 1, score: 0.80},
	}
}

func queryVec() []float32 { return []float32{0.1, 0.2, 0.3} }

func TestVectorSearchScopedToTenant(t *testing.T) {
	c, sdb := newStubClient(t, twoTenantDocs())
	ctx := context.Background()

	hits, err := c.VectorSearch(ctx, queryVec(), 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.True(t, strings.HasPrefix(h.ChunkID, "t1-"), "leaked chunk %s", h.ChunkID)
	}

	require.Len(t, sdb.tenantArgs, 1)
	assert.Equal(t, int64(1), sdb.tenantArgs[0])
	assert.Contains(t, sdb.queries[0], "tenant_id = $2")
}

func TestVectorSearchZeroCrossTenantOverlap(t *testing.T) {
	c, _ := newStubClient(t, twoTenantDocs())
	ctx := context.Background()

	hits1, err := c.VectorSearch(ctx, queryVec(), 1, 10, 0)
	require.NoError(t, err)
	hits2, err := c.VectorSearch(ctx, queryVec(), 2, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits1)
	require.NotEmpty(t, hits2)

	seen := map[string]bool{}
	for _, h := range hits1 {
		seen[h.ChunkID] = true
	}
	for _, h := range hits2 {
		assert.False(t, seen[h.ChunkID], "chunk %s returned to both tenants", h.ChunkID)
	}
}

func TestHybridSearchScopedToTenant(t *testing.T) {
	c, sdb := newStubClient(t, twoTenantDocs())
	ctx := context.Background()

	hits, err := c.HybridSearch(ctx, "forklift", queryVec(), 1, 10, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.True(t, strings.HasPrefix(h.ChunkID, "t1-"), "leaked chunk %s", h.ChunkID)
	}

	// both the vector and the keyword candidate queries carry the tenant
	require.Len(t, sdb.tenantArgs, 2)
	for i, arg := range sdb.tenantArgs {
		assert.Equal(t, int64(1), arg)
		assert.Contains(t, sdb.queries[i], "tenant_id = $2")
	}
}

func TestVectorSearchRejectsUnscopedTenant(t *testing.T) {
	c, sdb := newStubClient(t, twoTenantDocs())

	_, err := c.VectorSearch(context.Background(), queryVec(), 0, 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTenantIsolation)
	assert.Empty(t, sdb.queries, "unscoped query must never reach the database")
}

func TestVectorSearchAppliesMinScore(t *testing.T) {
	c, _ := newStubClient(t, twoTenantDocs())

	hits, err := c.VectorSearch(context.Background(), queryVec(), 1, 10, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t1-c0", hits[0].ChunkID)
}
