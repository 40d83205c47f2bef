package searchindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manualforge/ragcore/internal/models"
)

func hit(id string, score float64) models.SearchHit {
	return models.SearchHit{ChunkID: id, MaterialID: "m1", Score: score}
}

func ids(hits []models.SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ChunkID
	}
	return out
}

func TestFuseHybridPureVector(t *testing.T) {
	vhits := []models.SearchHit{hit("a", 0.9), hit("b", 0.5)}
	khits := []models.SearchHit{hit("c", 3.0), hit("b", 1.5)}

	out := fuseHybrid(vhits, khits, 1.0, 2)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"a", "b"}, ids(out))
	assert.InDelta(t, 0.9, out[0].Score, 1e-9)
	assert.InDelta(t, 0.5, out[1].Score, 1e-9)
}

func TestFuseHybridPureKeyword(t *testing.T) {
	vhits := []models.SearchHit{hit("a", 0.9)}
	khits := []models.SearchHit{hit("c", 3.0), hit("b", 1.5)}

	out := fuseHybrid(vhits, khits, 0.0, 2)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"c", "b"}, ids(out))
	// normalized against the best keyword candidate
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
	assert.InDelta(t, 0.5, out[1].Score, 1e-9)
}

func TestFuseHybridDualSignalBoost(t *testing.T) {
	vhits := []models.SearchHit{hit("a", 0.8), hit("b", 0.7)}
	khits := []models.SearchHit{hit("b", 2.0), hit("c", 1.0)}

	out := fuseHybrid(vhits, khits, 0.5, 3)
	require.Len(t, out, 3)
	// b scores from both lists: 0.5*0.7 + 0.5*1.0 = 0.85
	assert.Equal(t, []string{"b", "a", "c"}, ids(out))
	assert.InDelta(t, 0.85, out[0].Score, 1e-9)
	assert.InDelta(t, 0.40, out[1].Score, 1e-9)
	assert.InDelta(t, 0.25, out[2].Score, 1e-9)
}

func TestFuseHybridTieBreaksOnChunkID(t *testing.T) {
	vhits := []models.SearchHit{hit("z", 0.6), hit("a", 0.6)}

	out := fuseHybrid(vhits, nil, 1.0, 10)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"a", "z"}, ids(out))
}

func TestFuseHybridTruncatesToTopK(t *testing.T) {
	vhits := []models.SearchHit{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7)}

	out := fuseHybrid(vhits, nil, 1.0, 2)
	assert.Len(t, out, 2)
}

func TestFuseHybridEmptyInputs(t *testing.T) {
	assert.Empty(t, fuseHybrid(nil, nil, 0.7, 5))
}
