package searchindex

import (
	"sort"

	"github.com/manualforge/ragcore/internal/models"
)

// fuseHybrid merges vector and keyword candidate lists into one ranking.
//
// Keyword ts_rank scores are unbounded, so they are normalized against the
// best keyword candidate before weighting; cosine similarity is already in
// [0,1] (for non-degenerate vectors). Ties break on chunk id for a stable
// order across runs.
func fuseHybrid(vhits, khits []models.SearchHit, vectorWeight float64, topK int) []models.SearchHit {
	keywordWeight := 1 - vectorWeight

	var maxKeyword float64
	for _, h := range khits {
		if h.Score > maxKeyword {
			maxKeyword = h.Score
		}
	}

	merged := make(map[string]*models.SearchHit, len(vhits)+len(khits))
	for _, h := range vhits {
		hit := h
		hit.Score = vectorWeight * h.Score
		merged[h.ChunkID] = &hit
	}
	for _, h := range khits {
		norm := 0.0
		if maxKeyword > 0 {
			norm = h.Score / maxKeyword
		}
		if existing, ok := merged[h.ChunkID]; ok {
			existing.Score += keywordWeight * norm
			continue
		}
		hit := h
		hit.Score = keywordWeight * norm
		merged[h.ChunkID] = &hit
	}

	out := make([]models.SearchHit, 0, len(merged))
	for _, h := range merged {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
