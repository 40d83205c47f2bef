package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/manualforge/ragcore/internal/core"
)

const (
	// maxBatchSize caps one embedding request; larger inputs are split into
	// batches with order preserved.
	maxBatchSize = 100

	// maxConcurrentBatches bounds parallel requests to stay under quota.
	maxConcurrentBatches = 4
)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts returns one vector per input text, same order. Any transport
// or quota failure fails the whole call; partial results are never returned.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	out := make([][]float32, len(texts))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		grp.Go(func() error {
			batch := em.NewBatch()
			for _, t := range texts[start:end] {
				batch.AddContent(genai.Text(t))
			}

			resp, err := em.BatchEmbedContents(gctx, batch)
			if err != nil {
				return fmt.Errorf("gemini batch embed: %w", err)
			}
			if len(resp.Embeddings) != end-start {
				return fmt.Errorf("gemini batch embed: got %d vectors, want %d", len(resp.Embeddings), end-start)
			}
			for i, e := range resp.Embeddings {
				out[start+i] = e.Values
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
