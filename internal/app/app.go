package app

import (
	"context"
	"fmt"
	"time"

	"github.com/manualforge/ragcore/internal/config"
	db "github.com/manualforge/ragcore/internal/core/database"
	"github.com/manualforge/ragcore/internal/core/enrich"
	"github.com/manualforge/ragcore/internal/core/extract"
	"github.com/manualforge/ragcore/internal/core/ingest"
	"github.com/manualforge/ragcore/internal/core/llm"
	"github.com/manualforge/ragcore/internal/core/objectstore"
	"github.com/manualforge/ragcore/internal/core/searchindex"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

type App struct {
	Log          *logger.Logger
	DBClient     *db.DatabaseClient
	Index        *searchindex.Client
	ObjectClient *objectstore.S3Client
	Embedder     *llm.GeminiEmbedder
	LLM          *llm.GeminiLLM
	Orchestrator *ingest.Orchestrator
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	index, err := searchindex.NewClient(dbClient.DB(), cfg.EmbedDim, log)
	if err != nil {
		return nil, err
	}
	if err := index.EnsureIndex(appCtx); err != nil {
		return nil, fmt.Errorf("ensure search index: %w", err)
	}
	log.Info("search index ready", "index", index.IndexName(), "dim", cfg.EmbedDim)

	objClient, err := objectstore.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("object store client initialized")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}

	extractor := extract.NewFileExtractor(log)
	enricher := enrich.NewEnricher(llmProvider, log)

	orch := ingest.NewOrchestrator(
		dbClient, objClient, embedder, extractor, enricher, index,
		&ingest.Config{
			TargetTokens:  cfg.ChunkTokens,
			OverlapTokens: cfg.ChunkOverlap,
		},
		log,
	)
	orch.Start(ctx, cfg.IngestWorkers)

	server := NewServer(cfg, dbClient, objClient, orch, embedder, index, log)

	return &App{
		Log:          log,
		DBClient:     dbClient,
		Index:        index,
		ObjectClient: objClient,
		Embedder:     embedder,
		LLM:          llmProvider,
		Orchestrator: orch,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
