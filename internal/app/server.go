package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/manualforge/ragcore/internal/api/handlers"
	appMiddleware "github.com/manualforge/ragcore/internal/api/middlewares"
	"github.com/manualforge/ragcore/internal/config"
	"github.com/manualforge/ragcore/internal/core"
	"github.com/manualforge/ragcore/internal/core/ingest"
	"github.com/manualforge/ragcore/internal/pkg/logger"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.Store, obj core.ObjectStore, orch *ingest.Orchestrator, emb core.EmbeddingProvider, index core.SearchIndex, log *logger.Logger) *Server {
	materialHandler := handlers.NewMaterialHandler(store, obj, orch, log)
	searchHandler := handlers.NewSearchHandler(emb, index, log)
	healthHandler := handlers.NewHealthHandler(store, index)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", healthHandler.Health)

		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.TenantMiddleware)

			protected.Post("/materials/upload", materialHandler.Upload)
			protected.Get("/materials", materialHandler.List)
			protected.Get("/materials/{id}", materialHandler.Get)
			protected.Post("/materials/{id}/reprocess", materialHandler.Reprocess)
			protected.Delete("/materials/{id}", materialHandler.Delete)
			protected.Get("/jobs/{id}", materialHandler.GetJob)
			protected.Post("/search", searchHandler.Query)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatal("server error", "error", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
