// Package server provides the HTTP API for yobou.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/indexer"
	"github.com/hyperjump/yobou/internal/retrieval"
	"github.com/hyperjump/yobou/internal/scoring"
	"github.com/hyperjump/yobou/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the yobou API.
type Server struct {
	orchestrator *scoring.Orchestrator
	retrieval    *retrieval.Engine
	indexer      *indexer.Indexer
	storage      storage.Storage
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	orchestrator *scoring.Orchestrator,
	retrievalEngine *retrieval.Engine,
	idx *indexer.Indexer,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		retrieval:    retrievalEngine,
		indexer:      idx,
		storage:      store,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/predict", s.handlePredict)
	r.Post("/api/v1/chat", s.handleChat)
	r.Post("/api/v1/readings", s.handleIngestReadings)
	r.Get("/api/v1/machines", s.handleListMachines)
	r.Post("/api/v1/documents", s.handleIndexDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
