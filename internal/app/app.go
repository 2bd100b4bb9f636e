package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/handlers"
	"github.com/ternarybob/ragserver/internal/services/embeddings"
	"github.com/ternarybob/ragserver/internal/services/rerank"
	"github.com/ternarybob/ragserver/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// State carries the swappable provider set (store, embedder,
	// reranker) shared by every handler.
	State *handlers.ServerState

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	IngestHandler *handlers.IngestHandler
	QueryHandler  *handlers.QueryHandler
	UploadHandler *handlers.UploadHandler
	ReloadHandler *handlers.ReloadHandler
	MCPHandler    http.Handler
}

// New builds the provider set from config and wires the handlers.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	store, err := storage.New(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}

	embedder, err := embeddings.New(config, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing embeddings: %w", err)
	}

	reranker, err := rerank.New(config, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing reranker: %w", err)
	}

	state := handlers.NewServerState(store, embedder, reranker)

	rerankName := "none"
	if reranker != nil {
		rerankName = reranker.Name()
	}
	logger.Info().
		Str("store", store.Name()).
		Str("embed", embedder.Name()).
		Str("rerank", rerankName).
		Msg("Providers initialized")

	return &App{
		Config: config,
		Logger: logger,
		State:  state,

		APIHandler:    handlers.NewAPIHandler(state),
		IngestHandler: handlers.NewIngestHandler(config, state),
		QueryHandler:  handlers.NewQueryHandler(config, state),
		UploadHandler: handlers.NewUploadHandler(config),
		ReloadHandler: handlers.NewReloadHandler(config, state),
		MCPHandler:    handlers.NewMCPHandler(config, state),
	}, nil
}

// Close releases the provider set. Safe to call once after the server
// has stopped accepting requests.
func (a *App) Close() error {
	a.State.Lock()
	defer a.State.Unlock()

	if a.State.Store == nil {
		return nil
	}

	err := a.State.Store.Close()
	a.State.Store = nil
	if err != nil {
		a.Logger.Error().Err(err).Msg("Failed to close vector store")
		return err
	}

	a.Logger.Info().Msg("Vector store closed")
	return nil
}
