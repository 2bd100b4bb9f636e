package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/storage/chroma"
	"github.com/ternarybob/ragserver/internal/storage/pgvector"
)

// New creates the vector store manager selected by config.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (interfaces.VectorStoreManager, error) {
	backend, err := newBackend(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return NewManager(backend, &config.Store, logger), nil
}

// NewByName creates a specific vector store manager, as the reload
// endpoint does when switching backends at runtime.
func NewByName(ctx context.Context, name string, config *common.Config, logger arbor.ILogger) (interfaces.VectorStoreManager, error) {
	override := *config
	override.Store.VectorStore = name
	return New(ctx, &override, logger)
}

func newBackend(ctx context.Context, config *common.Config, logger arbor.ILogger) (interfaces.VectorBackend, error) {
	switch config.Store.VectorStore {
	case common.StoreChroma:
		return chroma.New(&config.Chroma, logger)
	case common.StorePgVector:
		return pgvector.New(ctx, &config.PG, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vector store: %s", common.ErrConfig, config.Store.VectorStore)
	}
}
