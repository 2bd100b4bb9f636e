package interfaces

import (
	"context"

	"github.com/ternarybob/ragserver/internal/models"
)

// Reranker reorders retrieved documents by model-assigned relevance to a
// query, descending. The result is a permutation of a subset of the
// input, at most the reranker's configured topk long.
type Reranker interface {
	// Name identifies the provider ("hf", "cohere").
	Name() string

	// Rerank scores docs against query and returns them in relevance
	// order.
	Rerank(ctx context.Context, docs []models.Document, query string) ([]models.Document, error)
}
