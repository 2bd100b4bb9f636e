package handlers

import (
	"sync"

	"github.com/ternarybob/ragserver/internal/interfaces"
)

// ServerState holds the swappable provider set shared by every request.
// Reload replaces one provider under the write lock; request handlers
// hold the read lock for their full duration, so a swap never lands in
// the middle of a query or an ingest.
type ServerState struct {
	sync.RWMutex

	Store  interfaces.VectorStoreManager
	Embed  interfaces.TextEmbedder
	Rerank interfaces.Reranker
}

// NewServerState wraps the initial provider set. Rerank may be nil when
// reranking is disabled.
func NewServerState(store interfaces.VectorStoreManager, embed interfaces.TextEmbedder, rerank interfaces.Reranker) *ServerState {
	return &ServerState{
		Store:  store,
		Embed:  embed,
		Rerank: rerank,
	}
}
