// Package retrieval runs the query side: embed the query, over-fetch
// from the vector store, optionally rerank, and truncate to the
// requested size.
package retrieval

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

// Service answers queries against the current store/embedder/reranker
// snapshot. A nil reranker keeps the store's own ranking.
type Service struct {
	store  interfaces.VectorStoreManager
	embed  interfaces.TextEmbedder
	rerank interfaces.Reranker
	logger arbor.ILogger
}

// New builds a retrieval service over the current providers.
func New(store interfaces.VectorStoreManager, embed interfaces.TextEmbedder, rerank interfaces.Reranker, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		embed:  embed,
		rerank: rerank,
		logger: logger,
	}
}

// QueryText searches the text space. The store is asked for
// topk*rerankScale candidates so the reranker has room to reorder;
// the result is truncated back to topk.
func (s *Service) QueryText(ctx context.Context, query string, topk, rerankScale int) ([]models.Document, error) {
	spaceKey := s.embed.SpaceKeyText()
	if err := s.store.LoadSpace(ctx, spaceKey, s.embed); err != nil {
		return nil, err
	}

	qvec, err := s.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Query(ctx, qvec, scaledTopK(topk, rerankScale), nil, spaceKey)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		s.logger.Warn().Str("query", query).Msg("Query returned no documents")
		return []models.Document{}, nil
	}

	return s.rerankDocs(ctx, query, docs, topk)
}

// QueryTextMulti searches the image space with a text query. Before
// reranking, image payloads are rewritten to their caption or source so
// the cross-encoder scores text instead of file paths.
func (s *Service) QueryTextMulti(ctx context.Context, query string, topk, rerankScale int) ([]models.Document, error) {
	multi, ok := s.embed.(interfaces.MultimodalEmbedder)
	if !ok {
		return nil, fmt.Errorf("%w: multimodal embeddings is not supported", common.ErrEmbed)
	}

	spaceKey := multi.SpaceKeyMulti()
	if err := s.store.LoadSpace(ctx, spaceKey, s.embed); err != nil {
		return nil, err
	}

	qvec, err := multi.EmbedTextForImageQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Query(ctx, qvec, scaledTopK(topk, rerankScale), nil, spaceKey)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		s.logger.Warn().Str("query", query).Msg("Query returned no documents")
		return []models.Document{}, nil
	}

	if s.rerank != nil {
		rewriteImagePayloads(docs)
	}
	return s.rerankDocs(ctx, query, docs, topk)
}

// QueryImage searches the image space with a query image. No reranking:
// cross-encoders score text pairs. Payloads are always rewritten since
// the raw payload is an image path or data URI.
func (s *Service) QueryImage(ctx context.Context, path string, topk int) ([]models.Document, error) {
	multi, ok := s.embed.(interfaces.MultimodalEmbedder)
	if !ok {
		return nil, fmt.Errorf("%w: multimodal embeddings is not supported", common.ErrEmbed)
	}

	spaceKey := multi.SpaceKeyMulti()
	if err := s.store.LoadSpace(ctx, spaceKey, s.embed); err != nil {
		return nil, err
	}

	vecs, err := multi.EmbedImage(ctx, []string{path})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		s.logger.Warn().Str("path", path).Msg("Empty image embedding")
		return []models.Document{}, nil
	}

	docs, err := s.store.Query(ctx, vecs[0], topk, nil, spaceKey)
	if err != nil {
		return nil, err
	}

	rewriteImagePayloads(docs)
	return docs, nil
}

// rerankDocs reorders docs when a reranker is configured and truncates
// to topk either way.
func (s *Service) rerankDocs(ctx context.Context, query string, docs []models.Document, topk int) ([]models.Document, error) {
	if topk > len(docs) {
		topk = len(docs)
	}
	if s.rerank == nil {
		return docs[:topk], nil
	}

	scaledLen := len(docs)
	ranked, err := s.rerank.Rerank(ctx, docs, query)
	if err != nil {
		return nil, err
	}
	if len(ranked) > topk {
		ranked = ranked[:topk]
	}

	s.logger.Info().
		Int("before", scaledLen).
		Int("after", len(ranked)).
		Msg("Finished reranking")
	return ranked, nil
}

// scaledTopK is the over-fetch size handed to the store.
func scaledTopK(topk, rerankScale int) int {
	if rerankScale < 1 {
		rerankScale = 1
	}
	return topk * rerankScale
}

// rewriteImagePayloads replaces image payloads with the caption when one
// was stored, else the source.
func rewriteImagePayloads(docs []models.Document) {
	for i := range docs {
		if caption, ok := docs[i].Metadata.Str(models.MetaCaption); ok && caption != "" {
			docs[i].PageContent = caption
			continue
		}
		docs[i].PageContent = docs[i].Metadata.Source()
	}
}
