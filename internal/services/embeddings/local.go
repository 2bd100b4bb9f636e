package embeddings

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/identity"
	"github.com/ternarybob/ragserver/internal/models"
)

// LocalEmbedder embeds text and images through a local CLIP-style server
// that speaks the OpenAI embeddings shape. Images travel as data URIs
// through the text input path; the server routes them by their
// "data:image" prefix.
type LocalEmbedder struct {
	wire       *openAIWire
	modelText  string
	modelImage string
	needNorm   bool
	logger     arbor.ILogger
}

// NewLocalEmbedder creates a multimodal embedder backed by a local
// OpenAI-compatible CLIP server.
func NewLocalEmbedder(cfg *common.EmbedConfig, client *httpclient.Client, logger arbor.ILogger) *LocalEmbedder {
	return &LocalEmbedder{
		wire: &openAIWire{
			client:  client,
			baseURL: cfg.LocalBaseURL,
			apiKey:  "dummy", // local servers expect a bearer token but ignore its value
		},
		modelText:  cfg.LocalModelText,
		modelImage: cfg.LocalModelImage,
		needNorm:   true,
		logger:     logger,
	}
}

// Name identifies the provider.
func (e *LocalEmbedder) Name() string {
	return common.EmbedLocal
}

// EmbedDocuments embeds indexing-side texts.
func (e *LocalEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		e.logger.Warn().Msg("empty texts")
		return [][]float32{}, nil
	}

	vecs, err := e.wire.embeddings(ctx, e.modelText, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error().Err(err).Msg("Failed to embed documents")
		return [][]float32{}, nil
	}

	if e.needNorm {
		vecs = L2Normalize(vecs)
	}

	return vecs, nil
}

// EmbedQuery embeds a retrieval-side query.
func (e *LocalEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.wire.embeddings(ctx, e.modelText, []string{query})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error().Err(err).Msg("Failed to embed query")
		return []float32{}, nil
	}

	if e.needNorm {
		vecs = L2Normalize(vecs)
	}

	return vecs[0], nil
}

// EmbedImage embeds the images at the given local paths. Unreadable or
// oversized images are skipped; a fully failed batch yields an empty
// matrix.
func (e *LocalEmbedder) EmbedImage(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		e.logger.Warn().Msg("empty paths")
		return [][]float32{}, nil
	}

	inputs := make([]string, 0, len(paths))
	for _, path := range paths {
		dataURI, err := ImageToDataURI(path, MaxImageBytes)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("Skipping image")
			continue
		}
		inputs = append(inputs, dataURI)
	}

	if len(inputs) == 0 {
		e.logger.Warn().Msg("empty inputs")
		return [][]float32{}, nil
	}

	vecs, err := e.wire.embeddings(ctx, e.modelImage, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error().Err(err).Msg("Failed to embed images")
		return [][]float32{}, nil
	}

	if e.needNorm {
		vecs = L2Normalize(vecs)
	}

	return vecs, nil
}

// EmbedTextForImageQuery embeds a query string for searching the image
// space. CLIP text vectors live in the same space as its image vectors.
func (e *LocalEmbedder) EmbedTextForImageQuery(ctx context.Context, query string) ([]float32, error) {
	return e.EmbedQuery(ctx, query)
}

// SpaceKeyText is the collection key for text document vectors.
func (e *LocalEmbedder) SpaceKeyText() string {
	return identity.SpaceKey(common.EmbedLocal, e.modelText, models.EmbedTypeText)
}

// SpaceKeyMulti is the collection key for image vectors.
func (e *LocalEmbedder) SpaceKeyMulti() string {
	return identity.SpaceKey(common.EmbedLocal, e.modelImage, models.EmbedTypeImage)
}
