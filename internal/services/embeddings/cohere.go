package embeddings

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/identity"
	"github.com/ternarybob/ragserver/internal/models"
)

// DefaultCohereBaseURL is the Cohere v2 API endpoint.
const DefaultCohereBaseURL = "https://api.cohere.com/v2"

// Cohere v2 embed input types.
const (
	cohereInputDocument = "search_document"
	cohereInputQuery    = "search_query"
	cohereInputImage    = "image"
)

// cohereEmbedRequest is the Cohere /v2/embed request body. Texts carries
// plain strings; Inputs carries structured image content. Exactly one is
// set per call.
type cohereEmbedRequest struct {
	Model          string             `json:"model"`
	InputType      string             `json:"input_type"`
	Texts          []string           `json:"texts,omitempty"`
	Inputs         []cohereEmbedInput `json:"inputs,omitempty"`
	EmbeddingTypes []string           `json:"embedding_types"`
}

type cohereEmbedInput struct {
	Content []cohereEmbedContent `json:"content"`
}

type cohereEmbedContent struct {
	Type     string          `json:"type"`
	ImageURL *cohereImageURL `json:"image_url,omitempty"`
}

type cohereImageURL struct {
	URL string `json:"url"`
}

// cohereEmbedResponse is the Cohere /v2/embed response body.
type cohereEmbedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

// CohereEmbedder embeds text and images through the Cohere v2 API.
type CohereEmbedder struct {
	client     *httpclient.Client
	baseURL    string
	apiKey     string
	modelText  string
	modelImage string
	needNorm   bool
	logger     arbor.ILogger
}

// NewCohereEmbedder creates a multimodal embedder backed by Cohere.
func NewCohereEmbedder(cfg *common.EmbedConfig, client *httpclient.Client, logger arbor.ILogger) *CohereEmbedder {
	return &CohereEmbedder{
		client:     client,
		baseURL:    DefaultCohereBaseURL,
		apiKey:     cfg.CohereAPIKey,
		modelText:  cfg.CohereModelText,
		modelImage: cfg.CohereModelImage,
		needNorm:   true,
		logger:     logger,
	}
}

func (e *CohereEmbedder) embed(ctx context.Context, req cohereEmbedRequest) ([][]float32, error) {
	req.EmbeddingTypes = []string{"float"}

	headers := map[string]string{
		"Authorization": "Bearer " + e.apiKey,
	}

	var resp cohereEmbedResponse
	if err := e.client.PostJSON(ctx, e.baseURL+"/embed", headers, req, &resp); err != nil {
		return nil, err
	}

	want := len(req.Texts) + len(req.Inputs)
	if len(resp.Embeddings.Float) != want {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", common.ErrEmbed, want, len(resp.Embeddings.Float))
	}

	return resp.Embeddings.Float, nil
}

// Name identifies the provider.
func (e *CohereEmbedder) Name() string {
	return common.EmbedCohere
}

// EmbedDocuments embeds indexing-side texts.
func (e *CohereEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		e.logger.Warn().Msg("empty texts")
		return [][]float32{}, nil
	}

	vecs, err := e.embed(ctx, cohereEmbedRequest{
		Model:     e.modelText,
		InputType: cohereInputDocument,
		Texts:     texts,
	})
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
func (e *CohereEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.embed(ctx, cohereEmbedRequest{
		Model:     e.modelText,
		InputType: cohereInputQuery,
		Texts:     []string{query},
	})
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

// EmbedImage embeds the images at the given local paths through the
// Cohere image input shape, one data URI per input.
func (e *CohereEmbedder) EmbedImage(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		e.logger.Warn().Msg("empty paths")
		return [][]float32{}, nil
	}

	inputs := make([]cohereEmbedInput, 0, len(paths))
	for _, path := range paths {
		dataURI, err := ImageToDataURI(path, MaxImageBytes)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("Skipping image")
			continue
		}
		inputs = append(inputs, cohereEmbedInput{
			Content: []cohereEmbedContent{
				{Type: "image_url", ImageURL: &cohereImageURL{URL: dataURI}},
			},
		})
	}

	if len(inputs) == 0 {
		e.logger.Warn().Msg("empty inputs")
		return [][]float32{}, nil
	}

	vecs, err := e.embed(ctx, cohereEmbedRequest{
		Model:     e.modelImage,
		InputType: cohereInputImage,
		Inputs:    inputs,
	})
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
// space.
func (e *CohereEmbedder) EmbedTextForImageQuery(ctx context.Context, query string) ([]float32, error) {
	return e.EmbedQuery(ctx, query)
}

// SpaceKeyText is the collection key for text document vectors.
func (e *CohereEmbedder) SpaceKeyText() string {
	return identity.SpaceKey(common.EmbedCohere, e.modelText, models.EmbedTypeText)
}

// SpaceKeyMulti is the collection key for image vectors.
func (e *CohereEmbedder) SpaceKeyMulti() string {
	return identity.SpaceKey(common.EmbedCohere, e.modelImage, models.EmbedTypeImage)
}
