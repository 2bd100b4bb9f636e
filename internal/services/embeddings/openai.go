package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/identity"
	"github.com/ternarybob/ragserver/internal/models"
)

// DefaultOpenAIBaseURL is used when the configuration leaves the OpenAI
// endpoint empty.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAIEmbedRequest is the OpenAI /v1/embeddings request body.
type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// openAIEmbedResponse is the OpenAI /v1/embeddings response body.
type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// openAIWire calls an OpenAI-compatible embeddings endpoint. The local
// CLIP server speaks the same shape, so both providers share it.
type openAIWire struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

func (w *openAIWire) embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	url := strings.TrimRight(w.baseURL, "/") + "/embeddings"

	headers := map[string]string{}
	if w.apiKey != "" {
		headers["Authorization"] = "Bearer " + w.apiKey
	}

	var resp openAIEmbedResponse
	err := w.client.PostJSON(ctx, url, headers, openAIEmbedRequest{Model: model, Input: inputs}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", common.ErrEmbed, len(inputs), len(resp.Data))
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}

	return vecs, nil
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API. It has no
// image model, so it only serves text spaces.
type OpenAIEmbedder struct {
	wire      *openAIWire
	modelText string
	needNorm  bool
	logger    arbor.ILogger
}

// NewOpenAIEmbedder creates a text embedder backed by the OpenAI API or
// any server speaking its embeddings shape.
func NewOpenAIEmbedder(cfg *common.EmbedConfig, client *httpclient.Client, logger arbor.ILogger) *OpenAIEmbedder {
	baseURL := cfg.OpenAIBaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	return &OpenAIEmbedder{
		wire: &openAIWire{
			client:  client,
			baseURL: baseURL,
			apiKey:  cfg.OpenAIAPIKey,
		},
		modelText: cfg.OpenAIModelText,
		needNorm:  true,
		logger:    logger,
	}
}

// Name identifies the provider.
func (e *OpenAIEmbedder) Name() string {
	return common.EmbedOpenAI
}

// EmbedDocuments embeds indexing-side texts. Backend failures are logged
// and yield an empty matrix so batch ingest can continue.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
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

// EmbedQuery embeds a retrieval-side query. Failures are logged and yield
// an empty vector, which callers detect.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
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

// SpaceKeyText is the collection key for this provider/model pair.
func (e *OpenAIEmbedder) SpaceKeyText() string {
	return identity.SpaceKey(common.EmbedOpenAI, e.modelText, models.EmbedTypeText)
}
