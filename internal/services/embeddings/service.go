package embeddings

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/interfaces"
)

// New creates the embedding provider named by cfg.Embed.Provider. All
// providers share one rate-limited HTTP client so backend calls stay
// paced across text and image embedding.
func New(cfg *common.Config, logger arbor.ILogger) (interfaces.TextEmbedder, error) {
	return NewByName(cfg.Embed.Provider, cfg, logger)
}

// NewByName creates a specific embedding provider, as the reload endpoint
// does when switching providers at runtime.
func NewByName(name string, cfg *common.Config, logger arbor.ILogger) (interfaces.TextEmbedder, error) {
	client := httpclient.NewClient(
		httpclient.WithLogger(logger),
		httpclient.WithRateLimit(httpclient.DefaultRateLimit),
	)

	switch name {
	case common.EmbedLocal:
		return NewLocalEmbedder(&cfg.Embed, client, logger), nil
	case common.EmbedOpenAI:
		return NewOpenAIEmbedder(&cfg.Embed, client, logger), nil
	case common.EmbedCohere:
		return NewCohereEmbedder(&cfg.Embed, client, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown embed provider %q", common.ErrConfig, name)
	}
}
