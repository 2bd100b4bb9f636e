package rerank

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/interfaces"
)

// New creates the reranker named by cfg.Rerank.Provider. Provider "none"
// returns nil: queries then keep the store's own ranking.
func New(cfg *common.Config, logger arbor.ILogger) (interfaces.Reranker, error) {
	return NewByName(cfg.Rerank.Provider, cfg, logger)
}

// NewByName creates a specific reranker, as the reload endpoint does when
// switching providers at runtime.
func NewByName(name string, cfg *common.Config, logger arbor.ILogger) (interfaces.Reranker, error) {
	client := httpclient.NewClient(
		httpclient.WithLogger(logger),
		httpclient.WithRateLimit(httpclient.DefaultRateLimit),
	)

	switch name {
	case common.RerankLocal:
		return NewLocalReranker(&cfg.Rerank, client, logger), nil
	case common.RerankCohere:
		return NewCohereReranker(&cfg.Rerank, cfg.Embed.CohereAPIKey, client, logger), nil
	case common.RerankNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown rerank provider %q", common.ErrConfig, name)
	}
}
