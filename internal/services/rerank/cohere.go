package rerank

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/models"
)

// DefaultCohereBaseURL is the Cohere v2 API endpoint.
const DefaultCohereBaseURL = "https://api.cohere.com/v2"

// cohereRerankRequest is the Cohere /v2/rerank request body.
type cohereRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

// cohereRerankResponse is the Cohere /v2/rerank response body; results
// arrive in descending relevance order.
type cohereRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// CohereReranker reorders documents through the Cohere rerank API.
// Unlike the local reranker it surfaces backend failures, because a paid
// API erroring usually means misconfiguration rather than load.
type CohereReranker struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
	model   string
	topk    int
	logger  arbor.ILogger
}

// NewCohereReranker creates a reranker backed by Cohere.
func NewCohereReranker(cfg *common.RerankConfig, apiKey string, client *httpclient.Client, logger arbor.ILogger) *CohereReranker {
	return &CohereReranker{
		client:  client,
		baseURL: DefaultCohereBaseURL,
		apiKey:  apiKey,
		model:   cfg.CohereModel,
		topk:    DefaultTopK,
		logger:  logger,
	}
}

// Name identifies the provider.
func (r *CohereReranker) Name() string {
	return "cohere"
}

// Rerank scores docs against query, descending.
func (r *CohereReranker) Rerank(ctx context.Context, docs []models.Document, query string) ([]models.Document, error) {
	if len(docs) == 0 {
		r.logger.Warn().Msg("empty documents")
		return []models.Document{}, nil
	}

	topn := r.topk
	if topn <= 0 || topn > len(docs) {
		topn = len(docs)
	}

	contents := make([]string, len(docs))
	for i, doc := range docs {
		contents[i] = doc.PageContent
	}

	headers := map[string]string{
		"Authorization": "Bearer " + r.apiKey,
	}
	req := cohereRerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: contents,
		TopN:      topn,
	}

	var resp cohereRerankResponse
	if err := r.client.PostJSON(ctx, r.baseURL+"/rerank", headers, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to rerank documents: %v", common.ErrRerank, err)
	}

	out := make([]models.Document, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			continue
		}
		out = append(out, docs[res.Index])
	}

	return out, nil
}
