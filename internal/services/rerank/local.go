// Package rerank provides the rerankers that reorder retrieved documents
// by cross-encoder relevance: a local HuggingFace-style server and the
// Cohere rerank API.
package rerank

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/models"
)

// DefaultTopK bounds rerank output when the configuration does not say
// otherwise.
const DefaultTopK = 10

// localRerankRequest is the request shape of the local cross-encoder
// server.
type localRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"topk"`
}

// localRerankResponse is its response shape; scores are in [0,1].
type localRerankResponse struct {
	Results []struct {
		Index    int     `json:"index"`
		Document string  `json:"document"`
		Score    float64 `json:"score"`
	} `json:"results"`
}

// LocalReranker reorders documents through a HuggingFace cross-encoder
// served over HTTP. Backend failures degrade to the store's own order
// rather than failing the query.
type LocalReranker struct {
	client  *httpclient.Client
	baseURL string
	model   string
	topk    int
	logger  arbor.ILogger
}

// NewLocalReranker creates a reranker backed by a local cross-encoder
// server.
func NewLocalReranker(cfg *common.RerankConfig, client *httpclient.Client, logger arbor.ILogger) *LocalReranker {
	return &LocalReranker{
		client:  client,
		baseURL: cfg.LocalBaseURL,
		model:   cfg.LocalModel,
		topk:    DefaultTopK,
		logger:  logger,
	}
}

// Name identifies the provider.
func (r *LocalReranker) Name() string {
	return "hf"
}

// filterDocs keeps documents with non-blank payloads, remembering each
// kept document's index in the original slice.
func filterDocs(docs []models.Document) ([]string, []int) {
	contents := make([]string, 0, len(docs))
	indexMap := make([]int, 0, len(docs))
	for i, doc := range docs {
		content := strings.TrimSpace(doc.PageContent)
		if content == "" {
			continue
		}
		contents = append(contents, content)
		indexMap = append(indexMap, i)
	}
	return contents, indexMap
}

// selectIndices remaps backend result indices onto the original document
// slice, de-duplicates them preserving order, and pads from the head of
// the original slice when the backend returned fewer than limit.
func selectIndices(resultIndices []int, indexMap []int, total, limit int) []int {
	selected := make([]int, 0, limit)
	seen := make(map[int]bool, limit)

	for _, ri := range resultIndices {
		if ri < 0 || ri >= len(indexMap) {
			continue
		}
		mapped := indexMap[ri]
		if seen[mapped] {
			continue
		}
		seen[mapped] = true
		selected = append(selected, mapped)
	}

	if len(selected) == 0 {
		return nil
	}

	for idx := 0; idx < total && len(selected) < limit; idx++ {
		if !seen[idx] {
			seen[idx] = true
			selected = append(selected, idx)
		}
	}

	return selected
}

// Rerank scores docs against query. Any backend failure is logged and
// degrades to the documents' incoming order, truncated to topk.
func (r *LocalReranker) Rerank(ctx context.Context, docs []models.Document, query string) ([]models.Document, error) {
	if len(docs) == 0 {
		r.logger.Warn().Msg("empty documents")
		return []models.Document{}, nil
	}

	limit := r.topk
	if limit <= 0 {
		limit = len(docs)
	}

	contents, indexMap := filterDocs(docs)
	if len(contents) == 0 {
		r.logger.Warn().Msg("all documents are empty")
		return head(docs, limit), nil
	}

	topk := limit
	if len(contents) < topk {
		topk = len(contents)
	}

	url := strings.TrimRight(r.baseURL, "/") + "/rerank"
	req := localRerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: contents,
		TopK:      topk,
	}

	var resp localRerankResponse
	if err := r.client.PostJSON(ctx, url, nil, req, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Error().Err(err).Msg("Failed to rerank, keeping store order")
		return head(docs, limit), nil
	}

	resultIndices := make([]int, 0, len(resp.Results))
	for _, res := range resp.Results {
		resultIndices = append(resultIndices, res.Index)
	}

	selected := selectIndices(resultIndices, indexMap, len(docs), limit)
	if len(selected) == 0 {
		r.logger.Warn().Msg("empty selected indices")
		return head(docs, limit), nil
	}

	if len(selected) > limit {
		selected = selected[:limit]
	}

	out := make([]models.Document, 0, len(selected))
	for _, idx := range selected {
		out = append(out, docs[idx])
	}

	return out, nil
}

func head(docs []models.Document, limit int) []models.Document {
	if len(docs) <= limit {
		return docs
	}
	return docs[:limit]
}
