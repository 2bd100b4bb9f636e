package chroma

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/models"
)

// restClient talks to a chroma server or chroma cloud through the v2
// REST API. Cloud requests carry the API key as X-Chroma-Token.
type restClient struct {
	client   *httpclient.Client
	baseURL  string
	apiKey   string
	tenant   string
	database string
	logger   arbor.ILogger
}

func newRESTClient(baseURL, apiKey, tenant, database string, logger arbor.ILogger) *restClient {
	return &restClient{
		client:   restHTTPClient(logger),
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		tenant:   tenant,
		database: database,
		logger:   logger,
	}
}

func (c *restClient) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-Chroma-Token": c.apiKey}
}

func (c *restClient) collectionsURL() string {
	return fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s/collections",
		c.baseURL, url.PathEscape(c.tenant), url.PathEscape(c.database))
}

func (c *restClient) collectionURL(collectionID, op string) string {
	return c.collectionsURL() + "/" + collectionID + "/" + op
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// openCollection creates or attaches the named collection, configured
// for cosine distance.
func (c *restClient) openCollection(ctx context.Context, spaceKey string) (*restSpace, error) {
	req := map[string]any{
		"name":          spaceKey,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
		"get_or_create": true,
	}

	var col collectionResponse
	if err := c.client.PostJSON(ctx, c.collectionsURL(), c.headers(), req, &col); err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", spaceKey, err)
	}
	if col.ID == "" {
		return nil, fmt.Errorf("collection response for %s carries no id", spaceKey)
	}

	return &restSpace{client: c, collectionID: col.ID, key: spaceKey}, nil
}

// restSpace is one remote collection.
type restSpace struct {
	client       *restClient
	collectionID string
	key          string
}

// Get returns up to limit metadata records from the collection.
func (s *restSpace) Get(ctx context.Context, limit int) ([]models.Metadata, error) {
	req := map[string]any{
		"include": []string{"metadatas"},
	}
	if limit > 0 {
		req["limit"] = limit
	}

	var resp struct {
		IDs       []string          `json:"ids"`
		Metadatas []models.Metadata `json:"metadatas"`
	}
	if err := s.client.client.PostJSON(ctx, s.url("get"), s.client.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	return resp.Metadatas, nil
}

// Delete removes the given ids. Chroma ignores unknown ids.
func (s *restSpace) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	req := map[string]any{"ids": ids}
	if err := s.client.client.PostJSON(ctx, s.url("delete"), s.client.headers(), req, nil); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// AddEmbeddings writes vectors with payloads and metadata.
func (s *restSpace) AddEmbeddings(ctx context.Context, payloads []string, vecs [][]float32, metas []models.Metadata, ids []string) error {
	if len(payloads) != len(vecs) || len(payloads) != len(metas) || len(payloads) != len(ids) {
		return fmt.Errorf("mismatched batch: %d payloads, %d vectors, %d metadatas, %d ids",
			len(payloads), len(vecs), len(metas), len(ids))
	}
	if len(payloads) == 0 {
		return nil
	}

	req := map[string]any{
		"ids":        ids,
		"embeddings": vecs,
		"documents":  payloads,
		"metadatas":  metas,
	}
	if err := s.client.client.PostJSON(ctx, s.url("add"), s.client.headers(), req, nil); err != nil {
		return fmt.Errorf("failed to add records: %w", err)
	}
	return nil
}

// Query returns the k nearest documents for vec, closest first.
func (s *restSpace) Query(ctx context.Context, vec []float32, k int, filter models.Metadata) ([]models.Document, error) {
	req := map[string]any{
		"query_embeddings": [][]float32{vec},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(filter) > 0 {
		req["where"] = filter
	}

	var resp struct {
		IDs       [][]string          `json:"ids"`
		Documents [][]string          `json:"documents"`
		Metadatas [][]models.Metadata `json:"metadatas"`
		Distances [][]float64         `json:"distances"`
	}
	if err := s.client.client.PostJSON(ctx, s.url("query"), s.client.headers(), req, &resp); err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	if len(resp.Documents) == 0 {
		return []models.Document{}, nil
	}

	docs := make([]models.Document, 0, len(resp.Documents[0]))
	for i, text := range resp.Documents[0] {
		meta := models.Metadata{}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) && resp.Metadatas[0][i] != nil {
			meta = resp.Metadatas[0][i]
		}
		docs = append(docs, models.Document{PageContent: text, Metadata: meta})
	}
	return docs, nil
}

func (s *restSpace) url(op string) string {
	return s.client.collectionURL(s.collectionID, op)
}
