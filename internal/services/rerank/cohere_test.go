package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
)

func newCohereTestReranker(serverURL string, topk int) *CohereReranker {
	cfg := &common.RerankConfig{
		CohereModel: "rerank-v3.5",
	}
	r := NewCohereReranker(cfg, "test-key", fastClient(), arbor.NewLogger())
	r.baseURL = serverURL
	r.topk = topk
	return r
}

func TestCohereRerankReorders(t *testing.T) {
	var gotReq cohereRerankRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		var resp cohereRerankResponse
		for _, idx := range []int{2, 0, 1} {
			resp.Results = append(resp.Results, struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{Index: idx, RelevanceScore: 0.5})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reranker := newCohereTestReranker(server.URL, 10)
	docs := docsFixture("a", "b", "c")

	out, err := reranker.Rerank(context.Background(), docs, "query")
	assert.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, "c", out[0].PageContent)
	assert.Equal(t, "a", out[1].PageContent)
	assert.Equal(t, "b", out[2].PageContent)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "rerank-v3.5", gotReq.Model)
	assert.Equal(t, 3, gotReq.TopN)
	assert.Equal(t, []string{"a", "b", "c"}, gotReq.Documents)
}

func TestCohereRerankSurfacesBackendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	reranker := newCohereTestReranker(server.URL, 10)
	docs := docsFixture("a", "b")

	out, err := reranker.Rerank(context.Background(), docs, "query")
	assert.ErrorIs(t, err, common.ErrRerank)
	assert.Nil(t, out)
}

func TestCohereRerankSkipsOutOfRangeIndices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp cohereRerankResponse
		for _, idx := range []int{1, 7, 0} {
			resp.Results = append(resp.Results, struct {
				Index          int     `json:"index"`
				RelevanceScore float64 `json:"relevance_score"`
			}{Index: idx, RelevanceScore: 0.5})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reranker := newCohereTestReranker(server.URL, 10)
	docs := docsFixture("a", "b")

	out, err := reranker.Rerank(context.Background(), docs, "query")
	assert.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "b", out[0].PageContent)
	assert.Equal(t, "a", out[1].PageContent)
}

func TestCohereRerankEmptyInput(t *testing.T) {
	reranker := newCohereTestReranker("http://127.0.0.1:1", 10)

	out, err := reranker.Rerank(context.Background(), nil, "query")
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestRerankerNames(t *testing.T) {
	local := newLocalTestReranker("http://127.0.0.1:1", 10)
	cohere := newCohereTestReranker("http://127.0.0.1:1", 10)

	assert.Equal(t, "hf", local.Name())
	assert.Equal(t, "cohere", cohere.Name())
}

func TestNewByName(t *testing.T) {
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.Embed.CohereAPIKey = "test-key"

	tests := []struct {
		name     string
		provider string
		wantNil  bool
		wantErr  bool
	}{
		{name: "local reranker", provider: common.RerankLocal},
		{name: "cohere reranker", provider: common.RerankCohere},
		{name: "disabled", provider: common.RerankNone, wantNil: true},
		{name: "unknown provider", provider: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reranker, err := NewByName(tt.provider, cfg, logger)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrConfig)
				return
			}
			assert.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, reranker)
			} else {
				assert.NotNil(t, reranker)
			}
		})
	}
}
