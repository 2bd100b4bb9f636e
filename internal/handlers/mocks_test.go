package handlers

import (
	"context"
	"sync"

	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

// mockStore implements interfaces.VectorStoreManager for handler tests.
type mockStore struct {
	mu sync.Mutex

	name      string
	loaded    []string
	upserts   map[string][]models.Document
	queryDocs []models.Document
	queryErr  error
	closed    bool
}

func newMockStore() *mockStore {
	return &mockStore{upserts: make(map[string][]models.Document)}
}

func (m *mockStore) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockStore) LoadSpace(ctx context.Context, spaceKey string, embedder interfaces.TextEmbedder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append(m.loaded, spaceKey)
	return nil
}

func (m *mockStore) ActivateSpace(spaceKey string) {}

func (m *mockStore) Active() (interfaces.VectorSpace, error) { return nil, nil }

func (m *mockStore) Upsert(ctx context.Context, docs []models.Document, spaceKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts[spaceKey] = append(m.upserts[spaceKey], docs...)
	ids := make([]string, len(docs))
	return ids, nil
}

func (m *mockStore) UpsertMulti(ctx context.Context, docs []models.Document, spaceKey string) ([]string, error) {
	return m.Upsert(ctx, docs, spaceKey)
}

func (m *mockStore) Query(ctx context.Context, vec []float32, topk int, filter models.Metadata, spaceKey string) ([]models.Document, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	docs := m.queryDocs
	if topk < len(docs) {
		docs = docs[:topk]
	}
	return docs, nil
}

func (m *mockStore) SkipUpdate(source string) bool { return false }

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// mockEmbedder implements interfaces.TextEmbedder.
type mockEmbedder struct {
	name string
}

func (m *mockEmbedder) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 0, 0}
	}
	return vecs, nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (m *mockEmbedder) SpaceKeyText() string { return "mock__text-model__text" }

// mockMultiEmbedder adds the image-side methods.
type mockMultiEmbedder struct {
	mockEmbedder
}

func (m *mockMultiEmbedder) EmbedImage(ctx context.Context, paths []string) ([][]float32, error) {
	vecs := make([][]float32, len(paths))
	for i := range vecs {
		vecs[i] = []float32{0, 1, 0}
	}
	return vecs, nil
}

func (m *mockMultiEmbedder) EmbedTextForImageQuery(ctx context.Context, query string) ([]float32, error) {
	return []float32{0, 1, 0}, nil
}

func (m *mockMultiEmbedder) SpaceKeyMulti() string { return "mock__image-model__image" }

// mockReranker reverses the input order so tests can tell it ran.
type mockReranker struct {
	queries []string
}

func (m *mockReranker) Name() string { return "mock" }

func (m *mockReranker) Rerank(ctx context.Context, docs []models.Document, query string) ([]models.Document, error) {
	m.queries = append(m.queries, query)
	out := make([]models.Document, len(docs))
	for i, doc := range docs {
		out[len(docs)-1-i] = doc
	}
	return out, nil
}

// testState bundles a provider set for handler construction.
func testState(store interfaces.VectorStoreManager, embed interfaces.TextEmbedder, rerank interfaces.Reranker) *ServerState {
	return NewServerState(store, embed, rerank)
}
