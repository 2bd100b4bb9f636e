package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/ternarybob/ragserver/internal/common"
)

func TestReloadHandler_SwapEmbedder(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{name: "old"}, nil)
	handler := NewReloadHandler(common.NewDefaultConfig(), state)

	rec := postJSON(handler.ReloadHandler, "/v1/reload", `{"target": "embed", "name": "cohere"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	state.RLock()
	defer state.RUnlock()
	if state.Embed.Name() != "cohere" {
		t.Errorf("Expected cohere embedder after reload, got %q", state.Embed.Name())
	}
}

func TestReloadHandler_SwapRerankerToNone(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{}, &mockReranker{})
	handler := NewReloadHandler(common.NewDefaultConfig(), state)

	rec := postJSON(handler.ReloadHandler, "/v1/reload", `{"target": "rerank", "name": "none"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	state.RLock()
	defer state.RUnlock()
	if state.Rerank != nil {
		t.Errorf("Expected nil reranker after reload to none, got %v", state.Rerank)
	}
}

func TestReloadHandler_SwapStore(t *testing.T) {
	old := newMockStore()
	state := testState(old, &mockEmbedder{}, nil)

	config := common.NewDefaultConfig()
	config.Chroma.PersistDir = t.TempDir()
	handler := NewReloadHandler(config, state)

	rec := postJSON(handler.ReloadHandler, "/v1/reload", `{"target": "store", "name": "chroma"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if !old.closed {
		t.Error("Expected previous store to be closed")
	}

	state.RLock()
	defer state.RUnlock()
	if state.Store == nil {
		t.Fatal("Expected replacement store")
	}
	if state.Store.Name() != "chroma" {
		t.Errorf("Expected chroma store, got %q", state.Store.Name())
	}
	state.Store.Close()
}

func TestReloadHandler_UnknownTarget(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{}, nil)
	handler := NewReloadHandler(common.NewDefaultConfig(), state)

	rec := postJSON(handler.ReloadHandler, "/v1/reload", `{"target": "llm", "name": "gpt"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.Contains(response["detail"], "llm") {
		t.Errorf("Expected target in detail, got %q", response["detail"])
	}
}

func TestReloadHandler_UnknownProvider(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{name: "old"}, nil)
	handler := NewReloadHandler(common.NewDefaultConfig(), state)

	rec := postJSON(handler.ReloadHandler, "/v1/reload", `{"target": "embed", "name": "telepathy"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	state.RLock()
	defer state.RUnlock()
	if state.Embed.Name() != "old" {
		t.Errorf("Expected embedder unchanged after failed reload, got %q", state.Embed.Name())
	}
}
