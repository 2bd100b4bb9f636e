package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ternarybob/ragserver/internal/common"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func TestIngestPathHandler_TextFile(t *testing.T) {
	store := newMockStore()
	embed := &mockEmbedder{}
	state := testState(store, embed, nil)
	handler := NewIngestHandler(common.NewDefaultConfig(), state)

	path := writeTempFile(t, "notes.txt", "The quick brown fox jumps over the lazy dog.")
	body := fmt.Sprintf(`{"path": %q}`, path)

	rec := postJSON(handler.PathHandler, "/v1/ingest/path", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status ok, got %q", response["status"])
	}

	spaceKey := embed.SpaceKeyText()
	if len(store.upserts[spaceKey]) == 0 {
		t.Fatalf("Expected upserted documents in space %s", spaceKey)
	}
	if len(store.loaded) == 0 || store.loaded[0] != spaceKey {
		t.Errorf("Expected text space loaded first, got %v", store.loaded)
	}
}

func TestIngestPathHandler_MissingPath(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{}, nil)
	handler := NewIngestHandler(common.NewDefaultConfig(), state)

	rec := postJSON(handler.PathHandler, "/v1/ingest/path", `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestIngestPathHandler_NoSuchFile(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{}, nil)
	handler := NewIngestHandler(common.NewDefaultConfig(), state)

	path := filepath.Join(t.TempDir(), "missing.txt")
	rec := postJSON(handler.PathHandler, "/v1/ingest/path", fmt.Sprintf(`{"path": %q}`, path))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["detail"] == "" {
		t.Error("Expected detail message in error response")
	}
}

func TestIngestPathListHandler(t *testing.T) {
	store := newMockStore()
	embed := &mockEmbedder{}
	state := testState(store, embed, nil)
	handler := NewIngestHandler(common.NewDefaultConfig(), state)

	dir := t.TempDir()
	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")
	os.WriteFile(first, []byte("alpha file"), 0o644)
	os.WriteFile(second, []byte("beta file"), 0o644)

	list := filepath.Join(dir, "sources.txt")
	content := fmt.Sprintf("# fixtures\n%s\n\n%s\n", first, second)
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write list: %v", err)
	}

	rec := postJSON(handler.PathListHandler, "/v1/ingest/path_list", fmt.Sprintf(`{"path": %q}`, list))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	docs := store.upserts[embed.SpaceKeyText()]
	if len(docs) < 2 {
		t.Errorf("Expected documents from both listed files, got %d", len(docs))
	}
}

func TestIngestURLHandler_MissingURL(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{}, nil)
	handler := NewIngestHandler(common.NewDefaultConfig(), state)

	rec := postJSON(handler.URLHandler, "/v1/ingest/url", `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestIngestHandler_MethodNotAllowed(t *testing.T) {
	state := testState(newMockStore(), &mockEmbedder{}, nil)
	handler := NewIngestHandler(common.NewDefaultConfig(), state)

	req := httptest.NewRequest("GET", "/v1/ingest/path", nil)
	rec := httptest.NewRecorder()
	handler.PathHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}
