package handlers

import (
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/services/embeddings"
	"github.com/ternarybob/ragserver/internal/services/rerank"
	"github.com/ternarybob/ragserver/internal/storage"
)

// ReloadHandler swaps one provider for a named alternative at runtime.
// The swap happens under the state write lock, so in-flight requests
// finish against the old provider set before the new one is visible.
type ReloadHandler struct {
	config *common.Config
	state  *ServerState
	logger arbor.ILogger
}

func NewReloadHandler(config *common.Config, state *ServerState) *ReloadHandler {
	return &ReloadHandler{
		config: config,
		state:  state,
		logger: common.GetLogger(),
	}
}

type reloadRequest struct {
	Target string `json:"target"`
	Name   string `json:"name"`
}

// ReloadHandler handles POST /v1/reload
func (h *ReloadHandler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req reloadRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	h.state.Lock()
	defer h.state.Unlock()

	h.logger.Info().Str("target", req.Target).Str("name", req.Name).Msg("Reload request")

	switch req.Target {
	case "store":
		// The embedded backend holds an exclusive directory lock, so the
		// old store must close before the replacement opens.
		if h.state.Store != nil {
			if err := h.state.Store.Close(); err != nil {
				h.logger.Warn().Err(err).Msg("Closing previous store failed")
			}
		}
		store, err := storage.NewByName(r.Context(), req.Name, h.config, h.logger)
		if err != nil {
			h.state.Store = nil
			WriteDetailError(w, http.StatusInternalServerError, fmt.Sprintf("reloading store %q: %v", req.Name, err))
			return
		}
		h.state.Store = store

	case "embed":
		embedder, err := embeddings.NewByName(req.Name, h.config, h.logger)
		if err != nil {
			WriteDetailError(w, http.StatusInternalServerError, fmt.Sprintf("reloading embeddings %q: %v", req.Name, err))
			return
		}
		h.state.Embed = embedder

	case "rerank":
		reranker, err := rerank.NewByName(req.Name, h.config, h.logger)
		if err != nil {
			WriteDetailError(w, http.StatusInternalServerError, fmt.Sprintf("reloading reranker %q: %v", req.Name, err))
			return
		}
		h.state.Rerank = reranker

	default:
		WriteDetailError(w, http.StatusInternalServerError, fmt.Sprintf("unknown reload target %q", req.Target))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
