package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragserver/internal/common"
)

// APIHandler serves the health, version and fallback routes.
type APIHandler struct {
	state  *ServerState
	logger arbor.ILogger
}

func NewAPIHandler(state *ServerState) *APIHandler {
	return &APIHandler{
		state:  state,
		logger: common.GetLogger(),
	}
}

// HealthHandler reports the active provider set.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	if h.state.Store == nil || h.state.Embed == nil {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status": "providers not initialized",
		})
		return
	}

	rerank := "none"
	if h.state.Rerank != nil {
		rerank = h.state.Rerank.Name()
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  h.state.Store.Name(),
		"embed":  h.state.Embed.Name(),
		"rerank": rerank,
	})
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// NotFoundHandler handles unknown paths with the shared error contract.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteDetailError(w, http.StatusNotFound, "Not Found: "+r.URL.Path)
}
