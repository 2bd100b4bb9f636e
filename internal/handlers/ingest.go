package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/services/ingest"
	"github.com/ternarybob/ragserver/internal/services/loader"
)

// IngestHandler drives the four ingest routes. Every request builds its
// loaders against the provider snapshot taken under the state read lock,
// so a concurrent reload cannot swap the store mid-ingest.
type IngestHandler struct {
	config *common.Config
	state  *ServerState
	logger arbor.ILogger
}

func NewIngestHandler(config *common.Config, state *ServerState) *IngestHandler {
	return &IngestHandler{
		config: config,
		state:  state,
		logger: common.GetLogger(),
	}
}

type pathRequest struct {
	Path string `json:"path"`
}

type urlRequest struct {
	URL string `json:"url"`
}

// PathHandler handles POST /v1/ingest/path
func (h *IngestHandler) PathHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req pathRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		WriteDetailError(w, http.StatusBadRequest, "path is required")
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	h.logger.Info().Str("path", req.Path).Msg("Ingest path request")
	if err := h.service().FromPath(r.Context(), req.Path); err != nil {
		h.logger.Error().Err(err).Str("path", req.Path).Msg("Ingest failed")
		WriteDetailError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PathListHandler handles POST /v1/ingest/path_list
func (h *IngestHandler) PathListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req pathRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		WriteDetailError(w, http.StatusBadRequest, "path is required")
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	h.logger.Info().Str("path", req.Path).Msg("Ingest path list request")
	if err := h.service().FromPathList(r.Context(), req.Path); err != nil {
		h.logger.Error().Err(err).Str("path", req.Path).Msg("Ingest failed")
		WriteDetailError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// URLHandler handles POST /v1/ingest/url
func (h *IngestHandler) URLHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req urlRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		WriteDetailError(w, http.StatusBadRequest, "url is required")
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	h.logger.Info().Str("url", req.URL).Msg("Ingest URL request")
	if err := h.service().FromURL(r.Context(), req.URL); err != nil {
		h.logger.Error().Err(err).Str("url", req.URL).Msg("Ingest failed")
		WriteDetailError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// URLListHandler handles POST /v1/ingest/url_list
func (h *IngestHandler) URLListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req pathRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		WriteDetailError(w, http.StatusBadRequest, "path is required")
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	h.logger.Info().Str("path", req.Path).Msg("Ingest URL list request")
	if err := h.service().FromURLList(r.Context(), req.Path); err != nil {
		h.logger.Error().Err(err).Str("path", req.Path).Msg("Ingest failed")
		WriteDetailError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// service assembles an ingest pipeline over the current providers.
// Callers must hold the state read lock.
func (h *IngestHandler) service() *ingest.Service {
	files := loader.NewFileLoader(&h.config.Ingest, h.state.Store, h.logger)
	web := loader.NewHTMLLoader(&h.config.Ingest, files, h.state.Store, h.logger)
	return ingest.New(h.state.Store, h.state.Embed, files, web, h.logger)
}
