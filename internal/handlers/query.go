package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/models"
	"github.com/ternarybob/ragserver/internal/services/retrieval"
)

// QueryHandler serves the three query routes over the current provider
// snapshot. The state read lock is held for the full request so a reload
// cannot swap providers mid-query.
type QueryHandler struct {
	config *common.Config
	state  *ServerState
	logger arbor.ILogger
}

func NewQueryHandler(config *common.Config, state *ServerState) *QueryHandler {
	return &QueryHandler{
		config: config,
		state:  state,
		logger: common.GetLogger(),
	}
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topk"`
}

type imageQueryRequest struct {
	Path string `json:"path"`
	TopK int    `json:"topk"`
}

type queryResponse struct {
	Documents []models.Document `json:"documents"`
}

// TextHandler handles POST /v1/query/text
func (h *QueryHandler) TextHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req queryRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		WriteDetailError(w, http.StatusBadRequest, "query is required")
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	docs, err := h.service().QueryText(r.Context(), req.Query, h.topk(req.TopK), h.config.Query.TopKRerankScale)
	if err != nil {
		h.logger.Error().Err(err).Str("query", req.Query).Msg("Text query failed")
		WriteDetailError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, queryResponse{Documents: emptyWhenNil(docs)})
}

// TextMultiHandler handles POST /v1/query/text_multi
func (h *QueryHandler) TextMultiHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req queryRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		WriteDetailError(w, http.StatusBadRequest, "query is required")
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	docs, err := h.service().QueryTextMulti(r.Context(), req.Query, h.topk(req.TopK), h.config.Query.TopKRerankScale)
	if err != nil {
		h.logger.Error().Err(err).Str("query", req.Query).Msg("Multimodal text query failed")
		WriteDetailError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, queryResponse{Documents: emptyWhenNil(docs)})
}

// ImageHandler handles POST /v1/query/image
func (h *QueryHandler) ImageHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req imageQueryRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		WriteDetailError(w, http.StatusBadRequest, "path is required")
		return
	}

	h.state.RLock()
	defer h.state.RUnlock()

	docs, err := h.service().QueryImage(r.Context(), req.Path, h.topk(req.TopK))
	if err != nil {
		h.logger.Error().Err(err).Str("path", req.Path).Msg("Image query failed")
		WriteDetailError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, queryResponse{Documents: emptyWhenNil(docs)})
}

// service assembles a retrieval pipeline over the current providers.
// Callers must hold the state read lock.
func (h *QueryHandler) service() *retrieval.Service {
	return retrieval.New(h.state.Store, h.state.Embed, h.state.Rerank, h.logger)
}

// topk applies the configured default when the request omits topk.
func (h *QueryHandler) topk(requested int) int {
	if requested > 0 {
		return requested
	}
	return h.config.Query.TopK
}

// emptyWhenNil keeps the documents field a JSON array, never null.
func emptyWhenNil(docs []models.Document) []models.Document {
	if docs == nil {
		return []models.Document{}
	}
	return docs
}
