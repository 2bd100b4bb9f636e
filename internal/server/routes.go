package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Service routes
	mux.HandleFunc("/v1/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/v1/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/v1/reload", s.app.ReloadHandler.ReloadHandler)
	mux.HandleFunc("/v1/upload", s.app.UploadHandler.UploadHandler)

	// Ingest routes
	mux.HandleFunc("/v1/ingest/path", s.app.IngestHandler.PathHandler)
	mux.HandleFunc("/v1/ingest/path_list", s.app.IngestHandler.PathListHandler)
	mux.HandleFunc("/v1/ingest/url", s.app.IngestHandler.URLHandler)
	mux.HandleFunc("/v1/ingest/url_list", s.app.IngestHandler.URLListHandler)

	// Query routes
	mux.HandleFunc("/v1/query/text", s.app.QueryHandler.TextHandler)
	mux.HandleFunc("/v1/query/text_multi", s.app.QueryHandler.TextMultiHandler)
	mux.HandleFunc("/v1/query/image", s.app.QueryHandler.ImageHandler)

	// MCP tool transport (streamable HTTP)
	mux.Handle("/mcp", s.app.MCPHandler)

	// Catch-all for unknown paths
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
