package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/models"
	"github.com/ternarybob/ragserver/internal/services/retrieval"
)

// MCPHandler exposes the query operations as MCP tools so agent clients
// can search the store without speaking the REST routes.
type MCPHandler struct {
	config *common.Config
	state  *ServerState
	logger arbor.ILogger
}

// NewMCPHandler builds the MCP tool server and returns the streamable
// HTTP transport to mount at /mcp.
func NewMCPHandler(config *common.Config, state *ServerState) http.Handler {
	h := &MCPHandler{
		config: config,
		state:  state,
		logger: common.GetLogger(),
	}

	mcpServer := server.NewMCPServer(
		common.ProjectName,
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createQueryTextTool(), h.handleQueryText)
	mcpServer.AddTool(createQueryTextMultiTool(), h.handleQueryTextMulti)
	mcpServer.AddTool(createQueryImageTool(), h.handleQueryImage)

	return server.NewStreamableHTTPServer(mcpServer)
}

// createQueryTextTool defines the query_text tool
func createQueryTextTool() mcp.Tool {
	return mcp.NewTool("query_text",
		mcp.WithDescription("Search ingested documents with a text query and return the best matching chunks"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to search for"),
		),
		mcp.WithNumber("topk",
			mcp.Description("Maximum number of documents to return"),
		),
	)
}

// createQueryTextMultiTool defines the query_text_multi tool
func createQueryTextMultiTool() mcp.Tool {
	return mcp.NewTool("query_text_multi",
		mcp.WithDescription("Search ingested images with a text query and return the best matching captions or sources"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to search the image collection for"),
		),
		mcp.WithNumber("topk",
			mcp.Description("Maximum number of documents to return"),
		),
	)
}

// createQueryImageTool defines the query_image tool
func createQueryImageTool() mcp.Tool {
	return mcp.NewTool("query_image",
		mcp.WithDescription("Search ingested images with a query image on the server filesystem"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Local path of the query image"),
		),
		mcp.WithNumber("topk",
			mcp.Description("Maximum number of documents to return"),
		),
	)
}

// handleQueryText implements the query_text tool
func (h *MCPHandler) handleQueryText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || query == "" {
		return textResult("Error: query parameter is required"), nil
	}
	topk := request.GetInt("topk", h.config.Query.TopK)

	h.state.RLock()
	docs, err := h.service().QueryText(ctx, query, topk, h.config.Query.TopKRerankScale)
	h.state.RUnlock()
	if err != nil {
		h.logger.Error().Err(err).Str("query", query).Msg("MCP text query failed")
		return textResult(fmt.Sprintf("Query error: %v", err)), nil
	}

	return textResult(formatDocuments(query, docs)), nil
}

// handleQueryTextMulti implements the query_text_multi tool
func (h *MCPHandler) handleQueryTextMulti(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || query == "" {
		return textResult("Error: query parameter is required"), nil
	}
	topk := request.GetInt("topk", h.config.Query.TopK)

	h.state.RLock()
	docs, err := h.service().QueryTextMulti(ctx, query, topk, h.config.Query.TopKRerankScale)
	h.state.RUnlock()
	if err != nil {
		h.logger.Error().Err(err).Str("query", query).Msg("MCP multimodal query failed")
		return textResult(fmt.Sprintf("Query error: %v", err)), nil
	}

	return textResult(formatDocuments(query, docs)), nil
}

// handleQueryImage implements the query_image tool
func (h *MCPHandler) handleQueryImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil || path == "" {
		return textResult("Error: path parameter is required"), nil
	}
	topk := request.GetInt("topk", h.config.Query.TopK)

	h.state.RLock()
	docs, err := h.service().QueryImage(ctx, path, topk)
	h.state.RUnlock()
	if err != nil {
		h.logger.Error().Err(err).Str("path", path).Msg("MCP image query failed")
		return textResult(fmt.Sprintf("Query error: %v", err)), nil
	}

	return textResult(formatDocuments(path, docs)), nil
}

// service assembles a retrieval pipeline over the current providers.
// Callers must hold the state read lock.
func (h *MCPHandler) service() *retrieval.Service {
	return retrieval.New(h.state.Store, h.state.Embed, h.state.Rerank, h.logger)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// formatDocuments renders retrieval results as markdown
func formatDocuments(query string, docs []models.Document) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Results for %q (%d documents)\n\n", query, len(docs)))

	if len(docs) == 0 {
		sb.WriteString("No results found.\n")
		return sb.String()
	}

	for i, doc := range docs {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, doc.Metadata.Source()))
		if page, ok := doc.Metadata.Int(models.MetaPage); ok && page >= 0 {
			sb.WriteString(fmt.Sprintf("**Page:** %d\n", page))
		}
		sb.WriteString("\n")
		sb.WriteString(doc.PageContent)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}
