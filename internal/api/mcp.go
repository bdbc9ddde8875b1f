package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/EASONTAN03/zus-api-deployment/internal/chat"
	"github.com/EASONTAN03/zus-api-deployment/internal/query"
)

// MCPDeps holds the pipelines the MCP tools call into. The tools bypass the
// chat orchestrator: an MCP host does its own intent routing, so it gets the
// pipelines directly without classification, throttling, or caching.
type MCPDeps struct {
	Products chat.ProductSearcher
	Outlets  chat.OutletQuerier
}

// NewMCPServer creates an MCP server exposing product search and outlet
// queries as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"zus-api",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("ZUS Coffee knowledge base: drinkware catalog search and outlet location queries."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_products",
			mcp.WithDescription("Semantically search the ZUS Coffee drinkware catalog and summarize the matches."),
			mcp.WithString("query", mcp.Description("Free-text product question"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of products to retrieve (default 3, max 20)")),
		),
		mcpSearchProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("query_outlets",
			mcp.WithDescription("Answer questions about ZUS Coffee outlet locations, services, and opening hours."),
			mcp.WithString("query", mcp.Description("Free-text outlet question"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of outlets to return (default 3, max 20)")),
		),
		mcpQueryOutlets(deps),
	)

	return s
}

func mcpSearchProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res, err := deps.Products.Search(ctx, q, boundedTopK(req))
		if err != nil {
			return mcpError(fmt.Sprintf("product search failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpQueryOutlets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res, err := deps.Outlets.Query(ctx, q, boundedTopK(req))
		if err != nil {
			return mcpError(fmt.Sprintf("outlet query failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func boundedTopK(req mcp.CallToolRequest) int {
	topK := req.GetInt("top_k", query.DefaultTopK)
	if topK <= 0 {
		topK = query.DefaultTopK
	}
	if topK > 20 {
		topK = 20
	}
	return topK
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
