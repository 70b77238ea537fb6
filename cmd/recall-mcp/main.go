// Command recall-mcp exposes the recall memory API as Model Context Protocol
// tools, so an MCP-capable assistant can persist and retrieve memories across
// sessions. It speaks stdio by default and streamable HTTP with --http.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/apiclient"
)

const serverInstructions = "Use these tools to persist and retrieve memories across sessions. " +
	"Search before answering questions about the user's projects or preferences. " +
	"Store key decisions, user preferences, and project context proactively."

type bridge struct {
	client *apiclient.Client
}

func main() {
	httpAddr := flag.String("http", "", "Serve MCP over streamable HTTP on this address instead of stdio")
	flag.Parse()

	b := &bridge{client: apiclient.FromEnv()}

	mcpServer := server.NewMCPServer(
		"recall",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
	)
	b.registerTools(mcpServer)

	if *httpAddr != "" {
		httpServer := server.NewStreamableHTTPServer(mcpServer)
		log.Printf("recall-mcp listening on %s", *httpAddr)
		if err := http.ListenAndServe(*httpAddr, httpServer); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
		return
	}

	if err := server.ServeStdio(mcpServer); err != nil {
		log.Fatalf("stdio server failed: %v", err)
	}
}

func (b *bridge) registerTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("store_memory",
		mcp.WithDescription("Store a new memory in the recall database. Storing with the same dedupe_key updates in place."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The content to remember")),
		mcp.WithArray("tags",
			mcp.Description(`Optional tags for organisation (e.g. ["project:recall", "preference"])`),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("source", mcp.Description(`Source identifier (default: "assistant")`)),
		mcp.WithString("dedupe_key", mcp.Description("Optional key to prevent duplicates")),
	), b.handleStore)

	s.AddTool(mcp.NewTool("search_memories",
		mcp.WithDescription("Search memories by semantic similarity."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language search query")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of results (default: 5)")),
	), b.handleSearch)

	s.AddTool(mcp.NewTool("list_memories",
		mcp.WithDescription("List recently stored memories, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of memories (default: 20)")),
	), b.handleList)

	s.AddTool(mcp.NewTool("delete_memory",
		mcp.WithDescription("Delete a memory by its ID."),
		mcp.WithString("memory_id", mcp.Required(), mcp.Description("The UUID of the memory to delete")),
	), b.handleDelete)

	s.AddTool(mcp.NewTool("check_health",
		mcp.WithDescription("Check the health of the recall API and its dependencies."),
	), b.handleHealth)
}

func toolJSON(v interface{}) (*mcp.CallToolResult, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(buf)), nil
}

func (b *bridge) handleStore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text is required"), nil
	}

	req := api.MemoryCreateRequest{
		Text:   text,
		Tags:   request.GetStringSlice("tags", []string{}),
		Source: request.GetString("source", "assistant"),
	}
	if key := request.GetString("dedupe_key", ""); key != "" {
		req.DedupeKey = &key
	}

	resp, err := b.client.CreateMemory(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(resp)
}

func (b *bridge) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	includeText := true
	topK := request.GetInt("top_k", 5)
	resp, err := b.client.Search(ctx, api.SearchRequest{
		Query:       query,
		TopK:        &topK,
		IncludeText: &includeText,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(resp)
}

func (b *bridge) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := b.client.List(ctx, request.GetInt("limit", 20), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(resp)
}

func (b *bridge) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("memory_id")
	if err != nil {
		return mcp.NewToolResultError("memory_id is required"), nil
	}
	resp, err := b.client.Delete(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(resp)
}

func (b *bridge) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// 503 still carries a meaningful body, so only transport failures error
	health, _, err := b.client.Health(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(health)
}
