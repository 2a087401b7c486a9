// quantumd-mcp exposes the dispatch core's stored state over MCP: memory
// search, per-user memory summaries, and dispatch history. It reads the
// same on-disk state the daemon writes, so it can run alongside or after
// it.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lyralab/quantumd/internal/config"
	"github.com/lyralab/quantumd/internal/history"
	"github.com/lyralab/quantumd/internal/profile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("QUANTUMD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"quantumd-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &toolServer{cfg: cfg}
	s.AddTool(memorySearchTool(), srv.handleMemorySearch)
	s.AddTool(memorySummaryTool(), srv.handleMemorySummary)
	s.AddTool(dispatchHistoryTool(), srv.handleDispatchHistory)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

type toolServer struct {
	cfg *config.Config
}

func memorySearchTool() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription("Search a user's memory context lines by substring. Returns matching memories ranked by relevance."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User whose memories to search"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Substring to search for (case-insensitive)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return. Default: 10"),
		),
	)
}

func (t *toolServer) handleMemorySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	userID, _ := args["user_id"].(string)
	query, _ := args["query"].(string)
	limit := 10
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	if userID == "" || query == "" {
		return mcp.NewToolResultError("user_id and query are required"), nil
	}

	store, err := profile.NewStore(t.cfg.StatePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open store: %v", err)), nil
	}
	hits, err := store.SearchContext(userID, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No matching memories."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d matching memories for %s:\n", len(hits), userID)
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. [%s] (%s, relevance %d) %s\n", i+1, h.Timestamp, h.MemType, h.Relevance, h.Preview)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func memorySummaryTool() mcp.Tool {
	return mcp.NewTool("memory_summary",
		mcp.WithDescription("Summarise a user's stored memory: profile presence, memory count, memory types, last update."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User to summarise"),
		),
	)
}

func (t *toolServer) handleMemorySummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	userID, _ := args["user_id"].(string)
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	store, err := profile.NewStore(t.cfg.StatePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open store: %v", err)), nil
	}
	sum, err := store.GetSummary(userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("summary failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User: %s\n", sum.UserID)
	fmt.Fprintf(&b, "Profile on disk: %v\n", sum.HasProfile)
	fmt.Fprintf(&b, "Memories: %d\n", sum.MemoryCount)
	if len(sum.MemoryTypes) > 0 {
		fmt.Fprintf(&b, "Types: %s\n", strings.Join(sum.MemoryTypes, ", "))
	}
	if sum.LastUpdated != "" {
		fmt.Fprintf(&b, "Last updated: %s\n", sum.LastUpdated)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func dispatchHistoryTool() mcp.Tool {
	return mcp.NewTool("dispatch_history",
		mcp.WithDescription("Show recent dispatches and aggregate statistics from the history database."),
		mcp.WithString("user_id",
			mcp.Description("Restrict to one user. Default: all users"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum dispatches to list. Default: 10"),
		),
	)
}

func (t *toolServer) handleDispatchHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	userID, _ := args["user_id"].(string)
	limit := 10
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	hist, err := history.Open(t.cfg.StatePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open history: %v", err)), nil
	}
	defer hist.Close()

	var b strings.Builder
	stats, err := hist.GetStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
	}
	fmt.Fprintf(&b, "Dispatches: %d total, %d successful, %d degraded, avg %.2fs\n\n",
		stats.Total, stats.Successful, stats.Degraded, stats.AvgTotalSeconds)

	var recs []history.Record
	if userID != "" {
		recs, err = hist.RecentForUser(userID, limit)
	} else {
		recs, err = hist.Recent(limit)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	for _, r := range recs {
		fmt.Fprintf(&b, "%s  %-9s  user=%s  %.2fs  degraded=%v\n",
			r.CompletedAt.Format("2006-01-02 15:04:05"), r.State, r.UserID, r.TotalSeconds, r.Degraded)
	}
	return mcp.NewToolResultText(b.String()), nil
}
