package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/speakinsights/speakinsights/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Pipeline Processor
}

// NewMCPServer creates an MCP server exposing the meeting archive to
// assistants.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"speakinsights",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("speakinsights: meeting transcripts, summaries, sentiment and action items from processed audio recordings."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_meetings",
			mcp.WithDescription("List processed meetings, most recent first. Returns titles, dates, summaries and action items, without transcripts."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of meetings (default 10)")),
		),
		mcpListMeetings(deps),
	)

	s.AddTool(
		mcp.NewTool("get_meeting",
			mcp.WithDescription("Fetch one meeting including its full transcript and analysis."),
			mcp.WithNumber("id", mcp.Description("Meeting id"), mcp.Required()),
		),
		mcpGetMeeting(deps),
	)

	s.AddTool(
		mcp.NewTool("search_transcripts",
			mcp.WithDescription("Search meeting titles and transcripts for a phrase."),
			mcp.WithString("query", mcp.Description("Text to search for"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchTranscripts(deps),
	)

	s.AddTool(
		mcp.NewTool("regenerate_analysis",
			mcp.WithDescription("Re-run summary, sentiment and action item extraction over a stored transcript."),
			mcp.WithNumber("id", mcp.Description("Meeting id"), mcp.Required()),
		),
		mcpRegenerateAnalysis(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"meetings://recent",
			"Recent Meetings",
			mcp.WithResourceDescription("The 10 most recent meetings with their summaries"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpListMeetings(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		meetings, err := deps.Store.ListMeetings(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list meetings: %v", err)), nil
		}

		results := make([]meetingResponse, 0, len(meetings))
		for _, m := range meetings {
			results = append(results, toResponse(m, false))
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal meetings: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetMeeting(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		m, err := deps.Store.GetMeeting(int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("meeting %d not found", id)), nil
		}

		b, err := json.Marshal(toResponse(m, true))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal meeting: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchTranscripts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		meetings, err := deps.Store.SearchMeetings(query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(meetings) == 0 {
			return mcpText("[]"), nil
		}

		type searchResult struct {
			ID      int64  `json:"id"`
			Title   string `json:"title"`
			Date    string `json:"date"`
			Excerpt string `json:"excerpt"`
		}

		results := make([]searchResult, len(meetings))
		for i, m := range meetings {
			results[i] = searchResult{
				ID:      m.ID,
				Title:   m.Title,
				Date:    m.Date.Format(time.RFC3339),
				Excerpt: excerpt(m.Transcript, 200),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRegenerateAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		m, err := deps.Pipeline.Regenerate(ctx, int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("regenerate failed: %v", err)), nil
		}

		b, err := json.Marshal(toResponse(m, false))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal meeting: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		meetings, err := deps.Store.ListMeetings(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list meetings: %w", err)
		}

		type recentMeeting struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			Date      string `json:"date"`
			Summary   string `json:"summary,omitempty"`
			Sentiment string `json:"sentiment,omitempty"`
		}

		recents := make([]recentMeeting, len(meetings))
		for i, m := range meetings {
			rm := recentMeeting{
				ID:    m.ID,
				Title: m.Title,
				Date:  m.Date.Format(time.RFC3339),
			}
			if m.Summary != nil {
				rm.Summary = *m.Summary
			}
			if m.Sentiment != nil {
				rm.Sentiment = *m.Sentiment
			}
			recents[i] = rm
		}

		b, err := json.Marshal(recents)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal meetings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func excerpt(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
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
