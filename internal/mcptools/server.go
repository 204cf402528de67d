package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewBriefingMCPServer creates an MCP server with the 4 briefing tools
// registered: start_briefing, get_briefing, generate_report and
// list_briefings.
func NewBriefingMCPServer(svc *BriefingService, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "briefing",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_briefing",
		Description: "Discover the entities related to a query, analyze each one concurrently and aggregate the results. Returns the session with per-entity outcomes; the report is not generated automatically.",
	}, svc.StartBriefing)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_briefing",
		Description: "Get the state of a briefing session: per-entity analysis outcomes, failed phase if any, and the report once generated.",
	}, svc.GetBriefing)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_report",
		Description: "Generate the final strategic report from a session's aggregated analyses. May be retried after a failure; a delivered report is not regenerated.",
	}, svc.GenerateReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_briefings",
		Description: "List all briefing sessions with their query, state and policy.",
	}, svc.ListBriefings)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
