package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"todoagent/pkg/metrics"
)

// NewMCPServer exposes every tool in r over MCP. userID is fixed for the
// server's lifetime; MCP clients never choose whose tasks they touch.
func NewMCPServer(r *Registry, userID, version string, logger *zap.Logger) *server.MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := server.NewMCPServer(
		"todoagent",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Manage the authenticated user's todo list: tasks, tags, due dates and reminders."),
	)
	for _, name := range r.Names() {
		t, _ := r.Lookup(name)
		s.AddTool(t.Definition, mcpHandler(name, t.Handler, userID, logger))
	}
	return s
}

func mcpHandler(name string, h Handler, userID string, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("arguments are not valid JSON"), nil
		}

		result, err := h(ctx, userID, raw)
		if err != nil {
			metrics.IncrementToolCall(name, "error")
			logger.Warn("MCP tool call failed",
				zap.String("tool", name),
				zap.String("kind", ErrorKind(err)),
				zap.Error(err),
			)
			return mcp.NewToolResultError(ErrorMessage(err)), nil
		}

		body, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError("result could not be encoded"), nil
		}
		metrics.IncrementToolCall(name, "ok")
		return mcp.NewToolResultText(string(body)), nil
	}
}
