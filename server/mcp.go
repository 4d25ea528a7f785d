package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"horizon/tools"
)

// MCPServer offers the real-estate tools to external agents. A call validates
// its arguments exactly as a model's call would and answers with the tool's
// result payload.
type MCPServer struct {
	mcpServer *mcpserver.MCPServer
	streamSrv *mcpserver.StreamableHTTPServer
}

func NewMCPServer(httpServer *http.Server) *MCPServer {
	hooks := &mcpserver.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		log.WithField("session_id", session.SessionID()).Info("MCP client session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		log.WithField("session_id", session.SessionID()).Info("MCP client session unregistered")
	})

	mcpServer := mcpserver.NewMCPServer(
		"Horizon Estates MCP Server",
		"0.1.0",
		mcpserver.WithLogging(),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithHooks(hooks),
	)

	for _, def := range tools.All() {
		mcpServer.AddTool(def.Schema, toolHandler(def))
		log.WithField("tool", def.Name).Debug("registered MCP tool")
	}

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context { return ctx }),
	}
	if httpServer != nil {
		opts = append(opts, mcpserver.WithStreamableHTTPServer(httpServer))
	}

	return &MCPServer{
		mcpServer: mcpServer,
		streamSrv: mcpserver.NewStreamableHTTPServer(mcpServer, opts...),
	}
}

func (m *MCPServer) Handler() http.Handler {
	return m.streamSrv
}

func toolHandler(def tools.Definition) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return nil, err
		}

		inv, err := def.Parse(args)
		var verr *tools.ValidationError
		if errors.As(err, &verr) {
			return mcptypes.NewToolResultError(verr.Error()), nil
		} else if err != nil {
			return nil, err
		}

		result, err := tools.MarshalResult(inv)
		if err != nil {
			return nil, err
		}
		log.WithField("tool", def.Name).Debug("handled MCP tool call")
		return mcptypes.NewToolResultText(string(result)), nil
	}
}
