// Package mcpserver exposes the assistant's tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/tools"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "flight-assistant-mcp"

// Server wraps a tool registry as an MCP server.
type Server struct {
	registry  *tools.Registry
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer registers every tool of registry on a new MCP server.
func NewServer(registry *tools.Registry, version string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry:  registry,
		mcpServer: server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
		logger:    logger,
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until EOF or a signal.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() error {
	for _, def := range s.registry.Definitions() {
		schema, err := json.Marshal(def.InputSchema)
		if err != nil {
			return fmt.Errorf("encode input schema for %s: %w", def.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(def.Name, def.Description, schema)
		s.mcpServer.AddTool(tool, s.handler(def.Name))
	}
	return nil
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := domain.ToolCall{
			ID:        uuid.NewString(),
			Name:      name,
			Arguments: request.GetArguments(),
		}

		result, err := s.registry.Execute(ctx, call)
		if err != nil {
			s.logger.Warn("MCP tool call failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}

		s.logger.Info("MCP tool call", "tool", name, "call_id", call.ID)
		return mcp.NewToolResultText(result.Content), nil
	}
}
