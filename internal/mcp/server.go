package mcp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/service"
	"github.com/zamadev/sandbox/internal/usage"
)

// MCPServer wraps the mcp-go server with the console's tool and resource
// registrations. Every tool acts as the user signed in to the profile, the
// same identity the CLI uses.
type MCPServer struct {
	auth   *service.AuthService
	keys   *service.APIKeyService
	usage  *usage.Service
	docs   docs.Config
	logger *slog.Logger
	server *server.MCPServer

	now func() time.Time
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and resources.
// The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(auth *service.AuthService, keys *service.APIKeyService, usageSvc *usage.Service, docsCfg docs.Config, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		auth:   auth,
		keys:   keys,
		usage:  usageSvc,
		docs:   docsCfg,
		logger: logger,
		now:    time.Now,
	}

	mcpServer := server.NewMCPServer(
		"Sandbox Developer Console",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	// Register tools (key lifecycle, usage, docs)
	s.registerTools(mcpServer)

	// Register resources (session, model reference)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001"). This is suitable for remote MCP clients.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// Handler returns a Streamable HTTP handler for mounting the MCP endpoint
// inside another router.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

// readOnlyAnnotation and mutatingAnnotation mark whether a tool changes the
// profile.
func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
