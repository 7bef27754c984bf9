package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zamadev/sandbox/internal/openapi"
)

const (
	sessionURI = "sandbox://session"
	schemasURI = "sandbox://schemas"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// sandbox://session: who the tools act as
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			sessionURI,
			"Current Session",
			mcp.WithResourceDescription(
				"The user signed in to the profile, or signedIn=false. "+
					"Every tool acts as this user.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleSessionResource,
	)

	// -------------------------------------------------------------------
	// sandbox://schemas: data model reference
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			schemasURI,
			"Data Model Reference",
			mcp.WithResourceDescription(
				"Type signatures of the console's data models (APIKey, DailyUsage, ...).",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleSchemasResource,
	)
}

// handleSessionResource returns the signed-in user.
func (s *MCPServer) handleSessionResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	u, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	body := map[string]interface{}{"signedIn": u != nil}
	if u != nil {
		body["user"] = u
	}
	return jsonContents(sessionURI, body)
}

// handleSchemasResource returns the formatted model signatures.
func (s *MCPServer) handleSchemasResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	doc := openapi.GenerateConsoleSpec(s.docs.BaseURL)
	return jsonContents(schemasURI, openapi.FormatComponents(doc))
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
