package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/usage"
)

var usageTypeDescription = "Request types to include: any of \"2xx\", \"4xx\", \"5xx\". Omit for all."

// registerTools registers all console MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- API key tools -----

	srv.AddTool(
		mcp.NewTool("sandbox_list_api_keys",
			mcp.WithDescription(
				"List the signed-in user's API keys with their id, name, masked secret, "+
					"status and creation time. Secrets are never shown here; use the ids "+
					"with the revoke and regenerate tools.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListKeys,
	)

	srv.AddTool(
		mcp.NewTool("sandbox_create_api_key",
			mcp.WithDescription(
				"Create a new active API key. The response is the only time the full "+
					"secret is returned, so hand it to the user right away.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Display name for the key (1-100 characters)"),
			),
		),
		s.handleCreateKey,
	)

	srv.AddTool(
		mcp.NewTool("sandbox_revoke_api_key",
			mcp.WithDescription(
				"Revoke an API key. Revoked keys stay listed but can no longer be "+
					"regenerated. Revoking an unknown id is a no-op.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("key_id",
				mcp.Required(),
				mcp.Description("Id of the key, e.g. key_1760000000000_ab12cd3"),
			),
		),
		s.handleRevokeKey,
	)

	srv.AddTool(
		mcp.NewTool("sandbox_regenerate_api_key",
			mcp.WithDescription(
				"Revoke an active API key and create a replacement with the same name. "+
					"Returns the new key including its full secret.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("key_id",
				mcp.Required(),
				mcp.Description("Id of the active key to replace"),
			),
		),
		s.handleRegenerateKey,
	)

	// ----- Usage tools -----

	srv.AddTool(
		mcp.NewTool("sandbox_usage_summary",
			mcp.WithDescription(
				"Summarize the signed-in user's API usage: total requests and cost, "+
					"daily averages, and success and error rates in percent.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("preset",
				mcp.Description("Date window ending today. Omit for all recorded usage."),
				mcp.Enum(string(usage.Last7Days), string(usage.Last30Days), string(usage.Last90Days)),
			),
			mcp.WithArray("types",
				mcp.Description(usageTypeDescription),
				mcp.WithStringItems(),
			),
		),
		s.handleUsageSummary,
	)

	srv.AddTool(
		mcp.NewTool("sandbox_daily_usage",
			mcp.WithDescription(
				"Per-day usage of the signed-in user across all keys, newest first. "+
					"Each row has request counts by status class and the day's cost.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("preset",
				mcp.Description("Date window ending today. Omit for all recorded usage."),
				mcp.Enum(string(usage.Last7Days), string(usage.Last30Days), string(usage.Last90Days)),
			),
			mcp.WithArray("types",
				mcp.Description(usageTypeDescription),
				mcp.WithStringItems(),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of days to return (default 30, max 90)"),
			),
		),
		s.handleDailyUsage,
	)

	// ----- Docs tools -----

	srv.AddTool(
		mcp.NewTool("sandbox_code_examples",
			mcp.WithDescription(
				"Integration snippets (cURL, Node.js, Python) for calling the API. "+
					"Pass a key id to fill in that key's secret; otherwise a placeholder is used.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("key_id",
				mcp.Description("Optional id of the key to embed in the snippets"),
			),
		),
		s.handleCodeExamples,
	)
}

// keyView is the masked projection of a key returned by the listing tool.
type keyView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	MaskedKey  string          `json:"maskedKey"`
	Status     model.KeyStatus `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastUsedAt *time.Time      `json:"lastUsedAt"`
}

// handleListKeys returns the masked keys of the signed-in user.
func (s *MCPServer) handleListKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	u, err := s.auth.RequireUser(ctx)
	if err != nil {
		return serviceError("List API keys", err)
	}
	list, err := s.keys.GetAllKeys(ctx, u.ID)
	if err != nil {
		return serviceError("List API keys", err)
	}

	views := make([]keyView, len(list.Keys))
	for i, k := range list.Keys {
		views[i] = keyView{
			ID:         k.ID,
			Name:       k.Name,
			MaskedKey:  k.MaskedKey,
			Status:     k.Status,
			CreatedAt:  k.CreatedAt,
			LastUsedAt: k.LastUsedAt,
		}
	}
	return successJSON(map[string]interface{}{
		"keys":    views,
		"count":   len(views),
		"skipped": list.Skipped,
	})
}

// handleCreateKey creates a key and returns it with its secret.
func (s *MCPServer) handleCreateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	name, err := requireString(request, "name")
	if err != nil {
		return toolError("%v", err)
	}
	u, err := s.auth.RequireUser(ctx)
	if err != nil {
		return serviceError("Create API key", err)
	}
	key, err := s.keys.CreateKey(ctx, model.CreateKeyInput{UserID: u.ID, Name: name})
	if err != nil {
		return serviceError("Create API key", err)
	}
	s.logger.Info("mcp: api key created", "key_id", key.ID)
	return successJSON(key)
}

// handleRevokeKey revokes a key by id.
func (s *MCPServer) handleRevokeKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	keyID, err := requireString(request, "key_id")
	if err != nil {
		return toolError("%v", err)
	}
	u, err := s.auth.RequireUser(ctx)
	if err != nil {
		return serviceError("Revoke API key", err)
	}
	if err := s.keys.RevokeKey(ctx, model.KeyOperationInput{KeyID: keyID, UserID: u.ID}); err != nil {
		return serviceError("Revoke API key", err)
	}
	return successJSON(map[string]interface{}{
		"revoked": keyID,
	})
}

// handleRegenerateKey replaces an active key.
func (s *MCPServer) handleRegenerateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	keyID, err := requireString(request, "key_id")
	if err != nil {
		return toolError("%v", err)
	}
	u, err := s.auth.RequireUser(ctx)
	if err != nil {
		return serviceError("Regenerate API key", err)
	}
	key, err := s.keys.RegenerateKey(ctx, model.KeyOperationInput{KeyID: keyID, UserID: u.ID})
	if err != nil {
		return serviceError("Regenerate API key", err)
	}
	return successJSON(map[string]interface{}{
		"revoked":     keyID,
		"replacement": key,
	})
}

// handleUsageSummary returns the headline numbers of a usage window.
func (s *MCPServer) handleUsageSummary(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	days, types, err := s.windowedDays(ctx, request)
	if err != nil {
		return serviceError("Usage summary", err)
	}
	return successJSON(map[string]interface{}{
		"days":    len(days),
		"summary": usage.Summarize(days, types),
	})
}

// handleDailyUsage returns per-day rows, newest first.
func (s *MCPServer) handleDailyUsage(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", 30), 1, 90)
	days, types, err := s.windowedDays(ctx, request)
	if err != nil {
		return serviceError("Daily usage", err)
	}
	days = usage.FilterDailyByTypes(days, types)
	if len(days) > limit {
		days = days[:limit]
	}

	// Chart rows drop the raw events and round the cost; they come back
	// oldest first.
	chart := usage.FormatForChart(days, nil)
	rows := make([]model.ChartRow, len(chart))
	for i, c := range chart {
		rows[len(chart)-1-i] = c
	}
	return successJSON(map[string]interface{}{
		"count": len(rows),
		"days":  rows,
	})
}

// handleCodeExamples renders the integration snippets.
func (s *MCPServer) handleCodeExamples(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	secret := ""
	if keyID := optionalString(request, "key_id"); keyID != "" {
		u, err := s.auth.RequireUser(ctx)
		if err != nil {
			return serviceError("Code examples", err)
		}
		key, err := s.keys.GetKey(ctx, model.KeyOperationInput{KeyID: keyID, UserID: u.ID})
		if err != nil {
			return serviceError("Code examples", err)
		}
		secret = key.Key
	}
	return successJSON(docs.CodeExamples(secret, s.docs.APIEndpoint))
}

// windowedDays loads the signed-in user's aggregated days and applies the
// preset window from the request.
func (s *MCPServer) windowedDays(ctx context.Context, request mcp.CallToolRequest) ([]model.DailyUsage, []model.RequestType, error) {
	types, window, err := usageWindow(request, s.now())
	if err != nil {
		return nil, nil, err
	}
	u, err := s.auth.RequireUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	days, err := s.usage.DailyUsage(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	if window != nil {
		days = usage.FilterByDateRange(days, window.Start, window.End)
	}
	return days, types, nil
}
