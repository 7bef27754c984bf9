package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/service"
	"github.com/zamadev/sandbox/internal/usage"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required string argument from the tool request.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// optionalInt extracts an optional integer argument from the tool request.
func optionalInt(request mcp.CallToolRequest, key string, defaultVal int) int {
	return request.GetInt(key, defaultVal)
}

// optionalStringSlice extracts an optional string slice argument from the tool request.
func optionalStringSlice(request mcp.CallToolRequest, key string) []string {
	return request.GetStringSlice(key, nil)
}

// usageWindow reads the shared "types" and "preset" arguments of the usage
// tools. An empty preset leaves the window unbounded.
func usageWindow(request mcp.CallToolRequest, now time.Time) ([]model.RequestType, *usage.DateRange, error) {
	types, err := model.ParseRequestTypes(optionalStringSlice(request, "types"))
	if err != nil {
		return nil, nil, err
	}
	preset := optionalString(request, "preset")
	if preset == "" {
		return types, nil, nil
	}
	rng, err := usage.DateRangePreset(usage.Preset(preset), now)
	if err != nil {
		return nil, nil, err
	}
	return types, &rng, nil
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// serviceError turns a service failure into a tool error with a hint the
// caller can act on.
func serviceError(action string, err error) (*mcp.CallToolResult, error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return toolError("%s: invalid %s: %s", action, ve.Field, ve.Message)
	case errors.Is(err, service.ErrNotAuthenticated):
		return toolError("%s: no one is signed in. Run `sandbox login` or `sandbox guest` first.", action)
	case errors.Is(err, service.ErrNotFound):
		return toolError("%s: API key not found. Use sandbox_list_api_keys to see valid ids.", action)
	case errors.Is(err, service.ErrKeyRevoked):
		return toolError("%s: the key is revoked and cannot be regenerated. Create a new key instead.", action)
	default:
		return toolError("%s: %v", action, err)
	}
}

// clamp constrains val to [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
