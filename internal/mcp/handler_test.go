package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zamadev/sandbox/internal/cipher"
	"github.com/zamadev/sandbox/internal/credential"
	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/service"
	"github.com/zamadev/sandbox/internal/storage"
	"github.com/zamadev/sandbox/internal/usage"
)

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := credential.NewStore(storage.NewMemory(), logger)
	c, err := cipher.New("test-encryption-secret")
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	auth, err := service.NewAuthService(store, service.AuthOptions{JWTSecret: "test-jwt-secret"}, logger, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	s := NewMCPServer(
		auth,
		service.NewAPIKeyService(store, c, logger, nil),
		usage.NewService(usage.NewCache(usage.EmbeddedLoader{}, 0), logger, nil),
		docs.DefaultConfig(""),
		"test",
		logger,
	)
	s.now = func() time.Time { return time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC) }
	return s
}

func signIn(t *testing.T, s *MCPServer) {
	t.Helper()
	if _, err := s.auth.Login(context.Background(), "user@example.com", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return text.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult, v interface{}) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), v); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestToolsRequireSession(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleListKeys(ctx, toolRequest(nil))
	if err != nil {
		t.Fatalf("handleListKeys: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "no one is signed in") {
		t.Errorf("result = %s", resultText(t, res))
	}
}

func TestKeyTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	signIn(t, s)

	res, _ := s.handleCreateKey(ctx, toolRequest(map[string]interface{}{"name": "Agent"}))
	var created model.APIKey
	decodeResult(t, res, &created)
	if !strings.HasPrefix(created.Key, model.KeyPrefix) {
		t.Fatalf("created key = %q", created.Key)
	}

	res, _ = s.handleListKeys(ctx, toolRequest(nil))
	text := resultText(t, res)
	if strings.Contains(text, created.Key) {
		t.Error("listing must not expose the secret")
	}
	var list struct {
		Keys  []keyView `json:"keys"`
		Count int       `json:"count"`
	}
	decodeResult(t, res, &list)
	if list.Count != 1 || list.Keys[0].MaskedKey != created.MaskedKey {
		t.Errorf("list = %+v", list)
	}

	res, _ = s.handleRegenerateKey(ctx, toolRequest(map[string]interface{}{"key_id": created.ID}))
	var regen struct {
		Revoked     string       `json:"revoked"`
		Replacement model.APIKey `json:"replacement"`
	}
	decodeResult(t, res, &regen)
	if regen.Revoked != created.ID || regen.Replacement.Name != "Agent" {
		t.Errorf("regenerate = %+v", regen)
	}

	res, _ = s.handleRegenerateKey(ctx, toolRequest(map[string]interface{}{"key_id": created.ID}))
	if !res.IsError || !strings.Contains(resultText(t, res), "revoked") {
		t.Errorf("regenerating a revoked key: %s", resultText(t, res))
	}

	res, _ = s.handleRevokeKey(ctx, toolRequest(map[string]interface{}{"key_id": regen.Replacement.ID}))
	if res.IsError {
		t.Errorf("revoke: %s", resultText(t, res))
	}
}

func TestKeyToolArgumentErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	signIn(t, s)

	tests := []struct {
		name string
		call func() (*mcp.CallToolResult, error)
		want string
	}{
		{"create without name", func() (*mcp.CallToolResult, error) {
			return s.handleCreateKey(ctx, toolRequest(nil))
		}, `missing required parameter "name"`},
		{"create with long name", func() (*mcp.CallToolResult, error) {
			return s.handleCreateKey(ctx, toolRequest(map[string]interface{}{"name": strings.Repeat("n", 101)}))
		}, "invalid name"},
		{"regenerate unknown", func() (*mcp.CallToolResult, error) {
			return s.handleRegenerateKey(ctx, toolRequest(map[string]interface{}{"key_id": "key_nope"}))
		}, "API key not found"},
		{"bad usage type", func() (*mcp.CallToolResult, error) {
			return s.handleUsageSummary(ctx, toolRequest(map[string]interface{}{"types": []interface{}{"3xx"}}))
		}, "invalid types"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call()
			if err != nil {
				t.Fatalf("unexpected protocol error: %v", err)
			}
			if !res.IsError || !strings.Contains(resultText(t, res), tt.want) {
				t.Errorf("result = %q, want it to contain %q", resultText(t, res), tt.want)
			}
		})
	}
}

func TestUsageTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	signIn(t, s)

	res, _ := s.handleUsageSummary(ctx, toolRequest(map[string]interface{}{"preset": "last7days"}))
	var sum struct {
		Days    int                `json:"days"`
		Summary model.UsageSummary `json:"summary"`
	}
	decodeResult(t, res, &sum)
	if sum.Days != 7 || sum.Summary.TotalRequests == 0 {
		t.Errorf("summary = %+v", sum)
	}

	res, _ = s.handleDailyUsage(ctx, toolRequest(map[string]interface{}{
		"types": []interface{}{"5xx"},
		"limit": float64(3),
	}))
	var daily struct {
		Count int              `json:"count"`
		Days  []model.ChartRow `json:"days"`
	}
	decodeResult(t, res, &daily)
	if daily.Count != 3 || daily.Days[0].Date != "2026-10-13" || daily.Days[2].Date != "2026-10-11" {
		t.Fatalf("daily = %+v", daily)
	}
	for _, d := range daily.Days {
		if d.Requests2xx != 0 || d.TotalRequests != d.Requests5xx {
			t.Errorf("type filter not applied: %+v", d)
		}
	}
}

func TestCodeExamplesTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, _ := s.handleCodeExamples(ctx, toolRequest(nil))
	if !strings.Contains(resultText(t, res), docs.PlaceholderKey) {
		t.Error("expected the placeholder key without a key id")
	}

	signIn(t, s)
	created, _ := s.handleCreateKey(ctx, toolRequest(map[string]interface{}{"name": "Docs"}))
	var key model.APIKey
	decodeResult(t, created, &key)

	res, _ = s.handleCodeExamples(ctx, toolRequest(map[string]interface{}{"key_id": key.ID}))
	var examples []docs.CodeExample
	decodeResult(t, res, &examples)
	if len(examples) != 3 || !strings.Contains(examples[0].Code, key.Key) {
		t.Errorf("examples = %+v", examples)
	}
}

func TestSessionResource(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	read := func() map[string]interface{} {
		t.Helper()
		contents, err := s.handleSessionResource(ctx, mcp.ReadResourceRequest{})
		if err != nil {
			t.Fatalf("handleSessionResource: %v", err)
		}
		text := contents[0].(mcp.TextResourceContents)
		if text.URI != sessionURI {
			t.Errorf("URI = %q", text.URI)
		}
		var body map[string]interface{}
		if err := json.Unmarshal([]byte(text.Text), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	if body := read(); body["signedIn"] != false {
		t.Errorf("signed out body = %v", body)
	}
	signIn(t, s)
	body := read()
	user, _ := body["user"].(map[string]interface{})
	if body["signedIn"] != true || user["email"] != "user@example.com" {
		t.Errorf("signed in body = %v", body)
	}
}

func TestSchemasResource(t *testing.T) {
	s := newTestServer(t)

	contents, err := s.handleSchemasResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleSchemasResource: %v", err)
	}
	var schemas map[string]string
	if err := json.Unmarshal([]byte(contents[0].(mcp.TextResourceContents).Text), &schemas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(schemas["APIKey"], "maskedKey: string") {
		t.Errorf("APIKey = %q", schemas["APIKey"])
	}
}

func TestHandlerIsMountable(t *testing.T) {
	if newTestServer(t).Handler() == nil {
		t.Fatal("Handler returned nil")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
		{"value equals min", 1, 1, 10, 1},
		{"value equals max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.val, tt.min, tt.max)
			if got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestAnnotations(t *testing.T) {
	ro := readOnlyAnnotation()
	if ro.ReadOnlyHint == nil || *ro.ReadOnlyHint != true {
		t.Errorf("readOnlyAnnotation ReadOnlyHint = %v", ro.ReadOnlyHint)
	}
	mut := mutatingAnnotation()
	if mut.ReadOnlyHint == nil || *mut.ReadOnlyHint != false {
		t.Errorf("mutatingAnnotation ReadOnlyHint = %v", mut.ReadOnlyHint)
	}
}
