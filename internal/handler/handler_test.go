package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zamadev/sandbox/internal/cipher"
	"github.com/zamadev/sandbox/internal/credential"
	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/openapi"
	"github.com/zamadev/sandbox/internal/server/middleware"
	"github.com/zamadev/sandbox/internal/service"
	"github.com/zamadev/sandbox/internal/storage"
	"github.com/zamadev/sandbox/internal/usage"
)

const (
	testJWTSecret        = "test-secret-for-handler-tests"
	testEncryptionSecret = "test-encryption-secret"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	auth   *service.AuthService
	store  *credential.Store
	router chi.Router
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// newTestEnv wires every handler over an in-memory profile and the embedded
// usage fixture, with routes mounted the way the server mounts them.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := credential.NewStore(storage.NewMemory(), logger)
	c, err := cipher.New(testEncryptionSecret)
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	auth, err := service.NewAuthService(store, service.AuthOptions{JWTSecret: testJWTSecret}, logger, nil)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	keys := service.NewAPIKeyService(store, c, logger, nil)
	usageSvc := usage.NewService(usage.NewCache(usage.EmbeddedLoader{}, 0), logger, nil)
	doc := openapi.GenerateConsoleSpec("http://localhost:8080")

	sessions := NewSessionHandler(auth)
	keyHandler := NewKeyHandler(keys)
	usageHandler := NewUsageHandler(usageSvc)
	usageHandler.now = func() time.Time { return time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC) }
	docsHandler := NewDocsHandler(docs.DefaultConfig(""), docs.Features{EnableThemeToggle: true}, doc)
	system := NewSystemHandler(store, doc)

	r := chi.NewRouter()
	r.Get("/healthz", system.Healthz)
	r.Get("/readyz", system.Readyz)
	r.Get("/openapi.json", system.OpenAPI)
	r.Get("/usage-data.json", system.UsageFixture)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", sessions.Login)
		r.Post("/session/guest", sessions.Guest)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(auth))
			r.Get("/session", sessions.Current)
			r.Delete("/session", sessions.Logout)
			r.Post("/session/refresh", sessions.Refresh)

			r.Get("/keys", keyHandler.List)
			r.Post("/keys", keyHandler.Create)
			r.Get("/keys/{keyId}", keyHandler.Get)
			r.Delete("/keys/{keyId}", keyHandler.Delete)
			r.Post("/keys/{keyId}/revoke", keyHandler.Revoke)
			r.Post("/keys/{keyId}/regenerate", keyHandler.Regenerate)

			r.Get("/usage/daily", usageHandler.Daily)
			r.Get("/usage/events", usageHandler.Events)
			r.Get("/usage/chart", usageHandler.Chart)
			r.Get("/usage/summary", usageHandler.Summary)
			r.Get("/usage/export", usageHandler.Export)
			r.Get("/usage/keys/{keyId}", usageHandler.Key)
			r.Post("/usage/cache/clear", usageHandler.ClearCache)

			r.Get("/docs/examples", docsHandler.Examples)
			r.Get("/docs/schemas", docsHandler.Schemas)
			r.Get("/features", docsHandler.Features)
		})
	})

	return &testEnv{auth: auth, store: store, router: r}
}

// do performs a request against the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// login signs in as the demo user and returns the access token.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rr := e.do(t, "POST", "/api/v1/session", "", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("login: status %d, body %s", rr.Code, rr.Body.String())
	}
	var sess model.Session
	decodeJSON(t, rr, &sess)
	return sess.Token.AccessToken
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Code != rr.Code {
		t.Errorf("error envelope code %d, status %d", resp.Error.Code, rr.Code)
	}
	return resp.Error.Message
}

// listResponse mirrors model.ListResponse with a concrete resource type.
type listResponse[T any] struct {
	Resource []T                `json:"resource"`
	Meta     model.ResponseMeta `json:"meta"`
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do(t, "GET", "/api/v1/session", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("signed-out session: status %d", rr.Code)
	}

	token := env.login(t)

	rr := env.do(t, "GET", "/api/v1/session", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("current session: status %d", rr.Code)
	}
	var u model.User
	decodeJSON(t, rr, &u)
	if u.Email != "user@example.com" || u.Role != model.RoleUser {
		t.Errorf("user = %+v", u)
	}

	rr = env.do(t, "POST", "/api/v1/session/refresh", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: status %d", rr.Code)
	}
	var tok model.AuthToken
	decodeJSON(t, rr, &tok)
	if tok.AccessToken == token {
		t.Error("refresh should issue a new access token")
	}
	if rr := env.do(t, "GET", "/api/v1/keys", token, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("superseded token accepted: status %d", rr.Code)
	}
	if rr := env.do(t, "GET", "/api/v1/keys", tok.AccessToken, nil); rr.Code != http.StatusOK {
		t.Errorf("refreshed token rejected: status %d", rr.Code)
	}

	if rr := env.do(t, "DELETE", "/api/v1/session", tok.AccessToken, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rr.Code)
	}
	if rr := env.do(t, "GET", "/api/v1/keys", tok.AccessToken, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("token accepted after logout: status %d", rr.Code)
	}
}

func TestSessionRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	for _, route := range []struct{ method, path string }{
		{"POST", "/api/v1/session/refresh"},
		{"DELETE", "/api/v1/session"},
		{"GET", "/api/v1/session"},
	} {
		if rr := env.do(t, route.method, route.path, "", nil); rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without a token: status %d, want 401", route.method, route.path, rr.Code)
		}
	}
	if rr := env.do(t, "GET", "/api/v1/keys", token, nil); rr.Code != http.StatusOK {
		t.Errorf("owner's token no longer works: status %d", rr.Code)
	}
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"wrong password", map[string]string{"email": "user@example.com", "password": "wrongpass"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"email": "who@example.com", "password": "password123"}, http.StatusUnauthorized},
		{"invalid email", map[string]string{"email": "nope", "password": "password123"}, http.StatusBadRequest},
		{"short password", map[string]string{"email": "user@example.com", "password": "123"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/v1/session", "", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			errorMessage(t, rr)
		})
	}

	req := httptest.NewRequest("POST", "/api/v1/session", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d", rr.Code)
	}
}

func TestGuestSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/v1/session/guest", "", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("guest: status %d", rr.Code)
	}
	var sess model.Session
	decodeJSON(t, rr, &sess)
	if sess.User != service.GuestUser {
		t.Errorf("user = %+v, want guest", sess.User)
	}

	rr = env.do(t, "GET", "/api/v1/usage/daily", sess.Token.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("guest usage: status %d", rr.Code)
	}
	var days listResponse[model.DailyUsage]
	decodeJSON(t, rr, &days)
	if len(days.Resource) == 0 {
		t.Error("guest should see the guest fixture usage")
	}
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func TestKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rr := env.do(t, "POST", "/api/v1/keys", token, map[string]string{"name": "Production"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rr.Code, rr.Body.String())
	}
	var created model.APIKey
	decodeJSON(t, rr, &created)
	if !strings.HasPrefix(created.Key, "zk_") || len(created.Key) != 35 {
		t.Errorf("key = %q", created.Key)
	}
	if created.MaskedKey != model.MaskKey(created.Key) || created.Status != model.KeyActive || created.UserID != "1" {
		t.Errorf("created = %+v", created)
	}

	rr = env.do(t, "GET", "/api/v1/keys", token, nil)
	var list listResponse[model.APIKey]
	decodeJSON(t, rr, &list)
	if list.Meta.Count != 1 || len(list.Resource) != 1 || list.Resource[0].Key != created.Key {
		t.Fatalf("list = %+v", list)
	}

	rr = env.do(t, "GET", "/api/v1/keys/"+created.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status %d", rr.Code)
	}

	rr = env.do(t, "POST", "/api/v1/keys/"+created.ID+"/regenerate", token, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("regenerate: status %d, body %s", rr.Code, rr.Body.String())
	}
	var replacement model.APIKey
	decodeJSON(t, rr, &replacement)
	if replacement.ID == created.ID || replacement.Name != "Production" || replacement.Key == created.Key {
		t.Errorf("replacement = %+v", replacement)
	}

	rr = env.do(t, "POST", "/api/v1/keys/"+created.ID+"/regenerate", token, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("regenerating a revoked key: status %d, want 409", rr.Code)
	}

	if rr := env.do(t, "POST", "/api/v1/keys/"+replacement.ID+"/revoke", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("revoke: status %d", rr.Code)
	}
	rr = env.do(t, "GET", "/api/v1/keys/"+replacement.ID, token, nil)
	var revoked model.APIKey
	decodeJSON(t, rr, &revoked)
	if revoked.Status != model.KeyRevoked {
		t.Errorf("status after revoke = %s", revoked.Status)
	}

	if rr := env.do(t, "DELETE", "/api/v1/keys/"+created.ID, token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rr.Code)
	}
	if rr := env.do(t, "GET", "/api/v1/keys/"+created.ID, token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rr.Code)
	}
}

func TestKeyErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	if rr := env.do(t, "GET", "/api/v1/keys", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d", rr.Code)
	}

	rr := env.do(t, "POST", "/api/v1/keys", token, map[string]string{"name": ""})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty name: status %d", rr.Code)
	}
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Context["field"] != "name" {
		t.Errorf("error context = %v", resp.Error.Context)
	}

	if rr := env.do(t, "POST", "/api/v1/keys", token, map[string]string{"name": strings.Repeat("x", 101)}); rr.Code != http.StatusBadRequest {
		t.Errorf("long name: status %d", rr.Code)
	}
	if rr := env.do(t, "POST", "/api/v1/keys/key_missing/regenerate", token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("regenerate unknown: status %d", rr.Code)
	}
	if rr := env.do(t, "POST", "/api/v1/keys/key_missing/revoke", token, nil); rr.Code != http.StatusNoContent {
		t.Errorf("revoke unknown should be a no-op: status %d", rr.Code)
	}
}

func TestKeysArePartitionedByUser(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	rr := env.do(t, "POST", "/api/v1/keys", token, map[string]string{"name": "Mine"})
	var mine model.APIKey
	decodeJSON(t, rr, &mine)

	rr = env.do(t, "POST", "/api/v1/session/guest", "", nil)
	var guest model.Session
	decodeJSON(t, rr, &guest)

	rr = env.do(t, "GET", "/api/v1/keys", guest.Token.AccessToken, nil)
	var list listResponse[model.APIKey]
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 0 {
		t.Errorf("guest sees %d keys of another user", len(list.Resource))
	}
	if rr := env.do(t, "GET", "/api/v1/keys/"+mine.ID, guest.Token.AccessToken, nil); rr.Code != http.StatusNotFound {
		t.Errorf("guest reading another user's key: status %d", rr.Code)
	}
}

func TestListReportsSkippedRecords(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.do(t, "POST", "/api/v1/keys", token, map[string]string{"name": "Good"})

	ctx := context.Background()
	err := env.store.Update(ctx, func(res credential.ReadResult) ([]model.EncryptedAPIKey, error) {
		bad := res.Records[0]
		bad.ID = "key_corrupt"
		bad.EncryptedKey = "bm90LXJlYWwtY2lwaGVydGV4dA=="
		return append(res.Records, bad), nil
	})
	if err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	rr := env.do(t, "GET", "/api/v1/keys", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: status %d", rr.Code)
	}
	var list listResponse[model.APIKey]
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 1 {
		t.Errorf("got %d keys, want 1", len(list.Resource))
	}
	if len(list.Meta.Skipped) != 1 || list.Meta.Skipped[0].ID != "key_corrupt" || list.Meta.Skipped[0].Index != 1 {
		t.Errorf("skipped = %+v", list.Meta.Skipped)
	}
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

func TestUsageDaily(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rr := env.do(t, "GET", "/api/v1/usage/daily", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("daily: status %d", rr.Code)
	}
	var all listResponse[model.DailyUsage]
	decodeJSON(t, rr, &all)
	if all.Meta.Count != len(all.Resource) || len(all.Resource) == 0 {
		t.Fatalf("count %d, resource %d", all.Meta.Count, len(all.Resource))
	}

	rr = env.do(t, "GET", "/api/v1/usage/daily?preset=last7days&types=4xx", token, nil)
	var week listResponse[model.DailyUsage]
	decodeJSON(t, rr, &week)
	if len(week.Resource) != 7 {
		t.Errorf("last7days: got %d days, want 7", len(week.Resource))
	}
	for _, d := range week.Resource {
		if d.Requests2xx != 0 || d.Requests5xx != 0 || d.TotalRequests != d.Requests4xx {
			t.Errorf("type filter not applied: %+v", d)
		}
	}

	rr = env.do(t, "GET", "/api/v1/usage/daily?start=2026-10-10&end=2026-10-11", token, nil)
	var window listResponse[model.DailyUsage]
	decodeJSON(t, rr, &window)
	if len(window.Resource) != 2 {
		t.Errorf("explicit window: got %d days, want 2", len(window.Resource))
	}
}

func TestUsageQueryErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	for _, q := range []string{
		"?types=3xx",
		"?preset=lastYear",
		"?start=2026-10-10",
		"?start=2026-10-10&end=yesterday",
		"?start=2026-10-11&end=2026-10-10",
	} {
		if rr := env.do(t, "GET", "/api/v1/usage/daily"+q, token, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, rr.Code)
		}
	}
	if rr := env.do(t, "GET", "/api/v1/usage/export?format=xml", token, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad export format: status %d", rr.Code)
	}
}

func TestUsageChartAndSummary(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rr := env.do(t, "GET", "/api/v1/usage/chart?preset=last30days", token, nil)
	var chart listResponse[model.ChartRow]
	decodeJSON(t, rr, &chart)
	if len(chart.Resource) != 30 {
		t.Fatalf("chart rows = %d, want 30", len(chart.Resource))
	}
	if chart.Resource[0].Date >= chart.Resource[len(chart.Resource)-1].Date {
		t.Error("chart rows should ascend")
	}

	rr = env.do(t, "GET", "/api/v1/usage/summary?preset=last30days", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("summary: status %d", rr.Code)
	}
	var sum model.UsageSummary
	decodeJSON(t, rr, &sum)
	total := 0
	for _, row := range chart.Resource {
		total += row.TotalRequests
	}
	if sum.TotalRequests != total {
		t.Errorf("summary total %d, chart total %d", sum.TotalRequests, total)
	}
}

func TestUsageEventsAndKey(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rr := env.do(t, "GET", "/api/v1/usage/events?types=5xx&preset=last7days", token, nil)
	var events listResponse[model.UsageEvent]
	decodeJSON(t, rr, &events)
	for _, e := range events.Resource {
		if e.Type != model.Request5xx {
			t.Errorf("unexpected event type %s", e.Type)
		}
	}

	rr = env.do(t, "GET", "/api/v1/usage/keys/key_1760000000000_demo001", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("key usage: status %d", rr.Code)
	}
	var ku model.KeyUsage
	decodeJSON(t, rr, &ku)
	if ku.UserID != "1" || len(ku.DailyUsage) == 0 {
		t.Errorf("key usage = %+v", ku.KeyID)
	}

	if rr := env.do(t, "GET", "/api/v1/usage/keys/key_1760000000002_guest01", token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("another user's key usage: status %d, want 404", rr.Code)
	}
	if rr := env.do(t, "POST", "/api/v1/usage/cache/clear", token, nil); rr.Code != http.StatusNoContent {
		t.Errorf("cache clear: status %d", rr.Code)
	}
}

func TestUsageExport(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rr := env.do(t, "GET", "/api/v1/usage/export?start=2026-10-12&end=2026-10-13", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "usage-daily.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(rr.Body.String(), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "Date,Total Requests") || !strings.HasPrefix(lines[1], "2026-10-13,") {
		t.Errorf("daily export:\n%s", rr.Body.String())
	}

	rr = env.do(t, "GET", "/api/v1/usage/export?format=events&preset=last7days", token, nil)
	if !strings.HasPrefix(rr.Body.String(), "Date,Type,Kind,Count,Cost") {
		t.Errorf("events export:\n%s", rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Docs and system
// ---------------------------------------------------------------------------

func TestDocsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rr := env.do(t, "GET", "/api/v1/docs/examples?apiKey=zk_demo", token, nil)
	var examples listResponse[docs.CodeExample]
	decodeJSON(t, rr, &examples)
	if len(examples.Resource) != 3 || !strings.Contains(examples.Resource[0].Code, "x-api-key: zk_demo") {
		t.Errorf("examples = %+v", examples.Resource)
	}

	rr = env.do(t, "GET", "/api/v1/docs/schemas", token, nil)
	var schemas map[string]string
	decodeJSON(t, rr, &schemas)
	if !strings.Contains(schemas["APIKey"], "maskedKey: string") {
		t.Errorf("APIKey schema = %q", schemas["APIKey"])
	}

	rr = env.do(t, "GET", "/api/v1/features", token, nil)
	var features docs.Features
	decodeJSON(t, rr, &features)
	if !features.EnableThemeToggle {
		t.Error("theme toggle flag lost")
	}
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do(t, "GET", "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Errorf("healthz: status %d", rr.Code)
	}
	if rr := env.do(t, "GET", "/readyz", "", nil); rr.Code != http.StatusOK {
		t.Errorf("readyz: status %d", rr.Code)
	}

	rr := env.do(t, "GET", "/usage-data.json", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("fixture: status %d", rr.Code)
	}
	data, err := usage.Decode(rr.Body)
	if err != nil || len(data) == 0 {
		t.Errorf("served fixture does not decode: %v", err)
	}

	rr = env.do(t, "GET", "/openapi.json", "", nil)
	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
}

func TestReadyzDegraded(t *testing.T) {
	h := NewSystemHandler(failingPinger{}, openapi.GenerateConsoleSpec(""))
	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest("GET", "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rr.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &body)
	if body.Status != "degraded" || !strings.Contains(body.Checks["storage"], "connection refused") {
		t.Errorf("body = %+v", body)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&model.ValidationError{Field: "name", Message: "must not be empty"}, http.StatusBadRequest},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrNotAuthenticated, http.StatusUnauthorized},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrKeyRevoked, http.StatusConflict},
		{&credential.PersistenceError{Index: 0, Err: errors.New("disk full")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		writeServiceError(rr, tt.err, "op")
		if rr.Code != tt.want {
			t.Errorf("%v: status %d, want %d", tt.err, rr.Code, tt.want)
		}
	}
}

func TestQueryList(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?types=2xx,%204xx%20,,", nil)
	got := queryList(r, "types")
	if len(got) != 2 || got[0] != "2xx" || got[1] != "4xx" {
		t.Errorf("queryList = %q", got)
	}
	if got := queryList(httptest.NewRequest("GET", "/x", nil), "types"); got != nil {
		t.Errorf("missing param = %q, want nil", got)
	}
}
