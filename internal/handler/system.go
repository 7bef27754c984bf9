package handler

import (
	"context"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/zamadev/sandbox/internal/fixture"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves the probes, the API document and the usage fixture.
type SystemHandler struct {
	store Pinger
	doc   *openapi3.T
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store Pinger, doc *openapi3.T) *SystemHandler {
	return &SystemHandler{store: store, doc: doc}
}

// Healthz is a liveness probe. Returns 200 if the process is running.
// GET /healthz
func (h *SystemHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz is a readiness probe. Returns 503 when the profile storage cannot
// be reached.
// GET /readyz
func (h *SystemHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"storage": "ok"}
	status, code := "ok", http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		checks["storage"] = "error: " + err.Error()
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// OpenAPI serves the API document.
// GET /openapi.json
func (h *SystemHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.doc)
}

// UsageFixture serves the embedded usage dataset.
// GET /usage-data.json
func (h *SystemHandler) UsageFixture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(fixture.UsageData)
}
