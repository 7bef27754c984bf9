package handler

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/openapi"
)

// DocsHandler serves the integration guide, the model reference and the
// feature flags.
type DocsHandler struct {
	cfg      docs.Config
	features docs.Features
	schemas  map[string]string
}

// NewDocsHandler creates a new DocsHandler. The model reference is rendered
// once from doc.
func NewDocsHandler(cfg docs.Config, features docs.Features, doc *openapi3.T) *DocsHandler {
	return &DocsHandler{cfg: cfg, features: features, schemas: openapi.FormatComponents(doc)}
}

// Examples returns the cURL, Node.js and Python snippets for a key.
// GET /api/v1/docs/examples?apiKey=
func (h *DocsHandler) Examples(w http.ResponseWriter, r *http.Request) {
	examples := docs.CodeExamples(queryString(r, "apiKey"), h.cfg.APIEndpoint)
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: examples,
		Meta:     &model.ResponseMeta{Count: len(examples)},
	})
}

// Schemas returns the type signature of every data model.
// GET /api/v1/docs/schemas
func (h *DocsHandler) Schemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schemas)
}

// Features returns the feature flags.
// GET /api/v1/features
func (h *DocsHandler) Features(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.features)
}
