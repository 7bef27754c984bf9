package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/service"
)

// KeyHandler serves the API key lifecycle of the signed-in user.
type KeyHandler struct {
	keys *service.APIKeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keys *service.APIKeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

type createKeyRequest struct {
	Name string `json:"name"`
}

// List returns the caller's keys. Records that could not be decrypted are
// reported in meta.skipped.
// GET /api/v1/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.keys.GetAllKeys(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, err, "Failed to list API keys")
		return
	}
	keys := list.Keys
	if keys == nil {
		keys = []model.APIKey{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys), Skipped: list.Skipped},
	})
}

// Create mints a key. The response is the only place the plaintext secret is
// returned at creation time.
// POST /api/v1/keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	key, err := h.keys.CreateKey(r.Context(), model.CreateKeyInput{UserID: u.ID, Name: req.Name})
	if err != nil {
		writeServiceError(w, err, "Failed to create API key")
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// Get returns one key.
// GET /api/v1/keys/{keyId}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	in, ok := keyInput(w, r)
	if !ok {
		return
	}
	key, err := h.keys.GetKey(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "Failed to read API key")
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// Revoke marks a key revoked. Unknown keys are a silent no-op.
// POST /api/v1/keys/{keyId}/revoke
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	in, ok := keyInput(w, r)
	if !ok {
		return
	}
	if err := h.keys.RevokeKey(r.Context(), in); err != nil {
		writeServiceError(w, err, "Failed to revoke API key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Regenerate revokes a key and returns its replacement.
// POST /api/v1/keys/{keyId}/regenerate
func (h *KeyHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	in, ok := keyInput(w, r)
	if !ok {
		return
	}
	key, err := h.keys.RegenerateKey(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "Failed to regenerate API key")
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// Delete removes a key. Unknown keys are a silent no-op.
// DELETE /api/v1/keys/{keyId}
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	in, ok := keyInput(w, r)
	if !ok {
		return
	}
	if err := h.keys.DeleteKey(r.Context(), in); err != nil {
		writeServiceError(w, err, "Failed to delete API key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func keyInput(w http.ResponseWriter, r *http.Request) (model.KeyOperationInput, bool) {
	u, ok := requireUser(w, r)
	if !ok {
		return model.KeyOperationInput{}, false
	}
	return model.KeyOperationInput{KeyID: chi.URLParam(r, "keyId"), UserID: u.ID}, true
}
