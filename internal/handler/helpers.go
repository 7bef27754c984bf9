package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/server/middleware"
	"github.com/zamadev/sandbox/internal/service"
	"github.com/zamadev/sandbox/internal/usage"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeServiceError maps a service error onto its HTTP status. action names
// the failed operation in 500 messages.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error(), map[string]interface{}{"field": ve.Field})
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "Not signed in")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "API key not found")
	case errors.Is(err, service.ErrKeyRevoked):
		writeError(w, http.StatusConflict, "API key is revoked and cannot be regenerated")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, action+": "+err.Error())
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryList splits a comma-separated query parameter, dropping empty items.
func queryList(r *http.Request, key string) []string {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// requireUser returns the user attached by the Authenticate middleware,
// writing a 401 when there is none.
func requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u := middleware.GetUser(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return u, true
}

// usageQuery is the parsed form of the usage endpoints' query parameters.
type usageQuery struct {
	Types  []model.RequestType
	Window *usage.DateRange
}

// parseUsageQuery reads types, preset, start and end. An explicit start/end
// pair wins over a preset; with neither the window is unbounded.
func parseUsageQuery(r *http.Request, now time.Time) (usageQuery, error) {
	var q usageQuery
	types, err := model.ParseRequestTypes(queryList(r, "types"))
	if err != nil {
		return q, err
	}
	q.Types = types

	window, err := usage.ParseWindow(queryString(r, "preset"), queryString(r, "start"), queryString(r, "end"), now)
	if err != nil {
		return q, err
	}
	q.Window = window
	return q, nil
}

// days applies the window to days.
func (q usageQuery) days(days []model.DailyUsage) []model.DailyUsage {
	if q.Window == nil {
		return days
	}
	return usage.FilterByDateRange(days, q.Window.Start, q.Window.End)
}

// events applies the window and the type selection to events.
func (q usageQuery) events(events []model.UsageEvent) []model.UsageEvent {
	if q.Window != nil {
		events = usage.FilterEventsByDateRange(events, q.Window.Start, q.Window.End)
	}
	return usage.FilterEventsByType(events, q.Types)
}
