package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/usage"
)

// UsageHandler serves the usage analytics of the signed-in user.
type UsageHandler struct {
	usage *usage.Service
	now   func() time.Time
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(svc *usage.Service) *UsageHandler {
	return &UsageHandler{usage: svc, now: time.Now}
}

// Daily returns per-day usage across the user's keys, newest first.
// GET /api/v1/usage/daily
func (h *UsageHandler) Daily(w http.ResponseWriter, r *http.Request) {
	days, q, ok := h.dailyWindow(w, r)
	if !ok {
		return
	}
	days = usage.FilterDailyByTypes(days, q.Types)
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: days,
		Meta:     &model.ResponseMeta{Count: len(days)},
	})
}

// Events returns the user's usage events, newest first.
// GET /api/v1/usage/events
func (h *UsageHandler) Events(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	q, err := parseUsageQuery(r, h.now())
	if err != nil {
		writeServiceError(w, err, "Invalid usage query")
		return
	}
	events, err := h.usage.Events(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, err, "Failed to load usage")
		return
	}
	events = q.events(events)
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: events,
		Meta:     &model.ResponseMeta{Count: len(events)},
	})
}

// Chart returns chart rows, oldest first.
// GET /api/v1/usage/chart
func (h *UsageHandler) Chart(w http.ResponseWriter, r *http.Request) {
	days, q, ok := h.dailyWindow(w, r)
	if !ok {
		return
	}
	rows := usage.FormatForChart(days, q.Types)
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: rows,
		Meta:     &model.ResponseMeta{Count: len(rows)},
	})
}

// Summary returns the headline numbers of the window.
// GET /api/v1/usage/summary
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	days, q, ok := h.dailyWindow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, usage.Summarize(days, q.Types))
}

// Key returns the usage history of one of the user's keys.
// GET /api/v1/usage/keys/{keyId}
func (h *UsageHandler) Key(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	keyID := chi.URLParam(r, "keyId")
	ku, err := h.usage.UsageByKey(r.Context(), keyID, u.ID)
	if err != nil {
		writeServiceError(w, err, "Failed to load usage")
		return
	}
	if ku == nil {
		writeError(w, http.StatusNotFound, "No usage recorded for key", map[string]interface{}{"keyId": keyID})
		return
	}
	writeJSON(w, http.StatusOK, ku)
}

// Export writes the window as CSV. format selects daily rows (default) or
// individual events.
// GET /api/v1/usage/export
func (h *UsageHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := queryString(r, "format")
	if format == "" {
		format = "daily"
	}
	if format != "daily" && format != "events" {
		writeError(w, http.StatusBadRequest, "format must be daily or events")
		return
	}

	var (
		out string
		err error
	)
	if format == "events" {
		u, ok := requireUser(w, r)
		if !ok {
			return
		}
		q, qerr := parseUsageQuery(r, h.now())
		if qerr != nil {
			writeServiceError(w, qerr, "Invalid usage query")
			return
		}
		events, lerr := h.usage.Events(r.Context(), u.ID)
		if lerr != nil {
			writeServiceError(w, lerr, "Failed to load usage")
			return
		}
		out, err = usage.EventsCSV(q.events(events))
	} else {
		days, q, ok := h.dailyWindow(w, r)
		if !ok {
			return
		}
		out, err = usage.DailyCSV(usage.FilterDailyByTypes(days, q.Types))
	}
	if err != nil {
		writeServiceError(w, err, "Failed to export usage")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="usage-`+format+`.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

// ClearCache drops the cached dataset so the next query reloads it.
// POST /api/v1/usage/cache/clear
func (h *UsageHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.usage.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// dailyWindow loads the user's aggregated days and applies the date window.
// Type selection is left to the caller since each view applies it differently.
func (h *UsageHandler) dailyWindow(w http.ResponseWriter, r *http.Request) ([]model.DailyUsage, usageQuery, bool) {
	u, ok := requireUser(w, r)
	if !ok {
		return nil, usageQuery{}, false
	}
	q, err := parseUsageQuery(r, h.now())
	if err != nil {
		writeServiceError(w, err, "Invalid usage query")
		return nil, q, false
	}
	days, err := h.usage.DailyUsage(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, err, "Failed to load usage")
		return nil, q, false
	}
	return q.days(days), q, true
}
