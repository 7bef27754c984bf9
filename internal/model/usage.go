package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RequestType buckets a request by its HTTP status class.
type RequestType string

const (
	Request2xx RequestType = "2xx"
	Request4xx RequestType = "4xx"
	Request5xx RequestType = "5xx"
)

// AllRequestTypes lists every request type in display order.
var AllRequestTypes = []RequestType{Request2xx, Request4xx, Request5xx}

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	return t == Request2xx || t == Request4xx || t == Request5xx
}

// ParseRequestTypes converts raw strings (as taken from query parameters or
// flags) into request types, rejecting unknown values.
func ParseRequestTypes(raw []string) ([]RequestType, error) {
	out := make([]RequestType, 0, len(raw))
	for _, r := range raw {
		t := RequestType(r)
		if !t.Valid() {
			return nil, fieldError("types", fmt.Sprintf("unknown request type %q", r))
		}
		out = append(out, t)
	}
	return out, nil
}

// RequestTypeInfo is the display metadata for a request type.
type RequestTypeInfo struct {
	Type        RequestType `json:"type"`
	Label       string      `json:"label"`
	ShortLabel  string      `json:"shortLabel"`
	Description string      `json:"description"`
	ChartColor  string      `json:"chartColor"`
}

var requestTypeInfo = map[RequestType]RequestTypeInfo{
	Request2xx: {Type: Request2xx, Label: "Successful (2xx)", ShortLabel: "2xx", Description: "Successful requests", ChartColor: "#10b981"},
	Request4xx: {Type: Request4xx, Label: "Client Errors (4xx)", ShortLabel: "4xx", Description: "Client-side errors", ChartColor: "#f59e0b"},
	Request5xx: {Type: Request5xx, Label: "Server Errors (5xx)", ShortLabel: "5xx", Description: "Server-side errors", ChartColor: "#ef4444"},
}

// Info returns the display metadata for t.
func (t RequestType) Info() RequestTypeInfo {
	return requestTypeInfo[t]
}

// Label returns the long or short display label for t.
func (t RequestType) Label(short bool) string {
	info := requestTypeInfo[t]
	if short {
		return info.ShortLabel
	}
	return info.Label
}

// EventKind classifies what a usage event counted.
type EventKind string

const (
	EventRequest EventKind = "request"
	EventError   EventKind = "error"
	EventCustom  EventKind = "custom"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	return k == EventRequest || k == EventError || k == EventCustom
}

// UsageEvent is one counted group of requests on a given day.
type UsageEvent struct {
	Type  RequestType `json:"type"`
	Cost  float64     `json:"cost"`
	Date  time.Time   `json:"date"`
	Kind  EventKind   `json:"kind"`
	Count int         `json:"count"`
}

// UnmarshalJSON accepts either an RFC 3339 timestamp or a bare YYYY-MM-DD date.
func (e *UsageEvent) UnmarshalJSON(b []byte) error {
	type alias UsageEvent
	var raw struct {
		alias
		Date string `json:"date"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d, err := ParseUsageDate(raw.Date)
	if err != nil {
		return err
	}
	*e = UsageEvent(raw.alias)
	e.Date = d
	return nil
}

// Validate checks an event loaded from the usage fixture.
func (e UsageEvent) Validate() error {
	if !e.Type.Valid() {
		return fieldError("type", "must be one of 2xx, 4xx, 5xx")
	}
	if !e.Kind.Valid() {
		return fieldError("kind", "must be one of request, error, custom")
	}
	if e.Count < 1 {
		return fieldError("count", "must be at least 1")
	}
	if e.Cost < 0 {
		return fieldError("cost", "must not be negative")
	}
	if e.Date.IsZero() {
		return fieldError("date", "must be set")
	}
	return nil
}

// DailyUsage holds the counters of one key (or, once aggregated, one user)
// for one calendar day.
type DailyUsage struct {
	Date          time.Time    `json:"date"`
	TotalRequests int          `json:"totalRequests"`
	Requests2xx   int          `json:"requests2xx"`
	Requests4xx   int          `json:"requests4xx"`
	Requests5xx   int          `json:"requests5xx"`
	TotalCost     float64      `json:"totalCost"`
	Events        []UsageEvent `json:"events"`
}

// UnmarshalJSON accepts either an RFC 3339 timestamp or a bare YYYY-MM-DD date.
func (d *DailyUsage) UnmarshalJSON(b []byte) error {
	type alias DailyUsage
	var raw struct {
		alias
		Date string `json:"date"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := ParseUsageDate(raw.Date)
	if err != nil {
		return err
	}
	*d = DailyUsage(raw.alias)
	d.Date = t
	return nil
}

// Validate checks a day record and every event in it.
func (d DailyUsage) Validate() error {
	if d.Date.IsZero() {
		return fieldError("date", "must be set")
	}
	for name, v := range map[string]int{
		"totalRequests": d.TotalRequests,
		"requests2xx":   d.Requests2xx,
		"requests4xx":   d.Requests4xx,
		"requests5xx":   d.Requests5xx,
	} {
		if v < 0 {
			return fieldError(name, "must not be negative")
		}
	}
	if d.TotalCost < 0 {
		return fieldError("totalCost", "must not be negative")
	}
	for i, e := range d.Events {
		if err := e.Validate(); err != nil {
			return indexedFieldError("events", i, err)
		}
	}
	return nil
}

// KeyUsage binds a usage history to one key of one user.
type KeyUsage struct {
	KeyID      string       `json:"keyId"`
	UserID     string       `json:"userId"`
	DailyUsage []DailyUsage `json:"dailyUsage"`
}

// Validate checks a fixture entry.
func (u KeyUsage) Validate() error {
	if u.KeyID == "" {
		return fieldError("keyId", "must not be empty")
	}
	if u.UserID == "" {
		return fieldError("userId", "must not be empty")
	}
	for i, d := range u.DailyUsage {
		if err := d.Validate(); err != nil {
			return indexedFieldError("dailyUsage", i, err)
		}
	}
	return nil
}

// UsageFixture is the document shape served at the usage fixture path.
type UsageFixture struct {
	UsageData []KeyUsage `json:"usageData"`
}

// ChartRow is one point of the usage chart.
type ChartRow struct {
	Date          string  `json:"date"`
	TotalRequests int     `json:"totalRequests"`
	Requests2xx   int     `json:"requests2xx"`
	Requests4xx   int     `json:"requests4xx"`
	Requests5xx   int     `json:"requests5xx"`
	TotalCost     float64 `json:"totalCost"`
}

// UsageSummary holds the headline numbers of a usage window.
type UsageSummary struct {
	TotalRequests     int     `json:"totalRequests"`
	TotalCost         float64 `json:"totalCost"`
	AvgRequestsPerDay float64 `json:"avgRequestsPerDay"`
	AvgCostPerDay     float64 `json:"avgCostPerDay"`
	SuccessRate       float64 `json:"successRate"`
	ErrorRate         float64 `json:"errorRate"`
}

// ParseUsageDate parses the date formats used by the usage fixture.
func ParseUsageDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fieldError("date", "must be set")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fieldError("date", fmt.Sprintf("cannot parse %q", s))
}
