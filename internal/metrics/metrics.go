// Package metrics collects and exposes Prometheus metrics for the console
// services and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by the service layer and middleware.
type Recorder interface {
	RecordKeyOperation(op, result string)
	RecordKeySkipped(reason string)
	RecordAuthEvent(event, result string)
	RecordUsageLoad(source string, hit bool)
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

// Nop discards every observation. It is the default when no registry is wired.
type Nop struct{}

func (Nop) RecordKeyOperation(string, string) {}
func (Nop) RecordKeySkipped(string) {}
func (Nop) RecordAuthEvent(string, string) {}
func (Nop) RecordUsageLoad(string, bool) {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	keyOps      *prometheus.CounterVec
	keySkipped  *prometheus.CounterVec
	authEvents  *prometheus.CounterVec
	usageLoads  *prometheus.CounterVec
	httpReqs    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		keyOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_api_key_operations_total",
			Help: "API key lifecycle operations by operation and result.",
		}, []string{"operation", "result"}),
		keySkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_api_key_records_skipped_total",
			Help: "Stored API key records left out of a read.",
		}, []string{"reason"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_auth_events_total",
			Help: "Session events by event and result.",
		}, []string{"event", "result"}),
		usageLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_usage_loads_total",
			Help: "Usage fixture reads by source and cache outcome.",
		}, []string{"source", "cache"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sandbox_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.keyOps,
		c.keySkipped,
		c.authEvents,
		c.usageLoads,
		c.httpReqs,
		c.httpLatency,
	)

	return c
}

// RecordKeyOperation counts one lifecycle operation.
func (c *Collector) RecordKeyOperation(op, result string) {
	c.keyOps.WithLabelValues(op, result).Inc()
}

// RecordKeySkipped counts one record dropped from a read.
func (c *Collector) RecordKeySkipped(reason string) {
	c.keySkipped.WithLabelValues(reason).Inc()
}

// RecordAuthEvent counts a login, guest entry, refresh, logout or expiry.
func (c *Collector) RecordAuthEvent(event, result string) {
	c.authEvents.WithLabelValues(event, result).Inc()
}

// RecordUsageLoad counts a usage read served from cache or from the loader.
func (c *Collector) RecordUsageLoad(source string, hit bool) {
	cache := "miss"
	if hit {
		cache = "hit"
	}
	c.usageLoads.WithLabelValues(source, cache).Inc()
}

// RecordHTTPRequest counts a request and observes its latency.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpReqs.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
