package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/handler"
	"github.com/zamadev/sandbox/internal/metrics"
	"github.com/zamadev/sandbox/internal/openapi"
	"github.com/zamadev/sandbox/internal/server/middleware"
	"github.com/zamadev/sandbox/internal/service"
	"github.com/zamadev/sandbox/internal/usage"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	PublicURL       string // advertised in the OpenAPI document; derived from Port when empty
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes

	// Requests per minute. Zero disables the limit.
	SessionRateLimit int
	KeyRateLimit     int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		Port:             8080,
		ShutdownTimeout:  30 * time.Second,
		CORSOrigins:      []string{"*"},
		MaxBodySize:      1024 * 1024, // 1MB
		SessionRateLimit: 10,
		KeyRateLimit:     30,
	}
}

// Deps are the services the server routes to.
type Deps struct {
	Auth  *service.AuthService
	Keys  *service.APIKeyService
	Usage *usage.Service
	Store handler.Pinger

	Docs     docs.Config
	Features docs.Features

	// Metrics records request metrics; nil disables them. Gatherer, when
	// set, is served at /metrics.
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Server is the top-level HTTP server of the developer console. It owns the
// Chi router and the services behind it.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) publicURL() string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	return fmt.Sprintf("http://localhost:%d", s.cfg.Port)
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Total-Count", "X-Request-ID", "Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	r.Use(middleware.Metrics(s.deps.Metrics))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	doc := openapi.GenerateConsoleSpec(s.publicURL())
	sysHandler := handler.NewSystemHandler(s.deps.Store, doc)

	// --- Probes, documents and the usage fixture (no auth required) ---
	r.Get("/healthz", sysHandler.Healthz)
	r.Get("/readyz", sysHandler.Readyz)
	r.Get("/openapi.json", sysHandler.OpenAPI)
	r.Get("/usage-data.json", sysHandler.UsageFixture)
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.deps.Gatherer))
	}
	// MCP tools act as the signed-in user, so they need that user's token.
	if s.deps.MCP != nil {
		r.With(middleware.Authenticate(s.deps.Auth)).Handle("/mcp", s.deps.MCP)
	}

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		sessions := handler.NewSessionHandler(s.deps.Auth)
		keys := handler.NewKeyHandler(s.deps.Keys)
		usageHandler := handler.NewUsageHandler(s.deps.Usage)
		docsHandler := handler.NewDocsHandler(s.deps.Docs, s.deps.Features, doc)

		// Signing in needs no token; reading, refreshing or ending the
		// session needs the current one.
		r.Route("/session", func(r chi.Router) {
			limited := r.With(middleware.RateLimit(s.cfg.SessionRateLimit))
			limited.Post("/", sessions.Login)
			limited.Post("/guest", sessions.Guest)

			authed := r.With(middleware.Authenticate(s.deps.Auth))
			authed.Get("/", sessions.Current)
			authed.Delete("/", sessions.Logout)
			authed.Post("/refresh", sessions.Refresh)
		})

		// Everything else requires the profile's live access token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth))

			// API key management
			r.Get("/keys", keys.List)
			r.With(middleware.RateLimitByHeader("Authorization", s.cfg.KeyRateLimit)).Post("/keys", keys.Create)
			r.Get("/keys/{keyId}", keys.Get)
			r.Delete("/keys/{keyId}", keys.Delete)
			r.Post("/keys/{keyId}/revoke", keys.Revoke)
			r.Post("/keys/{keyId}/regenerate", keys.Regenerate)

			// Usage analytics
			r.Get("/usage/daily", usageHandler.Daily)
			r.Get("/usage/events", usageHandler.Events)
			r.Get("/usage/chart", usageHandler.Chart)
			r.Get("/usage/summary", usageHandler.Summary)
			r.Get("/usage/export", usageHandler.Export)
			r.Get("/usage/keys/{keyId}", usageHandler.Key)
			r.Post("/usage/cache/clear", usageHandler.ClearCache)

			// Integration docs
			r.Get("/docs/examples", docsHandler.Examples)
			r.Get("/docs/schemas", docsHandler.Schemas)
			r.Get("/features", docsHandler.Features)
		})
	})

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "public_url", s.publicURL())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
