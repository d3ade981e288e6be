// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package server exposes the daemon API: typed REST operations through huma
// on a chi router, plus one raw SSE route for training progress streams.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr string

	// AuthToken guards every /api/v1 route with a bearer check when set.
	// Empty disables auth, the default for a loopback-only daemon.
	AuthToken string

	// CORSOrigins lists allowed cross-origin hosts. Empty disables
	// cross-origin access entirely.
	CORSOrigins []string

	ReadTimeout time.Duration

	// WriteTimeout stays zero unless set: training streams are long-lived
	// and a write deadline would cut them off mid-batch.
	WriteTimeout time.Duration
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
}

// Validate checks the configuration before the server is built.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return mnemoerr.New(mnemoerr.CodeServerConfigInvalid, "listen address is required")
	}
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return mnemoerr.New(mnemoerr.CodeServerConfigInvalid,
				"wildcard CORS origin is not allowed with credentialed requests")
		}
	}
	return nil
}

// Server wraps a chi router with a huma API and the listener lifecycle.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
	logger   *slog.Logger

	mu      sync.Mutex
	httpSrv *http.Server
}

// New creates a Server with middleware, the health endpoint, and the
// training stream route. REST routes appear once RegisterServices runs.
func New(cfg Config) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(securityHeaders)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(corsMiddleware(cfg.CORSOrigins))
	}
	r.Use(NewAuthMiddleware(cfg.AuthToken, publicPathPrefixes))

	humaConfig := huma.DefaultConfig("Mnemo", "0.1.0")
	humaConfig.Info.Description = "Knowledge ingestion and vector training daemon API"
	api := humachi.New(r, humaConfig)

	srv := &Server{
		router: r,
		api:    api,
		cfg:    cfg,
		logger: slog.Default().With(slog.String("component", "server")),
	}

	huma.Register(api, huma.Operation{
		OperationID: "healthz",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Daemon health",
		Tags:        []string{"system"},
	}, srv.handleHealthz)

	srv.registerTrainingRoute()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.logger.Info("daemon API listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeServerShutdownFailure, "shutting down")
	}

	return <-errCh
}

// Close immediately closes the listener if the server is running. Tests use
// it for cleanup; production shutdown goes through Start's context.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Daemon health status"`

	// Embedding is set once services with a health reporter are registered.
	Embedding *health.Metrics `json:"embedding,omitempty" doc:"Embedding provider health"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

func (s *Server) handleHealthz(_ context.Context, _ *struct{}) (*HealthResponse, error) {
	body := HealthBody{Status: "ok"}
	if s.services != nil && s.services.health != nil {
		m := s.services.health.Metrics()
		body.Embedding = &m
	}
	return &HealthResponse{Body: body}, nil
}

// securityHeaders sets the response headers every endpoint shares. The API
// serves no HTML, so the content security policy denies everything.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "0")
		h.Set("Cache-Control", "no-store")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// writeError emits a plain JSON error body on routes that bypass huma.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
