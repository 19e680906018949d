// Package web provides the HTTP server for uploading vehicle CSV files.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JonMunkholm/carimport/internal/config"
	"github.com/JonMunkholm/carimport/internal/core"
	"github.com/JonMunkholm/carimport/internal/store"
	"github.com/JonMunkholm/carimport/internal/web/middleware"
)

// Server is the HTTP server for the import application.
type Server struct {
	cfg     *config.Config
	store   store.Store
	limiter *core.ImportLimiter
	router  *chi.Mux
	done    chan struct{}

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a server importing through st. Concurrent imports are
// bounded by limiter, which the caller drains on shutdown.
func NewServer(st store.Store, limiter *core.ImportLimiter, cfg *config.Config) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		limiter: limiter,
		router:  chi.NewRouter(),
		done:    make(chan struct{}),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if len(s.cfg.Security.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Security.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         300,
		}))
	}

	if s.cfg.Rate.Enabled {
		rl := newRateLimiter(s.cfg.Rate.RequestsPerMinute)
		go rl.run(s.done)
		s.router.Use(rl.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	importLimit := func(next http.Handler) http.Handler { return next }
	if s.cfg.Rate.Enabled {
		rl := newRateLimiter(s.cfg.Rate.ImportLimit)
		go rl.run(s.done)
		importLimit = rl.middleware
	}

	auth := middleware.APIKeyAuth(&s.cfg.Security)

	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.RecordUser)

		r.Get("/", s.handleIndex)
		r.With(importLimit).Post("/import", s.handleImportForm)
	})

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.RecordUser)

		r.Get("/tables", s.handleListTables)
		r.Get("/schema/{tableKey}", s.handleSchema)
		r.Get("/imports", s.handleListImports)
		r.With(importLimit).Post("/import/{tableKey}", s.handleImportAPI)
	})
}

// Start listens on the configured address until Shutdown is called.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil
	default:
	}
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	s.server = srv
	s.mu.Unlock()

	slog.Info("server starting", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(csp bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if csp {
				// Pages carry their own inline stylesheet and no scripts.
				h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'none'; form-action 'self'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// importTimeout bounds a single import request.
func (s *Server) importTimeout() time.Duration {
	if s.cfg.Import.Timeout > 0 {
		return s.cfg.Import.Timeout
	}
	return 10 * time.Minute
}
