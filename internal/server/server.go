// Package server exposes the job cache as a read-only HTTP listing API.
//
// The API is pull-only: GET /health, /version, /api/v1/jobs and
// /api/v1/servers. There is no push notification of job-state changes and
// no mutation surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	apperrors "github.com/3leaps/jobkeep/internal/errors"
	"github.com/3leaps/jobkeep/internal/server/handlers"
	"github.com/3leaps/jobkeep/internal/server/middleware"
)

// Options configures a Server.
type Options struct {
	Host    string
	Port    int
	Version string
	Commit  string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// RateLimit is requests per second shared by all clients; zero
	// disables throttling. RateBurst is the bucket size.
	RateLimit float64
	RateBurst int
}

// Server is the read-only listing API bound to one job cache.
type Server struct {
	opts   Options
	router chi.Router
}

// New builds a Server over the given job source.
func New(opts Options, src handlers.JobSource) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		r.Use(middleware.RateLimit(rate.Limit(opts.RateLimit), burst))
	}

	r.NotFound(apperrors.NotFoundHandler)
	r.MethodNotAllowed(apperrors.MethodNotAllowedHandler)

	r.Get("/health", handlers.Health())
	r.Get("/version", handlers.Version(opts.Version, opts.Commit))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", handlers.Jobs(src))
		r.Get("/servers", handlers.Servers(src))
	})

	return &Server{opts: opts, router: r}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.opts.Port }

// Addr returns the listen address.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port) }

// Run serves until the context is cancelled, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		timeout := s.opts.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
