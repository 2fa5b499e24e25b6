// Package server exposes the manual job trigger over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/metrics"
	"github.com/sells-group/grantwatch/internal/runlog"
)

// DefaultMaxBodyBytes bounds trigger request bodies.
const DefaultMaxBodyBytes = 64 << 10

// Runner runs named jobs.
type Runner interface {
	Has(name string) bool
	Names() []string
	Run(ctx context.Context, name string, limit int) (runlog.Summary, error)
}

// Options configures the server.
type Options struct {
	// Secret is the shared X-Cron-Secret value. Empty rejects every trigger.
	Secret         string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server is the manual trigger HTTP server.
type Server struct {
	runner   Runner
	opts     Options
	validate *validator.Validate
	router   chi.Router
}

// New creates a server.
func New(runner Runner, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		runner:   runner,
		opts:     opts,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", cronSecretHeader},
			MaxAge:         300,
		}))
	}

	s.router = r
	s.registerRoutes(r)
	return s
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/cron", func(r chi.Router) {
		r.Use(s.requireCronSecret)
		r.Use(maxBody(s.opts.MaxBodyBytes))
		r.Post("/{job}", s.trigger)
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// Manual triggers run the job inline.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}
