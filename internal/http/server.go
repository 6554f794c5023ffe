// Package http provides the videovoice HTTP control plane.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/videovoice/videovoice/internal/config"
	"github.com/videovoice/videovoice/internal/http/middleware"
)

// Timeouts for the listener itself. Uploads can be large, so the read
// timeout is generous; handler-level deadlines bound the actual work.
const (
	readTimeout     = 30 * time.Minute
	writeTimeout    = 30 * time.Minute
	idleTimeout     = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
)

// Server is the HTTP control plane.
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router and middleware chain around the handlers.
func NewServer(cfg config.Config, handlers *Handlers, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	router.Get("/health", handlers.Health)

	// Only finished deliverables are exposed under /static; uploads and the
	// registry stay private.
	outputs := http.StripPrefix("/static/outputs/",
		http.FileServer(http.Dir(cfg.Storage.OutputDir())))
	router.Get("/static/outputs/*", outputs.ServeHTTP)

	router.Route("/api", func(r chi.Router) {
		if cfg.RateLimit.Requests > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration()))
		}
		r.Use(middleware.APIKey(cfg.Server.APIKey))

		r.Post("/jobs", handlers.CreateJob)
		r.Get("/jobs/{id}", handlers.GetJob)
		r.Post("/jobs/{id}/cancel", handlers.CancelJob)
		r.Get("/jobs/{id}/download", handlers.DownloadOutput)
		r.Get("/jobs/{id}/srt", handlers.DownloadCaptions)
		r.Get("/system/status", handlers.SystemStatus)
	})

	return &Server{
		cfg:    cfg.Server,
		router: router,
		logger: logger,
	}
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start blocks serving requests until the listener fails or is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown drains active connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
