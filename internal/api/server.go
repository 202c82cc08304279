// Package api serves the table operations over HTTP with JSON bodies.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"vecsearch/internal/domain"
)

// Tables is the request layer the server drives.
type Tables interface {
	Upsert(ctx context.Context, tableID string, rows []domain.TextRow) (domain.UpsertReport, error)
	Search(ctx context.Context, tableID, query string, topK int) ([]domain.SearchResult, error)
	Delete(ctx context.Context, tableID string, rowIDs []string) (domain.DeleteReport, error)
	Rebuild(ctx context.Context, tableID string, rows []domain.TextRow) error
	Stats(ctx context.Context, tableID string) (domain.TableStats, error)
}

// RequestObserver records served requests, typically for metrics.
type RequestObserver interface {
	OnRequest(route string, code int)
}

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// Observer receives one event per request. Optional.
	Observer RequestObserver
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// MaxBodyBytes bounds request bodies. Zero means 64 MiB.
	MaxBodyBytes int64
}

// Server wraps the HTTP routes of the service.
type Server struct {
	tables   Tables
	log      *slog.Logger
	observer RequestObserver
	metrics  http.Handler
	maxBody  int64
	mux      *http.ServeMux
}

// NewServer creates a server and registers its routes.
func NewServer(tables Tables, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 20
	}
	s := &Server{
		tables:   tables,
		log:      opts.Logger,
		observer: opts.Observer,
		metrics:  opts.MetricsHandler,
		maxBody:  opts.MaxBodyBytes,
		mux:      http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /upsert", s.handleUpsert)
	s.mux.HandleFunc("POST /search", s.handleSearch)
	s.mux.HandleFunc("POST /delete", s.handleDelete)
	s.mux.HandleFunc("POST /rebuild", s.handleRebuild)
	s.mux.HandleFunc("GET /tables/{id}", s.handleStats)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns the routes wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withRecover(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, waiting up to 30 seconds for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
