package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Billhebert/projeto-sass-sub006/internal/account"
	"github.com/Billhebert/projeto-sass-sub006/internal/config"
	"github.com/Billhebert/projeto-sass-sub006/internal/engine"
	"github.com/Billhebert/projeto-sass-sub006/internal/logring"
)

// Server is the operational HTTP surface: account status, manual sync
// triggers, the log ring, the SSE event stream and prometheus metrics.
type Server struct {
	config     *config.Config
	accounts   *account.Manager
	engine     *engine.Orchestrator
	ring       *logring.Ring
	registry   *prometheus.Registry
	httpServer *http.Server
}

func New(cfg *config.Config, accounts *account.Manager, eng *engine.Orchestrator, ring *logring.Ring, registry *prometheus.Registry) *Server {
	s := &Server{
		config:   cfg,
		accounts: accounts,
		engine:   eng,
		ring:     ring,
		registry: registry,
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.routes(),
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/accounts", s.handleListAccounts)
	r.Post("/accounts", s.handleCreateAccount)
	r.Delete("/accounts/{id}", s.handleDeleteAccount)
	r.Post("/accounts/{id}/sync", s.handleTriggerSync)
	r.Post("/accounts/{id}/auto-sync", s.handleStartAutoSync)
	r.Delete("/accounts/{id}/auto-sync", s.handleStopAutoSync)
	r.Get("/logs", s.handleLogs)
	r.Get("/events", s.handleEvents)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("http server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("stop server: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		start := time.Now()
		next.ServeHTTP(rec, r)

		event := log.Info()
		switch {
		case rec.statusCode >= http.StatusInternalServerError:
			event = log.Error()
		case rec.statusCode >= http.StatusBadRequest:
			event = log.Warn()
		case r.URL.Path == "/healthz":
			event = log.Debug()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.statusCode).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("http request completed")
	})
}
