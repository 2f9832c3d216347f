// Package server exposes the dashboard snapshot over HTTP: chart figures as
// JSON or PNG, selector options, map markers and dataset downloads.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drm-lab/urbanrisk/internal/apperr"
	"github.com/drm-lab/urbanrisk/internal/config"
	"github.com/drm-lab/urbanrisk/internal/dashboard"
)

// Loader builds and publishes dashboard snapshots.
type Loader interface {
	Snapshot() *dashboard.Snapshot
	Reload(ctx context.Context) (*dashboard.Snapshot, error)
}

// Server serves the dashboard API.
type Server struct {
	loader   Loader
	cfg      config.ServerConfig
	registry *prometheus.Registry
	metrics  *Metrics
	router   chi.Router
}

// New builds a server with its own metrics registry and routes.
func New(loader Loader, cfg config.ServerConfig) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s := &Server{
		loader:   loader,
		cfg:      cfg,
		registry: reg,
		metrics:  NewMetrics(reg),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireSnapshot)
		r.Get("/countries", s.handleCountries)
		r.Get("/charts", s.handleChartList)
		r.Get("/charts/{chart}", s.handleChart)
		r.Get("/cities", s.handleCities)
		r.Get("/map", s.handleMap)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/datasets/{name}/download", s.handleDownload)
	})
	r.Post("/admin/reload", s.handleReload)
	return r
}

// Reload loads a fresh snapshot and records the outcome.
func (s *Server) Reload(ctx context.Context) (*dashboard.Snapshot, error) {
	snap, err := s.loader.Reload(ctx)
	if err != nil {
		s.metrics.IncrementReload("error")
		return nil, err
	}
	s.metrics.IncrementReload("ok")
	s.metrics.SetSnapshot(snap.Loaded(), len(snap.Missing()), snap.LoadedAt)
	return snap, nil
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Duration(s.cfg.ReadHeaderTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server listen")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, r.Method, strconv.Itoa(status), time.Since(start))
	})
}

type snapshotKey struct{}

// requireSnapshot pins the current snapshot for the whole request, so a
// reload mid-request does not change the data a handler sees.
func (s *Server) requireSnapshot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.loader.Snapshot()
		if snap == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{
				Error:   string(apperr.KindUnavailable),
				Message: "Dashboard data is still loading",
			})
			return
		}
		ctx := context.WithValue(r.Context(), snapshotKey{}, snap)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func snapshotFrom(r *http.Request) *dashboard.Snapshot {
	snap, _ := r.Context().Value(snapshotKey{}).(*dashboard.Snapshot)
	return snap
}
