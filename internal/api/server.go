package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/mobilitydash/internal/imagegen"
	"github.com/lox/mobilitydash/internal/store"
)

// Tables hands out the loaded table for a source. store.Cache satisfies it.
type Tables interface {
	Get(ctx context.Context, source string) (*store.Table, error)
}

type Server struct {
	tables     Tables
	source     string
	defaults   []string
	logger     *slog.Logger
	tmpl       *template.Template
	ogCache    *imagegen.OGImageCache
	reqTimeout time.Duration
}

// Config carries the server's settings that are not dependencies.
type Config struct {
	Source            string
	DefaultLocalities []string
	RequestTimeout    time.Duration
}

func NewServer(tables Tables, logger *slog.Logger, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Server{
		tables:     tables,
		source:     cfg.Source,
		defaults:   cfg.DefaultLocalities,
		logger:     logger,
		tmpl:       newTemplates(),
		ogCache:    imagegen.NewOGImageCache(5*time.Minute, 256),
		reqTimeout: cfg.RequestTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.reqTimeout))

		r.Get("/", s.handleIndex)
		r.Get("/chart.png", s.handleChartPNG)
		r.Get("/og-image.png", s.handleOGImage)
		r.Get("/export.xlsx", s.handleExportXLSX)

		r.Route("/api", func(r chi.Router) {
			r.Get("/localities", s.handleAPILocalities)
			r.Get("/catalog", s.handleAPICatalog)
			r.Get("/records", s.handleAPIRecords)
			r.Get("/series", s.handleAPISeries)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// table resolves the dataset for a request. Loading already happened at
// startup, so this is a cache hit unless the server was built lazily.
func (s *Server) table(r *http.Request) (*store.Table, error) {
	return s.tables.Get(r.Context(), s.source)
}
