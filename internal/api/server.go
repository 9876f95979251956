package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/vtt-batch/internal/config"
	"github.com/snarg/vtt-batch/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions holds the dependencies behind the routes.
type ServerOptions struct {
	Runner    BatchRunner
	Bucket    BucketChecker
	Provider  ProviderChecker
	Version   string
	StartTime time.Time
}

func NewServer(cfg *config.Config, opts ServerOptions, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(cfg, opts, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg *config.Config, opts ServerOptions, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"message": "Closed Captioning Service is running"})
	})
	health := NewHealthHandler(opts.Bucket, opts.Provider, cfg.Missing, opts.Version, opts.StartTime)
	r.Get("/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Rate limited, then API key
	spec := cfg.RateSpec()
	r.Group(func(r chi.Router) {
		r.Use(RateLimiter(spec.Limit(), spec.Burst()))
		r.Use(APIKeyAuth(cfg.APIKey))
		r.Post("/batch-generate-vtt", BatchHandler(opts.Runner))
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
