package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callscope/callscope/internal/api/middleware"
	"github.com/callscope/callscope/internal/audio"
	"github.com/callscope/callscope/internal/config"
	"github.com/callscope/callscope/internal/database"
	"github.com/callscope/callscope/internal/metrics"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	legs   database.LegSource
	rules  *config.RulesProvider
	audio  *audio.Store

	runs      *metrics.RunRecorder
	registry  *prometheus.Registry
	startTime time.Time
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(cfg *config.Config, legs database.LegSource, rules *config.RulesProvider, audioStore *audio.Store) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		legs:      legs,
		rules:     rules,
		audio:     audioStore,
		runs:      &metrics.RunRecorder{},
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	s.registry.MustRegister(metrics.NewCollector(s.runs, legs, legs, s.startTime))

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))
	r.Use(middleware.RateLimit(middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/report", func(r chi.Router) {
			r.Get("/", s.handleReport)
			r.Get("/export", s.handleReportExport)
		})

		r.Get("/orphans", s.handleOrphans)

		r.Route("/recordings/{file}", func(r chi.Router) {
			r.Get("/", s.handleStreamRecording)
			r.Get("/download", s.handleDownloadRecording)
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	slog.Info("api routes mounted")
}
