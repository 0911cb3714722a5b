// Package server provides the HTTP server and routing for the composite chart service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-composite/internal/database"
	"github.com/aristath/sentinel-composite/internal/events"
	"github.com/aristath/sentinel-composite/internal/metrics"
	"github.com/aristath/sentinel-composite/internal/modules/alignment"
	"github.com/aristath/sentinel-composite/internal/modules/calendar"
	"github.com/aristath/sentinel-composite/internal/modules/composite"
	compositehandlers "github.com/aristath/sentinel-composite/internal/modules/composite/handlers"
	"github.com/aristath/sentinel-composite/internal/modules/history"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	ChartsDB  *database.DB
	Port      int
	DevMode   bool

	Composite *composite.Service
	Calendar  *calendar.Calendar
	Alignment *alignment.Service
	History   *history.HistoryDB
	EventBus  *events.Bus
	Metrics   *metrics.Metrics // optional
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	databases      []*database.DB
	composite      *composite.Service
	marketHandlers *MarketHandlers
	eventBus       *events.Bus
	metrics        *metrics.Metrics
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		databases:      []*database.DB{cfg.HistoryDB, cfg.ChartsDB},
		composite:      cfg.Composite,
		marketHandlers: NewMarketHandlers(cfg.Calendar, cfg.Alignment, cfg.History, cfg.Log),
		eventBus:       cfg.EventBus,
		metrics:        cfg.Metrics,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compression buffers writes and breaks the event stream flushes
	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		if s.eventBus != nil {
			r.Get("/events/stream", NewEventsStreamHandler(s.eventBus, s.log).ServeHTTP)
		}

		if s.composite != nil {
			compositehandlers.NewHandler(s.composite, s.log).RegisterRoutes(r)
		}

		s.marketHandlers.RegisterRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
