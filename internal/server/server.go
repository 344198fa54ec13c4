// Package server provides the HTTP server and routing for Oracle Portfolio.
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

	"github.com/aristath/oracle-portfolio/internal/di"
	pluginhandlers "github.com/aristath/oracle-portfolio/internal/modules/plugins/handlers"
	snapshothandlers "github.com/aristath/oracle-portfolio/internal/modules/snapshots/handlers"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// statusInterval is how often the status monitor checks the databases
const statusInterval = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	DataDir   string
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	container      *di.Container
	systemHandlers *SystemHandlers
	statusMonitor  *StatusMonitor
	stopMonitor    context.CancelFunc
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.DataDir,
		cfg.Container.Databases(),
		cfg.Container.Registry,
		cfg.Container.Scheduler,
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		container:      cfg.Container,
		systemHandlers: systemHandlers,
		statusMonitor: NewStatusMonitor(
			cfg.Container.EventManager,
			cfg.Container.Databases(),
			cfg.Container.Registry,
			cfg.Log,
		),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams stay open; API routes are bounded by middleware.Timeout
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Router returns the HTTP handler, for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

func (s *Server) setupRoutes() {
	c := s.container

	// Long-lived streams are registered outside the timeout group
	stream := NewEventsStreamHandler(c.EventBus, s.log)
	s.router.Get("/api/events/stream", stream.ServeHTTP)
	s.router.Get("/api/events/ws", NewEventsWSHandler(c.EventBus, s.log).ServeHTTP)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/api/health", s.handleHealth)
		r.Get("/api/system/status", s.systemHandlers.HandleSystemStatus)
		r.Get("/api/system/databases", s.systemHandlers.HandleDatabaseStats)
		r.Get("/api/system/jobs", s.systemHandlers.HandleJobsStatus)

		pluginhandlers.NewHandler(c.Registry, c.Wizards, c.EventManager, s.log).RegisterRoutes(r)
		snapshothandlers.NewHandler(c.SnapshotService, s.log).RegisterRoutes(r)
	})
}

// Start starts the status monitor and the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopMonitor = cancel
	s.statusMonitor.Start(ctx, statusInterval)
	s.log.Info().Msg("Status monitor started")

	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	if s.stopMonitor != nil {
		s.stopMonitor()
	}
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
