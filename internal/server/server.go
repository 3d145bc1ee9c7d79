package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/capsim/internal/config"
	"github.com/me/capsim/internal/scheduler"
	"github.com/me/capsim/internal/store"
)

// Server is the capsim REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	scheduler *scheduler.Loop
}

// New creates a new Server with all routes registered.
// sched may be nil if no scheduling is desired (e.g. in tests); late-join
// enrollment then records the app without scheduling deliveries.
func New(cfg config.ServerConfig, st store.Store, sched *scheduler.Loop, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		scheduler: sched,
	}
	s.routes()
	return s
}

// StartScheduler begins the scheduling loop in a background goroutine.
func (s *Server) StartScheduler(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	go func() {
		if err := s.scheduler.Start(ctx); err != nil && err != context.Canceled {
			s.logger.Error("scheduler stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Simulators
		r.Route("/simulators", func(r chi.Router) {
			r.Get("/", s.handleListSimulators)
			r.Post("/", s.handleCreateSimulator)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSimulator)
				r.Put("/", s.handleUpdateSimulator)
				r.Delete("/", s.handleDeleteSimulator)

				// Lifecycle actions. Start and reset only record the
				// request; the scheduler loop settles them.
				r.Post("/start", s.handleStartSimulator)
				r.Post("/pause", s.handlePauseSimulator)
				r.Post("/reset", s.handleResetSimulator)
				r.Post("/end", s.handleEndSimulator)

				// Datapoints nested under simulators
				r.Route("/datapoints", func(r chi.Router) {
					r.Get("/", s.handleListDatapoints)
					r.Post("/", s.handleCreateDatapoints)
				})

				// Student apps nested under simulators
				r.Route("/apps", func(r chi.Router) {
					r.Get("/", s.handleListStudentApps)
					r.Post("/", s.handleCreateStudentApp)
				})

				// Due datapoints (delivery schedule and results)
				r.Route("/due", func(r chi.Router) {
					r.Get("/", s.handleListDue)
					r.Get("/summary", s.handleDueSummary)
				})
			})
		})

		// Worker surface: claim due items and report delivery outcomes.
		r.Route("/due", func(r chi.Router) {
			r.Post("/claim", s.handleClaimDue)
			r.Post("/{id}/result", s.handleReportResult)
		})
	})
}
