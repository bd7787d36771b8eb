package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gkobilansky/variant-goat/internal/events"
	"github.com/gkobilansky/variant-goat/internal/lifecycle"
	"github.com/gkobilansky/variant-goat/internal/metrics"
	"github.com/gkobilansky/variant-goat/internal/stats"
	"github.com/gkobilansky/variant-goat/internal/store"
)

// APIPrefix is where the experiment routes are mounted.
const APIPrefix = "/api/ab"

type Options struct {
	Store      store.Store
	Controller *lifecycle.Controller
	Token      string

	// StoreTimeout bounds every storage call made while serving a request.
	StoreTimeout time.Duration

	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	store      store.Store
	recorder   *events.Recorder
	aggregator *stats.Aggregator
	controller *lifecycle.Controller
	token      string
	timeout    time.Duration
	now        func() time.Time
	router     chi.Router
	startTime  time.Time
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Controller == nil {
		opts.Controller = lifecycle.NewController(opts.Store, lifecycle.WithTimeout(opts.StoreTimeout))
	}

	srv := &Server{
		store:      opts.Store,
		recorder:   events.NewRecorder(opts.Store, opts.StoreTimeout),
		aggregator: stats.NewAggregator(opts.Store, opts.StoreTimeout),
		controller: opts.Controller,
		token:      opts.Token,
		timeout:    opts.StoreTimeout,
		now:        opts.Now,
		router:     chi.NewRouter(),
		startTime:  opts.Now(),
	}

	srv.setupRoutes(opts)
	return srv
}

func (s *Server) setupRoutes(opts Options) {
	r := s.router

	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(APIPrefix, func(r chi.Router) {
		// Visitor endpoints
		r.Group(func(r chi.Router) {
			if opts.RateLimit > 0 {
				r.Use(httprate.LimitByIP(opts.RateLimit, opts.RateWindow))
			}
			r.Get("/variant", s.handleVariant)
			r.Post("/event", s.handleEvent)
		})

		// Read-only admin views
		r.Get("/experiments", s.handleListExperiments)
		r.Get("/experiments/{id}", s.handleGetExperiment)
		r.Get("/config", s.handleGetConfig)
		r.Get("/stats", s.handleStats)

		// Mutations (protected)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/experiments", s.handleCreateExperiment)
			r.Delete("/experiments/{id}", s.handleDeleteExperiment)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/evaluate", s.handleEvaluate)
			r.Put("/config", s.handlePutConfig)
		})
	})
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// storeCtx bounds a storage call made directly by a handler.
func (s *Server) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), s.timeout)
}
