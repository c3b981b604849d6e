// Package server exposes the detection cascade over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/palisadehq/palisade/internal/config"
	"github.com/palisadehq/palisade/internal/events"
	"github.com/palisadehq/palisade/internal/logger"
	"github.com/palisadehq/palisade/internal/pipeline"
	"github.com/palisadehq/palisade/internal/similarity"
)

// TopMatcher serves the corpus debug endpoint. Nil when layer 2 is not
// configured.
type TopMatcher interface {
	TopMatches(ctx context.Context, text string, k int) ([]similarity.CorpusMatch, error)
}

// Version is the service version reported by /info.
const Version = "0.1.0"

// Server is the HTTP front end for the detector.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	detector *pipeline.Detector
	matcher  TopMatcher
	hub      *events.Hub
	router   *mux.Router
	server   *http.Server
	limiter  *rateLimiter
	started  time.Time
}

// New wires the detector and optional events hub into an HTTP server.
// matcher may be nil when the similarity layer is not configured.
func New(cfg *config.Config, detector *pipeline.Detector, matcher TopMatcher, hub *events.Hub, log *logger.Logger) *Server {
	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		detector: detector,
		matcher:  matcher,
		hub:      hub,
		router:   mux.NewRouter(),
		started:  time.Now(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newRateLimiter(cfg.RateLimit)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.hub != nil && s.config.Events.Enabled {
		s.router.HandleFunc(s.config.Events.Path, s.hub.ServeWS).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.authMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/detect/matches", s.handleTopMatches).Methods("POST")
}

// Start runs the events hub and blocks serving HTTP.
func (s *Server) Start() error {
	s.logger.Info("starting palisade server",
		zap.Int("port", s.config.Server.Port),
		zap.Ints("available_layers", s.detector.AvailableLayers()),
		zap.Bool("events", s.hub != nil && s.config.Events.Enabled))

	if s.hub != nil {
		go s.hub.Run()
	}
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping palisade server")
	if s.hub != nil {
		s.hub.Stop()
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
