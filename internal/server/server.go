package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// APIPrefix is the versioned base path for all lifecycle routes.
const APIPrefix = "/api/v1"

// Server exposes the model lifecycle over HTTP: registry, rollout, drift
// and orchestrator operations, plus health and metrics endpoints.
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	router        *mux.Router
	logger        *logrus.Logger
	config        *Config
	handlers      *Handlers
}

// NewServer creates an HTTP server over the given handler set.
func NewServer(config *Config, handlers *Handlers, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if handlers == nil {
		return nil, fmt.Errorf("handlers are required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	server := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		config:   config,
		handlers: handlers,
	}

	server.setupRoutes()
	server.setupMiddleware()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	if config.EnableMetrics {
		server.setupMetricsServer()
	}

	return server, nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Starting HTTP server on %s:%d", s.config.Host, s.config.Port)

	if s.config.EnableMetrics && s.metricsServer != nil {
		go func() {
			s.logger.Infof("Starting metrics server on port %d", s.config.MetricsPort)
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		s.logger.Info("Starting HTTPS server")
		return s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	}

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("Error shutting down metrics server: %v", err)
		}
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error shutting down HTTP server: %v", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix(APIPrefix).Subrouter()

	// Health and version
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/version", s.handlers.Version).Methods("GET")

	// Models and versions
	api.HandleFunc("/models", s.handlers.RegisterModel).Methods("POST")
	api.HandleFunc("/models/{id}", s.handlers.GetModel).Methods("GET")
	api.HandleFunc("/models/{id}/lineage", s.handlers.GetLineage).Methods("GET")
	api.HandleFunc("/models/{id}/versions", s.handlers.CreateVersion).Methods("POST")
	api.HandleFunc("/versions/{id}", s.handlers.GetVersion).Methods("GET")
	api.HandleFunc("/versions/{id}/promote", s.handlers.PromoteVersion).Methods("POST")
	api.HandleFunc("/versions/{id}/archive", s.handlers.ArchiveVersion).Methods("POST")
	api.HandleFunc("/versions/{id}/artifact", s.handlers.AttachArtifact).Methods("PUT")

	// Endpoints and deployments
	api.HandleFunc("/endpoints", s.handlers.CreateEndpoint).Methods("POST")
	api.HandleFunc("/endpoints/{id}", s.handlers.GetEndpoint).Methods("GET")
	api.HandleFunc("/endpoints/{id}/deploy", s.handlers.Deploy).Methods("POST")
	api.HandleFunc("/endpoints/{id}/traffic", s.handlers.RecordTraffic).Methods("POST")
	api.HandleFunc("/endpoints/{id}/health", s.handlers.CheckHealth).Methods("GET")
	api.HandleFunc("/deployments/{id}", s.handlers.GetDeployment).Methods("GET")
	api.HandleFunc("/deployments/{id}/promote", s.handlers.PromoteDeployment).Methods("POST")
	api.HandleFunc("/deployments/{id}/rollback", s.handlers.RollbackDeployment).Methods("POST")

	// Drift monitors
	api.HandleFunc("/monitors", s.handlers.CreateMonitor).Methods("POST")
	api.HandleFunc("/monitors", s.handlers.ListMonitors).Methods("GET")
	api.HandleFunc("/monitors/{id}", s.handlers.GetMonitor).Methods("GET")
	api.HandleFunc("/monitors/{id}/baseline", s.handlers.SetBaseline).Methods("PUT")
	api.HandleFunc("/monitors/{id}/snapshot", s.handlers.RecordSnapshot).Methods("POST")
	api.HandleFunc("/monitors/{id}/drift", s.handlers.DetectDrift).Methods("POST")
	api.HandleFunc("/monitors/{id}/history", s.handlers.GetDriftHistory).Methods("GET")
	api.HandleFunc("/monitors/{id}/retrain", s.handlers.ShouldRetrain).Methods("POST")
	api.HandleFunc("/monitors/{id}/evaluate", s.handlers.EvaluateMonitor).Methods("POST")

	// Lifecycle status
	api.HandleFunc("/status", s.handlers.Status).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestIDMiddleware)
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimitMiddleware)
}

func (s *Server) setupMetricsServer() {
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", s.handlers.Metrics()).Methods("GET")
	metricsRouter.HandleFunc("/health", s.handlers.Health).Methods("GET")

	s.metricsServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.MetricsPort),
		Handler:      metricsRouter,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// GetRouter returns the HTTP router, mainly for tests.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
