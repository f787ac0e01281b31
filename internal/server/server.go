// Package server provides the HTTP and gRPC servers for the task queue.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/taskqueue/internal/config"
	apierrors "github.com/devrev/taskqueue/internal/errors"
	"github.com/devrev/taskqueue/internal/handler"
	"github.com/devrev/taskqueue/internal/health"
	"github.com/devrev/taskqueue/internal/metrics"
	"github.com/devrev/taskqueue/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates a new HTTP server. m may be nil when metrics are
// disabled.
func NewServer(cfg *config.Config, queue handler.Queue, healthCheck *health.HealthCheck, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handler.NewHandlers(queue, errorHandler, logger),
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes. The middleware chain wraps the
// whole router so unmatched requests are observed too.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Recovery(s.errorHandler, s.logger),
		middleware.Logging(s.logger),
	}
	if s.metrics != nil {
		middlewareChain = append(middlewareChain, metrics.MetricsMiddleware(s.metrics, s.router))
	}
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.errorHandler,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/v1/tasks", s.handlers.AdmitTask).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/tasks", s.handlers.ListTasks).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/tasks/poll", s.handlers.PollTask).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/tasks/{id}/position", s.handlers.GetPosition).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/tasks/{id}", s.handlers.DeleteTask).Methods(http.MethodDelete)
	s.router.HandleFunc("/v1/stats/wait-time", s.handlers.GetWaitTime).Methods(http.MethodGet)

	// Routes kept for clients of the original service
	s.router.HandleFunc("/hello", s.handlers.Hello).Methods(http.MethodGet)
	s.router.HandleFunc("/newtask", s.handlers.LegacyNewTask).Methods(http.MethodPost)
	s.router.HandleFunc("/poll", s.handlers.PollTask).Methods(http.MethodGet)
	s.router.HandleFunc("/listIds", s.handlers.LegacyListIDs).Methods(http.MethodGet)
	s.router.HandleFunc("/position/{id}", s.handlers.LegacyPosition).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.CodeInvalidRequest, "endpoint not found", requestID)
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFromContext(r.Context())
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.CodeInvalidRequest, "method not allowed", requestID)
	})

	s.httpServer.Handler = middleware.Chain(middlewareChain...)(s.router)
}

// Start listens on the configured address and serves until shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(lis)
}

// Serve serves HTTP on lis until shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", lis.Addr().String()))
	s.healthCheck.SetReady(true)

	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown marks the server not ready and gracefully shuts it down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.healthCheck.SetReady(false)
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
