package server

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/devrev/taskqueue/internal/health"
)

// HealthServer serves the standard gRPC health service
type HealthServer struct {
	grpcServer *grpc.Server
	port       int
	logger     *zap.Logger
}

// NewHealthServer creates a gRPC server exposing hc on port
func NewHealthServer(port int, hc *health.HealthCheck, logger *zap.Logger) *HealthServer {
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hc.GRPCServer())

	return &HealthServer{
		grpcServer: grpcServer,
		port:       port,
		logger:     logger,
	}
}

// Start listens on the configured port and serves until stopped
func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve serves gRPC on lis until stopped
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC health server", zap.String("addr", lis.Addr().String()))
	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC health server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *HealthServer) Stop() {
	s.logger.Info("Stopping gRPC health server")
	s.grpcServer.GracefulStop()
}
