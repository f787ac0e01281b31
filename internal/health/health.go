// Package health provides liveness and readiness checks for the task queue.
package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/devrev/taskqueue/internal/model"
)

// ServiceName is the name the queue reports under in the gRPC health service
const ServiceName = "taskqueue.v1.TaskQueue"

// StatsSource provides a queue snapshot
type StatsSource interface {
	Snapshot() model.QueueStats
}

// HealthCheck manages health check state. Readiness is mirrored into a gRPC
// health server so probes over either transport agree.
type HealthCheck struct {
	queue      StatsSource
	grpcHealth *health.Server
	logger     *zap.Logger
	mu         sync.RWMutex
	ready      bool
}

// NewHealthCheck creates a new HealthCheck. It starts not ready.
func NewHealthCheck(queue StatsSource, logger *zap.Logger) *HealthCheck {
	hc := &HealthCheck{
		queue:      queue,
		grpcHealth: health.NewServer(),
		logger:     logger,
	}
	hc.publish(false)
	return hc
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Size    int               `json:"size"`
	MaxSize int               `json:"max_size"`
}

// LivenessHandler handles GET /health requests.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hc.writeJSON(w, http.StatusOK, LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready requests. A full queue is still ready
// but reported in the checks.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	stats := hc.queue.Snapshot()

	capacity := "accepting"
	if stats.Full() {
		capacity = "full"
	}
	resp := ReadinessResponse{
		Status:  "ready",
		Checks:  map[string]string{"queue": capacity},
		Size:    stats.Size,
		MaxSize: stats.MaxSize,
	}

	if !hc.IsReady() {
		resp.Status = "not_ready"
		resp.Checks["server"] = "shutting_down"
		hc.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	hc.writeJSON(w, http.StatusOK, resp)
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// SetReady sets the readiness status.
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	changed := hc.ready != ready
	hc.ready = ready
	hc.mu.Unlock()

	if changed {
		hc.logger.Info("Readiness changed", zap.Bool("ready", ready))
	}
	hc.publish(ready)
}

// GRPCServer returns the gRPC health service backed by this check.
func (hc *HealthCheck) GRPCServer() *health.Server {
	return hc.grpcHealth
}

// Shutdown marks every service not serving and ignores later updates.
func (hc *HealthCheck) Shutdown() {
	hc.mu.Lock()
	hc.ready = false
	hc.mu.Unlock()
	hc.grpcHealth.Shutdown()
}

func (hc *HealthCheck) publish(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hc.grpcHealth.SetServingStatus("", status)
	hc.grpcHealth.SetServingStatus(ServiceName, status)
}

func (hc *HealthCheck) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hc.logger.Error("failed to encode health response", zap.Error(err))
	}
}
