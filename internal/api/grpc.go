package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the pipeline.
const ServiceName = "taxitrend.Pipeline"

// Health reports the pipeline as SERVING when idle and NOT_SERVING while a
// triggered run is in progress.
type Health struct {
	srv *health.Server
}

// NewHealth creates a Health service in the SERVING state.
func NewHealth() *Health {
	h := &Health{srv: health.NewServer()}
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return h
}

// RegisterGRPC registers the health service on the given gRPC server.
func (h *Health) RegisterGRPC(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, h.srv)
}

// SetRunning updates the pipeline status.
func (h *Health) SetRunning(running bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if running {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus(ServiceName, status)
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}

// Server returns the underlying health server.
func (h *Health) Server() healthpb.HealthServer {
	return h.srv
}
