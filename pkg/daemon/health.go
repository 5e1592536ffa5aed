package daemon

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

// HealthTracker mirrors watcher state into the gRPC health service.
// Each watched path is reported as a service named by its identity; the
// empty service name reports the daemon itself.
type HealthTracker struct {
	srv *health.Server
}

// NewHealthTracker returns a tracker whose overall status is SERVING.
func NewHealthTracker() *HealthTracker {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthTracker{srv: srv}
}

// Observe records a state transition. It matches the signature of
// engine.Options.OnStateChange and never blocks.
func (h *HealthTracker) Observe(id cache.Identity, _, to watcher.State) {
	h.srv.SetServingStatus(string(id), ServingStatus(to))
}

// ServingStatus maps a watcher state to a health status.
func ServingStatus(s watcher.State) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case watcher.StateFailed:
		return healthpb.HealthCheckResponse_NOT_SERVING
	case watcher.StateUnwatched:
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	default:
		return healthpb.HealthCheckResponse_SERVING
	}
}

// Server returns the health service for registration.
func (h *HealthTracker) Server() healthpb.HealthServer {
	return h.srv
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthTracker) Shutdown() {
	h.srv.Shutdown()
}
