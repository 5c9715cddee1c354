package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"licensehub/internal/infrastructure"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports connected dashboard clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides liveness and readiness checks
type HealthService struct {
	version   string
	store     Pinger
	hub       ClientCounter
	startTime time.Time
	timeout   time.Duration
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime,omitempty"`
	Runtime   map[string]any           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	StatusOK        = "ok"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// NewHealthService creates a health service. hub may be nil when dashboard
// push is disabled.
func NewHealthService(version string, store Pinger, hub ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		store:     store,
		hub:       hub,
		startTime: time.Now(),
		timeout:   2 * time.Second,
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// HealthCheck reports that the process is alive.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Uptime:    time.Since(hs.startTime).Round(time.Second).String(),
		Runtime: map[string]any{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
	if hs.hub != nil {
		status.Runtime["websocket_clients"] = hs.hub.ClientCount()
	}
	return status
}

// ReadinessCheck pings the store. The returned bool is false when the store
// cannot serve requests.
func (hs *HealthService) ReadinessCheck(ctx context.Context) (HealthStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, hs.timeout)
	defer cancel()

	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Services:  map[string]ServiceHealth{},
	}

	if err := hs.store.Ping(ctx); err != nil {
		hs.logger.WarnContext(ctx, "readiness check failed",
			slog.String("dependency", "store"),
			slog.String("error", err.Error()))
		status.Status = StatusNotReady
		status.Services["store"] = ServiceHealth{Status: StatusUnhealthy, Message: "store unreachable"}
		return status, false
	}
	status.Services["store"] = ServiceHealth{Status: StatusHealthy}
	return status, true
}
