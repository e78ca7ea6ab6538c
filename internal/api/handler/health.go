package handler

import (
	"context"
	"net/http"

	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/api/response"
	"github.com/teamup/teamup/internal/database"
)

// DBChecker reports database connectivity.
type DBChecker interface {
	Check(ctx context.Context) database.Status
}

// BusChecker reports message bus connectivity. *nats.Conn satisfies it.
type BusChecker interface {
	IsConnected() bool
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	db      DBChecker
	bus     BusChecker
	version string
}

// NewHealthHandler creates a new HealthHandler. bus may be nil when no
// message bus is configured.
func NewHealthHandler(db DBChecker, bus BusChecker, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		bus:     bus,
		version: version,
	}
}

type databaseStatus struct {
	Connected  bool  `json:"connected"`
	LatencyMs  int64 `json:"latencyMs"`
	TotalConns int32 `json:"totalConns"`
	IdleConns  int32 `json:"idleConns"`
}

type busStatus struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

type healthData struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Database databaseStatus `json:"database"`
	Bus      busStatus      `json:"bus"`
}

// ServeHTTP handles the health check request. A lost database makes the
// service unavailable; a lost bus only degrades it.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	db := h.db.Check(r.Context())
	data := healthData{
		Status:  "healthy",
		Version: h.version,
		Database: databaseStatus{
			Connected:  db.Connected,
			LatencyMs:  db.Latency.Milliseconds(),
			TotalConns: db.TotalConns,
			IdleConns:  db.IdleConns,
		},
	}

	if h.bus != nil {
		data.Bus = busStatus{Configured: true, Connected: h.bus.IsConnected()}
		if !data.Bus.Connected {
			data.Status = "degraded"
		}
	}

	status := http.StatusOK
	if !db.Connected {
		data.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	response.Success(w, status, data, requestID)
}
