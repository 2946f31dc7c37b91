package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check. A nil pinger
// means an in-memory store, which is always reachable.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := true
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			dbConnected = db.Ping(ctx) == nil
			cancel()
		}

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusInfo is static information reported by the status endpoint.
type StatusInfo struct {
	Version  string
	Storage  string
	Provider string
}

// ClientCounter reports connected WebSocket clients.
type ClientCounter interface {
	ClientCount() int
}

// RefreshSchedule reports the next token refresh run.
type RefreshSchedule interface {
	NextRun() *time.Time
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Version          string `json:"version"`
	Storage          string `json:"storage"`
	CalendarProvider string `json:"calendar_provider"`
	WebSocketClients int    `json:"websocket_clients"`
	NextRefreshAt    string `json:"next_refresh_at,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(info StatusInfo, clients ClientCounter, schedule RefreshSchedule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			Version:          info.Version,
			Storage:          info.Storage,
			CalendarProvider: info.Provider,
			WebSocketClients: clients.ClientCount(),
		}
		if schedule != nil {
			if next := schedule.NextRun(); next != nil {
				response.NextRefreshAt = next.UTC().Format(time.RFC3339)
			}
		}
		writeJSON(w, http.StatusOK, response)
	}
}
