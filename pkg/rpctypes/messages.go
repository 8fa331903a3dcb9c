// Package rpctypes defines the shared message types used for internal RPC
// communication between the collector and dashboard services.
//
// The types use JSON struct tags for serialization over the platform's
// lightweight JSON-over-TCP RPC layer (see pkg/grpc). Method names follow
// the "Service.Method" convention:
//
//	Recorder.LiveStats    → LiveStatsRequest / LiveStatsResponse
//	Recorder.SessionState → SessionStateRequest / SessionStateResponse
package rpctypes

// LiveStatsRequest asks the collector for its current in-memory recorder
// counters. It has no parameters.
type LiveStatsRequest struct{}

// LiveStatsResponse is a point-in-time snapshot of the recorder's state.
type LiveStatsResponse struct {
	ActiveSessions  int   `json:"active_sessions"`
	SessionsStarted int64 `json:"sessions_started"`
	EventsRecorded  int64 `json:"events_recorded"`
	EventsDropped   int64 `json:"events_dropped"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

// SessionStateRequest asks for the recorder's live view of one session.
type SessionStateRequest struct {
	SessionID string `json:"session_id"`
}

// SessionStateResponse describes a tracked session, or Tracked=false when the
// recorder has no state for it (never seen, or evicted after idle TTL).
type SessionStateResponse struct {
	Tracked     bool   `json:"tracked"`
	CurrentStep int    `json:"current_step"`
	StepName    string `json:"step_name"`
	EnteredAt   int64  `json:"entered_at"`
	Exited      bool   `json:"exited"`
}

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}
