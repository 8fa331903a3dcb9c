// Package handler implements the collector's HTTP endpoints. Writes are
// acknowledged with 202 even when the underlying store write failed: the
// recorder is best-effort and analytics outages must stay invisible to the
// visitor's form.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/stepfunnel/analytics-platform/internal/collector/recorder"
	"github.com/stepfunnel/analytics-platform/internal/collector/validator"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
	"github.com/stepfunnel/analytics-platform/pkg/logger"
)

const maxBodyBytes = 64 * 1024

// Handler serves the collector's write API.
type Handler struct {
	recorder     *recorder.Recorder
	maxStepIndex int
}

// New creates a collector Handler. maxStepIndex is the validation ceiling for
// step indices; zero disables the ceiling.
func New(rec *recorder.Recorder, maxStepIndex int) *Handler {
	return &Handler{
		recorder:     rec,
		maxStepIndex: maxStepIndex,
	}
}

// StartSession handles POST /api/v1/sessions. It creates a session record at
// step 0 and returns its generated ID.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req validator.StartSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validator.ValidateStartSession(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	descriptor := req.ClientDescriptor
	if descriptor == "" {
		descriptor = r.UserAgent()
	}

	sessionID := h.recorder.StartSession(r.Context(), descriptor)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

// RecordEvent handles POST /api/v1/sessions/{id}/events. The action field
// selects the recorder operation: enter, answer, or exit.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	var req validator.StepEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validator.ValidateStepEvent(&req, h.maxStepIndex); err != nil {
		h.writeValidationError(w, err)
		return
	}

	ctx := r.Context()
	switch req.Action {
	case funnel.ActionEnter:
		h.recorder.EnterStep(ctx, sessionID, req.Step, req.StepName)
	case funnel.ActionAnswer:
		h.recorder.RecordAnswer(ctx, sessionID, req.Step, req.StepName, req.Answers)
	case funnel.ActionExit:
		h.recorder.ExitStep(ctx, sessionID, req.Step, req.StepName, req.Reason)
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Beacon handles POST /api/v1/beacon, the abandonment path for
// visibilitychange and pagehide browser events. Both triggers can fire for
// the same abandonment; the recorder's one-shot guard keeps the second a
// no-op, and the response is 202 either way.
func (h *Handler) Beacon(w http.ResponseWriter, r *http.Request) {
	var req validator.BeaconRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validator.ValidateBeacon(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	h.recorder.Abandon(r.Context(), req.SessionID)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "collector"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	if verr, ok := err.(*validator.ValidationError); ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithComponent("collector-handler").Error("failed to encode response", "error", err)
	}
}
