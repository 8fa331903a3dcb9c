// Package validator provides input validation for collector write requests.
// It enforces action and exit-reason enums, step bounds, and payload size
// limits, and returns per-field error details.
package validator

import (
	"fmt"
	"strings"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

const (
	maxStepNameLength   = 256
	maxDescriptorLength = 1024
	maxAnswerKeys       = 64
	maxAnswerKeyLength  = 128
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// StartSessionRequest is the body of POST /api/v1/sessions.
type StartSessionRequest struct {
	ClientDescriptor string `json:"client_descriptor"`
}

// StepEventRequest is the body of POST /api/v1/sessions/{id}/events.
type StepEventRequest struct {
	Action   funnel.StepAction `json:"action"`
	Step     int               `json:"step"`
	StepName string            `json:"step_name"`
	Answers  funnel.AnswerMap  `json:"answers,omitempty"`
	Reason   funnel.ExitReason `json:"reason,omitempty"`
}

// BeaconRequest is the body of POST /api/v1/beacon, sent by the browser's
// visibility-change and page-unload handlers.
type BeaconRequest struct {
	SessionID string `json:"session_id"`
}

// ValidateStartSession checks a session-start request. The descriptor may be
// empty (some clients strip the user agent) but not oversized.
func ValidateStartSession(req *StartSessionRequest) error {
	errs := make(map[string]string)
	if len(req.ClientDescriptor) > maxDescriptorLength {
		errs["client_descriptor"] = fmt.Sprintf("client descriptor must be at most %d characters", maxDescriptorLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateStepEvent checks a step-event request against the action and reason
// enums, the configured step ceiling, and answer-payload limits.
func ValidateStepEvent(req *StepEventRequest, maxStepIndex int) error {
	errs := make(map[string]string)

	if !req.Action.Valid() {
		errs["action"] = fmt.Sprintf("action must be one of %q, %q, %q", funnel.ActionEnter, funnel.ActionAnswer, funnel.ActionExit)
	}
	if req.Step < 0 {
		errs["step"] = "step must not be negative"
	} else if maxStepIndex > 0 && req.Step > maxStepIndex {
		errs["step"] = fmt.Sprintf("step must be at most %d", maxStepIndex)
	}

	name := strings.TrimSpace(req.StepName)
	if name == "" {
		errs["step_name"] = "step name is required"
	} else if len(name) > maxStepNameLength {
		errs["step_name"] = fmt.Sprintf("step name must be at most %d characters", maxStepNameLength)
	}

	switch req.Action {
	case funnel.ActionExit:
		if req.Reason == "" {
			errs["reason"] = "exit events require a reason"
		} else if !req.Reason.Valid() {
			errs["reason"] = fmt.Sprintf("reason must be one of %q, %q, %q", funnel.ExitCompleted, funnel.ExitAbandoned, funnel.ExitIneligible)
		}
	default:
		if req.Reason != "" {
			errs["reason"] = "reason is only valid on exit events"
		}
	}

	if req.Action == funnel.ActionAnswer && len(req.Answers) == 0 {
		errs["answers"] = "answer events require at least one answer"
	}
	if len(req.Answers) > maxAnswerKeys {
		errs["answers"] = fmt.Sprintf("at most %d answer fields per event", maxAnswerKeys)
	}
	for key := range req.Answers {
		if len(key) > maxAnswerKeyLength {
			errs["answers"] = fmt.Sprintf("answer field names must be at most %d characters", maxAnswerKeyLength)
			break
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateBeacon checks an abandonment beacon.
func ValidateBeacon(req *BeaconRequest) error {
	if strings.TrimSpace(req.SessionID) == "" {
		return &ValidationError{Fields: map[string]string{"session_id": "session id is required"}}
	}
	return nil
}
