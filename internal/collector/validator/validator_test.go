package validator

import (
	"strings"
	"testing"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

func TestValidateStepEvent(t *testing.T) {
	tests := []struct {
		name      string
		req       StepEventRequest
		wantField string // empty means valid
	}{
		{
			name: "valid enter",
			req:  StepEventRequest{Action: funnel.ActionEnter, Step: 1, StepName: "contact-details"},
		},
		{
			name: "valid answer",
			req: StepEventRequest{
				Action: funnel.ActionAnswer, Step: 1, StepName: "contact-details",
				Answers: funnel.AnswerMap{"email": funnel.StringAnswer("a@b.c")},
			},
		},
		{
			name: "valid exit",
			req: StepEventRequest{
				Action: funnel.ActionExit, Step: 3, StepName: "payment",
				Reason: funnel.ExitCompleted,
			},
		},
		{
			name:      "unknown action",
			req:       StepEventRequest{Action: "skip", Step: 0, StepName: "intro"},
			wantField: "action",
		},
		{
			name:      "negative step",
			req:       StepEventRequest{Action: funnel.ActionEnter, Step: -1, StepName: "intro"},
			wantField: "step",
		},
		{
			name:      "step above ceiling",
			req:       StepEventRequest{Action: funnel.ActionEnter, Step: 99, StepName: "intro"},
			wantField: "step",
		},
		{
			name:      "missing step name",
			req:       StepEventRequest{Action: funnel.ActionEnter, Step: 0, StepName: "  "},
			wantField: "step_name",
		},
		{
			name:      "oversized step name",
			req:       StepEventRequest{Action: funnel.ActionEnter, Step: 0, StepName: strings.Repeat("x", 300)},
			wantField: "step_name",
		},
		{
			name:      "exit without reason",
			req:       StepEventRequest{Action: funnel.ActionExit, Step: 2, StepName: "payment"},
			wantField: "reason",
		},
		{
			name: "exit with unknown reason",
			req: StepEventRequest{
				Action: funnel.ActionExit, Step: 2, StepName: "payment", Reason: "bored",
			},
			wantField: "reason",
		},
		{
			name: "reason on non-exit event",
			req: StepEventRequest{
				Action: funnel.ActionEnter, Step: 2, StepName: "payment", Reason: funnel.ExitAbandoned,
			},
			wantField: "reason",
		},
		{
			name:      "answer without answers",
			req:       StepEventRequest{Action: funnel.ActionAnswer, Step: 1, StepName: "details"},
			wantField: "answers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStepEvent(&tt.req, 50)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
			}
			if _, present := verr.Fields[tt.wantField]; !present {
				t.Errorf("expected error on field %q, got %v", tt.wantField, verr.Fields)
			}
		})
	}
}

func TestValidateStepEventTooManyAnswers(t *testing.T) {
	answers := make(funnel.AnswerMap, 70)
	for i := 0; i < 70; i++ {
		answers[strings.Repeat("k", i+1)] = funnel.BoolAnswer(true)
	}
	err := ValidateStepEvent(&StepEventRequest{
		Action: funnel.ActionAnswer, Step: 0, StepName: "survey", Answers: answers,
	}, 50)
	if err == nil {
		t.Fatal("expected error for oversized answer map")
	}
}

func TestValidateStartSession(t *testing.T) {
	if err := ValidateStartSession(&StartSessionRequest{ClientDescriptor: "Mozilla/5.0"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	// Empty descriptors are allowed.
	if err := ValidateStartSession(&StartSessionRequest{}); err != nil {
		t.Fatalf("expected valid for empty descriptor, got %v", err)
	}
	err := ValidateStartSession(&StartSessionRequest{ClientDescriptor: strings.Repeat("u", 2000)})
	if err == nil {
		t.Fatal("expected error for oversized descriptor")
	}
}

func TestValidateBeacon(t *testing.T) {
	if err := ValidateBeacon(&BeaconRequest{SessionID: "abc"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateBeacon(&BeaconRequest{}); err == nil {
		t.Fatal("expected error for missing session id")
	}
}
