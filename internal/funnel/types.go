// Package funnel defines the domain types shared by the collector, dashboard,
// and mirror services: sessions, step events, and the derived aggregate shapes.
package funnel

import "time"

// StepAction is the lifecycle action a StepEvent records.
type StepAction string

const (
	ActionEnter  StepAction = "enter"
	ActionAnswer StepAction = "answer"
	ActionExit   StepAction = "exit"
)

// Valid reports whether a is one of the known step actions.
func (a StepAction) Valid() bool {
	switch a {
	case ActionEnter, ActionAnswer, ActionExit:
		return true
	}
	return false
}

// ExitReason is the terminal classification of a session.
type ExitReason string

const (
	ExitCompleted  ExitReason = "completed"
	ExitAbandoned  ExitReason = "abandoned"
	ExitIneligible ExitReason = "ineligible"
)

// Valid reports whether r is one of the known exit reasons.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitCompleted, ExitAbandoned, ExitIneligible:
		return true
	}
	return false
}

// Session is one visitor's traversal of the funnel. Created on session start,
// mutated on step transitions and answer changes, never deleted. ExitReason
// is empty while the session is still active.
type Session struct {
	ID               string     `json:"id"`
	CreatedAt        time.Time  `json:"created_at"`
	ClientDescriptor string     `json:"client_descriptor"`
	CurrentStep      int        `json:"current_step"`
	Answers          AnswerMap  `json:"answers,omitempty"`
	TimeSpentSec     int        `json:"time_spent_sec"`
	ExitReason       ExitReason `json:"exit_reason,omitempty"`
}

// Exited reports whether the session has a terminal exit reason.
func (s *Session) Exited() bool {
	return s.ExitReason != ""
}

// StepEvent records one lifecycle action for one step of one session.
// Immutable once written. TimeSpentSec is nil on events that carry no
// duration (enter events).
type StepEvent struct {
	ID           int64      `json:"id,omitempty"`
	SessionID    string     `json:"session_id"`
	StepIndex    int        `json:"step_index"`
	StepName     string     `json:"step_name"`
	Action       StepAction `json:"action"`
	Answers      AnswerMap  `json:"answers,omitempty"`
	TimeSpentSec *int       `json:"time_spent_sec,omitempty"`
	ExitReason   ExitReason `json:"exit_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Summary is the derived overview of all sessions in a window. Never persisted.
type Summary struct {
	TotalSessions     int         `json:"total_sessions"`
	CompletedSessions int         `json:"completed_sessions"`
	AbandonedSessions int         `json:"abandoned_sessions"`
	AverageTimeSpent  float64     `json:"average_time_spent"`
	ConversionRate    float64     `json:"conversion_rate"`
	DropOffByStep     map[int]int `json:"drop_off_by_step"`
}

// StepStats is the derived per-step aggregate. Never persisted.
type StepStats struct {
	StepIndex        int     `json:"step_index"`
	StepName         string  `json:"step_name"`
	Entrances        int     `json:"entrances"`
	Exits            int     `json:"exits"`
	AverageTimeSpent float64 `json:"average_time_spent"`
	DropOffRate      float64 `json:"drop_off_rate"`
}

// EnvelopeKind tags the payload variant carried by an Envelope.
type EnvelopeKind string

const (
	KindSessionStarted EnvelopeKind = "session_started"
	KindStepEvent      EnvelopeKind = "step_event"
	KindSessionExited  EnvelopeKind = "session_exited"
)

// Envelope is the Kafka message payload published by the collector for every
// accepted write. Exactly one of Session or Event is set, per Kind.
type Envelope struct {
	Kind    EnvelopeKind `json:"kind"`
	Session *Session     `json:"session,omitempty"`
	Event   *StepEvent   `json:"event,omitempty"`
}
