package engine

import (
	"encoding/json"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
)

// TaskState is the lifecycle state of one entity's analysis.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskSuccess TaskState = "success"
	TaskError   TaskState = "error"
)

// IsTerminal returns true if the state is final.
func (s TaskState) IsTerminal() bool {
	return s == TaskSuccess || s == TaskError
}

// Task tracks the analysis of exactly one entity within a session.
type Task struct {
	EntityID    string          `json:"entityId"`
	Name        string          `json:"name"`
	State       TaskState       `json:"state"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorDetail string          `json:"errorDetail,omitempty"`
}

// clone returns a copy of t that shares no memory with it.
func (t Task) clone() Task {
	if t.Result != nil {
		t.Result = append(json.RawMessage(nil), t.Result...)
	}
	return t
}

// Phase names a stage of the pipeline.
type Phase string

const (
	PhaseDiscovery   Phase = "discovery"
	PhaseAnalysis    Phase = "analysis"
	PhaseAggregation Phase = "aggregation"
	PhaseSynthesis   Phase = "synthesis"
)

// Policy decides whether a failed task voids the whole aggregation.
type Policy string

const (
	// PolicyStrict fails aggregation when any task ended in error.
	PolicyStrict Policy = "strict"

	// PolicyLenient keeps failed tasks in the bundle, tagged with their outcome.
	PolicyLenient Policy = "lenient"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyStrict || p == PolicyLenient
}

// StatusEvent is published whenever a task enters a state.
type StatusEvent struct {
	SessionID string    `json:"sessionId"`
	EntityID  string    `json:"entityId"`
	Name      string    `json:"name"`
	State     TaskState `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// SessionState is the coarse position of a session in the pipeline.
type SessionState string

const (
	SessionIdle        SessionState = "idle"
	SessionDiscovering SessionState = "discovering"
	SessionAnalyzing   SessionState = "analyzing"
	SessionEmpty       SessionState = "empty"
	SessionAggregated  SessionState = "aggregated"
	SessionSynthesized SessionState = "synthesized"
	SessionFailed      SessionState = "failed"
	SessionClosed      SessionState = "closed"
)

// Snapshot is a point-in-time copy of a session for observers.
type Snapshot struct {
	ID       string          `json:"id"`
	Query    string          `json:"query,omitempty"`
	State    SessionState    `json:"state"`
	Policy   Policy          `json:"policy"`
	Tasks    []Task          `json:"tasks"`
	Bundle   *collab.Bundle  `json:"bundle,omitempty"`
	Report   json.RawMessage `json:"report,omitempty"`
	Error    string          `json:"error,omitempty"`
	Phase    Phase           `json:"failedPhase,omitempty"`
	Started  time.Time       `json:"started,omitempty"`
	Finished time.Time       `json:"finished,omitempty"`
}
