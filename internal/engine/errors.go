package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dusk-indust/briefing/internal/collab"
)

// Phase sentinels, matched by PhaseError and AggregationError via errors.Is.
var (
	ErrDiscovery      = errors.New("discovery failed")
	ErrEntityAnalysis = errors.New("entity analysis failed")
	ErrAggregation    = errors.New("aggregation failed")
	ErrSynthesis      = errors.New("synthesis failed")
)

// Session and registry errors.
var (
	ErrEmptyQuery         = errors.New("query is empty")
	ErrNoEntities         = errors.New("discovery returned no entities")
	ErrNoBundle           = errors.New("no analysis bundle: run a successful search first")
	ErrAlreadySynthesized = errors.New("report already delivered for this bundle")
	ErrSynthesisInFlight  = errors.New("synthesis already in flight")
	ErrSuperseded         = errors.New("search superseded by a newer search")
	ErrSessionClosed      = errors.New("session closed")
	ErrSessionNotFound    = errors.New("session not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskTerminal       = errors.New("task already terminal")
	ErrNotTerminal        = errors.New("registry has pending tasks")
)

// phaseSentinel maps a phase to its sentinel error.
func phaseSentinel(p Phase) error {
	switch p {
	case PhaseDiscovery:
		return ErrDiscovery
	case PhaseAnalysis:
		return ErrEntityAnalysis
	case PhaseAggregation:
		return ErrAggregation
	case PhaseSynthesis:
		return ErrSynthesis
	}
	return nil
}

// PhaseError reports which phase of a session failed and why.
type PhaseError struct {
	Phase     Phase
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Message())
}

// Message is the upstream failure message, unmodified.
func (e *PhaseError) Message() string {
	return collab.Message(e.Err)
}

// Unwrap returns the underlying error.
func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the failed phase.
func (e *PhaseError) Is(target error) bool {
	s := phaseSentinel(e.Phase)
	return s != nil && target == s
}

// TaskFailure identifies one failed task inside an AggregationError.
type TaskFailure struct {
	EntityID string `json:"entityId"`
	Name     string `json:"name"`
	Detail   string `json:"detail"`
}

// AggregationError is returned under the strict policy when at least one task
// ended in error. No bundle is produced.
type AggregationError struct {
	Total    int
	Failures []TaskFailure
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %s", f.Name, f.Detail)
	}
	return fmt.Sprintf("%d of %d tasks failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrAggregation) match.
func (e *AggregationError) Is(target error) bool {
	return target == ErrAggregation
}

// FailedPhase returns the phase carried by err, or "" if err is not a phase
// failure.
func FailedPhase(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	var ae *AggregationError
	if errors.As(err, &ae) {
		return PhaseAggregation
	}
	return ""
}
