package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"go.uber.org/zap"
)

// Session is one caller-owned analysis session. At most one fan-out runs per
// session: a new Search cancels the previous one and waits for its barrier
// before creating a fresh registry.
type Session struct {
	id         string
	policy     Policy
	discoverer collab.Discoverer
	fanout     *FanOut
	aggregator *Aggregator
	gate       *Gate
	publisher  *Publisher
	logger     *zap.Logger

	mu           sync.Mutex
	generation   uint64
	state        SessionState
	query        string
	registry     *Registry
	bundle       *collab.Bundle
	report       json.RawMessage
	delivered    bool
	synthesizing bool
	err          error
	started      time.Time
	finished     time.Time
	cancel       context.CancelFunc
	done         chan struct{}
	closed       bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Policy returns the aggregation policy of this session.
func (s *Session) Policy() Policy {
	return s.policy
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Search runs discovery, fan-out and aggregation for query and returns the
// resulting bundle. Any search already running on this session is canceled
// and returns ErrSuperseded.
//
// Failures are *PhaseError values for the discovery, analysis and
// aggregation phases. A discovery that finds nothing returns ErrNoEntities
// without creating any task.
func (s *Session) Search(ctx context.Context, query string) (*collab.Bundle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	prevCancel, prevDone := s.cancel, s.done
	searchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.generation++
	gen := s.generation
	s.cancel, s.done = cancel, done
	s.state = SessionDiscovering
	s.query = query
	s.registry = nil
	s.bundle = nil
	s.report = nil
	s.delivered = false
	s.synthesizing = false
	s.err = nil
	s.started = time.Now()
	s.finished = time.Time{}
	s.mu.Unlock()

	defer close(done)
	defer cancel()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	log := s.logger.With(zap.String("query", query))
	bundle, err := s.search(searchCtx, gen, query, log)
	if errors.Is(err, ErrSuperseded) {
		log.Info("search superseded")
	}
	return bundle, err
}

func (s *Session) search(ctx context.Context, gen uint64, query string, log *zap.Logger) (*collab.Bundle, error) {
	if err := s.checkCurrent(gen); err != nil {
		return nil, err
	}

	log.Debug("discovery started", zap.String("phase", string(PhaseDiscovery)))
	found, err := s.discoverer.Discover(ctx, query)
	if err != nil {
		return nil, s.fail(gen, &PhaseError{Phase: PhaseDiscovery, SessionID: s.id, Err: err})
	}
	if found == nil {
		return nil, s.fail(gen, &PhaseError{
			Phase:     PhaseDiscovery,
			SessionID: s.id,
			Err:       &collab.MalformedResponseError{Op: collab.OpDiscover, Reason: "nil result"},
		})
	}
	if len(found.Entities) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.staleLocked(gen); err != nil {
			return nil, err
		}
		s.state = SessionEmpty
		s.err = ErrNoEntities
		s.finished = time.Now()
		log.Info("discovery returned no entities")
		return nil, ErrNoEntities
	}

	reg, err := NewRegistry(found.Entities)
	if err != nil {
		return nil, s.fail(gen, &PhaseError{Phase: PhaseDiscovery, SessionID: s.id, Err: err})
	}

	s.mu.Lock()
	if err := s.staleLocked(gen); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.registry = reg
	s.state = SessionAnalyzing
	s.mu.Unlock()

	log.Info("fan-out started",
		zap.String("phase", string(PhaseAnalysis)),
		zap.Int("entities", len(found.Entities)))
	for _, t := range reg.Snapshot() {
		s.publish(gen, t)
	}

	runErr := s.fanout.Run(ctx, reg, found.Entities, func(t Task) {
		s.publish(gen, t)
	})
	_, ok, failed := reg.Counts()
	log.Info("fan-out finished", zap.Int("success", ok), zap.Int("error", failed))
	if runErr != nil {
		return nil, s.fail(gen, &PhaseError{Phase: PhaseAnalysis, SessionID: s.id, Err: runErr})
	}

	bundle, err := s.aggregator.Aggregate(query, reg.Snapshot())
	if err != nil {
		return nil, s.fail(gen, &PhaseError{Phase: PhaseAggregation, SessionID: s.id, Err: err})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.staleLocked(gen); err != nil {
		return nil, err
	}
	s.bundle = bundle
	s.state = SessionAggregated
	s.finished = time.Now()
	log.Info("aggregation complete",
		zap.String("phase", string(PhaseAggregation)),
		zap.String("policy", string(s.policy)),
		zap.Int("entries", len(bundle.Entries)))
	return bundle.Clone(), nil
}

// fail records err as the outcome of generation gen.
func (s *Session) fail(gen uint64, err *PhaseError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stale := s.staleLocked(gen); stale != nil {
		return stale
	}
	s.state = SessionFailed
	s.err = err
	s.finished = time.Now()
	s.logger.Warn("session phase failed", zap.String("phase", string(err.Phase)), zap.Error(err.Err))
	return err
}

// staleLocked reports why generation gen may no longer update the session.
// s.mu must be held.
func (s *Session) staleLocked(gen uint64) error {
	if s.closed {
		return ErrSessionClosed
	}
	if gen != s.generation {
		return ErrSuperseded
	}
	return nil
}

func (s *Session) checkCurrent(gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleLocked(gen)
}

// publish emits a status event for t unless its search was superseded. The
// event is published under s.mu so a generation change cannot slip between the
// check and the delivery; Publish never blocks.
func (s *Session) publish(gen uint64, t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(gen) != nil {
		return
	}
	s.publisher.Publish(StatusEvent{
		SessionID: s.id,
		EntityID:  t.EntityID,
		Name:      t.Name,
		State:     t.State,
		Detail:    t.ErrorDetail,
		At:        time.Now(),
	})
}

// Synthesize sends the session's bundle to the synthesis collaborator and
// returns the report. It requires a bundle from a successful Search. After a
// report is delivered further calls return ErrAlreadySynthesized until the
// next Search; after a failure the bundle is kept and the call may be
// retried. A later Search never cancels a synthesis already issued.
func (s *Session) Synthesize(ctx context.Context) (json.RawMessage, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case s.bundle == nil:
		s.mu.Unlock()
		return nil, ErrNoBundle
	case s.synthesizing:
		s.mu.Unlock()
		return nil, ErrSynthesisInFlight
	case s.delivered:
		s.mu.Unlock()
		return nil, ErrAlreadySynthesized
	}
	s.synthesizing = true
	gen := s.generation
	bundle := s.bundle
	s.mu.Unlock()

	log := s.logger.With(zap.String("phase", string(PhaseSynthesis)))
	log.Info("synthesis requested", zap.Int("entries", len(bundle.Entries)))

	report, err := s.gate.Synthesize(ctx, bundle)

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.staleLocked(gen) == nil
	if current {
		s.synthesizing = false
	}
	if err != nil {
		var pe *PhaseError
		if errors.As(err, &pe) {
			pe.SessionID = s.id
		}
		if current {
			s.err = err
		}
		return nil, err
	}
	if current {
		s.report = report
		s.delivered = true
		s.err = nil
		s.state = SessionSynthesized
		s.finished = time.Now()
	}
	return append(json.RawMessage(nil), report...), nil
}

// Tasks returns copies of the current tasks in discovery order.
func (s *Session) Tasks() []Task {
	s.mu.Lock()
	reg := s.registry
	s.mu.Unlock()
	if reg == nil {
		return []Task{}
	}
	return reg.Snapshot()
}

// Bundle returns a copy of the aggregated bundle, or nil before a
// successful aggregation.
func (s *Session) Bundle() *collab.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bundle.Clone()
}

// Report returns a copy of the delivered report, or nil.
func (s *Session) Report() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return nil
	}
	return append(json.RawMessage(nil), s.report...)
}

// Err returns the error of the last failed phase, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Snapshot returns a point-in-time copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:       s.id,
		Query:    s.query,
		State:    s.state,
		Policy:   s.policy,
		Bundle:   s.bundle.Clone(),
		Started:  s.started,
		Finished: s.finished,
	}
	if s.report != nil {
		snap.Report = append(json.RawMessage(nil), s.report...)
	}
	if s.err != nil {
		snap.Error = errorMessage(s.err)
		snap.Phase = FailedPhase(s.err)
	}
	reg := s.registry
	s.mu.Unlock()

	snap.Tasks = []Task{}
	if reg != nil {
		snap.Tasks = reg.Snapshot()
	}
	return snap
}

func errorMessage(err error) string {
	var pe *PhaseError
	if errors.As(err, &pe) {
		var ae *AggregationError
		if errors.As(pe.Err, &ae) {
			return ae.Error()
		}
		return pe.Message()
	}
	return err.Error()
}

// Subscribe registers an observer of task transitions. Events published
// before the call are not replayed.
func (s *Session) Subscribe() (<-chan StatusEvent, func()) {
	return s.publisher.Subscribe()
}

// Close cancels any running search, waits for its fan-out to finish and
// closes all subscriber channels. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = SessionClosed
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.publisher.Close()
	s.logger.Debug("session closed")
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id, s.State())
}
