// Package engine runs the staged aggregation pipeline: discovery, concurrent
// per-entity analysis, aggregation under a partial-failure policy and an
// explicitly triggered synthesis.
package engine

import (
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine holds the collaborators and settings shared by every session it
// creates. It carries no per-session state.
type Engine struct {
	client           collab.Client
	policy           Policy
	maxInFlight      int
	analysisTimeout  time.Duration
	synthesisTimeout time.Duration
	eventBuffer      int
	logger           *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the default aggregation policy. Unknown values are ignored.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		if p.Valid() {
			e.policy = p
		}
	}
}

// WithConcurrency bounds the number of analysis calls in flight per session.
// n <= 0 dispatches every entity at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.maxInFlight = n
	}
}

// WithAnalysisTimeout bounds each per-entity analysis call.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.analysisTimeout = d
	}
}

// WithSynthesisTimeout bounds the synthesis call.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.synthesisTimeout = d
	}
}

// WithEventBuffer sets the per-subscriber status channel capacity. n <= 0
// keeps DefaultEventBuffer, since an unbuffered subscriber would miss every
// event.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.eventBuffer = n
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine that talks to client.
func New(client collab.Client, opts ...Option) *Engine {
	e := &Engine{
		client:      client,
		policy:      PolicyStrict,
		eventBuffer: DefaultEventBuffer,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the default aggregation policy for new sessions.
func (e *Engine) Policy() Policy {
	return e.policy
}

// SessionOption configures a single Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	id     string
	policy Policy
}

// WithSessionPolicy overrides the engine's policy for one session.
func WithSessionPolicy(p Policy) SessionOption {
	return func(c *sessionConfig) {
		if p.Valid() {
			c.policy = p
		}
	}
}

// WithSessionID sets the session identifier instead of a random UUID.
func WithSessionID(id string) SessionOption {
	return func(c *sessionConfig) {
		if id != "" {
			c.id = id
		}
	}
}

// NewSession creates an idle session owned by the caller.
func (e *Engine) NewSession(opts ...SessionOption) *Session {
	cfg := sessionConfig{id: uuid.NewString(), policy: e.policy}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := e.logger.With(zap.String("session_id", cfg.id))
	return &Session{
		id:         cfg.id,
		policy:     cfg.policy,
		discoverer: e.client,
		fanout: NewFanOut(e.client,
			WithMaxInFlight(e.maxInFlight),
			WithCallTimeout(e.analysisTimeout),
			WithFanOutLogger(log),
		),
		aggregator: NewAggregator(cfg.policy),
		gate:       NewGate(e.client, e.synthesisTimeout, log),
		publisher:  NewPublisher(e.eventBuffer),
		logger:     log,
		state:      SessionIdle,
	}
}
