package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FanOut dispatches one analysis call per entity concurrently and drives every
// task in a Registry to a terminal state. Unlike a first-failure barrier, a
// failed call never cancels its siblings: Run returns only when all tasks
// are terminal.
type FanOut struct {
	analyzer    collab.Analyzer
	maxInFlight int
	callTimeout time.Duration
	logger      *zap.Logger
}

// FanOutOption configures a FanOut.
type FanOutOption func(*FanOut)

// WithMaxInFlight bounds the number of concurrent analysis calls. n <= 0
// means one goroutine per entity.
func WithMaxInFlight(n int) FanOutOption {
	return func(f *FanOut) {
		f.maxInFlight = n
	}
}

// WithCallTimeout bounds each analysis call. d <= 0 means no per-call timeout.
func WithCallTimeout(d time.Duration) FanOutOption {
	return func(f *FanOut) {
		f.callTimeout = d
	}
}

// WithFanOutLogger sets the logger used for per-task diagnostics.
func WithFanOutLogger(l *zap.Logger) FanOutOption {
	return func(f *FanOut) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFanOut creates a FanOut that analyzes entities with analyzer.
func NewFanOut(analyzer collab.Analyzer, opts ...FanOutOption) *FanOut {
	f := &FanOut{
		analyzer: analyzer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run analyzes every entity in parallel, recording each outcome in reg and
// passing the terminal task to onDone. onDone is called from the worker
// goroutines and may be nil.
//
// When ctx is canceled, calls not yet started fail immediately with the
// context error and in-flight calls are expected to return promptly; the
// barrier still holds, so every task is terminal when Run returns. The
// returned error is ctx.Err() in that case, nil otherwise.
func (f *FanOut) Run(ctx context.Context, reg *Registry, entities []collab.Entity, onDone func(Task)) error {
	var g errgroup.Group
	if f.maxInFlight > 0 {
		g.SetLimit(f.maxInFlight)
	}

	for _, entity := range entities {
		g.Go(func() error {
			f.analyze(ctx, reg, entity, onDone)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}

// analyze performs one call and records its outcome exactly once.
func (f *FanOut) analyze(ctx context.Context, reg *Registry, entity collab.Entity, onDone func(Task)) {
	log := f.logger.With(zap.String("entity_id", entity.ID), zap.String("entity", entity.Name))
	start := time.Now()

	result, err := f.call(ctx, entity)

	var (
		task    Task
		markErr error
	)
	if err != nil {
		task, markErr = reg.Fail(entity.ID, collab.Message(err))
		log.Warn("entity analysis failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	} else {
		task, markErr = reg.Complete(entity.ID, result)
		log.Debug("entity analyzed", zap.Duration("elapsed", time.Since(start)))
	}
	if markErr != nil {
		// The task was already terminal or unknown; nothing new to report.
		log.Error("task transition rejected", zap.Error(markErr))
		return
	}

	if onDone != nil {
		onDone(task)
	}
}

// call invokes the analyzer, honoring cancellation and the per-call timeout.
func (f *FanOut) call(ctx context.Context, entity collab.Entity) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.callTimeout)
		defer cancel()
	}

	result, err := f.analyzer.Analyze(ctx, entity)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, &collab.MalformedResponseError{Op: collab.OpAnalyze, Reason: "empty result"}
	}
	return result, nil
}
