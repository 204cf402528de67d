package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"go.uber.org/zap"
)

// Gate performs the final, explicitly triggered synthesis call. It holds no
// state: every call validates its bundle and issues exactly one request.
type Gate struct {
	synthesizer collab.Synthesizer
	timeout     time.Duration
	logger      *zap.Logger
}

// NewGate creates a Gate. timeout <= 0 means no timeout beyond ctx.
func NewGate(synthesizer collab.Synthesizer, timeout time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		synthesizer: synthesizer,
		timeout:     timeout,
		logger:      logger,
	}
}

// Synthesize validates bundle and sends it to the synthesizer. Failures are
// returned as *PhaseError with PhaseSynthesis; the bundle is never modified,
// so the caller may retry with it.
func (g *Gate) Synthesize(ctx context.Context, bundle *collab.Bundle) (json.RawMessage, error) {
	if err := bundle.Validate(); err != nil {
		return nil, &PhaseError{Phase: PhaseSynthesis, Err: fmt.Errorf("invalid bundle: %w", err)}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := g.synthesizer.Synthesize(ctx, bundle.Clone())
	if err != nil {
		g.logger.Warn("synthesis failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, &PhaseError{Phase: PhaseSynthesis, Err: err}
	}
	if len(report) == 0 {
		return nil, &PhaseError{Phase: PhaseSynthesis, Err: &collab.MalformedResponseError{Op: collab.OpSynthesize, Reason: "empty report"}}
	}

	g.logger.Info("report synthesized",
		zap.Int("entries", len(bundle.Entries)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}
