//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dusk-indust/briefing/internal/collab"
	"github.com/dusk-indust/briefing/internal/engine"
	"go.uber.org/zap/zaptest"
)

// scriptedBackend is a static collaborator whose analysis and synthesis
// answers can be overridden per entity name.
type scriptedBackend struct {
	*collab.StaticBackend

	mu         sync.Mutex
	analyze    map[string]func() (json.RawMessage, error)
	synthesize []func(*collab.Bundle) (json.RawMessage, error)
	bundles    []*collab.Bundle
}

func newScriptedBackend(maxRivals int) *scriptedBackend {
	return &scriptedBackend{
		StaticBackend: collab.NewStaticBackend(collab.NewCatalogDiscoverer(nil, maxRivals)),
		analyze:       make(map[string]func() (json.RawMessage, error)),
	}
}

func (b *scriptedBackend) failAnalysis(name, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyze[name] = func() (json.RawMessage, error) {
		return nil, &collab.RemoteError{Op: collab.OpAnalyze, Message: msg}
	}
}

func (b *scriptedBackend) rawAnalysis(name, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyze[name] = func() (json.RawMessage, error) { return json.RawMessage(body), nil }
}

// queueSynthesis appends one scripted answer; unscripted calls fall through
// to the static backend.
func (b *scriptedBackend) queueSynthesis(fn func(*collab.Bundle) (json.RawMessage, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.synthesize = append(b.synthesize, fn)
}

func (b *scriptedBackend) Analyze(ctx context.Context, e collab.Entity) (json.RawMessage, error) {
	b.mu.Lock()
	fn := b.analyze[e.Name]
	b.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return b.StaticBackend.Analyze(ctx, e)
}

func (b *scriptedBackend) Synthesize(ctx context.Context, bundle *collab.Bundle) (json.RawMessage, error) {
	b.mu.Lock()
	b.bundles = append(b.bundles, bundle.Clone())
	var fn func(*collab.Bundle) (json.RawMessage, error)
	if len(b.synthesize) > 0 {
		fn, b.synthesize = b.synthesize[0], b.synthesize[1:]
	}
	b.mu.Unlock()
	if fn != nil {
		return fn(bundle)
	}
	return b.StaticBackend.Synthesize(ctx, bundle)
}

// received returns the bundles the collaborator was asked to synthesize.
func (b *scriptedBackend) received() []*collab.Bundle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*collab.Bundle(nil), b.bundles...)
}

// startCollaborator serves backend over HTTP and returns a client for it.
func startCollaborator(t *testing.T, backend collab.Client) *collab.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(collab.NewServer(backend, zaptest.NewLogger(t)).Handler())
	t.Cleanup(srv.Close)
	return collab.NewHTTPClient(collab.Endpoints{BaseURL: srv.URL})
}

// newEngine builds an engine over an HTTP collaborator serving backend.
func newEngine(t *testing.T, backend collab.Client, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{engine.WithLogger(zaptest.NewLogger(t))}, opts...)
	return engine.New(startCollaborator(t, backend), opts...)
}

func names(tasks []engine.Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Name
	}
	return out
}
