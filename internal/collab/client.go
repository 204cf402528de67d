package collab

import (
	"context"
	"encoding/json"
)

// Discoverer turns a query into the ordered set of related entities.
type Discoverer interface {
	Discover(ctx context.Context, query string) (*DiscoveryResult, error)
}

// Analyzer produces an opaque JSON object describing one entity.
type Analyzer interface {
	Analyze(ctx context.Context, entity Entity) (json.RawMessage, error)
}

// Synthesizer turns a full analysis bundle into an opaque report object.
type Synthesizer interface {
	Synthesize(ctx context.Context, bundle *Bundle) (json.RawMessage, error)
}

// Client bundles the three remote collaborators the pipeline talks to.
type Client interface {
	Discoverer
	Analyzer
	Synthesizer
}

// Compose builds a Client from independent collaborators, e.g. catalog
// discovery in front of a model-backed analyzer.
func Compose(d Discoverer, a Analyzer, s Synthesizer) Client {
	return composite{Discoverer: d, Analyzer: a, Synthesizer: s}
}

type composite struct {
	Discoverer
	Analyzer
	Synthesizer
}
