package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Compile-time interface check.
var _ Client = (*StaticBackend)(nil)

// manufacturers maps known key tokens to their makers.
var manufacturers = map[string]string{
	"optimus": "Tesla",
	"figure":  "Figure AI",
	"atlas":   "Boston Dynamics",
}

// StaticBackend is a deterministic, offline collaborator. It discovers from a
// catalog and fabricates analyses and reports from entity names alone; it is
// used for local runs and tests.
type StaticBackend struct {
	*CatalogDiscoverer
}

// NewStaticBackend creates a StaticBackend discovering from d. A nil d uses
// the default catalog.
func NewStaticBackend(d *CatalogDiscoverer) *StaticBackend {
	if d == nil {
		d = NewCatalogDiscoverer(nil, 0)
	}
	return &StaticBackend{CatalogDiscoverer: d}
}

// Analyze returns a fixed-shape description of the entity.
func (b *StaticBackend) Analyze(ctx context.Context, entity Entity) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entity.Name) == "" {
		return nil, &RemoteError{Op: OpAnalyze, Message: MsgMissingName}
	}

	maker, ok := manufacturers[keyToken(entity.Name)]
	if !ok {
		maker = "Unknown"
	}
	return json.Marshal(map[string]any{
		"name":         entity.Name,
		"manufacturer": maker,
		"summary":      fmt.Sprintf("%s is a humanoid robot built by %s.", entity.Name, maker),
		"specs":        map[string]string{"Weight": "unknown", "Payload": "unknown"},
	})
}

// Synthesize summarizes which entities were analyzed and which are data gaps.
func (b *StaticBackend) Synthesize(ctx context.Context, bundle *Bundle) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := bundle.Validate(); err != nil {
		return nil, &RemoteError{Op: OpSynthesize, Message: MsgEmptyBundle, Details: err.Error()}
	}

	var analyzed, gaps []string
	for _, e := range bundle.Entries {
		if e.Outcome == OutcomeSuccess {
			analyzed = append(analyzed, e.Name)
		} else {
			gaps = append(gaps, e.Name)
		}
	}

	report := map[string]any{
		"executive_summary": fmt.Sprintf("Compared %d robots for %q.", len(analyzed), bundle.Query),
		"competitive_landscape": map[string]any{
			"analyzed": analyzed,
		},
		"market_trends_and_predictions": "Static backend: no market data.",
	}
	if len(gaps) > 0 {
		report["data_gaps"] = gaps
	}
	return json.Marshal(report)
}
