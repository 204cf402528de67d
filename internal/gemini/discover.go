package gemini

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dusk-indust/briefing/internal/collab"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time interface check.
var _ collab.Discoverer = (*Discoverer)(nil)

// Competitor is one rival named by the model.
type Competitor struct {
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
}

// Discoverer asks the model for the queried entity's main competitors. When
// the model fails or names no usable competitor, the fallback discoverer is
// used if one is set.
type Discoverer struct {
	gen       Generator
	fallback  collab.Discoverer
	maxRivals int
	logger    *zap.Logger
}

// NewDiscoverer creates a model-backed discoverer. maxRivals <= 0 uses
// collab.DefaultMaxRivals. A nil logger is replaced with a no-op logger.
func NewDiscoverer(gen Generator, fallback collab.Discoverer, maxRivals int, logger *zap.Logger) *Discoverer {
	if maxRivals <= 0 {
		maxRivals = collab.DefaultMaxRivals
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{gen: gen, fallback: fallback, maxRivals: maxRivals, logger: logger}
}

// Discover returns the query followed by up to maxRivals competitors in the
// order the model listed them. Competitors repeating the query or an earlier
// name are skipped.
func (d *Discoverer) Discover(ctx context.Context, query string) (*collab.DiscoveryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &collab.RemoteError{Op: collab.OpDiscover, Message: collab.MsgMissingRobot}
	}

	rivals, err := d.competitors(ctx, query)
	if err != nil || len(rivals) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if d.fallback == nil {
			if err == nil {
				err = &collab.MalformedResponseError{Op: collab.OpDiscover, Reason: "model named no competitors"}
			}
			return nil, err
		}
		d.logger.Warn("model discovery failed, using fallback",
			zap.String("query", query),
			zap.Error(err))
		return d.fallback.Discover(ctx, query)
	}

	names := append([]string{query}, rivals...)
	d.logger.Debug("competitors discovered by model",
		zap.String("query", query),
		zap.Strings("rivals", rivals))
	return &collab.DiscoveryResult{
		TaskID:   uuid.NewString(),
		Entities: collab.NewEntities(names),
	}, nil
}

func (d *Discoverer) competitors(ctx context.Context, query string) ([]string, error) {
	text, err := d.gen.Generate(ctx, competitorPrompt(query), GenerateOptions{JSON: true})
	if err != nil {
		return nil, err
	}
	list, err := ParseCompetitors(text)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{strings.ToLower(query): true}
	var names []string
	for _, c := range list {
		name := strings.TrimSpace(c.Name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
		if len(names) == d.maxRivals {
			break
		}
	}
	return names, nil
}

// ParseCompetitors decodes the JSON list in model output. Text around the
// outermost brackets, such as a code fence, is ignored.
func ParseCompetitors(text string) ([]Competitor, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end < start {
		return nil, &collab.MalformedResponseError{Op: collab.OpDiscover, Reason: "no JSON list in model output"}
	}
	var list []Competitor
	if err := json.Unmarshal([]byte(text[start:end+1]), &list); err != nil {
		return nil, &collab.MalformedResponseError{Op: collab.OpDiscover, Reason: err.Error()}
	}
	return list, nil
}
