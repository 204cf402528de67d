package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"go.uber.org/zap"
)

// keyPrefix versions the cache layout; bump it when the analysis shape changes.
const keyPrefix = "entity:v2:"

// Key returns the cache key for an entity name: trimmed, lower-cased, with
// spaces replaced by underscores.
func Key(name string) string {
	return keyPrefix + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Compile-time assertion: *Analyzer satisfies collab.Analyzer.
var _ collab.Analyzer = (*Analyzer)(nil)

// Analyzer wraps another collab.Analyzer with a Store. Hits skip the wrapped
// call; only successful results are stored. Store failures are logged and
// never fail an analysis.
type Analyzer struct {
	next   collab.Analyzer
	store  Store
	ttl    time.Duration
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewAnalyzer creates a caching Analyzer. ttl <= 0 uses DefaultTTL.
func NewAnalyzer(next collab.Analyzer, store Store, ttl time.Duration, logger *zap.Logger) *Analyzer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{next: next, store: store, ttl: ttl, logger: logger}
}

// Analyze returns the cached analysis for entity or fetches and stores it.
func (a *Analyzer) Analyze(ctx context.Context, entity collab.Entity) (json.RawMessage, error) {
	key := Key(entity.Name)
	log := a.logger.With(zap.String("entity", entity.Name), zap.String("key", key))

	cached, ok, err := a.store.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn("cache read failed", zap.Error(err))
	case ok:
		a.hits.Add(1)
		log.Debug("cache hit")
		return cached, nil
	}
	a.misses.Add(1)
	log.Debug("cache miss")

	result, err := a.next.Analyze(ctx, entity)
	if err != nil {
		return nil, err
	}
	if err := a.store.Set(ctx, key, result, a.ttl); err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
	return result, nil
}

// Stats returns hit and miss counts since creation.
func (a *Analyzer) Stats() (hits, misses int64) {
	return a.hits.Load(), a.misses.Load()
}
