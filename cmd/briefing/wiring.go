package main

import (
	"context"
	"fmt"

	"github.com/dusk-indust/briefing/internal/cache"
	"github.com/dusk-indust/briefing/internal/collab"
	"github.com/dusk-indust/briefing/internal/config"
	"github.com/dusk-indust/briefing/internal/engine"
	"github.com/dusk-indust/briefing/internal/gemini"
	"go.uber.org/zap"
)

// openCache returns the configured analysis cache store, or nil when caching
// is off.
func openCache(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case config.CacheMemory:
		return cache.NewMemStore(nil), nil
	case config.CacheSQLite:
		store, err := cache.NewSQLiteStore(cfg.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("open analysis cache: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// backend is a collaborator built from configuration plus whatever must be
// released when the command exits.
type backend struct {
	collab.Client
	store  cache.Store
	cached *cache.Analyzer
}

func (b *backend) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}

// newBackend builds the collaborator for mode. HTTP mode talks to a remote
// collaborator; gemini and static run in-process, with the analysis cache
// wrapped around the analyzer when enabled.
func newBackend(ctx context.Context, cfg *config.Config, mode string, logger *zap.Logger) (*backend, error) {
	if mode == config.ModeHTTP {
		return &backend{Client: collab.NewHTTPClient(collab.Endpoints{
			BaseURL:        cfg.Collaborator.BaseURL,
			DiscoverPath:   cfg.Collaborator.DiscoverPath,
			AnalyzePath:    cfg.Collaborator.AnalyzePath,
			SynthesizePath: cfg.Collaborator.SynthesizePath,
		}, collab.WithTimeout(cfg.Collaborator.Timeout))}, nil
	}

	catalog := collab.NewCatalogDiscoverer(cfg.Discovery.Catalog, cfg.Discovery.MaxRivals)

	var (
		discoverer  collab.Discoverer = catalog
		analyzer    collab.Analyzer
		synthesizer collab.Synthesizer
	)
	switch mode {
	case config.ModeGemini:
		gen, err := gemini.NewGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		opts, err := groundingOptions(cfg.Gemini)
		if err != nil {
			return nil, err
		}
		gb := gemini.NewBackend(gen, logger.Named("gemini"), opts...)
		analyzer, synthesizer = gb, gb
		if cfg.Discovery.Mode == config.DiscoveryModel {
			discoverer = gemini.NewDiscoverer(gen, catalog, cfg.Discovery.MaxRivals, logger.Named("discovery"))
		}
	case config.ModeStatic:
		if cfg.Discovery.Mode == config.DiscoveryModel {
			logger.Warn("model discovery needs the gemini backend; using the catalog")
		}
		sb := collab.NewStaticBackend(catalog)
		analyzer, synthesizer = sb, sb
	default:
		return nil, fmt.Errorf("unknown collaborator mode %q", mode)
	}

	store, err := openCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	be := &backend{store: store}
	if store != nil {
		be.cached = cache.NewAnalyzer(analyzer, store, cfg.Cache.TTL, logger.Named("cache"))
		analyzer = be.cached
		logger.Info("analysis cache enabled", zap.String("backend", cfg.Cache.Backend), zap.Duration("ttl", cfg.Cache.TTL))
	}
	be.Client = collab.Compose(discoverer, analyzer, synthesizer)
	return be, nil
}

// groundingOptions selects the analysis grounding configured for gemini mode.
func groundingOptions(cfg config.GeminiConfig) ([]gemini.BackendOption, error) {
	switch cfg.Grounding {
	case config.GroundingSerper:
		s, err := gemini.NewSerperSearcher(cfg.SerperAPIKey)
		if err != nil {
			return nil, err
		}
		return []gemini.BackendOption{gemini.WithSearcher(s)}, nil
	case config.GroundingGoogle:
		return []gemini.BackendOption{gemini.WithGoogleSearch()}, nil
	default:
		return nil, nil
	}
}

// newEngine builds an engine from the engine section of cfg.
func newEngine(cfg *config.Config, client collab.Client, logger *zap.Logger) *engine.Engine {
	return engine.New(client,
		engine.WithPolicy(engine.Policy(cfg.Engine.Policy)),
		engine.WithConcurrency(cfg.Engine.MaxInFlight),
		engine.WithAnalysisTimeout(cfg.Engine.AnalysisTimeout),
		engine.WithSynthesisTimeout(cfg.Engine.SynthesisTimeout),
		engine.WithEventBuffer(cfg.Engine.EventBuffer),
		engine.WithLogger(logger.Named("engine")),
	)
}
