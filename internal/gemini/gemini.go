// Package gemini implements the analysis and synthesis collaborators on top
// of the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// GenerateOptions tune a single generation call.
type GenerateOptions struct {
	// JSON asks the model for a bare JSON response.
	JSON bool
	// GoogleSearch grounds the answer on Google Search results. The API
	// rejects it together with JSON, so JSON is ignored when it is set.
	GoogleSearch bool
}

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// genaiGenerator is the Generator backed by the Gemini API.
type genaiGenerator struct {
	client *genai.Client
	model  string
}

// NewGenerator creates a Gemini-backed Generator.
func NewGenerator(ctx context.Context, apiKey, model string) (Generator, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &genaiGenerator{client: client, model: model}, nil
}

// safetySettings disables blocking for the harm categories; entity
// descriptions are routinely misclassified otherwise.
var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

func (g *genaiGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	cfg := &genai.GenerateContentConfig{SafetySettings: safetySettings}
	switch {
	case opts.GoogleSearch:
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case opts.JSON:
		cfg.ResponseMIMEType = "application/json"
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("model returned no text")
	}
	return text, nil
}

// Grounding selects where Analyze gets its source material.
type Grounding int

const (
	// GroundNone relies on the model's own knowledge.
	GroundNone Grounding = iota
	// GroundSearcher feeds results from a Searcher into the prompt.
	GroundSearcher
	// GroundGoogleSearch lets the model call the Google Search tool.
	GroundGoogleSearch
)

// Backend analyzes entities and synthesizes reports with a Generator. It
// implements collab.Analyzer and collab.Synthesizer.
type Backend struct {
	gen       Generator
	logger    *zap.Logger
	grounding Grounding
	searcher  Searcher
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithSearcher grounds analysis on results from s. A nil s is ignored.
func WithSearcher(s Searcher) BackendOption {
	return func(b *Backend) {
		if s != nil {
			b.searcher = s
			b.grounding = GroundSearcher
		}
	}
}

// WithGoogleSearch grounds analysis on the model's Google Search tool.
func WithGoogleSearch() BackendOption {
	return func(b *Backend) {
		b.searcher = nil
		b.grounding = GroundGoogleSearch
	}
}

// NewBackend creates a Backend. A nil logger is replaced with a no-op logger.
func NewBackend(gen Generator, logger *zap.Logger, opts ...BackendOption) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{gen: gen, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Analyze asks the model for a structured profile of entity, grounded as
// configured.
func (b *Backend) Analyze(ctx context.Context, entity collab.Entity) (json.RawMessage, error) {
	name := strings.TrimSpace(entity.Name)
	if name == "" {
		return nil, &collab.RemoteError{Op: collab.OpAnalyze, Message: collab.MsgMissingName}
	}

	start := time.Now()
	var (
		prompt string
		opts   GenerateOptions
	)
	switch b.grounding {
	case GroundSearcher:
		results, err := b.searcher.Search(ctx, SearchQuery(name))
		if err != nil {
			return nil, err
		}
		snippets := SearchContext(results)
		if snippets == "" {
			return nil, &collab.RemoteError{Op: collab.OpAnalyze, Message: collab.MsgNoSearchData}
		}
		prompt, opts = groundedAnalysisPrompt(name, snippets), GenerateOptions{JSON: true}
	case GroundGoogleSearch:
		prompt, opts = analysisPrompt(name), GenerateOptions{GoogleSearch: true}
	default:
		prompt, opts = analysisPrompt(name), GenerateOptions{JSON: true}
	}

	text, err := b.gen.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	result, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("entity analyzed by model",
		zap.String("entity", name),
		zap.Int("grounding", int(b.grounding)),
		zap.Int("bytes", len(result)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Synthesize asks the model for a strategic report over bundle.
func (b *Backend) Synthesize(ctx context.Context, bundle *collab.Bundle) (json.RawMessage, error) {
	if bundle == nil || len(bundle.Entries) == 0 {
		return nil, &collab.RemoteError{Op: collab.OpSynthesize, Message: collab.MsgEmptyBundle}
	}
	data, err := json.MarshalIndent(bundle.Entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}

	start := time.Now()
	text, err := b.gen.Generate(ctx, reportPrompt(string(data), bundle.Successes() < len(bundle.Entries)), GenerateOptions{})
	if err != nil {
		return nil, err
	}
	report, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	b.logger.Info("report generated by model",
		zap.Int("entities", len(bundle.Entries)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}
