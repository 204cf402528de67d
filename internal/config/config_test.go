package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ReadsYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
collaborator:
  mode: http
  baseURL: http://localhost:5000
  timeout: 15s
engine:
  policy: lenient
  maxInFlight: 4
  synthesisTimeout: 2m
cache:
  backend: sqlite
  ttl: 1h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "briefing.yml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeHTTP, cfg.Collaborator.Mode)
	assert.Equal(t, "http://localhost:5000", cfg.Collaborator.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Collaborator.Timeout)
	assert.Equal(t, PolicyLenient, cfg.Engine.Policy)
	assert.Equal(t, 4, cfg.Engine.MaxInFlight)
	assert.Equal(t, 2*time.Minute, cfg.Engine.SynthesisTimeout)
	assert.Equal(t, CacheSQLite, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	// Untouched sections keep their defaults.
	assert.Equal(t, "briefing-cache.db", cfg.Cache.Path)
	assert.Equal(t, 2, cfg.Discovery.MaxRivals)
	assert.Equal(t, 64, cfg.Engine.EventBuffer)
}

func TestLoad_YAMLExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "briefing.yaml"), []byte("logging:\n  level: debug\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "briefing.yml"), []byte("engine: [unclosed"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "briefing.yml")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BRIEFING_COLLABORATOR_URL": "http://collab:5000",
		"BRIEFING_POLICY":           "LENIENT",
		"BRIEFING_MAX_IN_FLIGHT":    "3",
		"BRIEFING_LOG_LEVEL":        "warn",
		"BRIEFING_CACHE_PATH":       "/tmp/cache.db",
		"GEMINI_API_KEY":            "key-123",
		"SERPER_API_KEY":            "serp-456",
	}
	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, ModeHTTP, cfg.Collaborator.Mode)
	assert.Equal(t, "http://collab:5000", cfg.Collaborator.BaseURL)
	assert.Equal(t, PolicyLenient, cfg.Engine.Policy)
	assert.Equal(t, 3, cfg.Engine.MaxInFlight)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/cache.db", cfg.Cache.Path)
	assert.Equal(t, CacheSQLite, cfg.Cache.Backend)
	assert.Equal(t, "key-123", cfg.Gemini.APIKey)
	assert.Equal(t, "serp-456", cfg.Gemini.SerperAPIKey)
	assert.Equal(t, GroundingSerper, cfg.Gemini.Grounding)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_SerperKeyKeepsExplicitGrounding(t *testing.T) {
	cfg := Defaults()
	cfg.Gemini.Grounding = GroundingGoogle
	require.NoError(t, cfg.ApplyEnv(func(k string) string {
		if k == "SERPER_API_KEY" {
			return "serp-456"
		}
		return ""
	}))
	assert.Equal(t, GroundingGoogle, cfg.Gemini.Grounding)
}

func TestValidate_GeminiDiscoveryAndGrounding(t *testing.T) {
	cfg := Defaults()
	cfg.Collaborator.Mode = ModeGemini
	cfg.Gemini.APIKey = "key"
	cfg.Gemini.Grounding = GroundingSerper
	cfg.Gemini.SerperAPIKey = "serp"
	cfg.Discovery.Mode = DiscoveryModel
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadInteger(t *testing.T) {
	cfg := Defaults()
	err := cfg.ApplyEnv(func(k string) string {
		if k == "BRIEFING_MAX_IN_FLIGHT" {
			return "many"
		}
		return ""
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BRIEFING_MAX_IN_FLIGHT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown policy", func(c *Config) { c.Engine.Policy = "relaxed" }, "engine.policy"},
		{"negative max in flight", func(c *Config) { c.Engine.MaxInFlight = -1 }, "maxInFlight"},
		{"negative timeout", func(c *Config) { c.Engine.AnalysisTimeout = -time.Second }, "timeouts"},
		{"unknown mode", func(c *Config) { c.Collaborator.Mode = "carrier-pigeon" }, "collaborator.mode"},
		{"http without url", func(c *Config) { c.Collaborator.Mode = ModeHTTP }, "baseURL"},
		{"gemini without key", func(c *Config) { c.Collaborator.Mode = ModeGemini }, "apiKey"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"sqlite without path", func(c *Config) { c.Cache.Backend = CacheSQLite; c.Cache.Path = "" }, "cache.path"},
		{"unknown discovery mode", func(c *Config) { c.Discovery.Mode = "oracle" }, "discovery.mode"},
		{"unknown grounding", func(c *Config) { c.Gemini.Grounding = "bing" }, "gemini.grounding"},
		{"serper without key", func(c *Config) {
			c.Collaborator.Mode = ModeGemini
			c.Gemini.APIKey = "key"
			c.Gemini.Grounding = GroundingSerper
		}, "serperApiKey"},
		{"negative rivals", func(c *Config) { c.Discovery.MaxRivals = -2 }, "maxRivals"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_JoinsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Policy = "x"
	cfg.Cache.Backend = "y"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.policy")
	assert.Contains(t, err.Error(), "cache.backend")
}
