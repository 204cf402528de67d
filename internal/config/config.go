// Package config loads briefing.yml, applies environment overrides and
// validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Collaborator modes.
const (
	ModeHTTP   = "http"
	ModeGemini = "gemini"
	ModeStatic = "static"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
)

// Discovery modes.
const (
	DiscoveryCatalog = "catalog"
	DiscoveryModel   = "model"
)

// Analysis grounding sources for gemini mode.
const (
	GroundingNone   = "none"
	GroundingSerper = "serper"
	GroundingGoogle = "google"
)

// Aggregation policies, mirrored here so config has no engine dependency.
const (
	PolicyStrict  = "strict"
	PolicyLenient = "lenient"
)

// FileNames are the config file names Load looks for, in order.
var FileNames = []string{"briefing.yml", "briefing.yaml"}

// Config holds all settings loaded from briefing.yml.
type Config struct {
	Collaborator CollaboratorConfig `yaml:"collaborator"`
	Engine       EngineConfig       `yaml:"engine"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Cache        CacheConfig        `yaml:"cache"`
	Gemini       GeminiConfig       `yaml:"gemini"`
	Logging      LoggingConfig      `yaml:"logging"`
	Server       ServerConfig       `yaml:"server"`
}

// CollaboratorConfig selects and addresses the remote collaborators.
type CollaboratorConfig struct {
	// Mode is http (remote service), gemini (direct model calls) or static.
	Mode           string        `yaml:"mode"`
	BaseURL        string        `yaml:"baseURL,omitempty"`
	DiscoverPath   string        `yaml:"discoverPath,omitempty"`
	AnalyzePath    string        `yaml:"analyzePath,omitempty"`
	SynthesizePath string        `yaml:"synthesizePath,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
}

// EngineConfig tunes the pipeline.
type EngineConfig struct {
	Policy string `yaml:"policy"`
	// MaxInFlight bounds concurrent analysis calls; 0 means unbounded.
	MaxInFlight      int           `yaml:"maxInFlight"`
	AnalysisTimeout  time.Duration `yaml:"analysisTimeout,omitempty"`
	SynthesisTimeout time.Duration `yaml:"synthesisTimeout,omitempty"`
	EventBuffer      int           `yaml:"eventBuffer"`
}

// DiscoveryConfig configures discovery for gemini and static modes.
type DiscoveryConfig struct {
	// Mode is catalog (local rival list) or model (ask Gemini, falling back
	// to the catalog). model only applies to the gemini backend.
	Mode string `yaml:"mode"`
	// Catalog replaces the built-in rival list when set.
	Catalog   []string `yaml:"catalog,omitempty"`
	MaxRivals int      `yaml:"maxRivals"`
}

// CacheConfig configures the per-entity analysis cache.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path,omitempty"`
	TTL     time.Duration `yaml:"ttl"`
}

// GeminiConfig holds model settings.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey,omitempty"`
	Model  string `yaml:"model"`
	// Grounding is none, serper (web search via Serper) or google (the
	// model's Google Search tool).
	Grounding    string `yaml:"grounding"`
	SerperAPIKey string `yaml:"serperApiKey,omitempty"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	Addr             string `yaml:"addr"`
	CollaboratorAddr string `yaml:"collaboratorAddr"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Collaborator: CollaboratorConfig{
			Mode:    ModeStatic,
			Timeout: 60 * time.Second,
		},
		Engine: EngineConfig{
			Policy:      PolicyStrict,
			EventBuffer: 64,
		},
		Discovery: DiscoveryConfig{
			Mode:      DiscoveryCatalog,
			MaxRivals: 2,
		},
		Cache: CacheConfig{
			Backend: CacheNone,
			Path:    "briefing-cache.db",
			TTL:     24 * time.Hour,
		},
		Gemini: GeminiConfig{
			Model:     "gemini-2.5-flash",
			Grounding: GroundingNone,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8080",
			CollaboratorAddr: "127.0.0.1:5000",
		},
	}
}

// Load reads briefing.yml or briefing.yaml from dir on top of Defaults.
// Returns the defaults (not an error) if no config file exists.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	return Defaults(), nil
}

// LoadFile reads one config file on top of Defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables read via getenv.
// Pass os.Getenv in production.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("BRIEFING_COLLABORATOR_URL"); v != "" {
		c.Collaborator.BaseURL = v
		c.Collaborator.Mode = ModeHTTP
	}
	if v := getenv("BRIEFING_POLICY"); v != "" {
		c.Engine.Policy = strings.ToLower(v)
	}
	if v := getenv("BRIEFING_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BRIEFING_MAX_IN_FLIGHT: %w", err)
		}
		c.Engine.MaxInFlight = n
	}
	if v := getenv("BRIEFING_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("BRIEFING_CACHE_PATH"); v != "" {
		c.Cache.Path = v
		if c.Cache.Backend == CacheNone {
			c.Cache.Backend = CacheSQLite
		}
	}
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := getenv("SERPER_API_KEY"); v != "" {
		c.Gemini.SerperAPIKey = v
		if c.Gemini.Grounding == GroundingNone {
			c.Gemini.Grounding = GroundingSerper
		}
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Collaborator.Mode {
	case ModeHTTP:
		if c.Collaborator.BaseURL == "" {
			errs = append(errs, errors.New("collaborator.baseURL is required in http mode"))
		}
	case ModeGemini:
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("gemini.apiKey (or GEMINI_API_KEY) is required in gemini mode"))
		}
	case ModeStatic:
	default:
		errs = append(errs, fmt.Errorf("collaborator.mode %q: want http, gemini or static", c.Collaborator.Mode))
	}
	if c.Collaborator.Timeout < 0 {
		errs = append(errs, errors.New("collaborator.timeout must not be negative"))
	}

	if c.Engine.Policy != PolicyStrict && c.Engine.Policy != PolicyLenient {
		errs = append(errs, fmt.Errorf("engine.policy %q: want strict or lenient", c.Engine.Policy))
	}
	if c.Engine.MaxInFlight < 0 {
		errs = append(errs, errors.New("engine.maxInFlight must not be negative"))
	}
	if c.Engine.AnalysisTimeout < 0 || c.Engine.SynthesisTimeout < 0 {
		errs = append(errs, errors.New("engine timeouts must not be negative"))
	}
	if c.Engine.EventBuffer < 0 {
		errs = append(errs, errors.New("engine.eventBuffer must not be negative"))
	}

	switch c.Discovery.Mode {
	case DiscoveryCatalog, DiscoveryModel:
	default:
		errs = append(errs, fmt.Errorf("discovery.mode %q: want catalog or model", c.Discovery.Mode))
	}
	if c.Discovery.MaxRivals < 0 {
		errs = append(errs, errors.New("discovery.maxRivals must not be negative"))
	}

	switch c.Gemini.Grounding {
	case GroundingNone, GroundingGoogle:
	case GroundingSerper:
		if c.Collaborator.Mode == ModeGemini && c.Gemini.SerperAPIKey == "" {
			errs = append(errs, errors.New("gemini.serperApiKey (or SERPER_API_KEY) is required for serper grounding"))
		}
	default:
		errs = append(errs, fmt.Errorf("gemini.grounding %q: want none, serper or google", c.Gemini.Grounding))
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheSQLite:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want none, memory or sqlite", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q: want debug, info, warn or error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want console or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}
