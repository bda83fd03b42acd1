// Package config assembles negotium's process configuration the way the
// teacher assembles HectorConfig: plain structs with yaml tags, a
// SetDefaults/Validate pass per section, loaded from a YAML file and
// overridable from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EngineConfig enumerates the process-level knobs from the negotiation
// engine's external interface. No other knobs exist.
type EngineConfig struct {
	MaxCoordinatorRounds int `yaml:"max_coordinator_rounds"`
	PerOfferTimeoutMS    int `yaml:"per_offer_timeout_ms"`
	SessionWallClockMS   int `yaml:"session_wall_clock_ms"`
	SelectionTopK        int `yaml:"selection_top_k"`
	RecursionMaxDepth    int `yaml:"recursion_max_depth"`
	EmbeddingDimension   int `yaml:"embedding_dimension"`

	// SelectionThreshold is float and kept separate from the int block above.
	SelectionThreshold float64 `yaml:"selection_threshold"`
}

func (c *EngineConfig) SetDefaults() {
	if c.MaxCoordinatorRounds == 0 {
		c.MaxCoordinatorRounds = 2
	}
	if c.PerOfferTimeoutMS == 0 {
		c.PerOfferTimeoutMS = 15000
	}
	if c.SessionWallClockMS == 0 {
		c.SessionWallClockMS = 120000
	}
	if c.SelectionTopK == 0 {
		c.SelectionTopK = 5
	}
	if c.RecursionMaxDepth == 0 {
		c.RecursionMaxDepth = 1
	}
	if c.EmbeddingDimension == 0 {
		c.EmbeddingDimension = 768
	}
	if c.SelectionThreshold == 0 {
		c.SelectionThreshold = 0.35
	}
}

func (c *EngineConfig) Validate() error {
	if c.MaxCoordinatorRounds < 1 {
		return fmt.Errorf("engine: max_coordinator_rounds must be >= 1")
	}
	if c.SelectionTopK < 0 {
		return fmt.Errorf("engine: selection_top_k must be >= 0")
	}
	if c.SelectionThreshold < 0 || c.SelectionThreshold > 1 {
		return fmt.Errorf("engine: selection_threshold must be in [0,1]")
	}
	if c.RecursionMaxDepth < 0 {
		return fmt.Errorf("engine: recursion_max_depth must be >= 0")
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("engine: embedding_dimension must be > 0")
	}
	return nil
}

// LLMProviderConfig configures one central or per-agent LLM endpoint.
type LLMProviderConfig struct {
	Type        string  `yaml:"type"` // openai, anthropic, ollama
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Host        string  `yaml:"host"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     int     `yaml:"timeout"` // seconds
	MaxRetries  int     `yaml:"max_retries"`
	RetryDelay  int     `yaml:"retry_delay"` // seconds
}

func (c *LLMProviderConfig) SetDefaults() {
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
}

func (c *LLMProviderConfig) Validate() error {
	switch c.Type {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("llm: unsupported type %q", c.Type)
	}
	if c.Type != "ollama" && c.APIKey == "" {
		return fmt.Errorf("llm: api_key is required for %q", c.Type)
	}
	return nil
}

// EncoderProviderConfig configures the text-embedding provider.
type EncoderProviderConfig struct {
	Type       string `yaml:"type"` // openai, ollama
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Host       string `yaml:"host"`
	Dimension  int    `yaml:"dimension"`
	Timeout    int    `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	BatchSize  int    `yaml:"batch_size"`
}

func (c *EncoderProviderConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
}

func (c *EncoderProviderConfig) Validate() error {
	switch c.Type {
	case "openai", "ollama":
	default:
		return fmt.Errorf("encoder: unsupported type %q", c.Type)
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("encoder: api_key is required for openai")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("encoder: dimension must be > 0")
	}
	return nil
}

// ExternalChannelConfig configures the identity-provider-backed channel
// variant (oauth2 client-credentials + jwt verification).
type ExternalChannelConfig struct {
	Endpoint     string `yaml:"endpoint"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// VerificationSecret HMAC-verifies inbound identity-provider tokens
	// (HS256), mirroring the shared-secret JWT scheme rather than a full
	// JWKS fetch — the identity provider in scope here is assumed to issue
	// HMAC-signed tokens out of band to both parties.
	VerificationSecret string `yaml:"verification_secret"`
	Timeout            int    `yaml:"timeout"`
}

func (c *ExternalChannelConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

func (c *ExternalChannelConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("external_channel: endpoint is required")
	}
	return nil
}

// Config is the top-level process configuration.
type Config struct {
	Logger          LoggerConfig           `yaml:"logger"`
	Engine          EngineConfig           `yaml:"engine"`
	CentralLLM      LLMProviderConfig      `yaml:"central_llm"`
	Encoder         EncoderProviderConfig  `yaml:"encoder"`
	ExternalChannel *ExternalChannelConfig `yaml:"external_channel,omitempty"`
	ProfileRegistry ProfileRegistryConfig  `yaml:"profile_registry"`
	ProfileIndex    ProfileIndexConfig     `yaml:"profile_index"`
	Observability   ObservabilityConfig    `yaml:"observability"`
}

// ProfileRegistryConfig points at the backing YAML file for agent profiles
// and enables fsnotify-driven hot reload (the spec's connectivity contract).
type ProfileRegistryConfig struct {
	Path      string `yaml:"path"`
	WatchFile bool   `yaml:"watch_file"`
}

// ProfileIndexConfig configures the optional chromem-go-backed cache of
// encoded profile vectors. An empty PersistDir keeps the cache in memory
// only, scoped to the current process.
type ProfileIndexConfig struct {
	PersistDir string `yaml:"persist_dir"`
	Compress   bool   `yaml:"compress"`
}

func (c *Config) SetDefaults() {
	c.Logger.SetDefaults()
	c.Engine.SetDefaults()
	c.CentralLLM.SetDefaults()
	c.Encoder.SetDefaults()
	if c.ExternalChannel != nil {
		c.ExternalChannel.SetDefaults()
	}
	c.Observability.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.CentralLLM.Validate(); err != nil {
		return err
	}
	if err := c.Encoder.Validate(); err != nil {
		return err
	}
	if c.ExternalChannel != nil {
		if err := c.ExternalChannel.Validate(); err != nil {
			return err
		}
	}
	return c.Observability.Validate()
}

// Load reads a YAML config file, overlays a .env file if present (teacher's
// convention: godotenv.Load is best-effort, a missing .env is not an error),
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	expandEnv(&cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// expandEnv resolves ${VAR} placeholders for the handful of fields that
// commonly carry secrets, matching the teacher's env-overlay convention
// without pulling in a full templating engine.
func expandEnv(cfg *Config) {
	cfg.CentralLLM.APIKey = os.ExpandEnv(cfg.CentralLLM.APIKey)
	cfg.Encoder.APIKey = os.ExpandEnv(cfg.Encoder.APIKey)
	if cfg.ExternalChannel != nil {
		cfg.ExternalChannel.ClientSecret = os.ExpandEnv(cfg.ExternalChannel.ClientSecret)
		cfg.ExternalChannel.VerificationSecret = os.ExpandEnv(cfg.ExternalChannel.VerificationSecret)
	}
}
