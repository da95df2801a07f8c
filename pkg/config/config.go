// Package config loads the searchflow YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	agentdef "github.com/aixgo-dev/searchflow/internal/agent"
	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/cache"
	"github.com/aixgo-dev/searchflow/internal/llm/cost"
	"github.com/aixgo-dev/searchflow/internal/llm/provider"
	"github.com/aixgo-dev/searchflow/internal/logging"
	"github.com/aixgo-dev/searchflow/internal/observability"
	"github.com/aixgo-dev/searchflow/internal/pipeline"
	"github.com/aixgo-dev/searchflow/internal/server"
)

// maxConfigSize bounds the config file read from disk.
const maxConfigSize = 1 << 20

// Config represents the application configuration
type Config struct {
	Server        server.Config        `yaml:"server"`
	LLM           LLMConfig            `yaml:"llm"`
	Pipeline      pipeline.Config      `yaml:"pipeline"`
	Stages        []agentdef.StageDef  `yaml:"stages"`
	Cache         cache.Config         `yaml:"cache"`
	Observability observability.Config `yaml:"observability"`
	Logging       logging.Config       `yaml:"logging"`
}

// LLMConfig selects the reasoning provider and how it is called
type LLMConfig struct {
	// Provider is one of the registered provider kinds (openai, gemini, vertexai, bedrock, ollama, mock)
	Provider    string         `yaml:"provider"`
	Model       string         `yaml:"model"`
	Temperature float64        `yaml:"temperature"`
	MaxTokens   int            `yaml:"max_tokens"`
	CallTimeout time.Duration  `yaml:"call_timeout"`
	RateLimit   float64        `yaml:"rate_limit"`
	Burst       int            `yaml:"burst"`
	Options     map[string]any `yaml:"options"`

	// Pricing adds or overrides per-model prices used for cost tracking
	Pricing []cost.ModelPricing `yaml:"pricing"`
}

// ClientConfig converts the section into the reasoning client configuration.
func (c LLMConfig) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		DefaultModel:       c.Model,
		DefaultTemperature: c.Temperature,
		MaxTokens:          c.MaxTokens,
		CallTimeout:        c.CallTimeout,
		RateLimit:          c.RateLimit,
		Burst:              c.Burst,
	}
}

// ProviderOptions returns the factory options with the model filled in.
func (c LLMConfig) ProviderOptions() map[string]any {
	opts := make(map[string]any, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	if _, ok := opts["model"]; !ok && c.Model != "" {
		opts["model"] = c.Model
	}
	return opts
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and environment overrides, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.CallTimeout == 0 {
		c.LLM.CallTimeout = 60 * time.Second
	}

	if len(c.Pipeline.Stages) == 0 {
		c.Pipeline.Stages = append([]string(nil), pipeline.DefaultStages...)
	}
	if len(c.Stages) == 0 {
		for _, name := range c.Pipeline.Stages {
			c.Stages = append(c.Stages, agentdef.StageDef{Name: name, Role: name})
		}
	}

	if c.Server.InjectionSensitivity == "" {
		c.Server.InjectionSensitivity = "off"
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "none"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}

	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "searchflow"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// applyEnv lets deployment settings be overridden without editing the file.
// Provider credentials are read by the provider factories themselves.
func (c *Config) applyEnv() {
	if v := os.Getenv("SEARCHFLOW_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SEARCHFLOW_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("SEARCHFLOW_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SEARCHFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Observability.OTLPEndpoint = v
	}
	if headers := observability.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); headers != nil {
		if c.Observability.OTLPHeaders == nil {
			c.Observability.OTLPHeaders = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			c.Observability.OTLPHeaders[k] = v
		}
	}
	if v, err := strconv.ParseBool(os.Getenv("SEARCHFLOW_TRACING")); err == nil {
		c.Observability.Enabled = v
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !providerKnown(c.LLM.Provider) {
		return fmt.Errorf("llm.provider %q is not one of %v", c.LLM.Provider, provider.Kinds())
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.RateLimit < 0 {
		return fmt.Errorf("llm.rate_limit must not be negative")
	}
	for _, p := range c.LLM.Pricing {
		if p.Model == "" {
			return fmt.Errorf("llm.pricing entries need a model")
		}
	}

	defined := make(map[string]bool, len(c.Stages))
	for i, def := range c.Stages {
		if def.Name == "" {
			return fmt.Errorf("stages[%d]: name is required", i)
		}
		if defined[def.Name] {
			return fmt.Errorf("stages[%d]: duplicate stage name %q", i, def.Name)
		}
		defined[def.Name] = true
	}
	for _, name := range c.Pipeline.Stages {
		if !defined[name] {
			return fmt.Errorf("pipeline.stages: %q has no stage definition", name)
		}
	}
	if c.Pipeline.MaxConcurrentRuns < 0 || c.Pipeline.MaxQueuedRuns < 0 {
		return fmt.Errorf("pipeline run limits must not be negative")
	}

	switch c.Server.InjectionSensitivity {
	case "off", "low", "medium", "high":
	default:
		return fmt.Errorf("server.injection_sensitivity must be off, low, medium or high")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func providerKnown(kind string) bool {
	for _, k := range provider.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
