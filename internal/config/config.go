package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/agentcore/internal/agent"
	"github.com/nextlevelbuilder/agentcore/internal/providers"
)

// Config is the on-disk configuration. JSON5 and YAML are both accepted,
// keyed by file extension.
type Config struct {
	// DefaultProvider names the entry in Providers used when a run does not
	// pick one explicitly.
	DefaultProvider string                    `json:"default_provider" yaml:"default_provider"`
	Providers       map[string]ProviderConfig `json:"providers" yaml:"providers"`

	Agent      AgentConfig      `json:"agent" yaml:"agent"`
	Trajectory TrajectoryConfig `json:"trajectory" yaml:"trajectory"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`

	LogLevel string `json:"log_level" yaml:"log_level"` // debug, info, warn, error
}

// ProviderConfig configures one LLM provider instance.
type ProviderConfig struct {
	Kind              string  `json:"kind" yaml:"kind"` // "openai", "dashscope"
	APIKey            string  `json:"api_key" yaml:"api_key"`
	APIBase           string  `json:"api_base" yaml:"api_base"`
	Model             string  `json:"model" yaml:"model"`
	MaxRetries        int     `json:"max_retries" yaml:"max_retries"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// AgentConfig holds the per-run loop settings.
type AgentConfig struct {
	MaxSteps           int     `json:"max_steps" yaml:"max_steps"`
	MaxReflectionDepth int     `json:"max_reflection_depth" yaml:"max_reflection_depth"`
	ParallelToolCalls  bool    `json:"parallel_tool_calls" yaml:"parallel_tool_calls"`
	Temperature        float64 `json:"temperature" yaml:"temperature"`
	MaxTokens          int     `json:"max_tokens" yaml:"max_tokens"`
	SystemPrompt       string  `json:"system_prompt" yaml:"system_prompt"`

	ToolRateLimit         int `json:"tool_rate_limit" yaml:"tool_rate_limit"`
	ToolRateWindowSeconds int `json:"tool_rate_window_seconds" yaml:"tool_rate_window_seconds"`
}

// TrajectoryConfig controls run persistence.
type TrajectoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // SQLite file path
}

// TelemetryConfig controls OTLP span export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	Endpoint    string            `json:"endpoint" yaml:"endpoint"`
	Protocol    string            `json:"protocol" yaml:"protocol"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure" yaml:"insecure"`
	ServiceName string            `json:"service_name" yaml:"service_name"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
}

// Default returns a config with sane defaults and no providers.
func Default() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{},
		Agent: AgentConfig{
			MaxSteps:           agent.DefaultMaxSteps,
			MaxReflectionDepth: 3,
			Temperature:        0.7,
		},
		Trajectory: TrajectoryConfig{
			Path: "agentcore.db",
		},
		LogLevel: "info",
	}
}

// Load reads, env-expands, and parses the config file. The extension picks
// the format: .yaml/.yml for YAML, anything else is parsed as JSON5.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := ExpandEnv(string(raw))
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json5.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse json5 config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("default_provider %q is not defined in providers", c.DefaultProvider)
		}
	}
	for name, p := range c.Providers {
		if p.Model == "" {
			return fmt.Errorf("provider %q: model is required", name)
		}
	}
	if c.Agent.MaxSteps < 0 {
		return fmt.Errorf("agent.max_steps must not be negative")
	}
	if c.Agent.MaxReflectionDepth < 0 {
		return fmt.Errorf("agent.max_reflection_depth must not be negative")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// ResolveProvider returns the provider options for the given name, falling
// back to the default provider on an empty name.
func (c *Config) ResolveProvider(name string) (providers.Options, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	if name == "" && len(c.Providers) == 1 {
		for only := range c.Providers {
			name = only
		}
	}
	p, ok := c.Providers[name]
	if !ok {
		return providers.Options{}, fmt.Errorf("provider %q is not configured", name)
	}
	return providers.Options{
		Name:              name,
		Kind:              p.Kind,
		APIKey:            p.APIKey,
		APIBase:           p.APIBase,
		Model:             p.Model,
		MaxRetries:        p.MaxRetries,
		RequestsPerSecond: p.RequestsPerSecond,
	}, nil
}

// RunConfig maps the agent section onto loop settings for the given provider.
func (c *Config) RunConfig(providerName string) agent.RunConfig {
	name := providerName
	if name == "" {
		name = c.DefaultProvider
	}
	p := c.Providers[name]
	return agent.RunConfig{
		Provider:           name,
		Model:              p.Model,
		MaxTokens:          c.Agent.MaxTokens,
		Temperature:        c.Agent.Temperature,
		ParallelToolCalls:  c.Agent.ParallelToolCalls,
		MaxSteps:           c.Agent.MaxSteps,
		MaxReflectionDepth: c.Agent.MaxReflectionDepth,
		SystemPrompt:       c.Agent.SystemPrompt,
		ToolRateLimit:      c.Agent.ToolRateLimit,
		ToolRateWindow:     time.Duration(c.Agent.ToolRateWindowSeconds) * time.Second,
	}
}

var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} references with environment values. Bare $VAR is
// left alone so prompts containing dollar signs survive.
func ExpandEnv(s string) string {
	return envRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		return os.Getenv(name)
	})
}
