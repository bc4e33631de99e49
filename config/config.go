// Package config loads the YAML application configuration, applying defaults
// and validating before anything is wired.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig selects the persistence backend for conversations, feedback
// and the knowledge index.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`   // sqlite database file
}

// EngineConfig bounds a single stream.
type EngineConfig struct {
	MaxToolRounds   int           `yaml:"max_tool_rounds"`
	ApprovalTTL     time.Duration `yaml:"approval_ttl"`
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	ProviderRetries int           `yaml:"provider_retries"`
	DefaultAgent    string        `yaml:"default_agent"`
}

// UnmarshalYAML decodes the timing fields from Go duration strings. Absent
// keys keep whatever value the config already holds.
func (e *EngineConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxToolRounds   *int    `yaml:"max_tool_rounds"`
		ApprovalTTL     string  `yaml:"approval_ttl"`
		ToolTimeout     string  `yaml:"tool_timeout"`
		ProviderRetries *int    `yaml:"provider_retries"`
		DefaultAgent    *string `yaml:"default_agent"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxToolRounds != nil {
		e.MaxToolRounds = *raw.MaxToolRounds
	}
	if raw.ApprovalTTL != "" {
		d, err := time.ParseDuration(raw.ApprovalTTL)
		if err != nil {
			return fmt.Errorf("engine.approval_ttl: %w", err)
		}
		e.ApprovalTTL = d
	}
	if raw.ToolTimeout != "" {
		d, err := time.ParseDuration(raw.ToolTimeout)
		if err != nil {
			return fmt.Errorf("engine.tool_timeout: %w", err)
		}
		e.ToolTimeout = d
	}
	if raw.ProviderRetries != nil {
		e.ProviderRetries = *raw.ProviderRetries
	}
	if raw.DefaultAgent != nil {
		e.DefaultAgent = *raw.DefaultAgent
	}
	return nil
}

// ProviderConfig holds one model provider's credentials and default model.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"` // ${VAR} expands from the environment
	Model  string `yaml:"model"`
}

// ModelsConfig lists configured providers.
type ModelsConfig struct {
	OpenAI    *ProviderConfig `yaml:"openai,omitempty"`
	Anthropic *ProviderConfig `yaml:"anthropic,omitempty"`
}

// AgentConfig declares one agent loaded at startup.
type AgentConfig struct {
	Name         string   `yaml:"name"`
	Instructions string   `yaml:"instructions"`
	Provider     string   `yaml:"provider,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	Category     string   `yaml:"category,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // "text" or "json"
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Models  ModelsConfig  `yaml:"models"`
	Agents  []AgentConfig `yaml:"agents"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when a field is left unset.
func Default() Config {
	return Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Driver: "memory"},
		Engine: EngineConfig{
			MaxToolRounds:   8,
			ApprovalTTL:     5 * time.Minute,
			ToolTimeout:     15 * time.Second,
			ProviderRetries: 2,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads, expands and validates the configuration at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes over the defaults.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot be wired.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Engine.MaxToolRounds < 0 {
		return fmt.Errorf("engine.max_tool_rounds must not be negative")
	}
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent with empty name")
		}
		if a.Instructions == "" {
			return fmt.Errorf("agent %q has no instructions", a.Name)
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}
