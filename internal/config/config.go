// Package config loads the cursor-flow.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up when no explicit path
// is given.
const DefaultFileName = "cursor-flow.yaml"

// Judge providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the parsed cursor-flow.yaml document.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Judge     JudgeConfig     `yaml:"judge"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	ReportDir string          `yaml:"report_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// AgentConfig describes the coding-agent process to drive.
type AgentConfig struct {
	Binary      string   `yaml:"binary"`
	Model       string   `yaml:"model"`
	ExtraArgs   []string `yaml:"extra_args"`
	MaxAttempts int      `yaml:"max_attempts"`
	Timeout     Duration `yaml:"timeout"`
	WorkDir     string   `yaml:"work_dir"`
}

// Duration wraps time.Duration so the YAML file can say "10m" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// JudgeConfig describes the LLM backend used to classify agent output.
type JudgeConfig struct {
	Provider  string `yaml:"provider"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// TelemetryConfig describes the optional remote progress sink.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// Default returns a configuration with working defaults for everything the
// file may omit.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Binary:      "cursor-agent",
			MaxAttempts: 3,
			Timeout:     Duration(10 * time.Minute),
		},
		Judge: JudgeConfig{
			Provider:  ProviderOpenAI,
			Endpoint:  "https://api.openai.com/v1/chat/completions",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		ReportDir: "reports",
		LogLevel:  "info",
	}
}

// Load reads and validates the configuration at path. A missing file yields
// the defaults; a present but malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for values the rest of the system
// cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agent.Binary) == "" {
		return fmt.Errorf("agent.binary must not be empty")
	}
	if c.Agent.MaxAttempts <= 0 {
		return fmt.Errorf("agent.max_attempts must be positive, got %d", c.Agent.MaxAttempts)
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("agent.timeout must not be negative")
	}

	switch c.Judge.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.Judge.Endpoint) == "" {
			return fmt.Errorf("judge.endpoint is required for the openai provider")
		}
	case ProviderGemini:
	default:
		return fmt.Errorf("judge.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Judge.Provider)
	}
	if strings.TrimSpace(c.Judge.Model) == "" {
		return fmt.Errorf("judge.model must not be empty")
	}
	if strings.TrimSpace(c.Judge.APIKeyEnv) == "" {
		return fmt.Errorf("judge.api_key_env must not be empty")
	}

	if strings.TrimSpace(c.ReportDir) == "" {
		return fmt.Errorf("report_dir must not be empty")
	}
	return nil
}

// JudgeAPIKey resolves the judge API key from the configured environment
// variable.
func (c *Config) JudgeAPIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(c.Judge.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", c.Judge.APIKeyEnv)
	}
	return key, nil
}
