package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)

	assert.Equal(t, "cursor-agent", cfg.Agent.Binary)
	assert.Equal(t, 3, cfg.Agent.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Agent.Timeout.Std())
	assert.Equal(t, ProviderOpenAI, cfg.Judge.Provider)
	assert.Equal(t, "reports", cfg.ReportDir)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
agent:
  binary: /usr/local/bin/cursor-agent
  model: sonnet-thinking
  max_attempts: 5
  timeout: 30m
  extra_args: ["--force"]
judge:
  provider: gemini
  model: gemini-1.5-flash
  api_key_env: GEMINI_API_KEY
telemetry:
  endpoint: https://flow.example.com/events
report_dir: out/reports
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/cursor-agent", cfg.Agent.Binary)
	assert.Equal(t, "sonnet-thinking", cfg.Agent.Model)
	assert.Equal(t, 5, cfg.Agent.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Agent.Timeout.Std())
	assert.Equal(t, []string{"--force"}, cfg.Agent.ExtraArgs)
	assert.Equal(t, ProviderGemini, cfg.Judge.Provider)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Judge.APIKeyEnv)
	assert.Equal(t, "https://flow.example.com/events", cfg.Telemetry.Endpoint)
	assert.Equal(t, "out/reports", cfg.ReportDir)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "agent:\n  timeout: fast\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid duration "fast"`)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "agent: [not: a: mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty binary", func(c *Config) { c.Agent.Binary = " " }, "agent.binary"},
		{"zero attempts", func(c *Config) { c.Agent.MaxAttempts = 0 }, "max_attempts"},
		{"negative timeout", func(c *Config) { c.Agent.Timeout = Duration(-time.Second) }, "timeout"},
		{"unknown provider", func(c *Config) { c.Judge.Provider = "anthropic" }, "judge.provider"},
		{"openai without endpoint", func(c *Config) { c.Judge.Endpoint = "" }, "judge.endpoint"},
		{"empty judge model", func(c *Config) { c.Judge.Model = "" }, "judge.model"},
		{"empty api key env", func(c *Config) { c.Judge.APIKeyEnv = "" }, "api_key_env"},
		{"empty report dir", func(c *Config) { c.ReportDir = "" }, "report_dir"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestJudgeAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Judge.APIKeyEnv = "CURSOR_FLOW_TEST_KEY"

	t.Setenv("CURSOR_FLOW_TEST_KEY", "sk-test")
	key, err := cfg.JudgeAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	t.Setenv("CURSOR_FLOW_TEST_KEY", "")
	_, err = cfg.JudgeAPIKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CURSOR_FLOW_TEST_KEY")
}
