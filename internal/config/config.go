package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	DataDir       string `yaml:"data_dir"`
	LogLevel      string `yaml:"log_level"`
	Production    bool   `yaml:"production"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	MaxIterations int    `yaml:"max_iterations"`
	AccentColor   string `yaml:"accent_color"`
	SweepEvery    string `yaml:"sweep_every"`
	ThreadMaxIdle string `yaml:"thread_max_idle"`
	LLM           struct {
		Provider         string  `yaml:"provider"`
		BaseURL          string  `yaml:"base_url"`
		APIKey           string  `yaml:"api_key"`
		Model            string  `yaml:"model"`
		MaxTokens        int     `yaml:"max_tokens"`
		Temperature      float32 `yaml:"temperature"`
		MaxContextTokens int     `yaml:"max_context_tokens"`
		OutputReserve    int     `yaml:"output_reserve"`
	} `yaml:"llm"`
	Slack struct {
		BotToken string `yaml:"bot_token"`
		AppToken string `yaml:"app_token"`
	} `yaml:"slack"`
	Ops struct {
		Listen string `yaml:"listen"`
	} `yaml:"ops"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".slackclaw"),
		MaxConcurrent: 2,
	}
	cfg.LogLevel = "info"
	cfg.MaxIterations = 10
	cfg.AccentColor = "#4a154b"
	cfg.SweepEvery = "30m"
	cfg.ThreadMaxIdle = "24h"
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.Ops.Listen = "127.0.0.1:8190"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if botToken := os.Getenv("SLACK_BOT_TOKEN"); botToken != "" {
		cfg.Slack.BotToken = botToken
	}
	if appToken := os.Getenv("SLACK_APP_TOKEN"); appToken != "" {
		cfg.Slack.AppToken = appToken
	}

	return cfg, nil
}

// Validate checks that everything required to serve is present. In
// production mode missing credentials are fatal; otherwise the caller is
// expected to warn and continue, so development setups can exercise the
// pipeline without a live workspace.
func (c *Config) Validate() error {
	var missing []string
	if c.Slack.BotToken == "" {
		missing = append(missing, "slack.bot_token")
	}
	if c.Slack.AppToken == "" {
		missing = append(missing, "slack.app_token")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingCredentialsError{Keys: missing, Fatal: c.Production}
}

// MissingCredentialsError lists configuration keys required for serving
// that have no value. Fatal mirrors production mode.
type MissingCredentialsError struct {
	Keys  []string
	Fatal bool
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing credentials: %v", e.Keys)
}

// SweepInterval returns the idle-thread sweep cadence.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SweepEvery, 30*time.Minute)
}

// MaxThreadIdle returns how long a thread may stay idle before the sweep
// evicts it.
func (c *Config) MaxThreadIdle() time.Duration {
	return parseDuration(c.ThreadMaxIdle, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}

// ToMap renders the config as a nested map, suitable for Flatten.
func (c *Config) ToMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config map: %w", err)
	}
	return m, nil
}

// FromMap applies a nested map onto the config, leaving unmentioned
// fields untouched.
func (c *Config) FromMap(m map[string]any) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal config map: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("apply config map: %w", err)
	}
	return nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
