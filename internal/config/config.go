package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/nodes"
)

// EngineConfig is the engine.yaml file.
type EngineConfig struct {
	Version int `yaml:"version"`
	Engine  struct {
		MaxConcurrency int           `yaml:"max_concurrency"`
		LLMTimeout     time.Duration `yaml:"llm_timeout"`
		RunTimeout     time.Duration `yaml:"run_timeout"`
		Retry          RetryConfig   `yaml:"retry"`
	} `yaml:"engine"`
	LLM struct {
		BaseURL           string  `yaml:"base_url"`
		DefaultModel      string  `yaml:"default_model"`
		APIKeyEnv         string  `yaml:"api_key_env"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"llm"`
	Media struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"media"`
	Network struct {
		APIPort int `yaml:"api_port"`
	} `yaml:"network"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Postgres struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"postgres"`
}

// RetryConfig mirrors nodes.RetryPolicy.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	Randomization   float64       `yaml:"randomization"`
}

// Default returns the configuration used when no file is given.
func Default() *EngineConfig {
	var cfg EngineConfig
	cfg.Version = 1
	cfg.Engine.MaxConcurrency = 8
	cfg.Engine.LLMTimeout = 60 * time.Second
	cfg.Engine.RunTimeout = 10 * time.Minute

	p := nodes.DefaultRetryPolicy()
	cfg.Engine.Retry = RetryConfig{
		MaxAttempts:     p.MaxAttempts,
		InitialInterval: p.InitialInterval,
		MaxInterval:     p.MaxInterval,
		Multiplier:      p.Multiplier,
		Randomization:   p.RandomizationFactor,
	}

	cfg.LLM.DefaultModel = nodes.DefaultModel
	cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	cfg.Media.BaseURL = "http://localhost:8090"
	cfg.Media.Timeout = 120 * time.Second
	cfg.Network.APIPort = 8080
	cfg.MQTT.TopicPrefix = "weavy"
	return &cfg
}

// APIPort returns the configured API port, defaulting to 8080 if not set.
func (c *EngineConfig) APIPort() int {
	if c.Network.APIPort == 0 {
		return 8080
	}
	return c.Network.APIPort
}

// RetryPolicy converts the retry section for the node executor.
func (c *EngineConfig) RetryPolicy() nodes.RetryPolicy {
	r := c.Engine.Retry
	return nodes.RetryPolicy{
		MaxAttempts:         r.MaxAttempts,
		InitialInterval:     r.InitialInterval,
		MaxInterval:         r.MaxInterval,
		Multiplier:          r.Multiplier,
		RandomizationFactor: r.Randomization,
	}
}

// Validate checks values that would otherwise fail at run time.
func (c *EngineConfig) Validate() error {
	var result *multierror.Error
	if c.Engine.MaxConcurrency < 0 {
		result = multierror.Append(result, fmt.Errorf("engine.max_concurrency must not be negative"))
	}
	if c.Engine.LLMTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("engine.llm_timeout must be positive"))
	}
	if r := c.Engine.Retry; r.MaxAttempts < 1 {
		result = multierror.Append(result, fmt.Errorf("engine.retry.max_attempts must be at least 1"))
	} else if r.Randomization < 0 || r.Randomization > 1 {
		result = multierror.Append(result, fmt.Errorf("engine.retry.randomization must be between 0 and 1"))
	}
	if c.LLM.RequestsPerSecond < 0 {
		result = multierror.Append(result, fmt.Errorf("llm.requests_per_second must not be negative"))
	}
	if c.Network.APIPort < 0 || c.Network.APIPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("network.api_port out of range: %d", c.Network.APIPort))
	}
	return result.ErrorOrNil()
}

// LoadEngineConfig reads path over the defaults.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported engine.yaml version: %d", cfg.Version)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine.yaml: %w", err)
	}

	return cfg, nil
}
