package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models erasure.yml.
type Config struct {
	Paths struct {
		PlansRoot     string `yaml:"plans_root"`
		CatalogFile   string `yaml:"catalog_file"`
		ArtifactsRoot string `yaml:"artifacts_root"`
	} `yaml:"paths"`

	Runner struct {
		MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
		DefaultTimeoutMS  int `yaml:"default_timeout_ms"`
		RunTimeoutMS      int `yaml:"run_timeout_ms"`
		ClaimTTLSeconds   int `yaml:"claim_ttl_seconds"`
		PollIntervalMS    int `yaml:"poll_interval_ms"`
	} `yaml:"runner"`

	Retry struct {
		Attempts   int     `yaml:"attempts"`
		MinDelayMS int     `yaml:"min_delay_ms"`
		MaxDelayMS int     `yaml:"max_delay_ms"`
		Jitter     float64 `yaml:"jitter"`
	} `yaml:"retry"`

	Policy struct {
		SideEffectsRequireApproval bool    `yaml:"side_effects_require_approval"`
		ConfidenceThreshold        float64 `yaml:"confidence_threshold"`
		VerifyThresholdLow         float64 `yaml:"verify_threshold_low"`
		VerifyThresholdHigh        float64 `yaml:"verify_threshold_high"`
	} `yaml:"policy"`

	Vault struct {
		EncryptionKey string `yaml:"encryption_key"`
	} `yaml:"vault"`

	LLM struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"llm"`

	Scheduler struct {
		Enabled             bool `yaml:"enabled"`
		PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
		MaxFailures         int  `yaml:"max_consecutive_failures"`
	} `yaml:"scheduler"`

	RateLimit struct {
		PerBrokerPerHour int `yaml:"per_broker_per_hour"`
	} `yaml:"rate_limit"`

	Server struct {
		Bind      string `yaml:"bind"`
		AuthToken string `yaml:"auth_token"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// resolveEnv expands "env:NAME" references so secrets stay out of the file.
func resolveEnv(value string) (string, error) {
	if !strings.HasPrefix(value, "env:") {
		return value, nil
	}
	key := strings.TrimSpace(value[4:])
	if key == "" {
		return "", fmt.Errorf("invalid env ref: empty key")
	}
	resolved := os.Getenv(key)
	if strings.TrimSpace(resolved) == "" {
		return "", fmt.Errorf("environment variable %q referenced in config is missing/empty", key)
	}
	return strings.TrimSpace(resolved), nil
}

// Validate checks required structure and resolves env refs in place.
func (c *Config) Validate() error {
	for _, ref := range []*string{&c.Vault.EncryptionKey, &c.LLM.APIKey, &c.Server.AuthToken, &c.Server.JWTSecret} {
		v, err := resolveEnv(*ref)
		if err != nil {
			return err
		}
		*ref = v
	}
	if c.Vault.EncryptionKey != "" {
		key, err := hex.DecodeString(c.Vault.EncryptionKey)
		if err != nil {
			return fmt.Errorf("vault.encryption_key must be hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("vault.encryption_key must decode to 32 bytes, got %d", len(key))
		}
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be >= 1")
	}
	if c.Retry.MinDelayMS < 1 || c.Retry.MaxDelayMS < c.Retry.MinDelayMS {
		return fmt.Errorf("retry delays invalid: min=%d max=%d", c.Retry.MinDelayMS, c.Retry.MaxDelayMS)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be in [0,1]")
	}
	if c.Policy.VerifyThresholdLow >= c.Policy.VerifyThresholdHigh {
		return fmt.Errorf("policy.verify_threshold_low must be below verify_threshold_high")
	}
	if c.Policy.ConfidenceThreshold <= 0 || c.Policy.ConfidenceThreshold > 1 {
		return fmt.Errorf("policy.confidence_threshold must be in (0,1]")
	}
	if c.Runner.ClaimTTLSeconds < 30 {
		return fmt.Errorf("runner.claim_ttl_seconds must be >= 30")
	}
	if c.Scheduler.PollIntervalSeconds < 1 {
		return fmt.Errorf("scheduler.poll_interval_seconds must be >= 1")
	}
	if c.Scheduler.MaxFailures < 1 {
		return fmt.Errorf("scheduler.max_consecutive_failures must be >= 1")
	}
	return nil
}

// EncryptionKeyBytes returns the decoded vault key. Validate must pass first.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.Vault.EncryptionKey == "" {
		return nil, fmt.Errorf("vault.encryption_key not configured")
	}
	return hex.DecodeString(c.Vault.EncryptionKey)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "erasure.yml")
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(workspace), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Unset sections
// fall back to defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default(".")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns a Config with workable local defaults.
func Default(workspace string) *Config {
	var cfg Config
	cfg.Paths.PlansRoot = filepath.Join(workspace, "plans")
	cfg.Paths.CatalogFile = filepath.Join(workspace, "catalog.yml")
	cfg.Paths.ArtifactsRoot = filepath.Join(workspace, ".erasure", "artifacts")
	cfg.Runner.MaxConcurrentRuns = 4
	cfg.Runner.DefaultTimeoutMS = 120000
	cfg.Runner.RunTimeoutMS = 6 * 60 * 60 * 1000
	cfg.Runner.ClaimTTLSeconds = 120
	cfg.Runner.PollIntervalMS = 1000
	cfg.Retry.Attempts = 3
	cfg.Retry.MinDelayMS = 500
	cfg.Retry.MaxDelayMS = 60000
	cfg.Retry.Jitter = 0.15
	cfg.Policy.SideEffectsRequireApproval = true
	cfg.Policy.ConfidenceThreshold = 0.8
	cfg.Policy.VerifyThresholdLow = 0.4
	cfg.Policy.VerifyThresholdHigh = 0.8
	cfg.LLM.Provider = "mock"
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.PollIntervalSeconds = 300
	cfg.Scheduler.MaxFailures = 3
	cfg.RateLimit.PerBrokerPerHour = 30
	cfg.Server.Bind = "127.0.0.1:8086"
	return &cfg
}
