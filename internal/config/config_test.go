package config_test

import (
	"strings"
	"testing"

	"erasure/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Default(".")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Retry.Attempts != 3 || cfg.Policy.VerifyThresholdHigh != 0.8 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestEnvRefResolution(t *testing.T) {
	t.Setenv("TEST_ERASURE_TOKEN", "sekrit")
	cfg := config.Default(".")
	cfg.Server.AuthToken = "env:TEST_ERASURE_TOKEN"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Server.AuthToken != "sekrit" {
		t.Fatalf("token = %q", cfg.Server.AuthToken)
	}
}

func TestEnvRefMissingFails(t *testing.T) {
	cfg := config.Default(".")
	cfg.Vault.EncryptionKey = "env:TEST_ERASURE_ABSENT_KEY"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "TEST_ERASURE_ABSENT_KEY") {
		t.Fatalf("err = %v", err)
	}
}

func TestEncryptionKeyChecks(t *testing.T) {
	cfg := config.Default(".")
	cfg.Vault.EncryptionKey = "nothex"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("non-hex key accepted")
	}
	cfg.Vault.EncryptionKey = "abcd"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("short key accepted")
	}
	cfg.Vault.EncryptionKey = strings.Repeat("ab", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	key, err := cfg.EncryptionKeyBytes()
	if err != nil || len(key) != 32 {
		t.Fatalf("key bytes: %v len=%d", err, len(key))
	}
}

func TestThresholdOrdering(t *testing.T) {
	cfg := config.Default(".")
	cfg.Policy.VerifyThresholdLow = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatalf("low >= high accepted")
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
retry:
  attempts: 5
  min_delay_ms: 100
  max_delay_ms: 2000
  jitter: 0.1
server:
  bind: "0.0.0.0:9000"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Retry.Attempts != 5 || cfg.Server.Bind != "0.0.0.0:9000" {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	// Untouched sections keep defaults.
	if cfg.Runner.ClaimTTLSeconds != 120 {
		t.Fatalf("claim ttl = %d", cfg.Runner.ClaimTTLSeconds)
	}
}
