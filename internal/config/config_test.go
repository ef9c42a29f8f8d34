package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INFERENCE_FAKE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("port = %q, want 8000", cfg.Port)
	}
	if cfg.Env != "development" || !cfg.IsDev() {
		t.Errorf("env = %q, want development", cfg.Env)
	}
	if cfg.InferenceTimeout != 30*time.Second {
		t.Errorf("inference timeout = %s, want 30s", cfg.InferenceTimeout)
	}
	if cfg.InferenceRetryTimeout != 10*time.Second {
		t.Errorf("retry timeout = %s, want 10s", cfg.InferenceRetryTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with fake gateway should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("INFERENCE_TEXT_URL", "http://inference.local/v1")
	t.Setenv("INFERENCE_TIMEOUT", "20s")
	t.Setenv("INFERENCE_RETRY_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Port)
	}
	if cfg.InferenceTextURL != "http://inference.local/v1" {
		t.Errorf("text url = %q", cfg.InferenceTextURL)
	}
	if cfg.InferenceTimeout != 20*time.Second {
		t.Errorf("timeout = %s, want 20s", cfg.InferenceTimeout)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("cors origins = %v, want 2 entries", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			InferenceTextURL:      "http://inference.local/v1",
			InferenceTimeout:      30 * time.Second,
			InferenceRetryTimeout: 10 * time.Second,
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	c := base()
	c.InferenceTextURL = ""
	if err := c.Validate(); err == nil {
		t.Error("missing endpoint without fake mode must be rejected")
	}
	c.InferenceFake = true
	if err := c.Validate(); err != nil {
		t.Errorf("fake mode needs no endpoint: %v", err)
	}

	c = base()
	c.InferenceRetryTimeout = time.Minute
	if err := c.Validate(); err == nil {
		t.Error("retry timeout longer than first attempt must be rejected")
	}
}
