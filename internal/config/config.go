// Package config loads server configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	DBMaxConns int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns int32  `mapstructure:"DB_MIN_CONNS"`
	// DatabaseURL is optional; without it assessments are kept in memory
	// only and lost on restart.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	InferenceTextURL      string        `mapstructure:"INFERENCE_TEXT_URL"`
	InferenceImageURL     string        `mapstructure:"INFERENCE_IMAGE_URL"`
	InferenceAPIKey       string        `mapstructure:"INFERENCE_API_KEY"`
	InferenceTextModel    string        `mapstructure:"INFERENCE_TEXT_MODEL"`
	InferenceImageModel   string        `mapstructure:"INFERENCE_IMAGE_MODEL"`
	InferenceTimeout      time.Duration `mapstructure:"INFERENCE_TIMEOUT"`
	InferenceRetryTimeout time.Duration `mapstructure:"INFERENCE_RETRY_TIMEOUT"`
	// InferenceFake switches the pipeline to the deterministic in-process
	// gateway; no endpoint configuration is needed in that mode.
	InferenceFake bool `mapstructure:"INFERENCE_FAKE"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("INFERENCE_TEXT_MODEL", "medgemma-27b-text-it")
	v.SetDefault("INFERENCE_IMAGE_MODEL", "medgemma-4b-it")
	v.SetDefault("INFERENCE_TIMEOUT", "30s")
	v.SetDefault("INFERENCE_RETRY_TIMEOUT", "10s")
	v.SetDefault("INFERENCE_FAKE", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("INFERENCE_TEXT_URL")
	v.BindEnv("INFERENCE_IMAGE_URL")
	v.BindEnv("INFERENCE_API_KEY")
	v.BindEnv("INFERENCE_TEXT_MODEL")
	v.BindEnv("INFERENCE_IMAGE_MODEL")
	v.BindEnv("INFERENCE_TIMEOUT")
	v.BindEnv("INFERENCE_RETRY_TIMEOUT")
	v.BindEnv("INFERENCE_FAKE")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run: a real inference
// endpoint is required unless the deterministic fake is enabled, and the
// retry deadline must be shorter than the first-attempt deadline.
func (c *Config) Validate() error {
	if !c.InferenceFake && c.InferenceTextURL == "" {
		return fmt.Errorf("INFERENCE_TEXT_URL is required unless INFERENCE_FAKE=true")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout)
	}
	if c.InferenceRetryTimeout <= 0 || c.InferenceRetryTimeout >= c.InferenceTimeout {
		return fmt.Errorf("INFERENCE_RETRY_TIMEOUT must be positive and shorter than INFERENCE_TIMEOUT, got %s",
			c.InferenceRetryTimeout)
	}
	return nil
}
