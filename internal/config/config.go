// Package config reads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds everything the process needs at startup. Values come from
// environment variables with the defaults below.
type Config struct {
	// APIKey authenticates against the Gemini API. Required: there is no
	// per-request fallback, a missing key is a startup failure.
	APIKey   string `mapstructure:"gemini_api_key"`
	Model    string `mapstructure:"model"`
	HTTPPort string `mapstructure:"http_port"`

	Temperature     float32 `mapstructure:"temperature"`
	TopP            float32 `mapstructure:"top_p"`
	TopK            float32 `mapstructure:"top_k"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
}

// Load reads the environment and returns the resolved configuration.
// It fails when GEMINI_API_KEY is unset.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("model", "gemini-1.5-flash")
	v.SetDefault("http_port", "8080")
	v.SetDefault("temperature", 1.0)
	v.SetDefault("top_p", 0.95)
	v.SetDefault("top_k", 64)
	v.SetDefault("max_output_tokens", 8192)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("config: GEMINI_API_KEY is required")
	}

	return &cfg, nil
}
