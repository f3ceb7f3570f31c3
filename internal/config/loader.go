package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load resolves the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides, validated
// last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	setEnv(&c.LLM.APIKey, "OPENAI_API_KEY")
	setEnv(&c.LLM.APIKey, "GROQ_API_KEY")
	setEnv(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setEnv(&c.LLM.Model, "TRAVEOPS_MODEL")

	setEnv(&c.Session.Backend, "TRAVEOPS_SESSION_BACKEND")
	setEnv(&c.Session.DSN, "TRAVEOPS_SESSION_DSN")

	setEnv(&c.Notify.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	setEnv(&c.Notify.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	setEnv(&c.Notify.FromNumber, "TWILIO_FROM_NUMBER")

	setEnv(&c.Log.Level, "TRAVEOPS_LOG_LEVEL")
}

func setEnv(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*dst = strings.TrimSpace(value)
	}
}
