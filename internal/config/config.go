package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Listen   string `yaml:"listen"`
	BasePath string `yaml:"base_path"`
}

type AuthConfig struct {
	JWTSecret            string `yaml:"jwt_secret"`
	AllowLegacyActorHdr  bool   `yaml:"allow_legacy_actor_header"`
	TokenTTLMinutes      int    `yaml:"token_ttl_minutes"`
	DefaultKeyPermission string `yaml:"default_key_permission"`
}

type PlannerConfig struct {
	IncludeWeekends *bool `yaml:"include_weekends"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type Config struct {
	Workspace string          `yaml:"workspace"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Planner   PlannerConfig   `yaml:"planner"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Workspace: ".",
		Server: ServerConfig{
			Listen:   "127.0.0.1:8787",
			BasePath: "/v0",
		},
		Auth: AuthConfig{
			TokenTTLMinutes:      60,
			DefaultKeyPermission: "employee",
		},
	}
}

// Load reads a yaml config file, falling back to defaults when path is empty
// or the file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Server.BasePath == "" || c.Server.BasePath[0] != '/' {
		return fmt.Errorf("server.base_path must start with /")
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhooks[%d].url must not be empty", i)
		}
		if w.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// IncludeWeekends reports whether planned curves are authored over weekend
// days too. Defaults to true.
func (c Config) IncludeWeekends() bool {
	if c.Planner.IncludeWeekends == nil {
		return true
	}
	return *c.Planner.IncludeWeekends
}

// WebhookEnabled reports whether a webhook entry is active. Defaults to true.
func (w WebhookConfig) WebhookEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}
