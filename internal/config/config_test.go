package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:8787" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("defaults: %+v", cfg.Server)
	}
	if !cfg.IncludeWeekends() {
		t.Fatal("weekends included by default")
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siteline.yaml")
	data := `
server:
  listen: 0.0.0.0:9000
  base_path: /api
planner:
  include_weekends: false
webhooks:
  - url: https://example.com/hook
    events: [timeline.created]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" || cfg.Server.BasePath != "/api" {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.IncludeWeekends() {
		t.Fatal("weekends should be excluded")
	}
	if len(cfg.Webhooks) != 1 || !cfg.Webhooks[0].WebhookEnabled() {
		t.Fatalf("webhooks: %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.BasePath = "v0"
	if err := cfg.Validate(); err == nil {
		t.Fatal("base path without leading slash must fail")
	}
	cfg = Default()
	cfg.Webhooks = []WebhookConfig{{URL: ""}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("webhook without url must fail")
	}
}
