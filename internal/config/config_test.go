package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garnizeh/talentflow/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Sweep.Interval != 5*time.Minute || cfg.Sweep.Workers != 4 {
		t.Fatalf("unexpected sweep defaults: %+v", cfg.Sweep)
	}
	if cfg.Dispatch.Mode != "log" {
		t.Fatalf("dispatch mode = %q, want log", cfg.Dispatch.Mode)
	}
	if cfg.Flowise.BaseURL == "" || cfg.Ollama.Model == "" {
		t.Fatal("engine defaults missing")
	}
	if !cfg.Notify.LogEnabled() {
		t.Fatal("log channel should default on")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
addr: ":9090"
jwt_secret: "file-secret"
sweep:
  interval: 1m
  workers: 8
sources:
  - name: djinni
    platform: djinni
    url: https://feeds.example.test/djinni.json
dispatch:
  mode: log
notify:
  slack_webhook_url: https://hooks.slack.test/T000
  log: false
flowise:
  base_url: http://flowise.local:3000/api
  analysis_flow_id: flow-analysis
  response_flow_id: flow-response
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.JWTSecret != "file-secret" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Sweep.Interval != time.Minute || cfg.Sweep.Workers != 8 {
		t.Fatalf("sweep not applied: %+v", cfg.Sweep)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Platform != "djinni" {
		t.Fatalf("sources not applied: %+v", cfg.Sources)
	}
	if cfg.Flowise.AnalysisFlowID != "flow-analysis" {
		t.Fatalf("flowise not applied: %+v", cfg.Flowise)
	}
	if cfg.Notify.LogEnabled() {
		t.Fatal("log channel should be disabled by file")
	}
	// Untouched sections keep their defaults.
	if cfg.Sweep.PostingBudget != 3*time.Minute {
		t.Fatalf("posting budget default lost: %v", cfg.Sweep.PostingBudget)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TF_JWT_SECRET", "env-secret")
	t.Setenv("TF_FLOWISE_API_KEY", "env-key")
	t.Setenv("TF_SLACK_WEBHOOK_URL", "https://hooks.slack.test/ENV")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("jwt secret = %q", cfg.JWTSecret)
	}
	if cfg.Flowise.APIKey != "env-key" {
		t.Fatalf("flowise api key = %q", cfg.Flowise.APIKey)
	}
	if cfg.Notify.SlackWebhookURL != "https://hooks.slack.test/ENV" {
		t.Fatalf("slack webhook = %q", cfg.Notify.SlackWebhookURL)
	}
}

func TestLoadConfigRejectsBadDispatchMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dispatch:\n  mode: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown dispatch mode")
	}
}

func TestLoadConfigRejectsIncompleteSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sources:\n  - name: nameless\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected error for source without platform and url")
	}
}

func TestLoadConfigEmailModeRequiresSMTP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("dispatch:\n  mode: email\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.LoadConfig(path); err == nil {
		t.Fatal("expected error for email mode without smtp addr")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
