package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"URL_LINK", "CLASS_ELEMENT",
		"CHANGE_STATUS_TOPIC", "HEALTH_STATUS_TOPIC",
		"ACCESS_KEY", "SECRET_KEY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadFileDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
target:
  url: https://example.org/news
  selector: .portlet
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Monitor.PollInterval != time.Minute {
		t.Errorf("poll_interval default = %v", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.HeartbeatInterval != 2*time.Hour {
		t.Errorf("heartbeat_interval default = %v", cfg.Monitor.HeartbeatInterval)
	}
	if cfg.Monitor.MaxChanges != 10 {
		t.Errorf("max_changes default = %d", cfg.Monitor.MaxChanges)
	}
	if cfg.Fetch.Mode != "http" || cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("fetch defaults = %+v", cfg.Fetch)
	}
	if cfg.Notify.MaxAttempts != 3 || cfg.Notify.BaseBackoff != 2*time.Second || cfg.Notify.MaxBackoff != 30*time.Second {
		t.Errorf("notify defaults = %+v", cfg.Notify)
	}
	if cfg.State.Path != "vigil.db" {
		t.Errorf("state path default = %q", cfg.State.Path)
	}
}

func TestLoadFileFull(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
target:
  url: https://example.org/news
  selector: "#announcements"
monitor:
  poll_interval: 30s
  heartbeat_interval: 1h
  max_changes: 5
  fail_alert_threshold: 4
fetch:
  mode: browser
  timeout: 25s
notify:
  max_attempts: 5
  base_backoff: 1s
  max_backoff: 10s
  rate_limit: 2
  channels:
    - type: sns
      name: alerts
      topic_arn: arn:aws:sns:eu-west-1:1:alerts
      region: eu-west-1
      kinds: [change]
    - type: email
      host: smtp.example.org
      from: monitor@example.org
      to: [ops@example.org]
    - type: webhook
      url: https://hooks.example.org/vigil
      secret: s3cr3t
      kinds: [change, health]
state:
  path: /var/lib/vigil/vigil.db
  retention_days: 14
api:
  listen: :8080
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Target.Selector != "#announcements" {
		t.Errorf("selector = %q", cfg.Target.Selector)
	}
	if cfg.Monitor.PollInterval != 30*time.Second || cfg.Monitor.FailAlertThreshold != 4 {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}
	if cfg.Fetch.Mode != "browser" || cfg.Fetch.Timeout != 25*time.Second {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	if len(cfg.Notify.Channels) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(cfg.Notify.Channels))
	}
	if email := cfg.Notify.Channels[1]; email.Port != 587 {
		t.Errorf("email port default = %d", email.Port)
	}
	if cfg.API.Listen != ":8080" || cfg.State.RetentionDays != 14 {
		t.Errorf("api=%+v state=%+v", cfg.API, cfg.State)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("URL_LINK", "https://embassy.example.org/visa")
	t.Setenv("CLASS_ELEMENT", ".xh-highlight")
	t.Setenv("CHANGE_STATUS_TOPIC", "arn:aws:sns:eu-west-1:1:change-status")
	t.Setenv("HEALTH_STATUS_TOPIC", "arn:aws:sns:eu-west-1:1:health-status")
	t.Setenv("ACCESS_KEY", "AKIAEXAMPLE")
	t.Setenv("SECRET_KEY", "secret")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Target.URL != "https://embassy.example.org/visa" || cfg.Target.Selector != ".xh-highlight" {
		t.Fatalf("env target not applied: %+v", cfg.Target)
	}
	if len(cfg.Notify.Channels) != 2 {
		t.Fatalf("expected 2 sns channels from env, got %d", len(cfg.Notify.Channels))
	}

	change := cfg.Notify.Channels[0]
	if change.Type != "sns" || change.TopicARN != "arn:aws:sns:eu-west-1:1:change-status" {
		t.Errorf("change channel = %+v", change)
	}
	if len(change.Kinds) != 1 || change.Kinds[0] != "change" {
		t.Errorf("change channel kinds = %v", change.Kinds)
	}

	health := cfg.Notify.Channels[1]
	if len(health.Kinds) != 2 {
		t.Errorf("health channel should mirror change events: %v", health.Kinds)
	}
	if health.AccessKey != "AKIAEXAMPLE" || health.SecretKey != "secret" {
		t.Errorf("credentials not applied: %+v", health)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
target:
  url: https://old.example.org
  selector: .old
`)
	t.Setenv("URL_LINK", "https://new.example.org")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.URL != "https://new.example.org" {
		t.Errorf("env must win over file: %q", cfg.Target.URL)
	}
	if cfg.Target.Selector != ".old" {
		t.Errorf("unset env must not clobber file: %q", cfg.Target.Selector)
	}
}

func TestApplyEnvIdempotent(t *testing.T) {
	clearEnv(t)
	t.Setenv("URL_LINK", "https://example.org")
	t.Setenv("CLASS_ELEMENT", ".x")
	t.Setenv("CHANGE_STATUS_TOPIC", "arn:1")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.ApplyEnv()
	if len(cfg.Notify.Channels) != 1 {
		t.Fatalf("repeated ApplyEnv duplicated channels: %d", len(cfg.Notify.Channels))
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing url", "target:\n  selector: .x\n"},
		{"missing selector", "target:\n  url: https://example.org\n"},
		{"bad fetch mode", "target:\n  url: https://example.org\n  selector: .x\nfetch:\n  mode: carrier-pigeon\n"},
		{"sns without arn", "target:\n  url: https://example.org\n  selector: .x\nnotify:\n  channels:\n    - type: sns\n"},
		{"unknown channel type", "target:\n  url: https://example.org\n  selector: .x\nnotify:\n  channels:\n    - type: pager\n"},
		{"unknown kind", "target:\n  url: https://example.org\n  selector: .x\nnotify:\n  channels:\n    - type: webhook\n      url: https://h.example.org\n      kinds: [chaos]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			if _, err := LoadFile(path); err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
		})
	}
}
