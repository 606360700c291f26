package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true

storage:
  path: ./data/test.db
  busy_timeout: 5s

scheduler:
  timezone: "Europe/Berlin"
  families:
    reminder:
      enabled: true
    analytics:
      enabled: false

notify:
  drain_interval: 2s
  batch_size: 25
  rate_per_sec: 5
  telegram:
    enabled: true
    token: "123:abc"

cache:
  sweep_interval: 1m

retention:
  archive_after_days: 30
  purge_after_days: 120

admin:
  enabled: true
  addr: 127.0.0.1:9999
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	m := NewManager(writeConfig(t, sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Fatalf("timezone = %q", cfg.Scheduler.Timezone)
	}
	if !cfg.Scheduler.Families["reminder"].IsEnabled() {
		t.Fatal("reminder family should be enabled")
	}
	if cfg.Scheduler.Families["analytics"].IsEnabled() {
		t.Fatal("analytics family should be disabled")
	}
	if cfg.Notify.BatchSize != 25 || !cfg.Notify.IsEnabled() {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
	if !cfg.Notify.Telegram.Enabled || cfg.Notify.Telegram.Token != "123:abc" {
		t.Fatalf("telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Retention.ArchiveAfterDays != 30 || cfg.Retention.PurgeAfterDays != 120 {
		t.Fatalf("retention = %+v", cfg.Retention)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	m := NewManager(writeConfig(t, "loging:\n  level: info\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestFamilyEnabledDefaultsToTrue(t *testing.T) {
	m := NewManager(writeConfig(t, "scheduler:\n  families:\n    reminder: {}\n"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Scheduler.Families["reminder"].IsEnabled() {
		t.Fatal("omitted enabled should default to true")
	}
}

func TestParseDurationField(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"2m", 2 * time.Minute, false},
		{"nope", 0, true},
		{"-5s", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("x", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got (%v, %v), want %v", tc.raw, got, err, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	got, err := ParseDurationOrDefault("x", "", 7*time.Second)
	if err != nil || got != 7*time.Second {
		t.Fatalf("got (%v, %v), want default 7s", got, err)
	}
	got, err = ParseDurationOrDefault("x", "3s", 7*time.Second)
	if err != nil || got != 3*time.Second {
		t.Fatalf("got (%v, %v), want 3s", got, err)
	}
}

func TestSubscribePublishAndUnsubscribe(t *testing.T) {
	m := NewManager(writeConfig(t, sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber got a different config")
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}
