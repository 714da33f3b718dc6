package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
instance:
  id: test-monitor
  az: eu-west-1a
upstream:
  rest_url: https://feed.example.com/v1
  ws_url: wss://feed.example.com/v1/stream
  api_key: test-key
database:
  postgres:
    host: localhost
    port: 5432
    name: monitor_db
    user: monitor
    password: testpass
`

func TestLoad(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-monitor" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-monitor")
	}
	if cfg.Upstream.RestURL != "https://feed.example.com/v1" {
		t.Errorf("Upstream.RestURL = %q", cfg.Upstream.RestURL)
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want localhost", cfg.Database.Postgres.Host)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := strings.Replace(validYAML, "password: testpass", "password: ${TEST_DB_PASSWORD}", 1)
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Password = %q, want secret123", cfg.Database.Postgres.Password)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Feed.ReconnectBaseDelay != 3*time.Second {
		t.Errorf("Feed.ReconnectBaseDelay = %v, want 3s", cfg.Feed.ReconnectBaseDelay)
	}
	if cfg.Feed.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("Feed.ReconnectMaxDelay = %v, want 30s", cfg.Feed.ReconnectMaxDelay)
	}
	if cfg.Breaker.HalfOpenSuccesses != 2 {
		t.Errorf("Breaker.HalfOpenSuccesses = %d, want 2", cfg.Breaker.HalfOpenSuccesses)
	}
	if cfg.Engine.StressMultiplier != 1.0 {
		t.Errorf("Engine.StressMultiplier = %v, want 1.0", cfg.Engine.StressMultiplier)
	}
	if cfg.Notify.Mode != "none" {
		t.Errorf("Notify.Mode = %q, want none", cfg.Notify.Mode)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Metrics.Port = %d, want 9090", cfg.Metrics.Port)
	}
	if cfg.Database.Postgres.SSLMode != "prefer" {
		t.Errorf("SSLMode = %q, want prefer", cfg.Database.Postgres.SSLMode)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, validYAML)

	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MonitorConfig)
		want   string
	}{
		{
			name:   "missing instance id",
			mutate: func(c *MonitorConfig) { c.Instance.ID = "" },
			want:   "instance.id",
		},
		{
			name:   "missing rest url",
			mutate: func(c *MonitorConfig) { c.Upstream.RestURL = "" },
			want:   "upstream.rest_url",
		},
		{
			name: "missing ws url without poller",
			mutate: func(c *MonitorConfig) {
				c.Upstream.WSURL = ""
				c.Poller.Enabled = false
			},
			want: "upstream.ws_url",
		},
		{
			name:   "missing db host",
			mutate: func(c *MonitorConfig) { c.Database.Postgres.Host = "" },
			want:   "database.postgres.host",
		},
		{
			name:   "bad notify mode",
			mutate: func(c *MonitorConfig) { c.Notify.Mode = "carrier-pigeon" },
			want:   "notify.mode",
		},
		{
			name:   "max delay below base delay",
			mutate: func(c *MonitorConfig) { c.Feed.ReconnectMaxDelay = time.Millisecond },
			want:   "reconnect_max_delay",
		},
		{
			name:   "bad metrics port",
			mutate: func(c *MonitorConfig) { c.Metrics.Port = 70000 },
			want:   "metrics.port",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithDefaults(writeTempFile(t, validYAML))
			if err != nil {
				t.Fatalf("LoadWithDefaults failed: %v", err)
			}
			tc.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_PollerOnlyUpstream(t *testing.T) {
	yaml := strings.Replace(validYAML, "  ws_url: wss://feed.example.com/v1/stream\n", "", 1) + `
poller:
  enabled: true
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for poller-only upstream", err)
	}
}
