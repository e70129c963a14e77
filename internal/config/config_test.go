package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
admission:
  rps: 2.5
  burst: 4
scheduler:
  workers: 6
  queue_depth: 128
  progress_interval: 50ms
  retain: 20
  retain_for: 10m
ui:
  default_silent_after: 2s
  operations:
    text.lines:
      silent_after: 30s
      message: Open lines
store:
  backend: sqlite
sqlite:
  path: /tmp/runs.db
gcs:
  enabled: true
  bucket: inputs
publisher:
  backend: redis
  topic: done
redis:
  url: redis://localhost:6379/0
  max_len: 500
logging:
  development: false
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Admission.RPS != 2.5 || cfg.Admission.Burst != 4 {
		t.Fatalf("expected admission overrides: %+v", cfg.Admission)
	}
	if cfg.Scheduler.Workers != 6 || cfg.Scheduler.ProgressInterval != 50*time.Millisecond {
		t.Fatalf("expected scheduler overrides to apply: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.Retain != 20 || cfg.Scheduler.RetainFor != 10*time.Minute {
		t.Fatalf("expected retention overrides: %+v", cfg.Scheduler)
	}
	meta, ok := cfg.UI.Operations["text.lines"]
	if !ok || meta.SilentAfter != 30*time.Second || meta.Message != "Open lines" {
		t.Fatalf("expected operation metadata to be loaded: %+v", cfg.UI.Operations)
	}
	if cfg.UI.DefaultSilentAfter != 2*time.Second {
		t.Fatalf("expected default silent after 2s, got %v", cfg.UI.DefaultSilentAfter)
	}
	if cfg.GCS.Bucket != "inputs" || cfg.Redis.MaxLen != 500 {
		t.Fatalf("expected nested configs to decode: gcs=%+v redis=%+v", cfg.GCS, cfg.Redis)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Development {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if cfg.Progress.BufferSize != 4096 {
		t.Fatalf("expected default buffer size, got %d", cfg.Progress.BufferSize)
	}
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("JOBCORE_SCHEDULER_WORKERS", "9")
	t.Setenv("JOBCORE_PUBLISHER_BACKEND", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.Workers != 9 {
		t.Fatalf("expected env override, got %d workers", cfg.Scheduler.Workers)
	}
	if cfg.Store.Backend != "memory" || cfg.Publisher.Backend != "memory" {
		t.Fatalf("unexpected backends: store=%s publisher=%s", cfg.Store.Backend, cfg.Publisher.Backend)
	}
	if cfg.Scheduler.Namespace != "jobcore.managers" {
		t.Fatalf("unexpected namespace %q", cfg.Scheduler.Namespace)
	}
	if cfg.Scheduler.Retain != 1000 || cfg.Scheduler.RetainFor != time.Hour {
		t.Fatalf("unexpected retention defaults: %+v", cfg.Scheduler)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Scheduler: SchedulerConfig{Workers: 1},
		Store:     StoreConfig{Backend: "memory"},
		Publisher: PublisherConfig{Backend: "none"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "negative admission rate", mutate: func(c *Config) { c.Admission.RPS = -1 }, want: "admission.rps"},
		{name: "no workers", mutate: func(c *Config) { c.Scheduler.Workers = 0 }, want: "scheduler.workers"},
		{name: "negative retain", mutate: func(c *Config) { c.Scheduler.Retain = -1 }, want: "scheduler.retain"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = "postgres" }, want: "db.dsn"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "etcd" }, want: "store.backend"},
		{
			name: "pubsub without project",
			mutate: func(c *Config) {
				c.Publisher.Backend = "pubsub"
				c.Publisher.Topic = "t"
			},
			want: "pubsub.project_id",
		},
		{name: "publisher without topic", mutate: func(c *Config) { c.Publisher.Backend = "memory" }, want: "publisher.topic"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.GCS.Enabled = true }, want: "gcs.bucket"},
		{name: "negative silent after", mutate: func(c *Config) { c.UI.DefaultSilentAfter = -time.Second }, want: "ui.default_silent_after"},
		{name: "sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = 2 }, want: "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
