package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 || cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Pipeline.BatchInterval != 10*time.Second {
		t.Fatalf("batch interval = %s", cfg.Pipeline.BatchInterval)
	}
	if cfg.Leaderboard.Capacity != 200 {
		t.Fatalf("capacity = %d", cfg.Leaderboard.Capacity)
	}
	if cfg.Device.Rows != 6 || cfg.Device.Cols != 9 || cfg.Device.Shots != 1024 {
		t.Fatalf("device = %+v", cfg.Device)
	}
	if cfg.Device.CZError != 0.02 {
		t.Fatalf("cz_error = %v", cfg.Device.CZError)
	}
	if cfg.Notify.Retention != time.Hour || cfg.Compute.ExecuteTimeout != 2*time.Minute {
		t.Fatalf("durations = %s %s", cfg.Notify.Retention, cfg.Compute.ExecuteTimeout)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Fatalf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Render.Enabled || cfg.Compute.Backend != "local" {
		t.Fatalf("render/backend = %v %s", cfg.Render.Enabled, cfg.Compute.Backend)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOMLAndEnvOverlay(t *testing.T) {
	path := writeFile(t, "qrunner.toml", `
[server]
port = 9000

[pipeline]
batch_interval = "2s"

[compute]
backend = "remote"
workers = ["10.0.0.1:9090"]
`)
	t.Setenv("QR_SERVER_PORT", "9100")
	t.Setenv("QR_PIPELINE_BATCH_INTERVAL", "500ms")
	t.Setenv("QR_LEADERBOARD_CAPACITY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Pipeline.BatchInterval != 500*time.Millisecond {
		t.Fatalf("batch interval = %s", cfg.Pipeline.BatchInterval)
	}
	if cfg.Leaderboard.Capacity != 200 {
		t.Fatalf("empty env overrode capacity: %d", cfg.Leaderboard.Capacity)
	}
	if cfg.Compute.Backend != "remote" || len(cfg.Compute.Workers) != 1 {
		t.Fatalf("compute = %+v", cfg.Compute)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "qrunner.yaml", `
device:
  rows: 3
  cols: 4
  seed: 11
archive:
  driver: sqlite
  url: /tmp/qr.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.Rows != 3 || cfg.Device.Cols != 4 || cfg.Device.Seed != 11 {
		t.Fatalf("device = %+v", cfg.Device)
	}
	if cfg.Archive.Driver != "sqlite" || cfg.Archive.URL != "/tmp/qr.db" {
		t.Fatalf("archive = %+v", cfg.Archive)
	}
}

func TestEnvWorkerList(t *testing.T) {
	t.Setenv("QR_COMPUTE_BACKEND", "remote")
	t.Setenv("QR_COMPUTE_WORKERS", "a:1,b:2")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := strings.Join(cfg.WorkerEndpoints(), " "); got != "a:1 b:2" {
		t.Fatalf("endpoints = %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Compute.Backend = "cloud" }},
		{"remote without workers", func(c *Config) { c.Compute.Backend = "remote" }},
		{"spawn with local", func(c *Config) { c.Compute.SpawnWorkers = 2 }},
		{"zero rows", func(c *Config) { c.Device.Rows = 0 }},
		{"bad probability", func(c *Config) { c.Device.ReadoutError = 1.5 }},
		{"archive without url", func(c *Config) { c.Archive.Driver = "postgres" }},
		{"unknown archive", func(c *Config) { c.Archive.Driver = "mongo"; c.Archive.URL = "x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := base()
	cfg.Compute.Backend = "remote"
	cfg.Compute.SpawnWorkers = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("spawned remote: %v", err)
	}
	if got := cfg.WorkerEndpoints(); len(got) != 2 || got[1] != "127.0.0.1:9191" {
		t.Fatalf("endpoints = %v", got)
	}
}
