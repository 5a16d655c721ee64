package config

import (
	"github.com/knadh/koanf/v2"
)

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"server.host":            "0.0.0.0",
		"server.port":            8000,
		"server.rate_limit":      20,
		"server.allowed_origins": []string{"*"},

		"worker.host":       "0.0.0.0",
		"worker.port":       9090,
		"worker.auth_token": "",

		"pipeline.batch_interval":   "10s",
		"pipeline.executors":        1,
		"pipeline.batch_queue":      16,
		"pipeline.shutdown_timeout": "15s",

		"compute.backend":         "local",
		"compute.workers":         []string{},
		"compute.spawn_workers":   0,
		"compute.spawn_base_port": 9190,
		"compute.prepare_timeout": "30s",
		"compute.execute_timeout": "2m",

		"device.rows":          6,
		"device.cols":          9,
		"device.shots":         1024,
		"device.cz_error":      0.02,
		"device.gate_error":    0.001,
		"device.readout_error": 0.03,
		"device.seed":          0,

		"render.enabled":     true,
		"render.max_columns": 64,

		"leaderboard.capacity": 200,

		"notify.retention":      "1h",
		"notify.send_buffer":    32,
		"notify.sweep_interval": "1m",

		"jobs.cache_size": 10000,
		"jobs.ttl":        "2h",

		"archive.driver":          "",
		"archive.url":             "",
		"archive.max_connections": 5,

		"logging.level":  "info",
		"logging.format": "pretty",
	}

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}
