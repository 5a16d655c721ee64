package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "QR_"

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Worker      WorkerConfig      `koanf:"worker"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Compute     ComputeConfig     `koanf:"compute"`
	Device      DeviceConfig      `koanf:"device"`
	Render      RenderConfig      `koanf:"render"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
	Notify      NotifyConfig      `koanf:"notify"`
	Jobs        JobsConfig        `koanf:"jobs"`
	Archive     ArchiveConfig     `koanf:"archive"`
	Logging     LoggingConfig     `koanf:"logging"`
}

type ServerConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	RateLimit      float64  `koanf:"rate_limit"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type WorkerConfig struct {
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	AuthToken string `koanf:"auth_token"`
}

type PipelineConfig struct {
	BatchInterval   time.Duration `koanf:"batch_interval"`
	Executors       int           `koanf:"executors"`
	BatchQueue      int           `koanf:"batch_queue"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type ComputeConfig struct {
	Backend        string        `koanf:"backend"`
	Workers        []string      `koanf:"workers"`
	SpawnWorkers   int           `koanf:"spawn_workers"`
	SpawnBasePort  int           `koanf:"spawn_base_port"`
	PrepareTimeout time.Duration `koanf:"prepare_timeout"`
	ExecuteTimeout time.Duration `koanf:"execute_timeout"`
}

type DeviceConfig struct {
	Rows         int     `koanf:"rows"`
	Cols         int     `koanf:"cols"`
	Shots        int     `koanf:"shots"`
	CZError      float64 `koanf:"cz_error"`
	GateError    float64 `koanf:"gate_error"`
	ReadoutError float64 `koanf:"readout_error"`
	Seed         uint64  `koanf:"seed"`
}

type RenderConfig struct {
	Enabled    bool `koanf:"enabled"`
	MaxColumns int  `koanf:"max_columns"`
}

type LeaderboardConfig struct {
	Capacity int `koanf:"capacity"`
}

type NotifyConfig struct {
	Retention     time.Duration `koanf:"retention"`
	SendBuffer    int           `koanf:"send_buffer"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type JobsConfig struct {
	CacheSize int           `koanf:"cache_size"`
	TTL       time.Duration `koanf:"ttl"`
}

type ArchiveConfig struct {
	Driver         string `koanf:"driver"`
	URL            string `koanf:"url"`
	MaxConnections int    `koanf:"max_connections"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads defaults, then the config file if provided (TOML, or YAML by
// extension), then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	// 2. Load config file if provided
	if configPath != "" {
		parser := koanf.Parser(toml.Parser())
		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		}
		if err := k.Load(file.Provider(configPath), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", configPath, err)
		}
	}

	// 3. Load env vars: QR_SERVER_PORT -> server.port, QR_PIPELINE_BATCH_INTERVAL
	// -> pipeline.batch_interval. Only the first underscore separates the
	// section; empty values are skipped so they don't override the file.
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		mapped := strings.Replace(
			strings.ToLower(strings.TrimPrefix(key, EnvPrefix)),
			"_", ".", 1,
		)
		if mapped == "server.allowed_origins" || mapped == "compute.workers" {
			return mapped, strings.Split(value, ",")
		}
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Compute.Backend {
	case "local":
	case "remote":
		if len(c.Compute.Workers) == 0 && c.Compute.SpawnWorkers == 0 {
			return fmt.Errorf("compute.backend = remote needs compute.workers or compute.spawn_workers")
		}
	default:
		return fmt.Errorf("unknown compute.backend %q", c.Compute.Backend)
	}
	if c.Compute.SpawnWorkers > 0 && c.Compute.Backend != "remote" {
		return fmt.Errorf("compute.spawn_workers requires compute.backend = remote")
	}
	if c.Device.Rows <= 0 || c.Device.Cols <= 0 {
		return fmt.Errorf("device must have positive rows and cols, got %dx%d", c.Device.Rows, c.Device.Cols)
	}
	for name, p := range map[string]float64{
		"device.cz_error":      c.Device.CZError,
		"device.gate_error":    c.Device.GateError,
		"device.readout_error": c.Device.ReadoutError,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, p)
		}
	}
	switch c.Archive.Driver {
	case "":
	case "postgres", "sqlite":
		if c.Archive.URL == "" {
			return fmt.Errorf("archive.driver = %s needs archive.url", c.Archive.Driver)
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	return nil
}

// WorkerEndpoints lists the workers the remote backend talks to, including
// the ones spawned locally.
func (c *Config) WorkerEndpoints() []string {
	out := append([]string(nil), c.Compute.Workers...)
	for i := 0; i < c.Compute.SpawnWorkers; i++ {
		out = append(out, fmt.Sprintf("127.0.0.1:%d", c.Compute.SpawnBasePort+i))
	}
	return out
}
