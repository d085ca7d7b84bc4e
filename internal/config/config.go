package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Config is the top-level configuration loaded from file and env.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Streams    StreamsConfig    `mapstructure:"streams"`
	Controller ControllerConfig `mapstructure:"controller"`
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
}

// StorageConfig configures the Pebble data directory and durability.
type StorageConfig struct {
	DataDir        string        `mapstructure:"data_dir"`
	Fsync          string        `mapstructure:"fsync"`
	FsyncInterval  time.Duration `mapstructure:"fsync_interval"`
	TrimBatchLimit int           `mapstructure:"trim_batch_limit"`
}

// StreamsConfig holds defaults applied to every stream handle.
type StreamsConfig struct {
	ReplicaCount  int               `mapstructure:"replica_count"`
	SnapshotRead  bool              `mapstructure:"snapshot_read"`
	Epoch         int64             `mapstructure:"epoch"`
	DefaultTags   map[string]string `mapstructure:"default_tags"`
	NameRegex     string            `mapstructure:"name_regex"`
	FetchMaxBytes int               `mapstructure:"fetch_max_bytes"`
}

// ControllerConfig tunes the stream creation gate.
type ControllerConfig struct {
	HalfOpenWindow time.Duration `mapstructure:"half_open_window"`
	MaxInflight    int           `mapstructure:"max_inflight"`
	LowWatermark   int           `mapstructure:"low_watermark"`
	ThrottleTime   time.Duration `mapstructure:"throttle_time"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			DataDir:        DefaultDataDir(),
			Fsync:          "interval",
			FsyncInterval:  5 * time.Millisecond,
			TrimBatchLimit: 1024,
		},
		Streams: StreamsConfig{
			ReplicaCount:  1,
			Epoch:         0,
			NameRegex:     "[a-z0-9][a-z0-9._-]{0,127}",
			FetchMaxBytes: 1 << 20,
		},
		Controller: ControllerConfig{
			HalfOpenWindow: time.Minute,
			MaxInflight:    64,
			LowWatermark:   8,
			ThrottleTime:   time.Second,
			HealthInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			GRPCAddr: ":7070",
			HTTPAddr: ":7080",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) and
// overlays STRATA_* environment variables. If path is empty only defaults
// and env apply.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	switch c.Storage.Fsync {
	case "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("storage.fsync: unknown mode %q", c.Storage.Fsync))
	}
	if c.Streams.ReplicaCount < 1 {
		errs = append(errs, fmt.Errorf("streams.replica_count must be >= 1, got %d", c.Streams.ReplicaCount))
	}
	if _, err := regexp.Compile(c.Streams.NameRegex); err != nil {
		errs = append(errs, fmt.Errorf("streams.name_regex: %w", err))
	}
	if c.Controller.HalfOpenWindow <= 0 {
		errs = append(errs, errors.New("controller.half_open_window must be positive"))
	}
	if c.Controller.MaxInflight < 1 {
		errs = append(errs, errors.New("controller.max_inflight must be >= 1"))
	}
	if c.Controller.LowWatermark < 0 || c.Controller.LowWatermark >= c.Controller.MaxInflight {
		errs = append(errs, fmt.Errorf("controller.low_watermark must be in [0, max_inflight), got %d", c.Controller.LowWatermark))
	}
	return errors.Join(errs...)
}
