package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the application
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Engine      EngineConfig      `mapstructure:"engine"`
	GC          GCConfig          `mapstructure:"gc"`
	Log         LogConfig         `mapstructure:"log"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig holds the network settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// EngineConfig bounds the size of individual values and collections.
// A zero limit means unlimited.
type EngineConfig struct {
	MaxValueBytes     int `mapstructure:"max_value_bytes"`     // largest string value accepted
	MaxCollectionSize int `mapstructure:"max_collection_size"` // most elements in a list/hash/set/zset
}

// GCConfig defines the parameters for the background active expiration
type GCConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`          // how often to run the background check
	SamplesPerCheck int           `mapstructure:"samples_per_check"` // how many volatile keys to check per loop
	MatchThreshold  float64       `mapstructure:"match_threshold"`   // 0.0-1.0. if expired/scanned >= threshold, repeat immediately
	MaxRounds       int           `mapstructure:"max_rounds"`        // upper bound on immediate repeats per tick
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// PersistenceConfig groups the WAL and snapshot settings
type PersistenceConfig struct {
	WAL      WALConfig      `mapstructure:"wal"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// WALConfig defines settings of the write-ahead log
type WALConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Dir             string `mapstructure:"dir"`
	Fsync           string `mapstructure:"fsync"`             // always, everysec, no
	SegmentMaxBytes int64  `mapstructure:"segment_max_bytes"` // active segment rotates past this size
}

// SnapshotConfig defines settings of point-in-time snapshots
type SnapshotConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Dir           string        `mapstructure:"dir"`
	Interval      time.Duration `mapstructure:"interval"`        // 0 disables the timer trigger
	WALGrowthMax  int64         `mapstructure:"wal_growth_max"`  // WAL bytes since last snapshot that force one; 0 disables
	Retain        int           `mapstructure:"retain"`          // snapshot generations kept on disk
	CheckInterval time.Duration `mapstructure:"check_interval"`  // how often triggers are evaluated
}

// MetricsConfig controls the side HTTP listener for prometheus and health
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads the configuration from a file and overrides it with environment variables
func Load(path string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("DUSKDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates viper with fallback values if they are not provided via file or ENV
func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "6380")

	// Engine
	viper.SetDefault("engine.max_value_bytes", 512*1024*1024)
	viper.SetDefault("engine.max_collection_size", 0)

	// GC
	viper.SetDefault("gc.enabled", true)
	viper.SetDefault("gc.interval", "100ms")
	viper.SetDefault("gc.samples_per_check", 20)
	viper.SetDefault("gc.match_threshold", 0.25)
	viper.SetDefault("gc.max_rounds", 4)

	// Logger
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	// Persistence
	viper.SetDefault("persistence.wal.enabled", true)
	viper.SetDefault("persistence.wal.dir", "data/wal")
	viper.SetDefault("persistence.wal.fsync", "everysec")
	viper.SetDefault("persistence.wal.segment_max_bytes", 64*1024*1024)

	viper.SetDefault("persistence.snapshot.enabled", true)
	viper.SetDefault("persistence.snapshot.dir", "data/snapshots")
	viper.SetDefault("persistence.snapshot.interval", "5m")
	viper.SetDefault("persistence.snapshot.wal_growth_max", 128*1024*1024)
	viper.SetDefault("persistence.snapshot.retain", 3)
	viper.SetDefault("persistence.snapshot.check_interval", "10s")

	// Metrics
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.addr", "127.0.0.1:9121")
}

// Default returns the built-in configuration without touching viper.
// Used by tests and embedded callers.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: "6380"},
		Engine: EngineConfig{MaxValueBytes: 512 * 1024 * 1024},
		GC: GCConfig{
			Enabled:         true,
			Interval:        100 * time.Millisecond,
			SamplesPerCheck: 20,
			MatchThreshold:  0.25,
			MaxRounds:       4,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Persistence: PersistenceConfig{
			WAL: WALConfig{
				Enabled:         true,
				Dir:             "data/wal",
				Fsync:           "everysec",
				SegmentMaxBytes: 64 * 1024 * 1024,
			},
			Snapshot: SnapshotConfig{
				Enabled:       true,
				Dir:           "data/snapshots",
				Interval:      5 * time.Minute,
				WALGrowthMax:  128 * 1024 * 1024,
				Retain:        3,
				CheckInterval: 10 * time.Second,
			},
		},
		Metrics: MetricsConfig{Enabled: false, Addr: "127.0.0.1:9121"},
	}
}
