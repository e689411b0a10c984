// Package daemon manages the clusterplug daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/clusterplug/clusterplug/internal/app/hotplug"
	"github.com/clusterplug/clusterplug/internal/infra/power"
	"github.com/clusterplug/clusterplug/internal/infra/resource"
)

// Config holds all daemon configuration.
type Config struct {
	Controller ControllerConfig `toml:"controller"`
	Topology   TopologyConfig   `toml:"topology"`
	Power      PowerConfig      `toml:"power"`
	API        APIConfig        `toml:"api"`
	Storage    StorageConfig    `toml:"storage"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ControllerConfig selects the decision engine and seeds the tunables.
type ControllerConfig struct {
	Algorithm string           `toml:"algorithm" validate:"oneof=voting hysteresis"`
	Warmup    string           `toml:"warmup" validate:"duration"`
	Tunables  hotplug.Settings `toml:"tunables"`
}

// TopologyConfig locates the kernel interfaces and the cluster split.
type TopologyConfig struct {
	// Boundary is the index of the first little unit.
	Boundary    int    `toml:"boundary" validate:"gte=1"`
	CPURoot     string `toml:"cpu_root" validate:"required"`
	ProcStat    string `toml:"proc_stat" validate:"required"`
	ThermalZone string `toml:"thermal_zone"`
}

// PowerConfig picks the suspend/resume source.
type PowerConfig struct {
	Source string `toml:"source" validate:"oneof=signal fb none"`
	Dir    string `toml:"dir"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
}

// StorageConfig controls the SQLite event journal.
type StorageConfig struct {
	Enabled       bool   `toml:"enabled"`
	Dir           string `toml:"dir"`
	KeepEvents    int    `toml:"keep_events" validate:"gte=0"`
	PruneInterval string `toml:"prune_interval" validate:"duration"`
}

// TelemetryConfig controls metrics and background checks.
type TelemetryConfig struct {
	Prometheus      bool   `toml:"prometheus"`
	ThermalInterval string `toml:"thermal_interval" validate:"duration"`
	HealthInterval  string `toml:"health_interval" validate:"duration"`
}

// LoggingConfig controls klog verbosity.
type LoggingConfig struct {
	Verbosity int `toml:"verbosity" validate:"gte=0,lte=10"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Controller: ControllerConfig{
			Algorithm: hotplug.AlgorithmVoting,
			Warmup:    hotplug.DefaultWarmup.String(),
			Tunables:  hotplug.DefaultSettings(),
		},
		Topology: TopologyConfig{
			Boundary:    4,
			CPURoot:     resource.DefaultCPURoot,
			ProcStat:    resource.DefaultProcStat,
			ThermalZone: resource.DefaultThermalZone,
		},
		Power: PowerConfig{
			Source: power.SourceSignal,
			Dir:    power.DefaultPowerDir,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7423,
		},
		Storage: StorageConfig{
			Enabled:       true,
			Dir:           Home(),
			KeepEvents:    10000,
			PruneInterval: "10m",
		},
		Telemetry: TelemetryConfig{
			Prometheus:      true,
			ThermalInterval: "5s",
			HealthInterval:  "30s",
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Empty strings fall back to defaults, so only reject unparsable ones.
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		d, err := time.ParseDuration(s)
		return err == nil && d >= 0
	})
	return v
}

// Validate checks every section, including the seeded tunables.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ConfigPath is the default config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads config from path (ConfigPath when empty), falling back
// to defaults when the file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to path (ConfigPath when empty).
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Home returns the clusterplug data directory.
func Home() string {
	if env := os.Getenv("CLUSTERPLUG_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clusterplug")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
