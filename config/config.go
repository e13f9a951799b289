// Package config loads the YAML configuration for a zoned block device
// instance: zone geometry, allocator/cleaner tuning, logging, and the
// optional debug/metrics endpoint.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceConfig describes the zone geometry and resource caps of a
// ZonedBlockDevice, mirroring zbd_zenfs.h's constructor parameters and
// ZonedBlockDevice::Open.
type DeviceConfig struct {
	Path             string `yaml:"path"`
	BlockSizeBytes   int64  `yaml:"block_size_bytes"`
	ZoneSizeBytes    int64  `yaml:"zone_size_bytes"`
	NumIOZones       int    `yaml:"num_io_zones"`
	NumMetaZones     int    `yaml:"num_meta_zones"`
	NumReservedZones int    `yaml:"num_reserved_zones"`
	MaxActiveZones   int    `yaml:"max_active_zones"`
	MaxOpenZones     int    `yaml:"max_open_zones"`
	FinishThreshold  int    `yaml:"finish_threshold_percent"`
}

// AllocatorConfig tunes write-lifetime-hint compatibility for step 4 of the
// allocator policy (spec.md §4.3). device.Open takes only the
// DeviceConfig, so the allocator reads neither field below.
type AllocatorConfig struct {
	// StrictHintMatching selects strict hint equality over the ±1 rung
	// relaxation discussed in the open questions. The allocator always
	// matches hints strictly, whatever this is set to.
	StrictHintMatching bool `yaml:"strict_hint_matching"`
	// AllocateWaitTimeout is a duration for AllocateZone's blocking wait
	// on the resource condition variable. The allocator does not apply
	// it: the wait ends only when the caller's context is cancelled or
	// the device is closed.
	AllocateWaitTimeout string `yaml:"allocate_wait_timeout"`
}

// CleanerConfig tunes the background zone-cleaning pass.
type CleanerConfig struct {
	Enabled               bool    `yaml:"enabled"`
	Interval              string  `yaml:"interval"`
	ZonesPerPass          int     `yaml:"zones_per_pass"`
	InvalidBytesThreshold float64 `yaml:"invalid_bytes_threshold"`
	RetryBackoffInitial   string  `yaml:"retry_backoff_initial"`
	RetryBackoffMax       string  `yaml:"retry_backoff_max"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// TracingConfig holds distributed tracing configuration for the OpenTelemetry
// spans emitted by device operations (ZoneDevice.AllocateZone and Clean).
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DebugConfig configures the optional debug/metrics HTTP endpoint
// (pprof + statsviz + Prometheus), see cmd/zonectl.
type DebugConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ListenAddress    string `yaml:"listen_address"`
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	MonitorUIEnabled bool   `yaml:"monitor_ui_enabled"`
}

// Config is the top-level configuration struct.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Allocator AllocatorConfig `yaml:"allocator"`
	Cleaner   CleanerConfig   `yaml:"cleaner"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Debug     DebugConfig     `yaml:"debug"`
}

// ParseDuration parses a duration string, returning defaultDuration if the
// string is empty, "0", or malformed. A malformed (non-empty) string is
// logged at Warn level rather than treated as fatal.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

func defaults() *Config {
	return &Config{
		Device: DeviceConfig{
			Path:             "./zonefs-data",
			BlockSizeBytes:   4096,
			ZoneSizeBytes:    256 * 1024 * 1024,
			NumIOZones:       64,
			NumMetaZones:     4,
			NumReservedZones: 2,
			MaxActiveZones:   8,
			MaxOpenZones:     8,
			FinishThreshold:  0,
		},
		Allocator: AllocatorConfig{
			StrictHintMatching:  true,
			AllocateWaitTimeout: "30s",
		},
		Cleaner: CleanerConfig{
			Enabled:               true,
			Interval:              "60s",
			ZonesPerPass:          4,
			InvalidBytesThreshold: 0.7,
			RetryBackoffInitial:   "1s",
			RetryBackoffMax:       "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "zonefs.log",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "zonefs",
		},
		Debug: DebugConfig{
			Enabled:          false,
			ListenAddress:    "127.0.0.1:6061",
			MetricsEnabled:   true,
			MonitorUIEnabled: true,
		},
	}
}

// Load reads configuration from an io.Reader, overlaying it onto the
// built-in defaults. A nil reader or empty payload yields defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := defaults()

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path. A missing file
// yields defaults, matching Load(nil).
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
