// Package config provides deployment configuration loading for the flowmill
// services.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	DefaultCriticalAfterHours      = 24.0
	DefaultDirectoryTimeoutSeconds = 3.0
	DefaultScanSchedule            = "*/15 * * * *"
	DefaultEventBusProvider        = "gochannel"
)

// Config is the structure of the flowmill.yaml deployment file.
type Config struct {
	SLA        SLAConfig        `yaml:"sla"`
	Assignment AssignmentConfig `yaml:"assignment"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Redis      RedisConfig      `yaml:"redis"`
}

// SLAConfig tunes the compliance tracker and the sweeper.
type SLAConfig struct {
	// CriticalAfterHours is how far past due an item escalates from
	// breached to critical.
	CriticalAfterHours float64 `yaml:"critical_after_hours"`

	// ScanSchedule is the cron expression the sweeper runs on.
	ScanSchedule string `yaml:"scan_schedule"`
}

// AssignmentConfig tunes assignment resolution.
type AssignmentConfig struct {
	// DirectoryTimeoutSeconds bounds external directory lookups during
	// stage activation.
	DirectoryTimeoutSeconds float64 `yaml:"directory_timeout_seconds"`
}

// EventBusConfig selects the event transport.
type EventBusConfig struct {
	// Provider is "kafka" or "gochannel".
	Provider string `yaml:"provider"`
}

// RedisConfig points at the rotation state store for round-robin assignment.
// An empty address falls back to in-memory rotation state.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c *Config) CriticalAfter() time.Duration {
	return time.Duration(c.SLA.CriticalAfterHours * float64(time.Hour))
}

func (c *Config) DirectoryTimeout() time.Duration {
	return time.Duration(c.Assignment.DirectoryTimeoutSeconds * float64(time.Second))
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadOrDefault attempts to load config from a file, falling back to the
// defaults when the file is absent.
func LoadOrDefault(path string) *Config {
	config, err := Load(path)
	if err != nil {
		return Default()
	}

	return config
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		SLA: SLAConfig{
			CriticalAfterHours: DefaultCriticalAfterHours,
			ScanSchedule:       DefaultScanSchedule,
		},
		Assignment: AssignmentConfig{
			DirectoryTimeoutSeconds: DefaultDirectoryTimeoutSeconds,
		},
		EventBus: EventBusConfig{
			Provider: DefaultEventBusProvider,
		},
	}
}

func applyDefaults(config *Config) {
	if config.SLA.CriticalAfterHours == 0 {
		config.SLA.CriticalAfterHours = DefaultCriticalAfterHours
	}

	if config.SLA.ScanSchedule == "" {
		config.SLA.ScanSchedule = DefaultScanSchedule
	}

	if config.Assignment.DirectoryTimeoutSeconds == 0 {
		config.Assignment.DirectoryTimeoutSeconds = DefaultDirectoryTimeoutSeconds
	}

	if config.EventBus.Provider == "" {
		config.EventBus.Provider = DefaultEventBusProvider
	}
}

// Validate checks the configuration for values the services cannot run with.
func Validate(config *Config) error {
	if config.SLA.CriticalAfterHours <= 0 {
		return fmt.Errorf("sla.critical_after_hours must be positive, got %v", config.SLA.CriticalAfterHours)
	}

	if config.Assignment.DirectoryTimeoutSeconds <= 0 {
		return fmt.Errorf("assignment.directory_timeout_seconds must be positive, got %v", config.Assignment.DirectoryTimeoutSeconds)
	}

	if _, err := cron.ParseStandard(config.SLA.ScanSchedule); err != nil {
		return fmt.Errorf("sla.scan_schedule is not a valid cron expression: %w", err)
	}

	switch config.EventBus.Provider {
	case "kafka", "gochannel":
	default:
		return fmt.Errorf("event_bus.provider must be kafka or gochannel, got %q", config.EventBus.Provider)
	}

	return nil
}
