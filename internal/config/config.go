// Package config loads the station configuration: instrument ports, safety
// limits, and measurement defaults. All fields are optional pointers so a
// partial JSON file overrides only what it names; the Get* accessors supply
// the defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/attolab/cryosweep/internal/safety"
)

// InstrumentConfig describes how to reach one instrument.
type InstrumentConfig struct {
	// Port is the serial device path, e.g. "/dev/ttyUSB0".
	Port *string `json:"port,omitempty"`
	// BaudRate overrides the default 9600.
	BaudRate *int `json:"baud_rate,omitempty"`
	// Terminator overrides the default "\r\n" command terminator.
	Terminator *string `json:"terminator,omitempty"`
}

// Configured reports whether this instrument has a port assigned. The
// station skips instruments with no port rather than failing startup.
func (c *InstrumentConfig) Configured() bool {
	return c != nil && c.Port != nil && *c.Port != ""
}

// GetPort returns the serial device path, or "" when not configured.
func (c *InstrumentConfig) GetPort() string {
	if c == nil || c.Port == nil {
		return ""
	}
	return *c.Port
}

// GetBaudRate returns the baud rate or the default.
func (c *InstrumentConfig) GetBaudRate() int {
	if c == nil || c.BaudRate == nil {
		return 9600
	}
	return *c.BaudRate
}

// GetTerminator returns the command terminator or the default.
func (c *InstrumentConfig) GetTerminator() string {
	if c == nil || c.Terminator == nil {
		return "\r\n"
	}
	return *c.Terminator
}

// LimitsConfig overrides individual safety limits. Units match the safety
// package: Tesla, T/min, Ampere, Volt, Kelvin, K/min.
type LimitsConfig struct {
	MaxMagneticField *float64 `json:"max_magnetic_field,omitempty"`
	MaxFieldRampRate *float64 `json:"max_field_ramp_rate,omitempty"`
	MaxCurrent       *float64 `json:"max_current,omitempty"`
	MaxVoltage       *float64 `json:"max_voltage,omitempty"`
	MaxTemperature   *float64 `json:"max_temperature,omitempty"`
	MinTemperature   *float64 `json:"min_temperature,omitempty"`
	MaxTempRampRate  *float64 `json:"max_temperature_ramp_rate,omitempty"`
}

// Config is the root station configuration.
type Config struct {
	Magnet         *InstrumentConfig `json:"magnet,omitempty"`
	CurrentSource  *InstrumentConfig `json:"current_source,omitempty"`
	Nanovoltmeter  *InstrumentConfig `json:"nanovoltmeter,omitempty"`
	SMU            *InstrumentConfig `json:"smu,omitempty"`
	LockIn         *InstrumentConfig `json:"lockin,omitempty"`
	TempController *InstrumentConfig `json:"temperature_controller,omitempty"`

	Limits *LimitsConfig `json:"safety_limits,omitempty"`

	// DatabasePath is the sqlite file runs are recorded to.
	DatabasePath *string `json:"database_path,omitempty"`

	// ControlLoop is the temperature controller loop driving the sample
	// stage.
	ControlLoop *int `json:"control_loop,omitempty"`

	// Averages is the default reading count per measurement point.
	Averages *int `json:"averages,omitempty"`
	// InterPointDelay is the default wait after each setpoint, a duration
	// string like "100ms".
	InterPointDelay *string `json:"inter_point_delay,omitempty"`
	// MonitorInterval is the background monitor cadence, a duration
	// string like "1s".
	MonitorInterval *string `json:"monitor_interval,omitempty"`
}

// Empty returns a Config with every field unset, so every accessor serves
// its default.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a JSON config file. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.InterPointDelay != nil && *c.InterPointDelay != "" {
		if _, err := time.ParseDuration(*c.InterPointDelay); err != nil {
			return fmt.Errorf("invalid inter_point_delay '%s': %w", *c.InterPointDelay, err)
		}
	}
	if c.MonitorInterval != nil && *c.MonitorInterval != "" {
		if _, err := time.ParseDuration(*c.MonitorInterval); err != nil {
			return fmt.Errorf("invalid monitor_interval '%s': %w", *c.MonitorInterval, err)
		}
	}
	if c.Averages != nil && *c.Averages < 1 {
		return fmt.Errorf("averages must be at least 1, got %d", *c.Averages)
	}
	if c.Limits != nil {
		if c.Limits.MinTemperature != nil && c.Limits.MaxTemperature != nil &&
			*c.Limits.MinTemperature >= *c.Limits.MaxTemperature {
			return fmt.Errorf("min_temperature %g must be below max_temperature %g",
				*c.Limits.MinTemperature, *c.Limits.MaxTemperature)
		}
		for name, v := range map[string]*float64{
			"max_magnetic_field":        c.Limits.MaxMagneticField,
			"max_field_ramp_rate":       c.Limits.MaxFieldRampRate,
			"max_current":               c.Limits.MaxCurrent,
			"max_voltage":               c.Limits.MaxVoltage,
			"max_temperature_ramp_rate": c.Limits.MaxTempRampRate,
		} {
			if v != nil && *v <= 0 {
				return fmt.Errorf("%s must be positive, got %g", name, *v)
			}
		}
	}
	return nil
}

// SafetyLimits merges the configured overrides onto the default limits.
func (c *Config) SafetyLimits() safety.Limits {
	limits := safety.DefaultLimits()
	if c.Limits == nil {
		return limits
	}
	if v := c.Limits.MaxMagneticField; v != nil {
		limits.MaxField = *v
	}
	if v := c.Limits.MaxFieldRampRate; v != nil {
		limits.MaxFieldRampRate = *v
	}
	if v := c.Limits.MaxCurrent; v != nil {
		limits.MaxCurrent = *v
	}
	if v := c.Limits.MaxVoltage; v != nil {
		limits.MaxVoltage = *v
	}
	if v := c.Limits.MaxTemperature; v != nil {
		limits.MaxTemperature = *v
	}
	if v := c.Limits.MinTemperature; v != nil {
		limits.MinTemperature = *v
	}
	if v := c.Limits.MaxTempRampRate; v != nil {
		limits.MaxTempRampRate = *v
	}
	return limits
}

// GetDatabasePath returns the sqlite path or the default.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "cryosweep.db"
	}
	return *c.DatabasePath
}

// GetControlLoop returns the sample-stage control loop or the default.
func (c *Config) GetControlLoop() int {
	if c.ControlLoop == nil {
		return 0
	}
	return *c.ControlLoop
}

// GetAverages returns the default per-point reading count.
func (c *Config) GetAverages() int {
	if c.Averages == nil {
		return 1
	}
	return *c.Averages
}

// GetInterPointDelay parses and returns the per-point delay.
func (c *Config) GetInterPointDelay() time.Duration {
	if c.InterPointDelay == nil || *c.InterPointDelay == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.InterPointDelay)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetMonitorInterval parses and returns the background monitor cadence.
func (c *Config) GetMonitorInterval() time.Duration {
	if c.MonitorInterval == nil || *c.MonitorInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.MonitorInterval)
	if err != nil {
		return time.Second
	}
	return d
}
