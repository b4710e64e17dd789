package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "station.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := Empty()

	assert.Equal(t, "cryosweep.db", cfg.GetDatabasePath())
	assert.Equal(t, 0, cfg.GetControlLoop())
	assert.Equal(t, 1, cfg.GetAverages())
	assert.Equal(t, 100*time.Millisecond, cfg.GetInterPointDelay())
	assert.Equal(t, time.Second, cfg.GetMonitorInterval())

	limits := cfg.SafetyLimits()
	assert.Equal(t, 9.0, limits.MaxField)
	assert.Equal(t, 0.1, limits.MaxCurrent)
	assert.Equal(t, 0.01, limits.MinTemperature)
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{
		"magnet": {"port": "/dev/ttyUSB0", "baud_rate": 115200},
		"safety_limits": {"max_current": 0.01},
		"inter_point_delay": "250ms"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Magnet.Configured())
	assert.Equal(t, "/dev/ttyUSB0", cfg.Magnet.GetPort())
	assert.Equal(t, 115200, cfg.Magnet.GetBaudRate())
	assert.Equal(t, "\r\n", cfg.Magnet.GetTerminator())

	// unnamed instruments are simply not configured
	assert.False(t, cfg.SMU.Configured())
	assert.False(t, cfg.LockIn.Configured())

	// one override, everything else default
	limits := cfg.SafetyLimits()
	assert.Equal(t, 0.01, limits.MaxCurrent)
	assert.Equal(t, 9.0, limits.MaxField)
	assert.Equal(t, 400.0, limits.MaxTemperature)

	assert.Equal(t, 250*time.Millisecond, cfg.GetInterPointDelay())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	_, err := Load("station.yaml")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{name: "bad delay", contents: `{"inter_point_delay": "fast"}`},
		{name: "bad monitor interval", contents: `{"monitor_interval": "sometimes"}`},
		{name: "zero averages", contents: `{"averages": 0}`},
		{name: "negative current limit", contents: `{"safety_limits": {"max_current": -1}}`},
		{name: "inverted temperature window", contents: `{"safety_limits": {"min_temperature": 500, "max_temperature": 4}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.contents))
			assert.Error(t, err)
		})
	}
}

func TestNilInstrumentAccessors(t *testing.T) {
	var c *InstrumentConfig
	assert.False(t, c.Configured())
	assert.Equal(t, "", c.GetPort())
	assert.Equal(t, 9600, c.GetBaudRate())
}
