package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", `
cloud:
  email: user@example.com
  password: hunter2
  poll_interval_seconds: 30
mqtt:
  enabled: true
  broker_url: tcp://broker:1883
http:
  addr: ":9000"
`)

	cfg, err := Load(path, "debug")
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.Cloud.Email)
	assert.Equal(t, 30, cfg.Cloud.PollIntervalSeconds)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)

	// Defaults fill the rest.
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	assert.Equal(t, "cala2mqtt", cfg.MQTT.BaseTopic)
	assert.Equal(t, 300, cfg.Cloud.DailySummaryTTLSecs)
	assert.Equal(t, 4, cfg.BoostDurationHours)
	assert.Equal(t, 7, cfg.VacationDurationDays)
}

func TestLoadJSON(t *testing.T) {
	path := writeTempConfig(t, "config.json", `{
		"cloud": {"email": "a@b.c", "password": "pw"}
	}`)

	cfg, err := Load(path, "info")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Cloud.PollIntervalSeconds)
	assert.Equal(t, "data/cala.db", cfg.DBFile)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeTempConfig(t, "config.toml", "")
	_, err := Load(path, "info")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CALA_EMAIL", "env@example.com")
	t.Setenv("CALA_PASSWORD", "envpw")
	t.Setenv("CALA_MQTT_BROKER", "tcp://env:1883")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "info")
	require.NoError(t, err)
	assert.Equal(t, "env@example.com", cfg.Cloud.Email)
	assert.Equal(t, "envpw", cfg.Cloud.Password)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.BrokerURL)
}

func TestDefaultsEnableSurfaces(t *testing.T) {
	t.Setenv("CALA_EMAIL", "env@example.com")
	t.Setenv("CALA_PASSWORD", "envpw")

	// A minimal config must still bring up MQTT, the REST API, and the
	// websocket stream.
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "info")
	require.NoError(t, err)
	assert.True(t, *cfg.MQTT.Enabled)
	assert.True(t, *cfg.HTTP.Enabled)
	assert.True(t, *cfg.HTTP.EnableWebsocket)
}

func TestExplicitDisableRespected(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", `
cloud:
  email: user@example.com
  password: hunter2
mqtt:
  enabled: false
http:
  enabled: false
  enable_websocket: false
`)

	cfg, err := Load(path, "info")
	require.NoError(t, err)
	assert.False(t, *cfg.MQTT.Enabled)
	assert.False(t, *cfg.HTTP.Enabled)
	assert.False(t, *cfg.HTTP.EnableWebsocket)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{
			name:     "missing credentials",
			contents: `{"cloud": {}}`,
		},
		{
			name:     "poll interval too short",
			contents: `{"cloud": {"email": "a@b.c", "password": "pw", "poll_interval_seconds": 5}}`,
		},
		{
			name:     "boost duration out of range",
			contents: `{"cloud": {"email": "a@b.c", "password": "pw"}, "boost_duration_hours": 48}`,
		},
		{
			name:     "vacation duration out of range",
			contents: `{"cloud": {"email": "a@b.c", "password": "pw"}, "vacation_duration_days": 365}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, "config.json", tt.contents)
			_, err := Load(path, "info")
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLogLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLogLevel("anything-else"))
}
