package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "main.esmarttech.com", cfg.Directory.Host)
	assert.Equal(t, 47789, cfg.Directory.Port)
	assert.Equal(t, "47789", cfg.Directory.PortString())
	assert.Equal(t, "sensor.esmarttech.com", cfg.Sensor.Host)
	assert.Equal(t, "tcp4", cfg.Transport.Network)
	assert.Equal(t, 1024, cfg.Transport.MaxResponseBytes)
	assert.False(t, cfg.Protocol.LegacyNewlines)
	assert.False(t, cfg.Archive.Enabled)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
directory:
  host: 127.0.0.1
  port: 9000
sensor:
  host: ""
transport:
  read_timeout: 5s
protocol:
  legacy_newlines: true
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Directory.Host)
	assert.Equal(t, 9000, cfg.Directory.Port)
	assert.Equal(t, "password123", cfg.Directory.Credential)
	assert.Equal(t, "", cfg.Sensor.Host)
	assert.Equal(t, "sensorpass321", cfg.Sensor.Credential)
	assert.Equal(t, 5*time.Second, cfg.Transport.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Transport.DialTimeout)
	assert.True(t, cfg.Protocol.LegacyNewlines)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("directory: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Directory.Host = ""
	cfg.Directory.Port = 0
	cfg.Transport.Network = "udp"
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.ErrorContains(t, err, "directory host is required")
	assert.ErrorContains(t, err, "invalid directory port: 0")
	assert.ErrorContains(t, err, `invalid transport network "udp"`)
	assert.ErrorContains(t, err, `invalid log level "verbose"`)
}

func TestValidate_Archive(t *testing.T) {
	cfg := Default()
	cfg.Archive.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Archive.Driver = "postgres"
	cfg.Archive.DSN = ""
	err := cfg.Validate()
	assert.ErrorContains(t, err, `invalid archive driver "postgres"`)
	assert.ErrorContains(t, err, "archive dsn is required")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("directory:\n  port: 47790\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 47790, cfg.Directory.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
