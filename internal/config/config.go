package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Directory DirectoryConfig `yaml:"directory"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Transport TransportConfig `yaml:"transport"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DirectoryConfig contains the first-hop server settings
type DirectoryConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Credential string `yaml:"credential"`
}

// SensorConfig contains the second-hop server settings.
// An empty Host or Credential falls back to the value named in the redirect.
type SensorConfig struct {
	Host       string `yaml:"host"`
	Credential string `yaml:"credential"`
}

// TransportConfig contains TCP dialing settings
type TransportConfig struct {
	Network          string        `yaml:"network"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`  // 0 blocks indefinitely
	WriteTimeout     time.Duration `yaml:"write_timeout"` // 0 blocks indefinitely
	MaxResponseBytes int           `yaml:"max_response_bytes"`
	SOCKS5Proxy      string        `yaml:"socks5_proxy"`
}

// ProtocolConfig contains wire format settings
type ProtocolConfig struct {
	// LegacyNewlines sends RELATIVE HUMIDITY and WIND SPEED without a trailing newline
	LegacyNewlines bool `yaml:"legacy_newlines"`
}

// ArchiveConfig contains reading archive settings
type ArchiveConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Driver          string        `yaml:"driver"` // sqlite3, godror
	DSN             string        `yaml:"dsn"`
	TableName       string        `yaml:"table_name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, console
	OutputPath string `yaml:"output_path"` // stdout, stderr, or file path
}

// PortString returns the directory port in the string form the connector expects
func (d DirectoryConfig) PortString() string {
	return strconv.Itoa(d.Port)
}

// Load reads the configuration file and overlays it on the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid and reports every problem found
func (c *Config) Validate() error {
	var err error

	if c.Directory.Host == "" {
		err = multierr.Append(err, errors.New("directory host is required"))
	}
	if c.Directory.Port <= 0 || c.Directory.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid directory port: %d", c.Directory.Port))
	}
	if c.Directory.Credential == "" {
		err = multierr.Append(err, errors.New("directory credential is required"))
	}

	switch c.Transport.Network {
	case "tcp", "tcp4", "tcp6":
	default:
		err = multierr.Append(err, fmt.Errorf("invalid transport network %q (allowed: tcp, tcp4, tcp6)", c.Transport.Network))
	}
	if c.Transport.MaxResponseBytes <= 0 {
		err = multierr.Append(err, errors.New("max response bytes must be positive"))
	}
	if c.Transport.DialTimeout < 0 || c.Transport.ReadTimeout < 0 || c.Transport.WriteTimeout < 0 {
		err = multierr.Append(err, errors.New("transport timeouts must not be negative"))
	}

	if c.Archive.Enabled {
		switch c.Archive.Driver {
		case "sqlite3", "godror":
		default:
			err = multierr.Append(err, fmt.Errorf("invalid archive driver %q (allowed: sqlite3, godror)", c.Archive.Driver))
		}
		if c.Archive.DSN == "" {
			err = multierr.Append(err, errors.New("archive dsn is required when the archive is enabled"))
		}
		if c.Archive.TableName == "" {
			err = multierr.Append(err, errors.New("archive table name is required"))
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("invalid log level %q (allowed: debug, info, warn, error)", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("invalid log format %q (allowed: json, console)", c.Logging.Format))
	}

	return err
}

// Default returns a configuration matching the deployed esmarttech servers
func Default() *Config {
	return &Config{
		Directory: DirectoryConfig{
			Host:       "main.esmarttech.com",
			Port:       47789,
			Credential: "password123",
		},
		Sensor: SensorConfig{
			Host:       "sensor.esmarttech.com",
			Credential: "sensorpass321",
		},
		Transport: TransportConfig{
			Network:          "tcp4",
			DialTimeout:      10 * time.Second,
			MaxResponseBytes: 1024,
		},
		Archive: ArchiveConfig{
			Driver:       "sqlite3",
			DSN:          "readings.db",
			TableName:    "sensor_readings",
			MaxOpenConns: 1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
		},
	}
}
