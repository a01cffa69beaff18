package main

import (
	"context"
	"fmt"

	"github.com/okamoto/esmart-sensor-client/internal/archive"
	"github.com/okamoto/esmart-sensor-client/internal/config"
	"github.com/okamoto/esmart-sensor-client/internal/logging"
	"github.com/okamoto/esmart-sensor-client/internal/service"
	"github.com/okamoto/esmart-sensor-client/internal/session"
	"github.com/okamoto/esmart-sensor-client/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:          "sensorclient",
	Short:        "Read the esmarttech sensor network",
	Long:         `Reads air temperature, relative humidity and wind speed from the esmarttech directory and sensor servers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
		}

		logger, err = logging.New(&cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
}

// newReader wires the connector, session and optional archive from the loaded configuration.
// The returned cleanup closes the archive.
func newReader(ctx context.Context) (*service.Reader, func(), error) {
	connector, err := transport.NewTCPConnector(&cfg.Transport, logger)
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(cfg, connector, logger)

	if !cfg.Archive.Enabled {
		return service.NewReader(sess, nil, logger), func() {}, nil
	}

	store, err := archive.Open(&cfg.Archive, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close archive", zap.Error(err))
		}
	}
	return service.NewReader(sess, store, logger), cleanup, nil
}
