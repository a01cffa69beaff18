package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/okamoto/esmart-sensor-client/internal/sensorsim"
	"github.com/spf13/cobra"
)

var simConfig = sensorsim.DefaultConfig()

// simulateCmd serves a local directory and sensor server pair
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a local directory and sensor server for development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim := sensorsim.NewServer(simConfig, logger)
		if err := sim.Start(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		return sim.Stop()
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	f := simulateCmd.Flags()
	f.StringVar(&simConfig.Host, "host", simConfig.Host, "Listen address")
	f.IntVar(&simConfig.DirectoryPort, "directory-port", 47789, "Directory server port")
	f.IntVar(&simConfig.SensorPort, "sensor-port", 0, "Sensor server port (0 picks a free port)")
	f.StringVar(&simConfig.AdvertisedHost, "advertised-host", simConfig.AdvertisedHost, "Sensor host named in redirects")
	f.StringVar(&simConfig.DirectoryCredential, "directory-credential", simConfig.DirectoryCredential, "Accepted directory credential")
	f.StringVar(&simConfig.SensorCredential, "sensor-credential", simConfig.SensorCredential, "Accepted sensor credential")
}
