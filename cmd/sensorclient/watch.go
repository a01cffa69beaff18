package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okamoto/esmart-sensor-client/internal/service"
	"github.com/okamoto/esmart-sensor-client/pkg/protocol"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchInterval time.Duration

// watchCmd polls one sensor until interrupted
var watchCmd = &cobra.Command{
	Use:       "watch <air-temperature|relative-humidity|wind-speed>",
	Short:     "Poll one sensor at a fixed interval",
	Args:      cobra.ExactArgs(1),
	ValidArgs: querySlugs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := protocol.ParseQuery(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reader, cleanup, err := newReader(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		err = reader.Watch(ctx, q, watchInterval, func(res *service.Result) {
			if res.Error != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", res.Error)
				return
			}
			fmt.Fprintln(out, res.Exchange.Reading.Describe(q))
		})

		stats := reader.Stats()
		logger.Info("watch stopped",
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
			zap.Int("archived", stats.Archived))

		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", time.Minute, "Time between polls")
}
