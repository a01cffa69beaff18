package main

import (
	"fmt"
	"time"

	"github.com/okamoto/esmart-sensor-client/pkg/protocol"
	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd prints archived readings
var historyCmd = &cobra.Command{
	Use:       "history <air-temperature|relative-humidity|wind-speed>",
	Short:     "List archived readings for one sensor",
	Args:      cobra.ExactArgs(1),
	ValidArgs: querySlugs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := protocol.ParseQuery(args[0])
		if err != nil {
			return err
		}

		reader, cleanup, err := newReader(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		records, err := reader.History(cmd.Context(), q, historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, rec := range records {
			fmt.Fprintf(out, "%s\t%d %s\n", time.Unix(rec.ReadAt, 0).Format(time.ANSIC), rec.Value, rec.Unit)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of readings to list")
}
