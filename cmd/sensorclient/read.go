package main

import (
	"fmt"

	"github.com/okamoto/esmart-sensor-client/pkg/protocol"
	"github.com/spf13/cobra"
)

// readCmd fetches a single reading
var readCmd = &cobra.Command{
	Use:       "read <air-temperature|relative-humidity|wind-speed>",
	Short:     "Fetch the latest reading for one sensor",
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

		ex, err := reader.Read(cmd.Context(), q)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ex.Reading.Describe(q))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}

func querySlugs() []string {
	var slugs []string
	for _, q := range protocol.Queries() {
		slugs = append(slugs, q.Slug())
	}
	return slugs
}
