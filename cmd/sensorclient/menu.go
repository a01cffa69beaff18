package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/okamoto/esmart-sensor-client/internal/session"
	"github.com/okamoto/esmart-sensor-client/pkg/protocol"
	"github.com/spf13/cobra"
)

const quitSelection = 4

// menuCmd runs the interactive prompt loop
var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactively choose sensors to read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, cleanup, err := newReader(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		return runMenu(cmd.Context(), reader, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}

// readingSource is the part of the reader the menu needs
type readingSource interface {
	Read(ctx context.Context, q protocol.Query) (*session.Exchange, error)
}

// runMenu prompts until the user quits or input ends. A failed read is
// reported and the prompt shown again.
func runMenu(ctx context.Context, reader readingSource, in io.Reader, out, errOut io.Writer) error {
	fmt.Fprint(out, "WELCOME TO THE SENSOR NETWORK\n\n\n")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Which sensor would you like to read:\n\n")
		fmt.Fprint(out, "\t(1) Air temperature\n\t(2) Relative humidity\n\t(3) Wind speed\n\t(4) Quit Program\n\n")
		fmt.Fprint(out, "Selection: ")

		if !scanner.Scan() {
			return scanner.Err()
		}

		selection, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Fprintln(errOut, "ERROR: Invalid selection")
			continue
		}
		if selection == quitSelection {
			fmt.Fprintln(out, "GOODBYE!")
			return nil
		}

		q := protocol.Query(selection)
		if !q.Valid() {
			fmt.Fprintln(errOut, "ERROR: Invalid selection")
			continue
		}

		ex, err := reader.Read(ctx, q)
		if err != nil {
			fmt.Fprintf(errOut, "ERROR: %v\n", err)
			continue
		}

		fmt.Fprintf(out, "\n%s\n\n", ex.Reading.Describe(q))
	}
}
