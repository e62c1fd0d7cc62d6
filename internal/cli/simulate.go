// Package cli: simulate.go implements the "rsctool simulate" command.
//
// The command serves an in-memory RSC2 host gateway so that scripts using
// rsctool can be tried without a lab PC or any boxes:
//
//	rsctool simulate --listen 127.0.0.1:7380 &
//	rsctool on
package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
	"github.com/shinji-kodama/rsctool/internal/simhost"
)

// simulateFlags holds the flag values for the simulate command.
type simulateFlags struct {
	listen string
	boxes  int
}

// NewSimulateCommand creates the "simulate" cobra command.
func NewSimulateCommand() *cobra.Command {
	flags := &simulateFlags{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a simulated RSC2 host for dry runs",
		Long: `Serve an in-memory RSC2 host gateway until interrupted.

Every simulated box starts in the standard configuration with all signals
deasserted. State is lost when the command exits.

Examples:
  rsctool simulate
  rsctool simulate --listen :9000 --boxes 2`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", net.JoinHostPort("127.0.0.1", strconv.Itoa(rsc2.DefaultPort)),
		"Address to listen on")
	cmd.Flags().IntVar(&flags.boxes, "boxes", 1, "Number of simulated boxes (0 simulates a host without boxes)")

	return cmd
}

// runSimulate serves the simulator until ctx is cancelled.
func runSimulate(ctx context.Context, w io.Writer, flags *simulateFlags) error {
	if flags.boxes < 0 {
		return model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("invalid --boxes %d: must not be negative", flags.boxes))
	}

	srv := simhost.New(flags.boxes, logger)
	err := srv.ListenAndServe(ctx, flags.listen, func(addr net.Addr) {
		logger.Info("simulated rsc2 host listening", "addr", addr.String(), "boxes", flags.boxes)
		printSimulateReady(w, addr, flags.boxes)
	})
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "simulated host failed", err)
	}
	return nil
}

// printSimulateReady announces the listening address in text or JSON
// format.
func printSimulateReady(w io.Writer, addr net.Addr, boxes int) {
	url := fmt.Sprintf("ws://%s%s", addr, rsc2.Path)
	if IsJSONOutput() {
		printJSON(w, map[string]interface{}{
			"address": url,
			"boxes":   boxes,
		})
		return
	}
	fmt.Fprintf(w, "Simulated RSC2 host with %d box(es) listening on %s\n", boxes, url)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
}
