// Package cli: power.go implements the "rsctool on" and "rsctool off"
// commands.
//
// Both commands switch the box's AC power relays in order (AC_1, then
// AC_2, or the relays listed in the config file), waiting the settle delay
// after each one. The first failure stops the sequence; relays that were
// already switched are left in their new state.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/relay"
)

// NewOnCommand creates the "on" cobra command.
func NewOnCommand() *cobra.Command {
	return newPowerCommand("on", model.ACOn, "Switch both AC power relays on")
}

// NewOffCommand creates the "off" cobra command.
func NewOffCommand() *cobra.Command {
	return newPowerCommand("off", model.ACOff, "Switch both AC power relays off")
}

func newPowerCommand(use string, state model.SignalState, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

The relays are switched one after another (AC_1 first, then AC_2) with
the settle delay (--delay, default 1ms) after each. If a relay fails the
command stops immediately; relays already switched are not restored.

Examples:
  rsctool ` + use + `
  rsctool ` + use + ` --host lab-pc-07 --box 1
  rsctool ` + use + ` --delay 2s --json`,

		// The action takes no further arguments.
		Args: usageArgs(cobra.NoArgs),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPower(cmd.Context(), cmd.OutOrStdout(), state)
		},
	}
}

// powerStepResult describes one relay step in the command output.
type powerStepResult struct {
	Signal string `json:"signal"`
	State  string `json:"state"`
}

// powerResult is the outcome of an on/off run.
type powerResult struct {
	Action string            `json:"action"`
	Host   string            `json:"host"`
	Box    int               `json:"box"`
	Boxes  int               `json:"boxes"`
	Steps  []powerStepResult `json:"steps"`
}

// runPower is the main logic function for the on and off commands.
func runPower(ctx context.Context, w io.Writer, state model.SignalState) error {
	text := !IsJSONOutput()
	action := state.Label(model.TypeACPort)

	// Step 1: Build and validate the relay sequence before touching the
	// network so a bad relay list in the config fails fast.
	seq := relay.ACPowerFor(settings.Relays, state, settings.Delay)
	if err := seq.Validate(); err != nil {
		return model.WrapCLIError(model.ExitUsage, "invalid relay configuration", err)
	}
	if text {
		fmt.Fprintln(w, "rsc2 init done")
	}

	// Step 2: Connect to the host.
	host, err := connectHost(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	// Step 3: Make sure a box is attached and select it.
	box, n, err := selectBox(ctx, host, true)
	if n > 0 && text {
		fmt.Fprintf(w, "%d rsc2 connected to host\n", n)
	}
	if err != nil {
		return err
	}

	// Step 4: Switch the relays. Signal handles resolve locally; the host
	// is only contacted when a state is set.
	resolver := relay.ResolverFunc(func(id model.SignalID) (relay.Switch, error) {
		sig, err := box.Signal(id)
		if err != nil {
			return nil, err
		}
		return sig, nil
	})
	progress := func(_ int, step relay.Step) {
		if !text {
			return
		}
		if step.Message == "" {
			fmt.Fprintf(w, "set %s\n", step)
			return
		}
		fmt.Fprintln(w, step.Message)
	}

	done, err := relay.Run(ctx, resolver, seq, progress, logger.With("box", box.Index()))
	if err != nil {
		return powerError(err)
	}
	VerboseLog("Switched %d relay(s) %s", done, action)

	// Step 5: Output the result.
	result := powerResult{
		Action: action,
		Host:   host.Address(),
		Box:    box.Index(),
		Boxes:  n,
		Steps:  make([]powerStepResult, 0, len(seq.Steps)),
	}
	for _, step := range seq.Steps {
		result.Steps = append(result.Steps, powerStepResult{
			Signal: step.Signal.String(),
			State:  action,
		})
	}
	printPowerResult(w, result)
	return nil
}

// powerError reports a failed relay step with the host's error text.
// Host rejections that carry no more specific code exit with
// ExitSignalFailed.
func powerError(err error) error {
	if errors.Is(err, context.Canceled) {
		return model.WrapCLIError(model.ExitGeneralError, "interrupted", err)
	}

	wrapped := hostError("press button failed", err)
	var cliErr *model.CLIError
	if errors.As(wrapped, &cliErr) && cliErr.Code == model.ExitGeneralError {
		cliErr.Code = model.ExitSignalFailed
	}
	return wrapped
}

// printPowerResult outputs the on/off result in text or JSON format.
func printPowerResult(w io.Writer, result powerResult) {
	if IsJSONOutput() {
		printJSON(w, result)
		return
	}
	fmt.Fprintf(w, "Box %d: AC power %s\n", result.Box, result.Action)
}
