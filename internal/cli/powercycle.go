// Package cli: powercycle.go implements the "rsctool power-cycle" command
// group.
//
// Power cycling runs in the box firmware: once started, the box switches
// the SUT's AC and/or DC power off and on the requested number of times,
// waiting for the SUT to boot between cycles. These commands only arm,
// inspect, resume and abort the job.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
)

// powerCycleFlags holds the flag values for "power-cycle start".
type powerCycleFlags struct {
	cycleType   string
	cycles      int
	bootTimeout time.Duration
	offTime     time.Duration
	endOffTime  time.Duration
	offTimeStep time.Duration
	acdcDelay   time.Duration
}

// params converts the flags into validated power cycling parameters.
func (f *powerCycleFlags) params() (model.PwrCycleParams, error) {
	t, err := model.ParsePwrCycleType(f.cycleType)
	if err != nil {
		return model.PwrCycleParams{}, model.WrapCLIError(model.ExitUsage, "invalid --type", err)
	}
	p := model.PwrCycleParams{
		Type:         t,
		Cycles:       f.cycles,
		BootTimeout:  f.bootTimeout,
		StartOffTime: f.offTime,
		EndOffTime:   f.endOffTime,
		OffTimeStep:  f.offTimeStep,
		ACDCDelay:    f.acdcDelay,
	}
	if err := p.Validate(); err != nil {
		return model.PwrCycleParams{}, model.WrapCLIError(model.ExitUsage, "invalid power cycling parameters", err)
	}
	return p, nil
}

// NewPowerCycleCommand creates the "power-cycle" cobra command and its
// subcommands.
func NewPowerCycleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "power-cycle",
		Aliases: []string{"pwrcycle"},
		Short:   "Run automated power cycling on the box",
		Long: `Arm, follow, resume and abort power cycling done by the box firmware.

Examples:
  rsctool power-cycle start --type ac --cycles 100 --off-time 5s --boot-timeout 3m
  rsctool power-cycle status
  rsctool power-cycle continue
  rsctool power-cycle stop`,
		Args: cobra.ArbitraryArgs,
		RunE: runGroup,
	}

	flags := &powerCycleFlags{}
	start := &cobra.Command{
		Use:   "start",
		Short: "Start power cycling",
		Long: `Start power cycling. The off time starts at --off-time and grows by
--off-time-step after every cycle until it reaches --end-off-time.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params()
			if err != nil {
				return err
			}
			return runPowerCycleStart(cmd.Context(), cmd.OutOrStdout(), params)
		},
	}
	start.Flags().StringVar(&flags.cycleType, "type", "ac", "What to cycle: ac, dc, ac-dc")
	start.Flags().IntVar(&flags.cycles, "cycles", 1, "Number of power cycles (1-65535)")
	start.Flags().DurationVar(&flags.bootTimeout, "boot-timeout", 0, "How long to wait for the SUT to boot after each cycle")
	start.Flags().DurationVar(&flags.offTime, "off-time", 5*time.Second, "Off time of the first cycle")
	start.Flags().DurationVar(&flags.endOffTime, "end-off-time", 0, "Longest off time when sweeping (0: no sweep limit)")
	start.Flags().DurationVar(&flags.offTimeStep, "off-time-step", 0, "Off time increase per cycle")
	start.Flags().DurationVar(&flags.acdcDelay, "acdc-delay", 0, "Delay between AC and DC when cycling both")
	cmd.AddCommand(start)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show power cycling progress",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPowerCycleStatus(cmd.Context(), cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Abort power cycling",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPowerCycleAction(cmd.Context(), cmd.OutOrStdout(), "stopped", (*rsc2.Box).PwrCycleStop)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "continue",
		Short: "Resume power cycling that waits for the SUT to boot",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPowerCycleAction(cmd.Context(), cmd.OutOrStdout(), "continued", (*rsc2.Box).PwrCycleContinue)
		},
	})

	return cmd
}

// powerCycleStatusJSON is the JSON output structure for power cycling
// progress.
type powerCycleStatusJSON struct {
	Box                   int    `json:"box"`
	Type                  string `json:"type"`
	InProgress            bool   `json:"inProgress"`
	RemainingCycles       int    `json:"remainingCycles"`
	OffTime               string `json:"offTime"`
	ContinueWait          string `json:"continueWait"`
	PhaseError            bool   `json:"phaseError"`
	TimedOutWaitingToBoot bool   `json:"timedOutWaitingToBoot"`
	EstimatedTotal        string `json:"estimatedTotal,omitempty"`
}

func toPowerCycleStatusJSON(box int, st model.PwrCycleStatus) powerCycleStatusJSON {
	return powerCycleStatusJSON{
		Box:                   box,
		Type:                  st.Type.String(),
		InProgress:            st.InProgress,
		RemainingCycles:       st.RemainingCycles,
		OffTime:               st.OffTime.String(),
		ContinueWait:          st.ContinueWait.String(),
		PhaseError:            st.PhaseError,
		TimedOutWaitingToBoot: st.TimedOutWaitingToBoot,
	}
}

// runPowerCycleStart arms power cycling and reports the estimated total
// duration.
func runPowerCycleStart(ctx context.Context, w io.Writer, params model.PwrCycleParams) error {
	host, box, err := openBox(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	VerboseLog("Starting %d %s power cycle(s) on box %d", params.Cycles, params.Type, box.Index())
	if err := box.PwrCycleStart(ctx, params); err != nil {
		return hostError("failed to start power cycling", err)
	}

	total, err := box.PwrCycleTotalTime(ctx)
	if err != nil {
		return hostError("failed to read the estimated cycling time", err)
	}
	status, err := box.PwrCycleStatus(ctx)
	if err != nil {
		return hostError("failed to read power cycling status", err)
	}

	if IsJSONOutput() {
		out := toPowerCycleStatusJSON(box.Index(), status)
		out.EstimatedTotal = total.String()
		printJSON(w, out)
		return nil
	}
	fmt.Fprintf(w, "Started %d %s power cycle(s) on box %d (estimated %s)\n",
		params.Cycles, params.Type, box.Index(), formatDuration(total))
	return nil
}

// runPowerCycleStatus shows the power cycling progress.
func runPowerCycleStatus(ctx context.Context, w io.Writer) error {
	host, box, err := openBox(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	status, err := box.PwrCycleStatus(ctx)
	if err != nil {
		return hostError("failed to read power cycling status", err)
	}

	printPowerCycleStatus(w, box.Index(), status)
	return nil
}

// printPowerCycleStatus outputs power cycling progress in text or JSON
// format.
func printPowerCycleStatus(w io.Writer, box int, st model.PwrCycleStatus) {
	if IsJSONOutput() {
		printJSON(w, toPowerCycleStatusJSON(box, st))
		return
	}

	state := "idle"
	if st.InProgress {
		state = "running"
	}
	fmt.Fprintf(w, "Box:               %d\n", box)
	fmt.Fprintf(w, "State:             %s\n", state)
	fmt.Fprintf(w, "Type:              %s\n", st.Type)
	fmt.Fprintf(w, "Remaining cycles:  %d\n", st.RemainingCycles)
	fmt.Fprintf(w, "Off time:          %s\n", formatDuration(st.OffTime))
	fmt.Fprintf(w, "Boot wait:         %s\n", formatDuration(st.ContinueWait))
	if st.PhaseError {
		fmt.Fprintln(w, "Warning: phase error reported by the box")
	}
	if st.TimedOutWaitingToBoot {
		fmt.Fprintln(w, "Warning: timed out waiting for the SUT to boot")
	}
}

// runPowerCycleAction runs stop or continue and prints the resulting
// status.
func runPowerCycleAction(ctx context.Context, w io.Writer, verb string, action func(*rsc2.Box, context.Context) error) error {
	host, box, err := openBox(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	if err := action(box, ctx); err != nil {
		return hostError(fmt.Sprintf("power cycling could not be %s", verb), err)
	}
	VerboseLog("Power cycling %s on box %d", verb, box.Index())

	status, err := box.PwrCycleStatus(ctx)
	if err != nil {
		return hostError("failed to read power cycling status", err)
	}
	if IsJSONOutput() {
		printJSON(w, toPowerCycleStatusJSON(box.Index(), status))
		return nil
	}
	fmt.Fprintf(w, "Power cycling %s on box %d (%d cycle(s) remaining)\n", verb, box.Index(), status.RemainingCycles)
	return nil
}
