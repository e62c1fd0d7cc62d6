// Package cli: signal.go implements the "rsctool signal" command group.
//
// Signals are the addressable lines of a box: front panel buttons,
// jumpers, LEDs, auxiliary GPIOs and the two AC relays. A signal can be
// named by its assigned name (AC_1), its generic name (OUT_3), its numeric
// ID, or the user defined name given with "signal rename".
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
)

// NewSignalCommand creates the "signal" cobra command and its subcommands.
func NewSignalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Inspect and drive the signals of a box",
		Long: `Inspect and drive the signals (buttons, jumpers, LEDs, GPIOs and AC
relays) of the selected box.

Examples:
  rsctool signal list
  rsctool signal status LED_PWR
  rsctool signal assert FPBUT_PWR
  rsctool signal set AC_1 off
  rsctool signal rename OUT_AUX_A fan-control`,
		Args: cobra.ArbitraryArgs,
		RunE: runGroup,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all signals of the box with their state",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignalList(cmd.Context(), cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <signal>",
		Short: "Show the state of one signal",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignalStatus(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	})

	cmd.AddCommand(newSignalSetCommand("assert <signal>", "Assert a signal", model.StateAsserted))
	cmd.AddCommand(newSignalSetCommand("deassert <signal>", "Deassert a signal", model.StateDeasserted))

	cmd.AddCommand(&cobra.Command{
		Use:   "set <signal> <state>",
		Short: "Set a signal to a state (on, off, pressed, released, ...)",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := model.ParseSignalState(args[1])
			if err != nil {
				return model.WrapCLIError(model.ExitUsage, "invalid state", err)
			}
			return runSignalUpdate(cmd.Context(), cmd.OutOrStdout(), args[0], func(ctx context.Context, sig *rsc2.Signal) error {
				return sig.SetState(ctx, state)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <signal> <name>",
		Short: "Give a signal a user defined name",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[1]) == "" {
				return model.NewCLIError(model.ExitUsage, "signal name must not be empty")
			}
			return runSignalUpdate(cmd.Context(), cmd.OutOrStdout(), args[0], func(ctx context.Context, sig *rsc2.Signal) error {
				return sig.SetName(ctx, args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-type <signal> <gpio|jumper|button|ac-port|led>",
		Short: "Change how a signal is presented",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := model.ParseSignalType(args[1])
			if err != nil {
				return model.WrapCLIError(model.ExitUsage, "invalid signal type", err)
			}
			return runSignalUpdate(cmd.Context(), cmd.OutOrStdout(), args[0], func(ctx context.Context, sig *rsc2.Signal) error {
				return sig.SetType(ctx, t)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-assertion <signal> <active-high|active-low>",
		Short: "Change how the electrical level maps to the signal state",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := model.ParseAssertionType(args[1])
			if err != nil {
				return model.WrapCLIError(model.ExitUsage, "invalid assertion type", err)
			}
			return runSignalUpdate(cmd.Context(), cmd.OutOrStdout(), args[0], func(ctx context.Context, sig *rsc2.Signal) error {
				return sig.SetAssertionType(ctx, a)
			})
		},
	})

	return cmd
}

func newSignalSetCommand(use, short string, state model.SignalState) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignalUpdate(cmd.Context(), cmd.OutOrStdout(), args[0], func(ctx context.Context, sig *rsc2.Signal) error {
				return sig.SetState(ctx, state)
			})
		},
	}
}

// signalJSON is the JSON output structure for a single signal.
type signalJSON struct {
	ID            int    `json:"id"`
	Signal        string `json:"signal"`
	Name          string `json:"name"`
	GenericName   string `json:"genericName"`
	Type          string `json:"type"`
	AssertionType string `json:"assertionType"`
	State         string `json:"state"`
	Asserted      bool   `json:"asserted"`
	Output        bool   `json:"output"`
}

func toSignalJSON(info model.SignalInfo) signalJSON {
	return signalJSON{
		ID:            int(info.ID),
		Signal:        info.ID.String(),
		Name:          info.Name,
		GenericName:   info.GenericName,
		Type:          info.Type.String(),
		AssertionType: info.AssertionType.String(),
		State:         info.StateLabel(),
		Asserted:      info.State == model.StateAsserted,
		Output:        info.ID.IsOutput(),
	}
}

// resolveSignal turns a user supplied reference into a signal handle.
// Assigned names, generic names and IDs resolve locally; anything else is
// matched against the user defined names reported by the host.
func resolveSignal(ctx context.Context, box *rsc2.Box, ref string) (*rsc2.Signal, error) {
	id, parseErr := model.ParseSignalID(ref)
	if parseErr != nil {
		signals, err := box.Signals(ctx)
		if err != nil {
			return nil, hostError("failed to list signals", err)
		}
		found := false
		for _, info := range signals {
			if strings.EqualFold(info.Name, strings.TrimSpace(ref)) {
				id, found = info.ID, true
				break
			}
		}
		if !found {
			return nil, model.WrapCLIError(model.ExitUsage, "unknown signal", parseErr)
		}
	}

	sig, err := box.Signal(id)
	if err != nil {
		return nil, hostError("unknown signal", err)
	}
	VerboseLog("Resolved %q to %s", ref, sig)
	return sig, nil
}

// runSignalList lists every signal of the selected box.
func runSignalList(ctx context.Context, w io.Writer) error {
	host, box, err := openBox(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	signals, err := box.Signals(ctx)
	if err != nil {
		return hostError("failed to list signals", err)
	}

	printSignalList(w, signals)
	return nil
}

// printSignalList outputs the signal list in text or JSON format.
//
// The table format is:
//
//	ID  SIGNAL     NAME       GENERIC  TYPE     ASSERTION    STATE
//	16  AC_1       AC_1       AC_1     ac-port  active-high  on
func printSignalList(w io.Writer, signals []model.SignalInfo) {
	if IsJSONOutput() {
		result := struct {
			Signals []signalJSON `json:"signals"`
		}{Signals: make([]signalJSON, 0, len(signals))}
		for _, s := range signals {
			result.Signals = append(result.Signals, toSignalJSON(s))
		}
		printJSON(w, result)
		return
	}

	fmt.Fprintf(w, "%-3s %-18s %-18s %-8s %-8s %-12s %s\n",
		"ID", "SIGNAL", "NAME", "GENERIC", "TYPE", "ASSERTION", "STATE")
	for _, s := range signals {
		name := s.Name
		if name == s.ID.String() {
			name = "-"
		}
		fmt.Fprintf(w, "%-3d %-18s %-18s %-8s %-8s %-12s %s\n",
			int(s.ID),
			s.ID.String(),
			name,
			s.GenericName,
			s.Type.String(),
			s.AssertionType.String(),
			s.StateLabel(),
		)
	}
}

// runSignalStatus shows one signal.
func runSignalStatus(ctx context.Context, w io.Writer, ref string) error {
	host, box, err := openBox(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	sig, err := resolveSignal(ctx, box, ref)
	if err != nil {
		return err
	}
	info, err := sig.Info(ctx)
	if err != nil {
		return hostError(fmt.Sprintf("failed to read signal %s", sig), err)
	}

	printSignal(w, info)
	return nil
}

// runSignalUpdate applies one change to a signal and prints its state
// afterwards.
func runSignalUpdate(ctx context.Context, w io.Writer, ref string, apply func(context.Context, *rsc2.Signal) error) error {
	host, box, err := openBox(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	sig, err := resolveSignal(ctx, box, ref)
	if err != nil {
		return err
	}
	if err := apply(ctx, sig); err != nil {
		return hostError(fmt.Sprintf("failed to update signal %s", sig), err)
	}

	info, err := sig.Info(ctx)
	if err != nil {
		return hostError(fmt.Sprintf("failed to read signal %s", sig), err)
	}
	printSignal(w, info)
	return nil
}

// printSignal outputs one signal in text or JSON format.
func printSignal(w io.Writer, info model.SignalInfo) {
	if IsJSONOutput() {
		printJSON(w, toSignalJSON(info))
		return
	}
	label := info.ID.String()
	if info.Name != "" && info.Name != label {
		label = fmt.Sprintf("%s (%s)", info.Name, label)
	}
	fmt.Fprintf(w, "%s: %s [%s, %s]\n", label, info.StateLabel(), info.Type, info.AssertionType)
}
