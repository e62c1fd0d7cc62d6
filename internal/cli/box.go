// Package cli: box.go implements the "rsctool box" command group.
//
// The subcommands inspect the boxes attached to a host and change the
// per-box settings kept by the host: the user label, the paired KVM
// address, the lock, and the USB MUX routing.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
)

// NewBoxCommand creates the "box" cobra command and its subcommands.
func NewBoxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "box",
		Short: "Inspect and configure RSC2 boxes",
		Long: `Inspect the boxes attached to the host and change their settings.

The box is selected with --box (default 0).

Examples:
  rsctool box list
  rsctool box info --box 1
  rsctool box lock "alice@lab"
  rsctool box usb-mux sut --contact "alice@lab"`,
		Args: cobra.ArbitraryArgs,
		RunE: runGroup,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the boxes attached to the host",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoxList(cmd.Context(), cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show the properties of the selected box",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoxInfo(cmd.Context(), cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "lock <contact>",
		Short: "Lock the box so that only the given contact can change it",
		Long: `Lock the box. While it is locked, changes from anyone who has not
locked it with the same contact (see --contact) are rejected.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoxUpdate(cmd.Context(), cmd.OutOrStdout(), "locked", func(ctx context.Context, box *rsc2.Box) error {
				return box.Lock(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unlock",
		Short: "Release the box lock",
		Long: `Release the box lock. A box locked by someone else can only be
unlocked with --contact set to the lock holder's contact.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoxUpdate(cmd.Context(), cmd.OutOrStdout(), "unlocked", func(ctx context.Context, box *rsc2.Box) error {
				return box.Unlock(ctx)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "label <text>",
		Short: "Set the user label of the box",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoxUpdate(cmd.Context(), cmd.OutOrStdout(), "labelled", func(ctx context.Context, box *rsc2.Box) error {
				return box.SetUserLabel(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "kvm <address>",
		Short: "Record the address of the KVM paired with the box",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoxUpdate(cmd.Context(), cmd.OutOrStdout(), "updated", func(ctx context.Context, box *rsc2.Box) error {
				return box.SetKvmAddress(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "usb-mux <host|sut|disconnected|disabled>",
		Short: "Route the box's USB MUX",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := model.ParseUsbMuxState(args[0])
			if err != nil {
				return model.WrapCLIError(model.ExitUsage, "invalid USB MUX state", err)
			}
			return runBoxUpdate(cmd.Context(), cmd.OutOrStdout(), "updated", func(ctx context.Context, box *rsc2.Box) error {
				return box.SetUsbMux(ctx, state)
			})
		},
	})

	return cmd
}

// boxJSON is the JSON output structure for a single box.
type boxJSON struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	UserLabel   string `json:"userLabel"`
	KvmAddress  string `json:"kvmAddress"`
	LockHolder  string `json:"lockHolder"`
	Status      string `json:"status"`
	UsbMux      string `json:"usbMux"`
}

func toBoxJSON(info model.BoxInfo) boxJSON {
	return boxJSON{
		Index:       info.Index,
		Description: info.Description,
		UserLabel:   info.UserLabel,
		KvmAddress:  info.KvmAddress,
		LockHolder:  info.LockHolder,
		Status:      info.Status.String(),
		UsbMux:      info.UsbMux.String(),
	}
}

// runBoxList lists every box attached to the host.
func runBoxList(ctx context.Context, w io.Writer) error {
	host, err := connectHost(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	boxes, err := host.Boxes(ctx)
	if err != nil {
		return hostError("failed to list boxes", err)
	}
	VerboseLog("Host reports %d box(es)", len(boxes))

	printBoxList(w, boxes)
	return nil
}

// printBoxList outputs the box list in text or JSON format.
//
// The table format is:
//
//	INDEX  STATUS     USB MUX  LOCKED BY  LABEL      DESCRIPTION
//	0      available  host     -          bench-3    RSC2 unit #0
func printBoxList(w io.Writer, boxes []model.BoxInfo) {
	if IsJSONOutput() {
		result := struct {
			Boxes []boxJSON `json:"boxes"`
		}{Boxes: make([]boxJSON, 0, len(boxes))}
		for _, b := range boxes {
			result.Boxes = append(result.Boxes, toBoxJSON(b))
		}
		printJSON(w, result)
		return
	}

	if len(boxes) == 0 {
		fmt.Fprintln(w, "No RSC2 boxes connected to the host.")
		return
	}

	fmt.Fprintf(w, "%-6s %-10s %-13s %-16s %-16s %s\n",
		"INDEX", "STATUS", "USB MUX", "LOCKED BY", "LABEL", "DESCRIPTION")
	for _, b := range boxes {
		fmt.Fprintf(w, "%-6d %-10s %-13s %-16s %-16s %s\n",
			b.Index,
			b.Status.String(),
			b.UsbMux.String(),
			dash(b.LockHolder),
			dash(b.UserLabel),
			b.Description,
		)
	}
}

// runBoxInfo shows the properties of the selected box.
func runBoxInfo(ctx context.Context, w io.Writer) error {
	host, box, err := openBox(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	info, err := box.Info(ctx)
	if err != nil {
		return hostError(fmt.Sprintf("failed to read box %d", box.Index()), err)
	}

	printBoxInfo(w, info)
	return nil
}

// printBoxInfo outputs one box's properties in text or JSON format.
func printBoxInfo(w io.Writer, info model.BoxInfo) {
	if IsJSONOutput() {
		printJSON(w, toBoxJSON(info))
		return
	}
	fmt.Fprintf(w, "Box:          %d\n", info.Index)
	fmt.Fprintf(w, "Description:  %s\n", info.Description)
	fmt.Fprintf(w, "Status:       %s\n", info.Status)
	fmt.Fprintf(w, "Label:        %s\n", dash(info.UserLabel))
	fmt.Fprintf(w, "KVM address:  %s\n", dash(info.KvmAddress))
	fmt.Fprintf(w, "Locked by:    %s\n", dash(info.LockHolder))
	fmt.Fprintf(w, "USB MUX:      %s\n", info.UsbMux)
}

// runBoxUpdate applies one change to the selected box. JSON output carries
// the box's properties after the change.
func runBoxUpdate(ctx context.Context, w io.Writer, verb string, apply func(context.Context, *rsc2.Box) error) error {
	host, box, err := openBox(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	if err := apply(ctx, box); err != nil {
		return hostError(fmt.Sprintf("failed to update box %d", box.Index()), err)
	}
	VerboseLog("Box %d %s", box.Index(), verb)

	info, err := box.Info(ctx)
	if err != nil {
		return hostError(fmt.Sprintf("failed to read box %d", box.Index()), err)
	}

	if IsJSONOutput() {
		printJSON(w, toBoxJSON(info))
		return nil
	}
	fmt.Fprintf(w, "Box %d %s\n", info.Index, verb)
	return nil
}

// dash returns s, or "-" when s is empty.
func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
