package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
)

// connectHost opens a connection to the configured RSC2 host.
// Connect already returns a CLIError with ExitHostUnreachable on failure.
func connectHost(ctx context.Context) (*rsc2.Host, error) {
	VerboseLog("Connecting to RSC2 host %s (port %d)", settings.Host, settings.Port)

	host, err := rsc2.Connect(ctx, settings.Host, rsc2.Options{
		Port:        settings.Port,
		CallTimeout: settings.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	VerboseLog("Connected to %s (%s)", host.Address(), host.Server().Server)
	return host, nil
}

// selectBox verifies that the host has at least one box and returns the
// handle of the configured box together with the number of boxes.
//
// When mutating is set and --contact is given the box is locked as that
// contact first, which makes this connection a lock holder and allows it
// to change the box. Reads never lock: the lock outlives the connection.
func selectBox(ctx context.Context, host *rsc2.Host, mutating bool) (*rsc2.Box, int, error) {
	n, err := host.NumBoxes(ctx)
	if err != nil {
		return nil, 0, hostError("failed to list boxes", err)
	}
	if n == 0 {
		return nil, 0, model.NewCLIError(model.ExitNoBox, "no rsc2 connected to the host")
	}
	if settings.Box >= n {
		return nil, n, model.NewCLIError(model.ExitNoBox,
			fmt.Sprintf("box %d not found: the host has %d box(es)", settings.Box, n))
	}

	box := host.Box(settings.Box)
	if mutating && contactFlag != "" {
		VerboseLog("Locking box %d as %q", settings.Box, contactFlag)
		if err := box.Lock(ctx, contactFlag); err != nil {
			return nil, n, hostError(fmt.Sprintf("failed to lock box %d", settings.Box), err)
		}
	}
	return box, n, nil
}

// openBox connects and selects the configured box. Commands that change
// the box pass mutating. The caller closes the returned host.
func openBox(ctx context.Context, mutating bool) (*rsc2.Host, *rsc2.Box, error) {
	host, err := connectHost(ctx)
	if err != nil {
		return nil, nil, err
	}
	box, _, err := selectBox(ctx, host, mutating)
	if err != nil {
		_ = host.Close()
		return nil, nil, err
	}
	return host, box, nil
}

// hostError converts a failed host request into a CLIError whose exit
// code follows the host's result code. The host's error text is kept as
// the detail.
func hostError(message string, err error) error {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	return model.WrapCLIError(rsc2.ResultOf(err).ExitCode(), message, err)
}
