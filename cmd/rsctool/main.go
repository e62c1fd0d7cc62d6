// Package main is the entry point for the rsctool CLI.
//
// This binary switches the AC power relays of RSC2 test-rig boxes and
// drives their other signals. It delegates all functionality to the
// internal/cli package, which defines cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags
// during the release process. During development, they default to "dev",
// "none", and "unknown" respectively.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shinji-kodama/rsctool/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
// They provide binary identification for the --version flag output.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Inject build-time version info into the CLI package.
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Ctrl+C cancels in-flight host requests and the delay between relay
	// steps, and stops "rsctool simulate".
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Create the root command with all subcommands registered,
	// then execute it. Execute prints errors and returns the exit code.
	rootCmd := cli.NewRootCommand()
	code := cli.Execute(ctx, rootCmd)
	stop()
	os.Exit(int(code))
}
