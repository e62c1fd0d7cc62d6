// Package cli implements the cobra-based CLI commands for rsctool.
//
// The relay action (on, off) and each command group (box, signal,
// power-cycle, simulate) are defined in their own file within this package.
// This file defines the root command that serves as the parent for all
// subcommands, resolves the global settings, and maps errors to exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/rsctool/internal/config"
	"github.com/shinji-kodama/rsctool/internal/logging"
	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose forces debug logging on stderr.
	verbose bool

	// logLevel is the minimum level of log records written to stderr.
	logLevel string

	// configPath names an explicit config file. Empty means the default
	// location under the user config directory.
	configPath string

	// Connection and relay flags. They only override the config file and
	// environment when set on the command line.
	hostFlag    string
	portFlag    int
	boxFlag     int
	delayFlag   string
	timeoutFlag string
	contactFlag string
)

// settings holds the resolved configuration of the running command.
// It is filled in by setup before any RunE executes.
var settings = config.Defaults()

// logger is the structured logger of the running command.
var logger = slog.New(slog.DiscardHandler)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// Invoked without a subcommand the root command prints a usage error:
// rsctool always needs an action.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rsctool <on|off>",
		Short: "Switch the AC power relays of an RSC2 test-rig box",
		Long: `rsctool controls RSC2 boxes attached to an RSC2 host.

The main actions switch both AC power relays of a box, AC_1 first and
AC_2 second, with a settle delay after each:

  rsctool on
  rsctool off

Further commands inspect and drive the box's other signals (buttons,
jumpers, LEDs), its lock and USB MUX, and automated power cycling.`,

		// Any argument that is not a subcommand lands here and is reported
		// as an unknown action.
		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return model.NewCLIError(model.ExitUsage,
					"missing action: expected \"on\" or \"off\" (see rsctool --help)")
			}
			return model.NewCLIError(model.ExitUsage,
				fmt.Sprintf("invalid action %q, only on or off is supported", args[0]))
		},

		// PersistentPreRunE runs before every subcommand and resolves the
		// settings from flags, environment, and config file.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	// Only help and --version exit 0 without an action; there is no
	// completion command.
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logging)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warning, error (default: warning)")
	flags.StringVar(&configPath, "config", "", "Config file (default: <user config dir>/rsctool/config.yaml)")
	flags.StringVarP(&hostFlag, "host", "H", "", "RSC2 host name, address or ws:// URL (default: localhost)")
	flags.IntVar(&portFlag, "port", 0, "RSC2 host gateway port (default: 7380)")
	flags.IntVar(&boxFlag, "box", 0, "Index of the box to use")
	flags.StringVar(&delayFlag, "delay", "", "Settle delay after each relay step, e.g. 1s or 500ms (default: 1ms)")
	flags.StringVar(&timeoutFlag, "timeout", "", "Timeout for each host request (default: 10s)")
	flags.StringVar(&contactFlag, "contact", "", "Lock the box as this contact before changing it")

	// Flag parse errors are usage errors.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return model.WrapCLIError(model.ExitUsage, "invalid flag", err)
	})

	// Register subcommands. Each subcommand is defined in its own file
	// (power.go, box.go, etc.) and returns a *cobra.Command.
	rootCmd.AddCommand(NewOnCommand())
	rootCmd.AddCommand(NewOffCommand())
	rootCmd.AddCommand(NewBoxCommand())
	rootCmd.AddCommand(NewSignalCommand())
	rootCmd.AddCommand(NewPowerCycleCommand())
	rootCmd.AddCommand(NewSimulateCommand())

	return rootCmd
}

// setup resolves the settings for the command about to run.
// Precedence: flags > environment (.env included) > config file > defaults.
func setup(cmd *cobra.Command) error {
	// Step 1: Seed the environment from ./.env. A missing file is fine.
	if err := config.LoadDotEnv(".env"); err != nil {
		return model.WrapCLIError(model.ExitUsage, "failed to load .env", err)
	}

	// Step 2: Config file, then environment, over the defaults.
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}
	s, err := config.Resolve(file, os.LookupEnv)
	if err != nil {
		return err
	}

	// Step 3: Flags set on the command line win.
	if err := applyFlags(cmd, &s); err != nil {
		return err
	}
	settings = s

	// Step 4: Logging.
	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return model.WrapCLIError(model.ExitUsage, "invalid log level", err)
	}
	if verbose {
		level = slog.LevelDebug
	}
	mode := logging.ModeCLI
	if jsonOutput {
		mode = logging.ModeJSON
	}
	logger = logging.New(mode, cmd.ErrOrStderr(), level)

	if file.Path != "" {
		VerboseLog("Loaded config from %s", file.Path)
	}
	return nil
}

// applyFlags copies the connection flags that were set explicitly.
func applyFlags(cmd *cobra.Command, s *config.Settings) error {
	changed := cmd.Flags().Changed

	if changed("host") {
		s.Host = hostFlag
	}
	if changed("port") {
		if portFlag < 1 || portFlag > 65535 {
			return model.NewCLIError(model.ExitUsage,
				fmt.Sprintf("invalid --port %d: must be between 1 and 65535", portFlag))
		}
		s.Port = portFlag
	}
	if changed("box") {
		if boxFlag < 0 {
			return model.NewCLIError(model.ExitUsage,
				fmt.Sprintf("invalid --box %d: must not be negative", boxFlag))
		}
		s.Box = boxFlag
	}
	if changed("delay") {
		d, err := config.ParseDuration(delayFlag)
		if err != nil {
			return model.WrapCLIError(model.ExitUsage, "invalid --delay", err)
		}
		s.Delay = d
	}
	if changed("timeout") {
		d, err := config.ParseDuration(timeoutFlag)
		if err != nil {
			return model.WrapCLIError(model.ExitUsage, "invalid --timeout", err)
		}
		s.Timeout = d
	}
	if changed("log-level") {
		s.LogLevel = logLevel
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
// This is the main entry point called from main.go, which exits with the
// returned code once its own cleanup has run.
//
// Errors returned by cobra commands are printed and translated into exit
// codes. CLIError types carry their own exit codes; other errors default
// to exit code 1.
func Execute(ctx context.Context, rootCmd *cobra.Command) model.ExitCode {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return ExitCodeOf(err)
}

// ExitCodeOf returns the process exit code for an error returned by a
// command.
func ExitCodeOf(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	var hostErr *rsc2.Error
	if errors.As(err, &hostErr) {
		return hostErr.Code.ExitCode()
	}
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, err error) {
	message, underlying := err.Error(), error(nil)
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message, underlying = cliErr.Message, cliErr.Err
	}

	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode: stdout is reserved for
		// successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// VerboseLog writes a debug record. With --verbose it appears on stderr.
func VerboseLog(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// usageArgs wraps a cobra argument validator so that its failures exit
// with the usage code.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return model.WrapCLIError(model.ExitUsage,
				fmt.Sprintf("invalid arguments for %q", cmd.CommandPath()), err)
		}
		return nil
	}
}

// runGroup is the RunE of command groups: it prints help, or a usage
// error for an unknown subcommand.
func runGroup(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return model.NewCLIError(model.ExitUsage,
			fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath()))
	}
	return cmd.Help()
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

// formatDuration renders d for tables; zero prints as "-".
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.String()
}
