package model

import "fmt"

// ExitCode defines the process exit codes of rsctool.
// These codes allow scripts and CI systems to tell a usage mistake apart
// from an unreachable host or a relay that refused to switch.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitUsage indicates invalid arguments or flags.
	ExitUsage ExitCode = 2

	// ExitHostUnreachable indicates the RSC2 host could not be contacted,
	// or the connection dropped mid-command.
	ExitHostUnreachable ExitCode = 3

	// ExitNoBox indicates the host has no box at the requested index.
	ExitNoBox ExitCode = 4

	// ExitBoxLocked indicates the box is locked by someone else.
	ExitBoxLocked ExitCode = 5

	// ExitSignalFailed indicates the host rejected a signal or box command.
	ExitSignalFailed ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
