// Package model defines the domain types and value objects for the
// rsctool CLI.
//
// This package contains pure data structures with no external dependencies.
// The integer enumerations (SignalID, SignalState, BoxStatus, etc.) use the
// same numbering as the RSC2 host so they can travel on the wire unchanged.
// Every enum has a canonical lower-case or upper-case name used by the CLI,
// and a ParseX function that accepts the names users are likely to type.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
