package rsc2

import (
	"errors"
	"fmt"

	"github.com/shinji-kodama/rsctool/internal/model"
)

// Result is the status code a host attaches to every reply. The values
// match the RSC2 host's own numbering.
type Result int

const (
	ResultSuccess               Result = 0
	ResultUnspecified           Result = -1
	ResultRemoteObjDisconnected Result = -2
	ResultBoxLocked             Result = -3
	ResultCommandFailed         Result = -4
	ResultInvalidObjRef         Result = -5
	ResultNotImplementedYet     Result = -6
)

// String returns a short description of the result code.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultUnspecified:
		return "unspecified failure"
	case ResultRemoteObjDisconnected:
		return "host unreachable"
	case ResultBoxLocked:
		return "box is locked"
	case ResultCommandFailed:
		return "command failed"
	case ResultInvalidObjRef:
		return "invalid object reference"
	case ResultNotImplementedYet:
		return "not implemented"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ExitCode maps a result to the CLI exit code reported for it.
func (r Result) ExitCode() model.ExitCode {
	switch r {
	case ResultSuccess:
		return model.ExitSuccess
	case ResultRemoteObjDisconnected:
		return model.ExitHostUnreachable
	case ResultBoxLocked:
		return model.ExitBoxLocked
	case ResultInvalidObjRef:
		return model.ExitNoBox
	case ResultCommandFailed, ResultNotImplementedYet:
		return model.ExitSignalFailed
	default:
		return model.ExitGeneralError
	}
}

// Error is returned when a request fails, either because the host replied
// with a non-success result or because the connection broke.
//
// Message is the host's own error text when it supplied one.
type Error struct {
	Op      Op
	Code    Result
	Message string
	Err     error
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrUnspecified           = &Error{Code: ResultUnspecified}
	ErrRemoteObjDisconnected = &Error{Code: ResultRemoteObjDisconnected}
	ErrBoxLocked             = &Error{Code: ResultBoxLocked}
	ErrCommandFailed         = &Error{Code: ResultCommandFailed}
	ErrInvalidObjRef         = &Error{Code: ResultInvalidObjRef}
	ErrNotImplementedYet     = &Error{Code: ResultNotImplementedYet}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same result code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ResultOf returns the result code carried by err, ResultSuccess for nil,
// and ResultUnspecified for errors that did not come from a host.
func ResultOf(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return ResultUnspecified
}

func disconnected(op Op, err error) *Error {
	return &Error{Op: op, Code: ResultRemoteObjDisconnected, Message: "connection to host lost", Err: err}
}
