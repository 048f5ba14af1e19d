package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type. CLI commands map it to a
// process exit code; the HTTP server maps it to a status code.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	CodeUsage    Code = 2
	// CodeInvalidInput covers malformed addresses, non-positive amounts and
	// other input rejected before any network call is made.
	CodeInvalidInput Code = 3
	CodeAuth         Code = 10
	CodeRateLimited  Code = 11
	// CodeUpstream marks an unavailable third party (missing key, non-2xx,
	// timeout). Callers recover locally via mock/fallback data.
	CodeUpstream    Code = 12
	CodeUnsupported Code = 13
	// CodeTxRejected marks a transaction the signer rejected or the chain
	// reverted. Terminal; never retried automatically.
	CodeTxRejected Code = 14
	// CodeStreamInterrupted marks an aborted or network-dropped LLM stream.
	CodeStreamInterrupted Code = 15
	// CodeApprovalRequired blocks a swap while the current allowance is
	// insufficient or an approval is still pending.
	CodeApprovalRequired   Code = 16
	CodeWalletDisconnected Code = 17
)

// Error is a typed error that carries a stable code alongside its cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}
