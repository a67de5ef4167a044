package errs

import (
	"context"
	"errors"
)

// Code is an error code for the runner's failure taxonomy.
type Code string

const (
	InvalidConfig      Code = "invalid_config"
	GateFailed         Code = "gate_failed"
	ElementNotFound    Code = "element_not_found"
	AssertionFailed    Code = "assertion_failed"
	ProvisioningFailed Code = "provisioning_failed"
	Unavailable        Code = "unavailable"
	Canceled           Code = "canceled"
	Internal           Code = "internal"
)

// Outcome is the result of a single scenario execution.
type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeFail  Outcome = "fail"
	OutcomeError Outcome = "error"
)

// Error is a coded error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
// Context cancellation and deadline errors without a typed wrapper map to canceled.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return Internal
}

// MessageOf returns the outermost typed message, or the raw error text.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}

// OutcomeOf maps an error to a scenario outcome. Interaction and assertion
// failures are test failures; everything else is an error.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomePass
	}
	switch CodeOf(err) {
	case ElementNotFound, AssertionFailed:
		return OutcomeFail
	default:
		return OutcomeError
	}
}

// ExitCode maps an error code to a process exit code.
func ExitCode(code Code) int {
	switch code {
	case InvalidConfig:
		return 2
	case GateFailed:
		return 3
	default:
		return 1
	}
}
