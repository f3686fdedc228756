// Package apperr defines the closed set of error kinds surfaced across
// SmartSpec's components, each carrying a machine-readable code, a
// human message, and optional remediation guidance.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies the category of a SmartSpec error.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeGovernance        Code = "governance_error"
	CodeInsufficientFunds Code = "insufficient_credits"
	CodeProvider          Code = "provider_error"
	CodeBundleBusy        Code = "bundle_busy"
	CodeInterruptTimeout  Code = "interrupt_timeout"
	CodeStepFailed        Code = "step_failed"
	CodeIO                Code = "io_error"
	CodeInternal          Code = "internal_error"
)

// Error is the typed error carried across package boundaries.
type Error struct {
	Code        Code
	Message     string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, apperr.CodeX) style checks via a sentinel
// wrapper, and also matches another *Error with the same Code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

func new_(code Code, remediation, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Remediation: remediation}
}

func wrap(code Code, remediation string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Remediation: remediation, Err: err}
}

// Validation reports malformed input that the caller can fix and retry.
func Validation(format string, args ...any) *Error {
	return new_(CodeValidation, "correct the input and retry", format, args...)
}

// Governance reports a missing opt-in flag (apply / allow-network).
func Governance(remediation, format string, args ...any) *Error {
	return new_(CodeGovernance, remediation, format, args...)
}

// InsufficientCredits reports a pre-flight balance check failure.
func InsufficientCredits(required, available int64) *Error {
	return new_(CodeInsufficientFunds, "top up credits or reduce scope",
		"estimated cost %d credits exceeds balance %d credits", required, available)
}

// Provider wraps an upstream LLM provider failure.
func Provider(err error, format string, args ...any) *Error {
	return wrap(CodeProvider, "retry, or let the gateway fall back to another provider", err, format, args...)
}

// BundleBusy reports contention on a spec bundle's serialized-write mutex.
func BundleBusy(specID string) *Error {
	return new_(CodeBundleBusy, "retry once the in-flight operation on this bundle completes",
		"bundle %q is locked by another in-flight operation", specID)
}

// InterruptTimeout reports a human-in-the-loop pause that was never answered.
func InterruptTimeout(interruptID string) *Error {
	return new_(CodeInterruptTimeout, "resume the workflow with a fresh response, or cancel it",
		"interrupt %q timed out waiting for a response", interruptID)
}

// StepFailed wraps a step-graph node failure.
func StepFailed(stepID string, err error) *Error {
	return wrap(CodeStepFailed, "inspect the step's event log for detail", err, "step %q failed", stepID)
}

// IO wraps a filesystem failure.
func IO(err error, format string, args ...any) *Error {
	return wrap(CodeIO, "check file permissions and disk space", err, format, args...)
}

// Internal wraps an unexpected failure that is not the caller's fault.
func Internal(err error, format string, args ...any) *Error {
	return wrap(CodeInternal, "this is a bug; please report it", err, format, args...)
}

// CodeOf extracts the Code from err if it (or something it wraps) is an *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
