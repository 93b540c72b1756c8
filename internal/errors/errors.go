// Package errors provides standardized error codes for the remote service.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (protocol, auth, registry, ...)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by the companion web client for
// programmatic error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Protocol domain - malformed or refused HTTP requests
	CodeProtocolInvalidRequest = "protocol.invalid_request" // Malformed body, path or upgrade
	CodeProtocolRateLimited    = "protocol.rate_limited"    // Too many registration attempts

	// Auth domain - credentials and device trust
	CodeAuthInvalidCredential = "auth.invalid_credential" // Signature, issuer, expiry or claim check failed
	CodeAuthUnknownDevice     = "auth.unknown_device"     // UUID not registered (or already consumed)
	CodeAuthForbidden         = "auth.forbidden"          // Local-only surface reached from the network

	// Registry domain - device state lookups
	CodeRegistryNotPending  = "registry.not_pending"  // No pending entry for the UUID
	CodeRegistryNotApproved = "registry.not_approved" // No approved entry for the UUID

	// Transport domain - control connection failures
	CodeTransportClosed = "transport.closed" // Control connection closed or failed

	// Decode domain - control event payloads
	CodeDecodeInvalidEvent = "decode.invalid_event" // Text frame is not a valid control event

	// Startup domain - fatal errors while bringing the service up
	CodeStartupCertificate = "startup.certificate" // Certificate could not be loaded or generated
	CodeStartupSecret      = "startup.secret"      // Signing secret could not be loaded or generated
	CodeStartupListen      = "startup.listen"      // A listener could not be bound

	// Input domain - OS injection backends
	CodeInputBackendUnavailable = "input.backend_unavailable" // Requested injection backend cannot be opened

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// nextActions holds the suggested remediation for codes a user can act on.
var nextActions = map[string]string{
	CodeProtocolRateLimited:     "wait a minute before registering again",
	CodeAuthInvalidCredential:   "pair the device again",
	CodeAuthUnknownDevice:       "register the device again",
	CodeAuthForbidden:           "use the control socket or connect from localhost",
	CodeRegistryNotPending:      "list pending devices and retry",
	CodeRegistryNotApproved:     "pair the device again",
	CodeStartupCertificate:      "remove the certificate files to regenerate them",
	CodeStartupSecret:           "check permissions on the secret file",
	CodeStartupListen:           "check that the port is free",
	CodeInputBackendUnavailable: "check access to /dev/uinput or use input_backend = \"log\"",
}

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "auth.invalid_credential")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// GetNextAction returns the remediation hint for a code, or "" if none.
func GetNextAction(code string) string {
	return nextActions[code]
}

// InvalidRequest creates a "protocol.invalid_request" error.
func InvalidRequest(reason string) *CodedError {
	return New(CodeProtocolInvalidRequest, reason)
}

// RateLimited creates a "protocol.rate_limited" error.
func RateLimited() *CodedError {
	return New(CodeProtocolRateLimited, "too many registration attempts")
}

// InvalidCredential creates an "auth.invalid_credential" error.
// The cause is kept for logs; clients only ever see the generic message.
func InvalidCredential(cause error) *CodedError {
	return Wrap(CodeAuthInvalidCredential, "invalid credential", cause)
}

// UnknownDevice creates an "auth.unknown_device" error.
func UnknownDevice(id string) *CodedError {
	return New(CodeAuthUnknownDevice, fmt.Sprintf("device %s not found", id))
}

// Forbidden creates an "auth.forbidden" error.
func Forbidden() *CodedError {
	return New(CodeAuthForbidden, "this endpoint is only available locally")
}

// NotPending creates a "registry.not_pending" error.
func NotPending(id string) *CodedError {
	return New(CodeRegistryNotPending, fmt.Sprintf("device %s is not pending approval", id))
}

// NotApproved creates a "registry.not_approved" error for a credential
// whose approval was already claimed or has expired.
func NotApproved(id string, cause error) *CodedError {
	return Wrap(CodeRegistryNotApproved, fmt.Sprintf("credential for device %s was already used or has expired", id), cause)
}

// TransportClosed creates a "transport.closed" error.
func TransportClosed(cause error) *CodedError {
	return Wrap(CodeTransportClosed, "control connection closed", cause)
}

// InvalidEvent creates a "decode.invalid_event" error.
func InvalidEvent(cause error) *CodedError {
	return Wrap(CodeDecodeInvalidEvent, "invalid control event", cause)
}

// Startup creates one of the "startup.*" errors.
func Startup(code, message string, cause error) *CodedError {
	return Wrap(code, message, cause)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
