// Package domain defines the core domain models for rafter.
package domain

import (
	"errors"
	"fmt"
)

// DomainError is an error with a stable, structured error code.
//
// Two DomainErrors are considered equal by errors.Is when their codes match,
// so the package-level sentinels below can be compared against wrapped or
// detailed copies.
type DomainError struct {
	Code    string // Error code (e.g., "RF-HSK-5020")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// Detailf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) Detailf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// Wrap returns a copy of the error wrapping the given cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return code == "" || de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Handshake Errors (HSK)
// ============================================================================

var (
	// ErrClientHandshake indicates the dialing side could not complete the handshake.
	ErrClientHandshake = NewDomainError("RF-HSK-5020", "client-side handshake failed")

	// ErrServerHandshake indicates the accepting side could not complete the handshake.
	ErrServerHandshake = NewDomainError("RF-HSK-5021", "server-side handshake failed")
)

// ============================================================================
// Link Errors (LINK)
// ============================================================================

var (
	// ErrDuplicateConnection indicates a link was dropped in favour of a
	// higher priority link to the same peer.
	ErrDuplicateConnection = NewDomainError("RF-LINK-4090", "duplicate connection removed")

	// ErrDispatch indicates an established link could not be handed to its
	// protocol handler.
	ErrDispatch = NewDomainError("RF-LINK-5030", "sending connection to protocol handler")

	// ErrLinkClosed is returned when operating on a closed link.
	ErrLinkClosed = NewDomainError("RF-LINK-4100", "link closed")
)

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrConfiguration indicates invalid static configuration. Fatal at startup.
	ErrConfiguration = NewDomainError("RF-CONF-1001", "invalid configuration")
)

// ============================================================================
// System Errors (SYS / RAFT)
// ============================================================================

var (
	// ErrIO wraps transport level I/O failures.
	ErrIO = NewDomainError("RF-SYS-5001", "i/o error")

	// ErrConsensus wraps errors returned by the consensus engine.
	ErrConsensus = NewDomainError("RF-RAFT-5000", "consensus error")
)

// DuplicateConnectionError reports which link was removed during duplicate
// resolution. It matches ErrDuplicateConnection with errors.Is.
type DuplicateConnectionError struct {
	// LinkID identifies the removed link.
	LinkID string
	// Initiator is the peer that opened the removed link.
	Initiator PeerID
	// Peer is the remote end of the removed link, as seen locally.
	Peer PeerID
}

// Error implements the error interface.
func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("[%s] connection %s initiated by %s was removed because a higher priority connection with %s already exists",
		ErrDuplicateConnection.Code, e.LinkID, e.Initiator, e.Peer)
}

// Is reports whether target is ErrDuplicateConnection.
func (e *DuplicateConnectionError) Is(target error) bool {
	return target == ErrDuplicateConnection
}
