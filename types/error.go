package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Coordination error codes
const (
	ErrElectionTimeout   ErrorCode = "ELECTION_TIMEOUT"
	ErrConsensusRejected ErrorCode = "CONSENSUS_REJECTED"
	ErrSubsystemDisabled ErrorCode = "SUBSYSTEM_DISABLED"
	ErrNodeNotFound      ErrorCode = "NODE_NOT_FOUND"
	ErrCapacityExceeded  ErrorCode = "CAPACITY_EXCEEDED"
	ErrNotLeader         ErrorCode = "NOT_LEADER"
	ErrQueueFull         ErrorCode = "QUEUE_FULL"
	ErrShutdown          ErrorCode = "SHUTDOWN"
	ErrTransport         ErrorCode = "TRANSPORT"
	ErrRPCTimeout        ErrorCode = "RPC_TIMEOUT"
	ErrInvalidConfig     ErrorCode = "INVALID_CONFIG"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Subsystem string    `json:"subsystem,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSubsystem tags the error with the originating subsystem name.
func (e *Error) WithSubsystem(name string) *Error {
	e.Subsystem = name
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode checks whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// NewElectionTimeoutError creates an election timeout error.
func NewElectionTimeoutError(message string) *Error {
	return &Error{Code: ErrElectionTimeout, Message: message, Retryable: true}
}

// NewSubsystemDisabledError creates an error for operations on a switched-off pattern.
func NewSubsystemDisabledError(subsystem string) *Error {
	return &Error{
		Code:      ErrSubsystemDisabled,
		Message:   fmt.Sprintf("subsystem %q is disabled by the active coordination pattern", subsystem),
		Subsystem: subsystem,
	}
}

// NewNodeNotFoundError creates an error for references to unknown node IDs.
func NewNodeNotFoundError(nodeID string) *Error {
	return &Error{Code: ErrNodeNotFound, Message: fmt.Sprintf("node %q not found", nodeID)}
}
