// Package xerr implements the abstract error taxonomy of the runtime's
// error-handling design (§7): one exported struct per kind, each wrapping
// an optional cause and satisfying errors.Is/As via Unwrap.
//
// Adapted from the teacher's cmn/cos/err.go idiom: typed Err* structs with
// New* constructors and Is* predicate helpers, rather than bare
// errors.New/fmt.Errorf strings scattered through call sites.
package xerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransportError: connection failures, write-after-close, unexpected EOF.
type TransportError struct {
	Op    string
	Cause error
}

func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause}
}

func (e *TransportError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("transport: %s", e.Op)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// FramingError: malformed frame, length over limit, corrupt binary header.
type FramingError struct {
	Reason string
}

func NewFramingError(format string, a ...any) *FramingError {
	return &FramingError{Reason: fmt.Sprintf(format, a...)}
}

func (e *FramingError) Error() string { return "framing: " + e.Reason }

// SerializationError: encode or decode failure; wraps the underlying cause.
type SerializationError struct {
	Codec string
	Cause error
}

func NewSerializationError(codec string, cause error) *SerializationError {
	return &SerializationError{Codec: codec, Cause: cause}
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization(%s): %v", e.Codec, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// ProtocolError: envelope does not conform to the wire contract.
type ProtocolError struct {
	Reason string
}

func NewProtocolError(format string, a ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, a...)}
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Reason }

// TimeoutError: request timeout; shutdown timeout.
type TimeoutError struct {
	Op string
}

func NewTimeoutError(op string) *TimeoutError { return &TimeoutError{Op: op} }

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %s", e.Op) }

// RemoteError: well-formed error response from the peer.
type RemoteError struct {
	Code    int
	Message string
	Data    any
}

func NewRemoteError(code int, message string, data any) *RemoteError {
	return &RemoteError{Code: code, Message: message, Data: data}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// LifecycleError: duplicate process id; spawn failure; terminate of unknown id.
type LifecycleError struct {
	ID     string
	Reason string
	Cause  error
}

func NewLifecycleError(id, reason string, cause error) *LifecycleError {
	return &LifecycleError{ID: id, Reason: reason, Cause: cause}
}

func (e *LifecycleError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("lifecycle(%s): %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("lifecycle(%s): %s: %v", e.ID, e.Reason, e.Cause)
}

func (e *LifecycleError) Unwrap() error { return e.Cause }

// ErrChannelClosed is the sentinel cause used to reject pending requests
// when a channel is closed out from under them (I2/I3).
var ErrChannelClosed = errors.New("channel closed")

// ErrQueueFull is returned by the reconnect manager's bounded queue.
var ErrQueueFull = errors.New("reconnect queue full")

// ErrNotConnected is the cause wrapped by a TransportError when an
// operation is attempted outside the connected state.
var ErrNotConnected = errors.New("transport not connected")

// ErrQueueTimeout is the cause used when a queued reconnect request's own
// timer fires before reconnection succeeds.
var ErrQueueTimeout = errors.New("queued request timed out")

// ErrReconnectFailed is the cause used to reject queued requests when the
// reconnect loop exhausts its attempts or is cancelled.
var ErrReconnectFailed = errors.New("reconnect failed")
