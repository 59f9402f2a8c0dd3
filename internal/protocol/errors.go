package protocol

import (
	"errors"
	"fmt"
)

// ConnectionError indicates that establishing a session failed
// (DNS, TLS, or authentication). Fatal for the current sync attempt;
// the coordinator backs off and retries.
type ConnectionError struct {
	AccountID string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed (%s): %v", e.AccountID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or any error in its chain) is
// a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// TransportError indicates a mid-session I/O failure. Retryable: the
// session is dead but a reconnect may succeed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err (or any error in its chain) is
// a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ProtocolError indicates a malformed or unexpected server response.
// It aborts the current sync cycle; nothing partial is committed.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Detail)
}

// ActionRejectedError indicates the server refused a specific mutation,
// typically because the message no longer exists. The queued action is
// discarded as moot rather than retried.
type ActionRejectedError struct {
	RemoteID string
	Reason   string
}

func (e *ActionRejectedError) Error() string {
	return fmt.Sprintf("action rejected for message %s: %s", e.RemoteID, e.Reason)
}

// IsActionRejected reports whether err (or any error in its chain) is
// an ActionRejectedError.
func IsActionRejected(err error) bool {
	var ar *ActionRejectedError
	return errors.As(err, &ar)
}

// FullResyncError signals that the folder's validity epoch changed.
// Not a failure: the caller clears the folder's cached state and
// repopulates from empty under NewEpoch.
type FullResyncError struct {
	Folder   string
	OldEpoch uint32
	NewEpoch uint32
}

func (e *FullResyncError) Error() string {
	return fmt.Sprintf("folder %s requires full resync: epoch %d -> %d",
		e.Folder, e.OldEpoch, e.NewEpoch)
}
