package model

import "time"

// ActionKind identifies the type of a queued mutation.
type ActionKind string

const (
	ActionSetFlag ActionKind = "set_flag"
	ActionDelete  ActionKind = "delete"
	ActionMove    ActionKind = "move"
)

// PendingAction is a user mutation applied optimistically to the local
// cache and not yet confirmed by the server. Actions are replayed in
// ascending Seq order before each folder sync.
type PendingAction struct {
	// Seq is the monotonic local sequence number assigned on enqueue.
	Seq int64

	AccountID string
	Folder    string
	Epoch     uint32
	RemoteID  string

	Kind ActionKind

	// Flag and Value apply when Kind is ActionSetFlag.
	Flag  Flag
	Value bool

	// TargetFolder applies when Kind is ActionMove.
	TargetFolder string

	// Attempts counts replay attempts that failed with a retryable
	// transport error.
	Attempts int

	CreatedAt time.Time
}
