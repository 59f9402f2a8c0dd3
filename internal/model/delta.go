package model

// FlagChange reports the full current remote flag set of one message.
// Carrying the whole set rather than a diff keeps delta application
// idempotent.
type FlagChange struct {
	RemoteID string
	Read     bool
	Flagged  bool
	Answered bool
	Deleted  bool
}

// FolderDelta is the difference between a folder's state at a recorded
// cursor and its current remote state. Application order is removals,
// then flag changes, then additions, so an identifier reused across
// the delta never transiently appears twice.
type FolderDelta struct {
	// Epoch is the server's current validity token for the folder.
	Epoch uint32

	// Added holds newly visible messages with envelope metadata.
	Added []Message

	// Flagged holds the current remote flag state of known messages.
	Flagged []FlagChange

	// Removed holds remote identifiers no longer present in the folder.
	Removed []string

	// LastUID is the highest message identifier observed; the cursor
	// advances to it when the delta commits.
	LastUID uint32
}
