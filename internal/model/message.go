package model

import "time"

// Flag is a message flag that can be set locally and replayed against
// the server.
type Flag string

const (
	FlagRead     Flag = "read"
	FlagFlagged  Flag = "flagged"
	FlagAnswered Flag = "answered"
	FlagDeleted  Flag = "deleted"
)

// SyncCursor marks the last successfully synchronized position of a
// folder. Epoch is the server's validity token for the folder's message
// numbering; when it changes, every cached identifier under the old
// epoch is invalid.
type SyncCursor struct {
	Epoch      uint32
	LastUID    uint32
	LastSyncAt time.Time
}

// Zero reports whether the cursor has never been advanced.
func (c SyncCursor) Zero() bool {
	return c.Epoch == 0 && c.LastUID == 0
}

// Folder is a server-side mailbox belonging to one account, together
// with its sync cursor.
type Folder struct {
	AccountID string
	Name      string
	Cursor    SyncCursor
}

// Message is a cached message. It is identified by the composite key
// (AccountID, Folder, Epoch, RemoteID), which is unique and stable only
// while the folder's epoch is unchanged.
type Message struct {
	AccountID string
	Folder    string
	Epoch     uint32

	// RemoteID is the server-assigned identifier: the decimal UID for
	// IMAP, the UIDL token for POP3.
	RemoteID string

	// UID is the numeric form of RemoteID when the protocol provides
	// one; 0 for POP3.
	UID uint32

	MessageID string
	Subject   string
	FromAddr  string
	FromName  string
	To        []string
	Date      time.Time
	Size      int64

	Read     bool
	Flagged  bool
	Answered bool
	Deleted  bool

	// SyncFailed marks a message whose queued mutation exhausted its
	// retry budget; rendered as a visible failure marker, never dropped
	// silently.
	SyncFailed bool

	// HasBody reports whether the body is currently cached. Bodies are
	// fetched lazily and may be evicted independently of metadata.
	HasBody bool

	FetchedAt time.Time
}

// FlagValue returns the current value of the given flag.
func (m *Message) FlagValue(f Flag) bool {
	switch f {
	case FlagRead:
		return m.Read
	case FlagFlagged:
		return m.Flagged
	case FlagAnswered:
		return m.Answered
	case FlagDeleted:
		return m.Deleted
	}
	return false
}

// SetFlagValue sets the given flag on the message.
func (m *Message) SetFlagValue(f Flag, v bool) {
	switch f {
	case FlagRead:
		m.Read = v
	case FlagFlagged:
		m.Flagged = v
	case FlagAnswered:
		m.Answered = v
	case FlagDeleted:
		m.Deleted = v
	}
}

// From returns the sender formatted for display.
func (m *Message) From() string {
	if m.FromName != "" {
		return m.FromName + " <" + m.FromAddr + ">"
	}
	return m.FromAddr
}

// Body is the cached content of a message, parsed once when fetched.
type Body struct {
	Text      string
	HTML      string
	FetchedAt time.Time
}
