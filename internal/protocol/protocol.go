// Package protocol defines the contract between the synchronization
// engine and a mail server session, independent of the wire protocol.
package protocol

import (
	"context"

	"github.com/tomatyss/linsky/internal/model"
)

// FolderInfo describes one server-side mailbox.
type FolderInfo struct {
	Name string
}

// Session is one authenticated connection to a single account's mail
// server. Commands are issued serially; implementations are not safe
// for concurrent use. A session never silently retries a command whose
// effect is not idempotent; an ambiguous outcome is resolved by the
// next reconciliation sync, not by blind re-issue.
type Session interface {
	// ListFolders returns the account's mailboxes.
	ListFolders(ctx context.Context) ([]FolderInfo, error)

	// FetchChanges computes the delta between cursor and current remote
	// state. known is the set of remote identifiers currently cached
	// under cursor.Epoch. If the server's validity epoch differs from
	// cursor.Epoch, FetchChanges returns a *FullResyncError and the
	// caller must clear the folder before fetching again with a zero
	// cursor.
	FetchChanges(ctx context.Context, folder string, cursor model.SyncCursor, known []string) (*model.FolderDelta, error)

	// FetchBody retrieves the raw RFC 5322 bytes of one message.
	FetchBody(ctx context.Context, folder string, remoteID string) ([]byte, error)

	// ApplyFlag sets or clears a flag on one message.
	ApplyFlag(ctx context.Context, folder string, remoteID string, flag model.Flag, value bool) error

	// Expunge permanently removes one message. Not idempotent; callers
	// must not retry on a transport failure.
	Expunge(ctx context.Context, folder string, remoteID string) error

	// Move transfers one message to another folder.
	Move(ctx context.Context, folder string, remoteID string, target string) error

	// Close terminates the session. Safe to call more than once.
	Close() error
}

// Dialer connects and authenticates a session for one account.
type Dialer interface {
	Dial(ctx context.Context, account model.AccountConfig) (Session, error)
}
