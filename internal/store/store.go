package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomatyss/linsky/internal/model"
)

// ErrNotFound is returned when a point lookup matches nothing.
var ErrNotFound = errors.New("not found")

// StoreError wraps a local persistence failure. Cache integrity cannot
// be assumed after one, so callers treat it as fatal rather than
// retrying quietly.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err (or any error in its chain) is a
// StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// MessageKey identifies one cached message. The key is unique and
// stable only while the folder's epoch is unchanged.
type MessageKey struct {
	AccountID string
	Folder    string
	Epoch     uint32
	RemoteID  string
}

// Store is the persistence interface for cached mailbox state: folders
// with their sync cursors, message metadata, lazily cached bodies, the
// pending-action queue, and the outgoing queue. All operations are
// local and fast; nothing here touches the network.
type Store interface {
	// === Folders ===

	UpsertFolders(ctx context.Context, accountID string, names []string) error
	GetFolder(ctx context.Context, accountID, name string) (*model.Folder, error)
	ListFolders(ctx context.Context, accountID string) ([]model.Folder, error)

	// === Messages ===

	// ApplyDelta applies a folder delta and advances the cursor in a
	// single transaction: either both persist or neither does.
	ApplyDelta(ctx context.Context, accountID, folder string, delta *model.FolderDelta) error

	// ClearFolder discards every message, body, and pending action
	// under the folder and resets its cursor. Used when the validity
	// epoch changes.
	ClearFolder(ctx context.Context, accountID, folder string) error

	ListMessages(ctx context.Context, accountID, folder string) ([]model.Message, error)
	GetMessage(ctx context.Context, key MessageKey) (*model.Message, error)
	KnownRemoteIDs(ctx context.Context, accountID, folder string, epoch uint32) ([]string, error)
	SetMessageFlag(ctx context.Context, key MessageKey, flag model.Flag, value bool) error
	RemoveMessage(ctx context.Context, key MessageKey) error
	MarkSyncFailed(ctx context.Context, key MessageKey, failed bool) error

	// === Bodies ===

	SaveBody(ctx context.Context, key MessageKey, body model.Body) error
	GetBody(ctx context.Context, key MessageKey) (*model.Body, error)

	// EvictBodies removes cached body bytes beyond the keep newest per
	// folder. Metadata, flags, and pending actions are untouched.
	EvictBodies(ctx context.Context, accountID, folder string, keep int) (int, error)

	// === Pending actions ===

	EnqueueAction(ctx context.Context, a model.PendingAction) (int64, error)
	ListActions(ctx context.Context, accountID, folder string) ([]model.PendingAction, error)
	DeleteAction(ctx context.Context, seq int64) error
	BumpActionAttempts(ctx context.Context, seq int64) (int, error)

	// === Outgoing queue ===

	EnqueueOutgoing(ctx context.Context, msg model.OutgoingMessage) error
	ListOutgoing(ctx context.Context, accountID string) ([]model.OutgoingMessage, error)
	DeleteOutgoing(ctx context.Context, id string) error
	RecordSendFailure(ctx context.Context, id string, lastError string) (int, error)

	// === Accounts ===

	// DeleteAccount removes the account's entire namespace.
	DeleteAccount(ctx context.Context, accountID string) error
}
