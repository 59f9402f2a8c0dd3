// Package sync reconciles the local mailbox cache against remote
// folder state and replays queued local mutations.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tomatyss/linsky/internal/mimeutil"
	"github.com/tomatyss/linsky/internal/model"
	"github.com/tomatyss/linsky/internal/protocol"
	"github.com/tomatyss/linsky/internal/store"
)

// maxActionAttempts is the replay retry budget for one pending action.
// Beyond it the action is abandoned and the message gets a visible
// failure marker.
const maxActionAttempts = 5

// Engine runs individual sync cycles for one folder at a time. It
// holds no mailbox state of its own; every read and write goes through
// the store.
type Engine struct {
	store    store.Store
	log      *slog.Logger
	bodyKeep int
	events   chan<- Event
}

// NewEngine creates an engine over the given store. bodyKeep bounds
// cached bodies per folder; events may be nil.
func NewEngine(s store.Store, logger *slog.Logger, bodyKeep int, events chan<- Event) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, log: logger, bodyKeep: bodyKeep, events: events}
}

// SyncFolder runs one complete cycle for (account, folder) over an
// open session: drain the pending-action queue, fetch the remote
// delta, and apply it together with the cursor advance in a single
// store transaction. Pending actions are replayed strictly before the
// delta fetch so a flag set while offline is not clobbered by a stale
// remote observation.
func (e *Engine) SyncFolder(ctx context.Context, sess protocol.Session, accountID, folder string) error {
	if err := e.drainPending(ctx, sess, accountID, folder); err != nil {
		return err
	}

	cursor, err := e.cursor(ctx, accountID, folder)
	if err != nil {
		return err
	}

	known, err := e.store.KnownRemoteIDs(ctx, accountID, folder, cursor.Epoch)
	if err != nil {
		return err
	}

	delta, err := sess.FetchChanges(ctx, folder, cursor, known)

	var resync *protocol.FullResyncError
	if errors.As(err, &resync) {
		e.log.Info("validity epoch changed, clearing folder",
			"account", accountID, "folder", folder,
			"old_epoch", resync.OldEpoch, "new_epoch", resync.NewEpoch)

		if err := e.store.ClearFolder(ctx, accountID, folder); err != nil {
			return err
		}
		// Repopulate from empty under the new epoch.
		delta, err = sess.FetchChanges(ctx, folder, model.SyncCursor{}, nil)
	}
	if err != nil {
		return err
	}

	if err := e.store.ApplyDelta(ctx, accountID, folder, delta); err != nil {
		return err
	}

	if e.bodyKeep > 0 {
		if _, err := e.store.EvictBodies(ctx, accountID, folder, e.bodyKeep); err != nil {
			return err
		}
	}

	e.log.Debug("folder synced",
		"account", accountID, "folder", folder,
		"added", len(delta.Added), "flagged", len(delta.Flagged),
		"removed", len(delta.Removed))
	return nil
}

// SyncAccount refreshes the account's folder list and syncs each
// folder in turn. Folders are processed serially: the underlying
// session issues commands one at a time.
func (e *Engine) SyncAccount(ctx context.Context, sess protocol.Session, accountID string) error {
	remote, err := sess.ListFolders(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(remote))
	for _, f := range remote {
		names = append(names, f.Name)
	}
	if err := e.store.UpsertFolders(ctx, accountID, names); err != nil {
		return err
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.SyncFolder(ctx, sess, accountID, name); err != nil {
			return err
		}
	}
	return nil
}

// FetchBody retrieves, parses, and caches the body of one message.
func (e *Engine) FetchBody(ctx context.Context, sess protocol.Session, key store.MessageKey) (*model.Body, error) {
	raw, err := sess.FetchBody(ctx, key.Folder, key.RemoteID)
	if err != nil {
		return nil, err
	}

	text, html := mimeutil.ParseBody(raw)
	body := model.Body{Text: text, HTML: html, FetchedAt: time.Now()}

	if err := e.store.SaveBody(ctx, key, body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (e *Engine) cursor(ctx context.Context, accountID, folder string) (model.SyncCursor, error) {
	f, err := e.store.GetFolder(ctx, accountID, folder)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.SyncCursor{}, nil
		}
		return model.SyncCursor{}, err
	}
	return f.Cursor, nil
}

// drainPending replays the folder's queued mutations in ascending
// sequence order. Confirmed and moot actions are dequeued; a transport
// failure leaves the action queued with a bumped attempt counter and
// aborts the drain, since the session is no longer usable.
func (e *Engine) drainPending(ctx context.Context, sess protocol.Session, accountID, folder string) error {
	actions, err := e.store.ListActions(ctx, accountID, folder)
	if err != nil {
		return err
	}

	for _, a := range actions {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := e.replay(ctx, sess, a)
		switch {
		case err == nil:
			if err := e.store.DeleteAction(ctx, a.Seq); err != nil {
				return err
			}

		case protocol.IsActionRejected(err):
			// The message is gone server-side; the action is moot.
			e.log.Info("pending action rejected, discarding",
				"account", accountID, "folder", folder,
				"message", a.RemoteID, "kind", a.Kind, "reason", err)
			if err := e.store.DeleteAction(ctx, a.Seq); err != nil {
				return err
			}

		default:
			if abandonErr := e.noteFailedAttempt(ctx, a); abandonErr != nil {
				return abandonErr
			}
			return err
		}
	}
	return nil
}

// noteFailedAttempt bumps the action's attempt counter and abandons it
// with a visible failure marker once the budget is exhausted.
func (e *Engine) noteFailedAttempt(ctx context.Context, a model.PendingAction) error {
	attempts, err := e.store.BumpActionAttempts(ctx, a.Seq)
	if err != nil {
		return err
	}
	if attempts < maxActionAttempts {
		return nil
	}

	e.log.Warn("pending action exceeded retry budget, abandoning",
		"account", a.AccountID, "folder", a.Folder,
		"message", a.RemoteID, "kind", a.Kind, "attempts", attempts)

	if err := e.store.DeleteAction(ctx, a.Seq); err != nil {
		return err
	}
	key := store.MessageKey{
		AccountID: a.AccountID, Folder: a.Folder,
		Epoch: a.Epoch, RemoteID: a.RemoteID,
	}
	if err := e.store.MarkSyncFailed(ctx, key, true); err != nil {
		return err
	}

	e.emit(Event{
		Kind:      EventActionAbandoned,
		AccountID: a.AccountID,
		Folder:    a.Folder,
		RemoteID:  a.RemoteID,
	})
	return nil
}

func (e *Engine) replay(ctx context.Context, sess protocol.Session, a model.PendingAction) error {
	switch a.Kind {
	case model.ActionSetFlag:
		return sess.ApplyFlag(ctx, a.Folder, a.RemoteID, a.Flag, a.Value)
	case model.ActionDelete:
		return sess.Expunge(ctx, a.Folder, a.RemoteID)
	case model.ActionMove:
		return sess.Move(ctx, a.Folder, a.RemoteID, a.TargetFolder)
	}
	return &protocol.ActionRejectedError{RemoteID: a.RemoteID, Reason: "unknown action kind " + string(a.Kind)}
}

func (e *Engine) emit(ev Event) {
	if e.events == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
		// Drop rather than block the sync path.
	}
}
