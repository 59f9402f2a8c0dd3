package store

import (
	"context"
	"time"

	"github.com/tomatyss/linsky/internal/model"
)

// EnqueueAction appends a mutation to the pending-action queue and
// returns its assigned sequence number. Sequence numbers are monotonic
// per store, giving strict submission ordering on replay.
func (s *SQLiteStore) EnqueueAction(ctx context.Context, a model.PendingAction) (int64, error) {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (
			account_id, folder, epoch, remote_id,
			kind, flag, value, target_folder, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		a.AccountID, a.Folder, a.Epoch, a.RemoteID,
		string(a.Kind), string(a.Flag), boolToInt(a.Value),
		a.TargetFolder, createdAt.UTC(),
	)
	if err != nil {
		return 0, &StoreError{Op: "enqueueing action", Err: err}
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, &StoreError{Op: "enqueueing action", Err: err}
	}
	return seq, nil
}

// ListActions returns the folder's pending actions in ascending
// sequence order, the order replay must follow.
func (s *SQLiteStore) ListActions(ctx context.Context, accountID, folder string) ([]model.PendingAction, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT seq, account_id, folder, epoch, remote_id,
		       kind, flag, value, target_folder, attempts, created_at
		FROM pending_actions
		WHERE account_id = ? AND folder = ?
		ORDER BY seq ASC`,
		accountID, folder,
	)
	if err != nil {
		return nil, &StoreError{Op: "querying pending actions", Err: err}
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		var (
			a     model.PendingAction
			kind  string
			flag  string
			value int
		)
		err := rows.Scan(
			&a.Seq, &a.AccountID, &a.Folder, &a.Epoch, &a.RemoteID,
			&kind, &flag, &value, &a.TargetFolder, &a.Attempts, &a.CreatedAt,
		)
		if err != nil {
			return nil, &StoreError{Op: "scanning pending action", Err: err}
		}
		a.Kind = model.ActionKind(kind)
		a.Flag = model.Flag(flag)
		a.Value = value != 0
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// DeleteAction removes a pending action, either because the server
// confirmed it or because it was abandoned.
func (s *SQLiteStore) DeleteAction(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_actions WHERE seq = ?", seq)
	if err != nil {
		return &StoreError{Op: "deleting pending action", Err: err}
	}
	return nil
}

// BumpActionAttempts increments the action's attempt counter and
// returns the new count.
func (s *SQLiteStore) BumpActionAttempts(ctx context.Context, seq int64) (int, error) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_actions SET attempts = attempts + 1 WHERE seq = ?", seq,
	)
	if err != nil {
		return 0, &StoreError{Op: "bumping action attempts", Err: err}
	}

	var attempts int
	err = s.db.GetContext(ctx, &attempts,
		"SELECT attempts FROM pending_actions WHERE seq = ?", seq,
	)
	if err != nil {
		return 0, &StoreError{Op: "reading action attempts", Err: err}
	}
	return attempts, nil
}
