package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tomatyss/linsky/internal/model"
)

const messageColumns = `
	account_id, folder, epoch, remote_id, uid, message_id,
	subject, from_addr, from_name, to_addrs, date, size,
	flag_read, flag_flagged, flag_answered, flag_deleted,
	sync_failed, fetched_at,
	EXISTS(
		SELECT 1 FROM bodies b
		WHERE b.account_id = messages.account_id
		  AND b.folder = messages.folder
		  AND b.epoch = messages.epoch
		  AND b.remote_id = messages.remote_id
	) AS has_body`

// ApplyDelta applies a folder delta and advances the sync cursor in one
// transaction. Application order is removals, then flag updates, then
// insertions; the cursor only advances if everything commits, so a
// crash mid-sync never leaves the cursor ahead of the data.
func (s *SQLiteStore) ApplyDelta(ctx context.Context, accountID, folder string, delta *model.FolderDelta) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "beginning transaction", Err: err}
	}
	defer tx.Rollback()

	for _, remoteID := range delta.Removed {
		if err := deleteMessageTx(ctx, tx, accountID, folder, delta.Epoch, remoteID); err != nil {
			return err
		}
	}

	for _, fc := range delta.Flagged {
		_, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET flag_read = ?, flag_flagged = ?, flag_answered = ?, flag_deleted = ?
			WHERE account_id = ? AND folder = ? AND epoch = ? AND remote_id = ?`,
			boolToInt(fc.Read), boolToInt(fc.Flagged),
			boolToInt(fc.Answered), boolToInt(fc.Deleted),
			accountID, folder, delta.Epoch, fc.RemoteID,
		)
		if err != nil {
			return &StoreError{Op: "updating flags for " + fc.RemoteID, Err: err}
		}
	}

	if len(delta.Added) > 0 {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT OR REPLACE INTO messages (
				account_id, folder, epoch, remote_id, uid, message_id,
				subject, from_addr, from_name, to_addrs, date, size,
				flag_read, flag_flagged, flag_answered, flag_deleted,
				sync_failed, fetched_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`)
		if err != nil {
			return &StoreError{Op: "preparing message insert", Err: err}
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, m := range delta.Added {
			toAddrs, err := json.Marshal(m.To)
			if err != nil {
				return &StoreError{Op: "marshaling recipients for " + m.RemoteID, Err: err}
			}

			_, err = stmt.ExecContext(ctx,
				accountID, folder, delta.Epoch, m.RemoteID, m.UID, m.MessageID,
				m.Subject, m.FromAddr, m.FromName, string(toAddrs),
				nullableTime(m.Date), m.Size,
				boolToInt(m.Read), boolToInt(m.Flagged),
				boolToInt(m.Answered), boolToInt(m.Deleted),
				now,
			)
			if err != nil {
				return &StoreError{Op: "inserting message " + m.RemoteID, Err: err}
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO folders (account_id, name, epoch, last_uid, last_sync_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, name) DO UPDATE SET
			epoch = excluded.epoch,
			last_uid = excluded.last_uid,
			last_sync_at = excluded.last_sync_at`,
		accountID, folder, delta.Epoch, delta.LastUID, time.Now().UTC(),
	)
	if err != nil {
		return &StoreError{Op: "advancing cursor for " + folder, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "committing delta", Err: err}
	}
	return nil
}

// ClearFolder discards the folder's messages, cached bodies, and
// pending actions, and resets its cursor. The composite key layout
// makes this a handful of keyed deletes rather than a per-message scan.
func (s *SQLiteStore) ClearFolder(ctx context.Context, accountID, folder string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "beginning transaction", Err: err}
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "bodies", "pending_actions"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE account_id = ? AND folder = ?",
			accountID, folder,
		); err != nil {
			return &StoreError{Op: "clearing " + table + " for " + folder, Err: err}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE folders SET epoch = 0, last_uid = 0, last_sync_at = NULL
		WHERE account_id = ? AND name = ?`,
		accountID, folder,
	); err != nil {
		return &StoreError{Op: "resetting cursor for " + folder, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "committing folder clear", Err: err}
	}
	return nil
}

// ListMessages returns the folder's cached messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, accountID, folder string) ([]model.Message, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE account_id = ? AND folder = ?
		ORDER BY date DESC, uid DESC`,
		accountID, folder,
	)
	if err != nil {
		return nil, &StoreError{Op: "querying messages", Err: err}
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, &StoreError{Op: "scanning message row", Err: err}
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// GetMessage retrieves a single cached message by its composite key.
func (s *SQLiteStore) GetMessage(ctx context.Context, key MessageKey) (*model.Message, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE account_id = ? AND folder = ? AND epoch = ? AND remote_id = ?`,
		key.AccountID, key.Folder, key.Epoch, key.RemoteID,
	)

	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: "getting message " + key.RemoteID, Err: err}
	}
	return &m, nil
}

// KnownRemoteIDs returns the remote identifiers cached for the folder
// under the given epoch.
func (s *SQLiteStore) KnownRemoteIDs(ctx context.Context, accountID, folder string, epoch uint32) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT remote_id FROM messages
		WHERE account_id = ? AND folder = ? AND epoch = ?
		ORDER BY uid`,
		accountID, folder, epoch,
	)
	if err != nil {
		return nil, &StoreError{Op: "listing known ids", Err: err}
	}
	return ids, nil
}

// SetMessageFlag writes one flag value on the cached message. This is
// the optimistic local half of a mutation; the pending-action queue
// carries the remote half.
func (s *SQLiteStore) SetMessageFlag(ctx context.Context, key MessageKey, flag model.Flag, value bool) error {
	column, ok := flagColumn(flag)
	if !ok {
		return &StoreError{Op: "setting flag", Err: errors.New("unknown flag " + string(flag))}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET `+column+` = ?
		WHERE account_id = ? AND folder = ? AND epoch = ? AND remote_id = ?`,
		boolToInt(value), key.AccountID, key.Folder, key.Epoch, key.RemoteID,
	)
	if err != nil {
		return &StoreError{Op: "setting flag on " + key.RemoteID, Err: err}
	}
	return nil
}

// RemoveMessage deletes one cached message and its body.
func (s *SQLiteStore) RemoveMessage(ctx context.Context, key MessageKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "beginning transaction", Err: err}
	}
	defer tx.Rollback()

	if err := deleteMessageTx(ctx, tx, key.AccountID, key.Folder, key.Epoch, key.RemoteID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "committing message removal", Err: err}
	}
	return nil
}

// MarkSyncFailed sets or clears the visible "failed to sync" marker.
func (s *SQLiteStore) MarkSyncFailed(ctx context.Context, key MessageKey, failed bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET sync_failed = ?
		WHERE account_id = ? AND folder = ? AND epoch = ? AND remote_id = ?`,
		boolToInt(failed), key.AccountID, key.Folder, key.Epoch, key.RemoteID,
	)
	if err != nil {
		return &StoreError{Op: "marking sync failure on " + key.RemoteID, Err: err}
	}
	return nil
}

// SaveBody caches the parsed body of one message.
func (s *SQLiteStore) SaveBody(ctx context.Context, key MessageKey, body model.Body) error {
	fetchedAt := body.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bodies (
			account_id, folder, epoch, remote_id, text_body, html_body, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.AccountID, key.Folder, key.Epoch, key.RemoteID,
		body.Text, body.HTML, fetchedAt.UTC(),
	)
	if err != nil {
		return &StoreError{Op: "saving body for " + key.RemoteID, Err: err}
	}
	return nil
}

// GetBody retrieves a cached body, or ErrNotFound if it was never
// fetched or has been evicted.
func (s *SQLiteStore) GetBody(ctx context.Context, key MessageKey) (*model.Body, error) {
	var body model.Body
	row := s.db.QueryRowxContext(ctx, `
		SELECT text_body, html_body, fetched_at FROM bodies
		WHERE account_id = ? AND folder = ? AND epoch = ? AND remote_id = ?`,
		key.AccountID, key.Folder, key.Epoch, key.RemoteID,
	)

	err := row.Scan(&body.Text, &body.HTML, &body.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: "getting body for " + key.RemoteID, Err: err}
	}
	return &body, nil
}

// EvictBodies drops cached bodies beyond the keep newest-fetched in the
// folder and reports how many were evicted. Only body bytes go; the
// messages table is untouched.
func (s *SQLiteStore) EvictBodies(ctx context.Context, accountID, folder string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bodies WHERE rowid IN (
			SELECT rowid FROM bodies
			WHERE account_id = ? AND folder = ?
			ORDER BY fetched_at DESC
			LIMIT -1 OFFSET ?
		)`,
		accountID, folder, keep,
	)
	if err != nil {
		return 0, &StoreError{Op: "evicting bodies", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StoreError{Op: "evicting bodies", Err: err}
	}
	return int(n), nil
}

func deleteMessageTx(ctx context.Context, tx *sqlx.Tx, accountID, folder string, epoch uint32, remoteID string) error {
	for _, table := range []string{"messages", "bodies"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE account_id = ? AND folder = ? AND epoch = ? AND remote_id = ?",
			accountID, folder, epoch, remoteID,
		); err != nil {
			return &StoreError{Op: "deleting message " + remoteID, Err: err}
		}
	}
	return nil
}

func flagColumn(flag model.Flag) (string, bool) {
	switch flag {
	case model.FlagRead:
		return "flag_read", true
	case model.FlagFlagged:
		return "flag_flagged", true
	case model.FlagAnswered:
		return "flag_answered", true
	case model.FlagDeleted:
		return "flag_deleted", true
	}
	return "", false
}

// scanMessage scans a message row including the computed has_body column.
func scanMessage(row rowScanner) (model.Message, error) {
	var (
		m          model.Message
		toAddrs    string
		date       sql.NullTime
		read       int
		flagged    int
		answered   int
		deleted    int
		syncFailed int
		hasBody    int
	)

	err := row.Scan(
		&m.AccountID, &m.Folder, &m.Epoch, &m.RemoteID, &m.UID, &m.MessageID,
		&m.Subject, &m.FromAddr, &m.FromName, &toAddrs, &date, &m.Size,
		&read, &flagged, &answered, &deleted,
		&syncFailed, &m.FetchedAt, &hasBody,
	)
	if err != nil {
		return model.Message{}, err
	}

	if date.Valid {
		m.Date = date.Time
	}
	m.Read = read != 0
	m.Flagged = flagged != 0
	m.Answered = answered != 0
	m.Deleted = deleted != 0
	m.SyncFailed = syncFailed != 0
	m.HasBody = hasBody != 0

	if toAddrs != "" && toAddrs != "[]" {
		if err := json.Unmarshal([]byte(toAddrs), &m.To); err != nil {
			return model.Message{}, err
		}
	}

	return m, nil
}
