package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tomatyss/linsky/internal/model"
)

// EnqueueOutgoing appends a composed message to the outgoing queue.
func (s *SQLiteStore) EnqueueOutgoing(ctx context.Context, msg model.OutgoingMessage) error {
	toAddrs, err := json.Marshal(msg.To)
	if err != nil {
		return &StoreError{Op: "marshaling recipients", Err: err}
	}
	ccAddrs, err := json.Marshal(msg.Cc)
	if err != nil {
		return &StoreError{Op: "marshaling cc recipients", Err: err}
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outgoing (
			id, account_id, from_addr, to_addrs, cc_addrs,
			subject, body, in_reply_to, attempts, last_error,
			last_attempt_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
		msg.ID, msg.AccountID, msg.From, string(toAddrs), string(ccAddrs),
		msg.Subject, msg.Body, msg.InReplyTo, createdAt.UTC(), createdAt.UTC(),
	)
	if err != nil {
		return &StoreError{Op: "enqueueing outgoing message", Err: err}
	}
	return nil
}

// ListOutgoing returns the account's queued outgoing messages, oldest
// first.
func (s *SQLiteStore) ListOutgoing(ctx context.Context, accountID string) ([]model.OutgoingMessage, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, account_id, from_addr, to_addrs, cc_addrs,
		       subject, body, in_reply_to, attempts, last_error,
		       last_attempt_at, created_at
		FROM outgoing WHERE account_id = ? ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, &StoreError{Op: "querying outgoing queue", Err: err}
	}
	defer rows.Close()

	var msgs []model.OutgoingMessage
	for rows.Next() {
		var (
			m       model.OutgoingMessage
			toAddrs string
			ccAddrs string
		)
		err := rows.Scan(
			&m.ID, &m.AccountID, &m.From, &toAddrs, &ccAddrs,
			&m.Subject, &m.Body, &m.InReplyTo, &m.Attempts, &m.LastError,
			&m.LastAttemptAt, &m.CreatedAt,
		)
		if err != nil {
			return nil, &StoreError{Op: "scanning outgoing row", Err: err}
		}

		if toAddrs != "" && toAddrs != "[]" {
			if err := json.Unmarshal([]byte(toAddrs), &m.To); err != nil {
				return nil, &StoreError{Op: "unmarshaling recipients", Err: err}
			}
		}
		if ccAddrs != "" && ccAddrs != "[]" {
			if err := json.Unmarshal([]byte(ccAddrs), &m.Cc); err != nil {
				return nil, &StoreError{Op: "unmarshaling cc recipients", Err: err}
			}
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// DeleteOutgoing removes a queued message after the submission server
// accepted it.
func (s *SQLiteStore) DeleteOutgoing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM outgoing WHERE id = ?", id)
	if err != nil {
		return &StoreError{Op: "deleting outgoing message", Err: err}
	}
	return nil
}

// RecordSendFailure increments the message's attempt counter, records
// the transport error and attempt time, and returns the new attempt
// count.
func (s *SQLiteStore) RecordSendFailure(ctx context.Context, id string, lastError string) (int, error) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outgoing SET attempts = attempts + 1, last_error = ?, last_attempt_at = ? WHERE id = ?",
		lastError, time.Now().UTC(), id,
	)
	if err != nil {
		return 0, &StoreError{Op: "recording send failure", Err: err}
	}

	var attempts int
	err = s.db.GetContext(ctx, &attempts,
		"SELECT attempts FROM outgoing WHERE id = ?", id,
	)
	if err != nil {
		return 0, &StoreError{Op: "reading send attempts", Err: err}
	}
	return attempts, nil
}
