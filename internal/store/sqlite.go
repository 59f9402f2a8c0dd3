package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tomatyss/linsky/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &StoreError{Op: "enable WAL", Err: err}
	}

	// Serialize conflicting writers instead of failing fast.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, &StoreError{Op: "set busy timeout", Err: err}
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return &StoreError{Op: "checking schema_version table", Err: err}
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return &StoreError{Op: "reading schema version", Err: err}
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return &StoreError{Op: fmt.Sprintf("applying migration v%d", m.version), Err: err}
		}
	}

	return nil
}

// UpsertFolders records the folder names reported by the server,
// preserving existing cursors.
func (s *SQLiteStore) UpsertFolders(ctx context.Context, accountID string, names []string) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "beginning transaction", Err: err}
	}
	defer tx.Rollback()

	for _, name := range names {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO folders (account_id, name) VALUES (?, ?)
			ON CONFLICT(account_id, name) DO NOTHING`,
			accountID, name,
		)
		if err != nil {
			return &StoreError{Op: "upserting folder " + name, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "committing folders", Err: err}
	}
	return nil
}

// GetFolder retrieves one folder with its sync cursor.
func (s *SQLiteStore) GetFolder(ctx context.Context, accountID, name string) (*model.Folder, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT account_id, name, epoch, last_uid, last_sync_at
		FROM folders WHERE account_id = ? AND name = ?`,
		accountID, name,
	)

	f, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: "getting folder " + name, Err: err}
	}
	return &f, nil
}

// ListFolders retrieves all folders for an account.
func (s *SQLiteStore) ListFolders(ctx context.Context, accountID string) ([]model.Folder, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT account_id, name, epoch, last_uid, last_sync_at
		FROM folders WHERE account_id = ? ORDER BY name`,
		accountID,
	)
	if err != nil {
		return nil, &StoreError{Op: "querying folders", Err: err}
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, &StoreError{Op: "scanning folder row", Err: err}
		}
		folders = append(folders, f)
	}

	return folders, rows.Err()
}

// DeleteAccount removes the account's entire namespace: folders,
// messages, bodies, pending actions, and queued outgoing mail.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, accountID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "beginning transaction", Err: err}
	}
	defer tx.Rollback()

	for _, table := range []string{"folders", "messages", "bodies", "pending_actions", "outgoing"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE account_id = ?", accountID,
		); err != nil {
			return &StoreError{Op: "deleting account rows from " + table, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "committing account deletion", Err: err}
	}
	return nil
}

// rowScanner is satisfied by both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFolder(row rowScanner) (model.Folder, error) {
	var (
		f          model.Folder
		lastSyncAt sql.NullTime
	)

	err := row.Scan(&f.AccountID, &f.Name, &f.Cursor.Epoch, &f.Cursor.LastUID, &lastSyncAt)
	if err != nil {
		return model.Folder{}, err
	}

	if lastSyncAt.Valid {
		f.Cursor.LastSyncAt = lastSyncAt.Time
	}
	return f, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
