package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS folders (
	account_id   TEXT NOT NULL,
	name         TEXT NOT NULL,
	epoch        INTEGER NOT NULL DEFAULT 0,
	last_uid     INTEGER NOT NULL DEFAULT 0,
	last_sync_at DATETIME,
	PRIMARY KEY (account_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
	account_id    TEXT NOT NULL,
	folder        TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	remote_id     TEXT NOT NULL,
	uid           INTEGER NOT NULL DEFAULT 0,
	message_id    TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	from_addr     TEXT NOT NULL DEFAULT '',
	from_name     TEXT NOT NULL DEFAULT '',
	to_addrs      TEXT NOT NULL DEFAULT '[]',
	date          DATETIME,
	size          INTEGER NOT NULL DEFAULT 0,
	flag_read     INTEGER NOT NULL DEFAULT 0 CHECK(flag_read IN (0, 1)),
	flag_flagged  INTEGER NOT NULL DEFAULT 0 CHECK(flag_flagged IN (0, 1)),
	flag_answered INTEGER NOT NULL DEFAULT 0 CHECK(flag_answered IN (0, 1)),
	flag_deleted  INTEGER NOT NULL DEFAULT 0 CHECK(flag_deleted IN (0, 1)),
	sync_failed   INTEGER NOT NULL DEFAULT 0 CHECK(sync_failed IN (0, 1)),
	fetched_at    DATETIME NOT NULL,
	PRIMARY KEY (account_id, folder, epoch, remote_id)
);

CREATE TABLE IF NOT EXISTS bodies (
	account_id TEXT NOT NULL,
	folder     TEXT NOT NULL,
	epoch      INTEGER NOT NULL,
	remote_id  TEXT NOT NULL,
	text_body  TEXT NOT NULL DEFAULT '',
	html_body  TEXT NOT NULL DEFAULT '',
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, folder, epoch, remote_id)
);

CREATE TABLE IF NOT EXISTS pending_actions (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id    TEXT NOT NULL,
	folder        TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	remote_id     TEXT NOT NULL,
	kind          TEXT NOT NULL CHECK(kind IN ('set_flag', 'delete', 'move')),
	flag          TEXT NOT NULL DEFAULT '',
	value         INTEGER NOT NULL DEFAULT 0 CHECK(value IN (0, 1)),
	target_folder TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS outgoing (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	from_addr   TEXT NOT NULL,
	to_addrs    TEXT NOT NULL DEFAULT '[]',
	cc_addrs    TEXT NOT NULL DEFAULT '[]',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	in_reply_to TEXT NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	last_attempt_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_folder_uid
	ON messages(account_id, folder, epoch, uid);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
CREATE INDEX IF NOT EXISTS idx_bodies_fetched
	ON bodies(account_id, folder, fetched_at);
CREATE INDEX IF NOT EXISTS idx_pending_folder_seq
	ON pending_actions(account_id, folder, seq);
CREATE INDEX IF NOT EXISTS idx_outgoing_account ON outgoing(account_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
