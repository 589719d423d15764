package sqlite

import (
	"database/sql"
	"fmt"
)

// schema is idempotent; every statement can run against an existing database.
const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	telegram_id     INTEGER PRIMARY KEY,
	lang            TEXT NOT NULL DEFAULT 'en',
	not_on_online   BOOLEAN NOT NULL DEFAULT 0,
	linked_username TEXT NOT NULL DEFAULT '',
	notify_join     BOOLEAN NOT NULL DEFAULT 1,
	notify_leave    BOOLEAN NOT NULL DEFAULT 1,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_subscribers_linked ON subscribers(linked_username);

CREATE TABLE IF NOT EXISTS mutes (
	telegram_id INTEGER NOT NULL,
	username    TEXT NOT NULL,
	PRIMARY KEY (telegram_id, username)
);

CREATE TABLE IF NOT EXISTS admins (
	telegram_id INTEGER PRIMARY KEY,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deeplinks (
	token         TEXT PRIMARY KEY,
	action        TEXT NOT NULL,
	talk_username TEXT NOT NULL DEFAULT '',
	expires_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_replies (
	chat_id       INTEGER NOT NULL,
	message_id    INTEGER NOT NULL,
	talk_user_id  INTEGER NOT NULL DEFAULT 0,
	talk_username TEXT NOT NULL DEFAULT '',
	channel_id    INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (chat_id, message_id)
);
`

// EnsureSchema creates missing tables. It matches the NewWithSetup setup signature.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
