package database

import (
	"database/sql"
	"fmt"
)

// Schema statements, applied in order. The unique index on
// (origin_id, msg_oid) is what prevents duplicate message rows under
// concurrent insert races; the ingestion engine relies on its
// violation being reported, not silently resolved.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS usr (
		id                 BIGSERIAL PRIMARY KEY,
		origin_id          BIGINT NOT NULL,
		user_oid           TEXT,
		username           TEXT,
		real_name          TEXT,
		avatar_url         TEXT,
		description        TEXT,
		homepage           TEXT,
		url                TEXT,
		created_at         TIMESTAMPTZ,
		latest_msg_id      BIGINT,
		latest_msg_sent_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS usr_origin_oid
		ON usr (origin_id, user_oid) WHERE user_oid IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS usr_origin_username
		ON usr (origin_id, username)`,

	`CREATE TABLE IF NOT EXISTS msg (
		id                  BIGSERIAL PRIMARY KEY,
		origin_id           BIGINT NOT NULL,
		msg_oid             TEXT NOT NULL,
		author_id           BIGINT,
		sender_id           BIGINT,
		recipient_id        BIGINT,
		created_at          TIMESTAMPTZ,
		sent_at             TIMESTAMPTZ,
		body                TEXT,
		via                 TEXT,
		url                 TEXT,
		in_reply_to_msg_id  BIGINT,
		in_reply_to_user_id BIGINT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS msg_origin_oid
		ON msg (origin_id, msg_oid)`,
	`CREATE INDEX IF NOT EXISTS msg_sent_at ON msg (sent_at)`,

	`CREATE TABLE IF NOT EXISTS msg_of_user (
		msg_id     BIGINT NOT NULL REFERENCES msg (id),
		account_id BIGINT NOT NULL,
		subscribed BOOLEAN NOT NULL DEFAULT FALSE,
		favorited  BOOLEAN NOT NULL DEFAULT FALSE,
		reblogged  BOOLEAN NOT NULL DEFAULT FALSE,
		reblog_oid TEXT    NOT NULL DEFAULT '',
		mentioned  BOOLEAN NOT NULL DEFAULT FALSE,
		replied    BOOLEAN NOT NULL DEFAULT FALSE,
		directed   BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (msg_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS following_user (
		user_id    BIGINT NOT NULL REFERENCES usr (id),
		account_id BIGINT NOT NULL,
		followed   BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (user_id, account_id)
	)`,

	`CREATE TABLE IF NOT EXISTS sync_run (
		id           UUID PRIMARY KEY,
		account_id   BIGINT NOT NULL,
		timeline     TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ NOT NULL,
		downloaded   INT NOT NULL DEFAULT 0,
		new_msgs     INT NOT NULL DEFAULT 0,
		new_replies  INT NOT NULL DEFAULT 0,
		new_mentions INT NOT NULL DEFAULT 0,
		failed       INT NOT NULL DEFAULT 0,
		skipped      INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS sync_run_started ON sync_run (started_at)`,
}

// Migrate creates the feedsync tables when they do not exist yet.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
