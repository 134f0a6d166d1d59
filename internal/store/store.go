// Package store is the relational backing of the ingestion engine: it
// resolves origin-scoped opaque ids to local row ids and applies the
// engine's sparse value sets to the msg/usr tables and their
// account-scoped side tables.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/feedsync/internal/ingest"
)

// ErrDuplicate marks a storage uniqueness-constraint violation on
// (origin_id, oid). The engine surfaces it to the batch driver
// unchanged; it indicates a duplicate-key race the driver must decide
// how to handle.
var ErrDuplicate = errors.New("duplicate key")

// Storage implements ingest.Store over Postgres.
type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// classify tags unique-constraint violations with ErrDuplicate while
// keeping the driver error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// MsgIDByOid maps an origin-scoped message oid to the local row id.
// Cross-references are always resolved through this pair, never by
// local id alone.
func (s *Storage) MsgIDByOid(originID int64, oid string) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM msg WHERE origin_id = $1 AND msg_oid = $2`,
		originID, oid,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup msg oid: %w", err)
	}
	return id, nil
}

func (s *Storage) UserIDByOid(originID int64, oid string) (int64, error) {
	if oid == "" {
		return 0, nil
	}
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM usr WHERE origin_id = $1 AND user_oid = $2`,
		originID, oid,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup user oid: %w", err)
	}
	return id, nil
}

func (s *Storage) UserIDByName(originID int64, username string) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT id FROM usr WHERE origin_id = $1 AND username = $2`,
		originID, username,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup username: %w", err)
	}
	return id, nil
}

func (s *Storage) MsgSentAt(msgID int64) (time.Time, error) {
	var sentAt sql.NullTime
	err := s.db.QueryRow(`SELECT sent_at FROM msg WHERE id = $1`, msgID).Scan(&sentAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read sent_at: %w", err)
	}
	if !sentAt.Valid {
		return time.Time{}, nil
	}
	return sentAt.Time, nil
}

func (s *Storage) MsgSenderID(msgID int64) (int64, error) {
	var senderID sql.NullInt64
	err := s.db.QueryRow(`SELECT sender_id FROM msg WHERE id = $1`, msgID).Scan(&senderID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sender_id: %w", err)
	}
	return senderID.Int64, nil
}

// InsertMsg writes a new message row and, in the same transaction, the
// account-scoped flag row when any flag is set.
func (s *Storage) InsertMsg(accountUserID int64, vals *ingest.MsgValues) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin insert msg: %w", err)
	}
	defer tx.Rollback()

	cols := msgColumns(vals)
	query, args := buildInsert("msg", cols)
	var id int64
	if err := tx.QueryRow(query, args...).Scan(&id); err != nil {
		return 0, classify(err)
	}

	if err := upsertMsgFlags(tx, id, accountUserID, vals); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert msg: %w", err)
	}

	log.Debug().Int64("msg_id", id).Msg("store: message inserted")
	return id, nil
}

// UpdateMsg applies only the set fields of vals to an existing row.
func (s *Storage) UpdateMsg(accountUserID, msgID int64, vals *ingest.MsgValues) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update msg: %w", err)
	}
	defer tx.Rollback()

	if cols := msgColumns(vals); len(cols) > 0 {
		query, args := buildUpdate("msg", cols, msgID)
		if _, err := tx.Exec(query, args...); err != nil {
			return classify(err)
		}
	}
	if err := upsertMsgFlags(tx, msgID, accountUserID, vals); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update msg: %w", err)
	}
	return nil
}

func (s *Storage) InsertUser(accountUserID int64, vals *ingest.UserValues) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin insert user: %w", err)
	}
	defer tx.Rollback()

	cols := userColumns(vals)
	query, args := buildInsert("usr", cols)
	var id int64
	if err := tx.QueryRow(query, args...).Scan(&id); err != nil {
		return 0, classify(err)
	}
	if err := upsertFollowed(tx, id, accountUserID, vals); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert user: %w", err)
	}

	log.Debug().Int64("user_id", id).Msg("store: user inserted")
	return id, nil
}

func (s *Storage) UpdateUser(accountUserID, userID int64, vals *ingest.UserValues) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update user: %w", err)
	}
	defer tx.Rollback()

	if cols := userColumns(vals); len(cols) > 0 {
		query, args := buildUpdate("usr", cols, userID)
		if _, err := tx.Exec(query, args...); err != nil {
			return classify(err)
		}
	}
	if err := upsertFollowed(tx, userID, accountUserID, vals); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update user: %w", err)
	}
	return nil
}

// SetLatestMsg writes the denormalized "latest message per user"
// projection used by the timeline UI.
func (s *Storage) SetLatestMsg(userID, msgID int64, sentAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE usr SET latest_msg_id = $1, latest_msg_sent_at = $2 WHERE id = $3`,
		msgID, nullTime(sentAt), userID,
	)
	if err != nil {
		return fmt.Errorf("set latest msg for user %d: %w", userID, err)
	}
	return nil
}

// ResolveOrCreateUser makes sure a user row exists for an
// origin-scoped identity and returns its local id. Used to bootstrap
// the local account's own row before a sync batch runs.
func (s *Storage) ResolveOrCreateUser(originID int64, oid, username string) (int64, error) {
	id, err := s.UserIDByOid(originID, oid)
	if err != nil {
		return 0, err
	}
	if id == 0 && username != "" {
		if id, err = s.UserIDByName(originID, username); err != nil {
			return 0, err
		}
	}
	if id != 0 {
		return id, nil
	}

	vals := &ingest.UserValues{OriginID: &originID}
	if oid != "" {
		vals.Oid = &oid
	}
	if username != "" {
		vals.UserName = &username
	}
	return s.InsertUser(0, vals)
}
