package ingest

import "time"

// Store is the narrow slice of the storage layer the engine needs:
// identity resolution by origin-scoped ids, column readbacks for the
// new/newer decisions, and sparse insert/update writes.
//
// Implementations must enforce a uniqueness constraint on
// (origin id, oid) and report a violation with an error matching
// store.ErrDuplicate; the engine surfaces it unchanged instead of
// retrying.
type Store interface {
	// MsgIDByOid maps an origin-scoped message oid to the local row id,
	// 0 when no row exists.
	MsgIDByOid(originID int64, oid string) (int64, error)
	// UserIDByOid maps an origin-scoped user oid to the local row id.
	UserIDByOid(originID int64, oid string) (int64, error)
	// UserIDByName maps a username to the local user id within an origin.
	UserIDByName(originID int64, username string) (int64, error)

	MsgSentAt(msgID int64) (time.Time, error)
	MsgSenderID(msgID int64) (int64, error)

	// InsertMsg writes a new message row plus the account-scoped flag
	// values and returns the new local id.
	InsertMsg(accountUserID int64, vals *MsgValues) (int64, error)
	// UpdateMsg applies the set fields of vals to an existing row and
	// its account-scoped flags.
	UpdateMsg(accountUserID, msgID int64, vals *MsgValues) error

	InsertUser(accountUserID int64, vals *UserValues) (int64, error)
	UpdateUser(accountUserID, userID int64, vals *UserValues) error

	// SetLatestMsg records the denormalized "latest message per user"
	// projection; called once per user at batch commit.
	SetLatestMsg(userID, msgID int64, sentAt time.Time) error
}

// MsgValues is the sparse field set one message upsert writes. Nil
// means "leave the stored value alone"; only set fields reach storage.
// Flag fields are scoped to the account driving the sync, even though
// they travel in the same value set as the row columns.
type MsgValues struct {
	OriginID    *int64
	Oid         *string
	AuthorID    *int64
	SenderID    *int64
	RecipientID *int64
	CreatedAt   *time.Time
	SentAt      *time.Time
	Body        *string
	Via         *string
	URL         *string

	InReplyToMsgID  *int64
	InReplyToUserID *int64

	Subscribed *bool
	Favorited  *bool
	Reblogged  *bool
	ReblogOid  *string
	Mentioned  *bool
	Replied    *bool
	Directed   *bool
}

// UserValues is the sparse field set one user upsert writes.
type UserValues struct {
	OriginID    *int64
	Oid         *string
	UserName    *string
	RealName    *string
	AvatarURL   *string
	Description *string
	Homepage    *string
	URL         *string
	CreatedAt   *time.Time

	Followed *bool
}
