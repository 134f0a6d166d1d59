package models

import (
	"fmt"
	"time"
)

// TriState represents a flag that may be absent from a wire payload.
// "Absent" must stay distinguishable from "explicitly false", so this
// is never collapsed into a plain bool.
type TriState int

const (
	TriUnknown TriState = iota
	TriTrue
	TriFalse
)

// Bool resolves the tri-state to a bool, using def when unknown.
func (t TriState) Bool(def bool) bool {
	switch t {
	case TriTrue:
		return true
	case TriFalse:
		return false
	default:
		return def
	}
}

func (t TriState) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// TriFromBool converts an explicitly known bool into a TriState.
func TriFromBool(b bool) TriState {
	if b {
		return TriTrue
	}
	return TriFalse
}

// TimelineType identifies which timeline a sync batch is filling.
type TimelineType string

const (
	TimelineHome      TimelineType = "home"
	TimelineMentions  TimelineType = "mentions"
	TimelineDirect    TimelineType = "direct"
	TimelineFavorites TimelineType = "favorites"
	TimelineAll       TimelineType = "all"
)

// Message is the canonical decoded form of one wire message. It is
// built fresh per payload and not mutated after construction. Embedded
// messages and users form an owned value tree; nesting depth is
// bounded by what the transport layer actually produces
// (reblog-of-reblog, reply-of-reply).
type Message struct {
	OriginID int64
	Oid      string // opaque id, unique within one origin
	SentAt   time.Time
	Body     string

	Actor     *User // the account on whose behalf this payload was fetched
	Sender    *User
	Recipient *User

	Reblogged *Message // presence means this record is a repost wrapper
	InReplyTo *Message

	FavoritedByActor TriState

	Via string
	URL string
}

// IsEmpty reports whether the message carries no identity information
// at all: nothing to look up, nothing worth storing.
func (m *Message) IsEmpty() bool {
	return m == nil ||
		(m.Oid == "" && m.Body == "" && m.SentAt.IsZero() && m.Reblogged == nil)
}

func (m *Message) String() string {
	if m == nil {
		return "msg(nil)"
	}
	return fmt.Sprintf("msg(oid=%q origin=%d sent=%s body_len=%d)",
		m.Oid, m.OriginID, m.SentAt.Format(time.RFC3339), len(m.Body))
}

// User is the canonical decoded form of one wire user record.
type User struct {
	OriginID    int64
	Oid         string
	UserName    string
	RealName    string
	AvatarURL   string
	Description string
	Homepage    string
	URL         string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	FollowedByActor TriState

	// Actor is the reader/viewer this record was fetched for; it decides
	// whether FollowedByActor applies to the local account.
	Actor *User

	LatestMessage *Message
}

// IsEmpty reports whether the user has neither a usable origin id nor
// a username.
func (u *User) IsEmpty() bool {
	return u == nil || (u.Oid == "" && u.UserName == "")
}

func (u *User) String() string {
	if u == nil {
		return "user(nil)"
	}
	return fmt.Sprintf("user(oid=%q origin=%d username=%q)", u.Oid, u.OriginID, u.UserName)
}

// Account is the local viewing account a sync batch runs for. All
// account-scoped flags (favorited, reblogged, followed, ...) are
// relative to it.
type Account struct {
	UserID   int64  `json:"user_id" db:"user_id"`
	OriginID int64  `json:"origin_id" db:"origin_id"`
	Username string `json:"username" db:"username"`
	Name     string `json:"name" db:"name"` // display name, e.g. "alice@twitter"
}

// MsgRecord is the stored shape of one message row.
type MsgRecord struct {
	LocalID         int64     `json:"id" db:"id"`
	OriginID        int64     `json:"origin_id" db:"origin_id"`
	Oid             string    `json:"msg_oid" db:"msg_oid"`
	AuthorID        int64     `json:"author_id" db:"author_id"`
	SenderID        int64     `json:"sender_id" db:"sender_id"`
	RecipientID     int64     `json:"recipient_id" db:"recipient_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	SentAt          time.Time `json:"sent_at" db:"sent_at"`
	Body            string    `json:"body" db:"body"`
	Via             string    `json:"via" db:"via"`
	URL             string    `json:"url" db:"url"`
	InReplyToMsgID  int64     `json:"in_reply_to_msg_id" db:"in_reply_to_msg_id"`
	InReplyToUserID int64     `json:"in_reply_to_user_id" db:"in_reply_to_user_id"`
}

// MsgFlags are the account-scoped attributes of a stored message:
// the same row can carry different flag sets for different local
// accounts, keyed by (msg id, account user id).
type MsgFlags struct {
	Subscribed bool   `json:"subscribed" db:"subscribed"`
	Favorited  bool   `json:"favorited" db:"favorited"`
	Reblogged  bool   `json:"reblogged" db:"reblogged"`
	ReblogOid  string `json:"reblog_oid" db:"reblog_oid"` // repost action's own oid, kept so the repost can be undone
	Mentioned  bool   `json:"mentioned" db:"mentioned"`
	Replied    bool   `json:"replied" db:"replied"`
	Directed   bool   `json:"directed" db:"directed"`
}

// UserRecord is the stored shape of one user row.
type UserRecord struct {
	LocalID     int64     `json:"id" db:"id"`
	OriginID    int64     `json:"origin_id" db:"origin_id"`
	Oid         string    `json:"user_oid" db:"user_oid"`
	UserName    string    `json:"username" db:"username"`
	RealName    string    `json:"real_name" db:"real_name"`
	AvatarURL   string    `json:"avatar_url" db:"avatar_url"`
	Description string    `json:"description" db:"description"`
	Homepage    string    `json:"homepage" db:"homepage"`
	URL         string    `json:"url" db:"url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// SyncRun records one finished ingestion batch and its counter
// readout for the UI layer.
type SyncRun struct {
	ID         string       `json:"id" db:"id"`
	AccountID  int64        `json:"account_id" db:"account_id"`
	Timeline   TimelineType `json:"timeline" db:"timeline"`
	StartedAt  time.Time    `json:"started_at" db:"started_at"`
	FinishedAt time.Time    `json:"finished_at" db:"finished_at"`
	Downloaded int          `json:"downloaded" db:"downloaded"`
	NewMsgs    int          `json:"new_msgs" db:"new_msgs"`
	NewReplies int          `json:"new_replies" db:"new_replies"`
	NewMention int          `json:"new_mentions" db:"new_mentions"`
	Failed     int          `json:"failed" db:"failed"`
	Skipped    int          `json:"skipped" db:"skipped"`
}
