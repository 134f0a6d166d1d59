// Package ingest merges decoded messages and users from a remote
// microblogging origin into the local store. The engine decides, per
// incoming record, whether it is new, an update to something already
// stored, or to be skipped, while keeping the per-batch counters and
// the latest-message-per-user projection up to date.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/feedsync/pkg/models"
)

// Engine ingests canonical messages and users for one local account
// and timeline type. It is single-threaded: one engine, one Counters
// and one LatestMessages process a batch strictly sequentially, with
// embedded records resolved inline through recursion.
type Engine struct {
	store    Store
	account  models.Account
	timeline models.TimelineType
	counters *Counters
}

// New builds an engine writing through store on behalf of account,
// attributing counts to counters.
func New(store Store, counters *Counters) *Engine {
	return &Engine{
		store:    store,
		account:  counters.Account,
		timeline: counters.Timeline,
		counters: counters,
	}
}

// UpsertMessage merges one decoded message, resolving its embedded
// actor/sender/recipient/reply/reblog records recursively into the
// same tracker. Malformed input never fails the call: it yields a
// Skipped result with id 0. A storage uniqueness violation is
// reported as Failed with the store's error unchanged.
func (e *Engine) UpsertMessage(m *models.Message, tr *LatestMessages) (res Result) {
	defer e.recoverInto(&res, "upsert message")
	id, err := e.insertOrUpdateMsg(m, tr, 0)
	res = toResult(id, err)
	e.logOutcome("message", m.String(), res)
	return res
}

// UpsertUser merges one decoded user record.
func (e *Engine) UpsertUser(u *models.User, tr *LatestMessages) (res Result) {
	defer e.recoverInto(&res, "upsert user")
	id, err := e.insertOrUpdateUser(u, tr)
	res = toResult(id, err)
	e.logOutcome("user", u.String(), res)
	return res
}

// UpsertMessageOnce ingests a single message outside a batch: it runs
// with a private tracker and commits it immediately.
func (e *Engine) UpsertMessageOnce(m *models.Message) Result {
	tr := NewLatestMessages()
	res := e.UpsertMessage(m, tr)
	if err := tr.Commit(e.store); err != nil {
		log.Error().Err(err).Msg("ingest: standalone tracker commit failed")
	}
	return res
}

// UpsertUserOnce ingests a single user record outside a batch.
func (e *Engine) UpsertUserOnce(u *models.User) Result {
	tr := NewLatestMessages()
	res := e.UpsertUser(u, tr)
	if err := tr.Commit(e.store); err != nil {
		log.Error().Err(err).Msg("ingest: standalone tracker commit failed")
	}
	return res
}

// insertOrUpdateMsg is the recursive message merge. fallbackSenderID
// is non-zero only for the synthetic case of a user payload embedding
// its own latest message with no explicit sender.
func (e *Engine) insertOrUpdateMsg(m *models.Message, tr *LatestMessages, fallbackSenderID int64) (int64, error) {
	if m.IsEmpty() {
		log.Warn().Stringer("msg", m).Msg("ingest: message is empty, skipping")
		return 0, skipf("empty message")
	}

	vals := &MsgValues{}

	// The outer sent time drives ordering; it is replaced by the
	// original's own time during reblog unwrapping below when present.
	sentAt := m.SentAt
	var createdAt time.Time
	if !sentAt.IsZero() {
		createdAt = sentAt
		e.counters.Downloaded++
	}

	actorID := e.account.UserID
	if m.Actor != nil {
		id, err := e.insertOrUpdateUser(m.Actor, tr)
		if err != nil && !isSkip(err) {
			return 0, fmt.Errorf("resolve actor: %w", err)
		}
		actorID = id
	}

	var senderID int64
	if m.Sender != nil {
		id, err := e.insertOrUpdateUser(m.Sender, tr)
		if err != nil && !isSkip(err) {
			return 0, fmt.Errorf("resolve sender: %w", err)
		}
		senderID = id
	} else if fallbackSenderID != 0 {
		senderID = fallbackSenderID
	}

	rowOid := m.Oid
	authorID := senderID
	if m.Reblogged != nil {
		// The author of the original, distinct from the reposting sender.
		if m.Reblogged.Sender != nil {
			id, err := e.insertOrUpdateUser(m.Reblogged.Sender, tr)
			if err != nil && !isSkip(err) {
				return 0, fmt.Errorf("resolve reblogged author: %w", err)
			}
			authorID = id
		}

		if senderID != 0 && senderID == e.account.UserID {
			// The local account did the reposting. Keep the repost's own
			// oid so the repost can be undone without touching the
			// original message.
			vals.Reblogged = boolPtr(true)
			if rowOid != "" {
				oid := rowOid
				vals.ReblogOid = &oid
			}
		}

		// Replace the repost wrapper with the unwrapped original for
		// everything that follows, so one original row is stored rather
		// than a row per repost.
		m = m.Reblogged
		if m.Oid != "" {
			rowOid = m.Oid
		}
		if !m.SentAt.IsZero() {
			sentAt = m.SentAt
			createdAt = m.SentAt
		}
	}
	if authorID != 0 {
		vals.AuthorID = &authorID
	}

	if rowOid == "" {
		// A message the engine cannot identify must never be persisted:
		// a later re-insert with the same missing key would look like a
		// fresh item. The staged value set is discarded with it.
		log.Warn().Stringer("msg", m).Msg("ingest: no message oid, skipping")
		return 0, skipf("missing message oid")
	}

	rowID, err := e.store.MsgIDByOid(e.account.OriginID, rowOid)
	if err != nil {
		return 0, fmt.Errorf("resolve msg oid %q: %w", rowOid, err)
	}

	// A row may pre-exist as a bare in-reply-to stub: it counts as new
	// until it has a sent time and a sender recorded.
	isNew := true
	var storedSent time.Time
	if rowID != 0 {
		storedSent, err = e.store.MsgSentAt(rowID)
		if err != nil {
			return 0, fmt.Errorf("read stored sent time: %w", err)
		}
		isNew = storedSent.IsZero()
		if !isNew {
			storedSender, err := e.store.MsgSenderID(rowID)
			if err != nil {
				return 0, fmt.Errorf("read stored sender: %w", err)
			}
			isNew = storedSender == 0
		}
	}
	// Strictly greater: an equal sent time is a redelivery and must not
	// count again or rewrite the stored time.
	isNewer := sentAt.After(storedSent)
	countable := isNewer

	if isNew {
		vals.CreatedAt = &createdAt
		if senderID != 0 {
			// The sender is written once and never overwritten, so the
			// first-seen authorship survives conflicting redelivery.
			vals.SenderID = &senderID
		}
		oid := rowOid
		vals.Oid = &oid
		originID := e.account.OriginID
		vals.OriginID = &originID
		body := m.Body
		vals.Body = &body
	}
	if isNewer {
		vals.SentAt = &sentAt
	}

	if m.Recipient != nil {
		recipientID, err := e.insertOrUpdateUser(m.Recipient, tr)
		if err != nil && !isSkip(err) {
			return 0, fmt.Errorf("resolve recipient: %w", err)
		}
		if recipientID != 0 {
			vals.RecipientID = &recipientID
			if recipientID == e.account.UserID {
				vals.Directed = boolPtr(true)
				log.Debug().Str("oid", m.Oid).Str("account", e.account.Name).
					Msg("ingest: message is directed to the account")
			}
		}
	}

	if e.timeline == models.TimelineHome {
		vals.Subscribed = boolPtr(true)
	}
	if m.Via != "" {
		via := m.Via
		vals.Via = &via
	}
	if m.URL != "" {
		u := m.URL
		vals.URL = &u
	}
	if m.FavoritedByActor != models.TriUnknown && actorID != 0 && actorID == e.account.UserID {
		fav := m.FavoritedByActor.Bool(false)
		vals.Favorited = &fav
		log.Debug().Str("oid", m.Oid).Bool("favorited", fav).Str("account", e.account.Name).
			Msg("ingest: favorited flag from actor")
	}

	var inReplyToMsgID, inReplyToUserID int64
	if m.InReplyTo != nil {
		inReplyToMsgID, err = e.insertOrUpdateMsg(m.InReplyTo, tr, 0)
		if err != nil && !isSkip(err) {
			return 0, fmt.Errorf("upsert in-reply-to message: %w", err)
		}
		if m.InReplyTo.Sender != nil {
			inReplyToUserID, err = e.store.UserIDByOid(e.originOf(m), m.InReplyTo.Sender.Oid)
			if err != nil {
				return 0, fmt.Errorf("resolve in-reply-to sender: %w", err)
			}
		} else if inReplyToMsgID != 0 {
			inReplyToUserID, err = e.store.MsgSenderID(inReplyToMsgID)
			if err != nil {
				return 0, fmt.Errorf("read in-reply-to sender: %w", err)
			}
		}
	}

	// A reply to the local account is treated as a mention too, even
	// though it is not literally an @-mention.
	mentioned := e.timeline == models.TimelineMentions
	if inReplyToUserID != 0 {
		vals.InReplyToUserID = &inReplyToUserID
		if inReplyToUserID == e.account.UserID {
			vals.Replied = boolPtr(true)
			if countable {
				e.counters.NewReplies++
			}
			mentioned = true
		}
	}
	if inReplyToMsgID != 0 {
		vals.InReplyToMsgID = &inReplyToMsgID
	}

	if countable {
		e.counters.NewMsgs++
	}

	if !mentioned && m.Body != "" &&
		strings.Contains(m.Body, "@"+e.account.Username) {
		mentioned = true
	}
	if mentioned {
		if countable {
			e.counters.NewMentions++
		}
		vals.Mentioned = boolPtr(true)
	}

	log.Debug().
		Str("oid", rowOid).
		Bool("new", isNew).
		Bool("newer", isNewer).
		Int64("row_id", rowID).
		Msg("ingest: writing message")

	if rowID == 0 {
		rowID, err = e.store.InsertMsg(e.account.UserID, vals)
	} else {
		err = e.store.UpdateMsg(e.account.UserID, rowID, vals)
	}
	if err != nil {
		// Uniqueness violations surface here unchanged.
		return 0, fmt.Errorf("write message %q: %w", rowOid, err)
	}

	if senderID != 0 {
		tr.Record(senderID, rowID, sentAt)
	}
	if authorID != 0 && authorID != senderID {
		// The same message can be a user's latest in two roles: as the
		// repost's sender and as the unwrapped original's author.
		tr.Record(authorID, rowID, createdAt)
	}

	return rowID, nil
}

// insertOrUpdateUser is the recursive user merge.
func (e *Engine) insertOrUpdateUser(u *models.User, tr *LatestMessages) (int64, error) {
	if u.IsEmpty() {
		log.Warn().Stringer("user", u).Msg("ingest: user is empty, skipping")
		return 0, skipf("empty user")
	}

	originID := u.OriginID
	if originID == 0 {
		originID = e.account.OriginID
	}

	// The reader decides whether a follow flag applies to the local
	// account.
	readerID := e.account.UserID
	if u.Actor != nil {
		id, err := e.insertOrUpdateUser(u.Actor, tr)
		if err != nil && !isSkip(err) {
			return 0, fmt.Errorf("resolve reader: %w", err)
		}
		readerID = id
	}

	var userID int64
	var err error
	if u.Oid != "" {
		userID, err = e.store.UserIDByOid(originID, u.Oid)
		if err != nil {
			return 0, fmt.Errorf("resolve user oid %q: %w", u.Oid, err)
		}
	}
	if userID == 0 {
		if u.UserName == "" {
			log.Warn().Stringer("user", u).Msg("ingest: user has no oid match and no username, skipping")
			return 0, skipf("user without oid or username")
		}
		userID, err = e.store.UserIDByName(originID, u.UserName)
		if err != nil {
			return 0, fmt.Errorf("resolve username %q: %w", u.UserName, err)
		}
	}

	vals := &UserValues{OriginID: &originID}
	if u.Oid != "" {
		oid := u.Oid
		vals.Oid = &oid
	}
	setIfNonEmpty(&vals.UserName, u.UserName)
	setIfNonEmpty(&vals.RealName, u.RealName)
	setIfNonEmpty(&vals.AvatarURL, u.AvatarURL)
	setIfNonEmpty(&vals.Description, u.Description)
	setIfNonEmpty(&vals.Homepage, u.Homepage)
	setIfNonEmpty(&vals.URL, u.URL)

	if !u.CreatedAt.IsZero() {
		t := u.CreatedAt
		vals.CreatedAt = &t
	} else if userID == 0 && !u.UpdatedAt.IsZero() {
		// First-time insert only: fall back to the update time rather
		// than leaving the row without any date.
		t := u.UpdatedAt
		vals.CreatedAt = &t
	}

	if u.FollowedByActor != models.TriUnknown && readerID == e.account.UserID {
		followed := u.FollowedByActor.Bool(false)
		vals.Followed = &followed
		log.Debug().Str("username", u.UserName).Bool("followed", followed).
			Str("account", e.account.Name).Msg("ingest: followed flag from reader")
	}

	if userID == 0 {
		userID, err = e.store.InsertUser(e.account.UserID, vals)
	} else {
		err = e.store.UpdateUser(e.account.UserID, userID, vals)
	}
	if err != nil {
		return 0, fmt.Errorf("write user %q: %w", u.UserName, err)
	}

	if u.LatestMessage != nil {
		// A standalone user record often embeds its latest message with
		// no explicit sender: the sender is the user itself.
		if _, err := e.insertOrUpdateMsg(u.LatestMessage, tr, userID); err != nil && !isSkip(err) {
			return 0, fmt.Errorf("upsert user's latest message: %w", err)
		}
	}

	log.Debug().Int64("user_id", userID).Str("oid", u.Oid).Msg("ingest: user upserted")
	return userID, nil
}

// originOf picks the origin an embedded reference should be resolved
// in: the message's own when the decoder set one, the account's
// otherwise.
func (e *Engine) originOf(m *models.Message) int64 {
	if m.OriginID != 0 {
		return m.OriginID
	}
	return e.account.OriginID
}

func (e *Engine) recoverInto(res *Result, op string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("%s panicked: %v", op, r)
		log.Error().Err(err).Msg("ingest: recovered")
		*res = Result{Status: StatusFailed, Err: err}
	}
}

func (e *Engine) logOutcome(kind, item string, res Result) {
	switch res.Status {
	case StatusFailed:
		log.Error().Err(res.Err).Str("item", item).Msgf("ingest: %s upsert failed", kind)
	case StatusSkipped:
		log.Warn().Str("item", item).Str("reason", res.Reason).Msgf("ingest: %s skipped", kind)
	}
}

func boolPtr(b bool) *bool { return &b }

func setIfNonEmpty(dst **string, v string) {
	if v != "" {
		s := v
		*dst = &s
	}
}
