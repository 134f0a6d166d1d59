package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/pkg/models"
)

// fakeStore is an in-memory Store used to drive the engine without a
// database. Flags are kept per (account, msg), mirroring the real
// account-scoped join table.
type fakeStore struct {
	nextID int64

	msgs  map[int64]*msgRow
	users map[int64]*userRow
	flags map[[2]int64]*models.MsgFlags

	latest map[int64]UserMsg

	failWrite error // when set, InsertMsg/UpdateMsg return it
}

type msgRow struct {
	id, originID                int64
	oid                         string
	authorID, senderID          int64
	recipientID                 int64
	createdAt, sentAt           time.Time
	body, via, url              string
	inReplyToMsg, inReplyToUser int64
}

type userRow struct {
	id, originID int64
	oid          string
	username     string
	realName     string
	avatarURL    string
	description  string
	homepage     string
	url          string
	createdAt    time.Time
	followed     map[int64]bool // by account user id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgs:   make(map[int64]*msgRow),
		users:  make(map[int64]*userRow),
		flags:  make(map[[2]int64]*models.MsgFlags),
		latest: make(map[int64]UserMsg),
	}
}

func (f *fakeStore) MsgIDByOid(originID int64, oid string) (int64, error) {
	for _, r := range f.msgs {
		if r.originID == originID && r.oid == oid {
			return r.id, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) UserIDByOid(originID int64, oid string) (int64, error) {
	if oid == "" {
		return 0, nil
	}
	for _, r := range f.users {
		if r.originID == originID && r.oid == oid {
			return r.id, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) UserIDByName(originID int64, username string) (int64, error) {
	for _, r := range f.users {
		if r.originID == originID && r.username == username {
			return r.id, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) MsgSentAt(msgID int64) (time.Time, error) {
	if r, ok := f.msgs[msgID]; ok {
		return r.sentAt, nil
	}
	return time.Time{}, nil
}

func (f *fakeStore) MsgSenderID(msgID int64) (int64, error) {
	if r, ok := f.msgs[msgID]; ok {
		return r.senderID, nil
	}
	return 0, nil
}

func (f *fakeStore) InsertMsg(accountUserID int64, vals *MsgValues) (int64, error) {
	if f.failWrite != nil {
		return 0, f.failWrite
	}
	f.nextID++
	r := &msgRow{id: f.nextID}
	f.msgs[r.id] = r
	f.applyMsg(accountUserID, r, vals)
	return r.id, nil
}

func (f *fakeStore) UpdateMsg(accountUserID, msgID int64, vals *MsgValues) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	r, ok := f.msgs[msgID]
	if !ok {
		return errors.New("no such msg row")
	}
	f.applyMsg(accountUserID, r, vals)
	return nil
}

func (f *fakeStore) applyMsg(accountUserID int64, r *msgRow, vals *MsgValues) {
	if vals.OriginID != nil {
		r.originID = *vals.OriginID
	}
	if vals.Oid != nil {
		r.oid = *vals.Oid
	}
	if vals.AuthorID != nil {
		r.authorID = *vals.AuthorID
	}
	if vals.SenderID != nil {
		r.senderID = *vals.SenderID
	}
	if vals.RecipientID != nil {
		r.recipientID = *vals.RecipientID
	}
	if vals.CreatedAt != nil {
		r.createdAt = *vals.CreatedAt
	}
	if vals.SentAt != nil {
		r.sentAt = *vals.SentAt
	}
	if vals.Body != nil {
		r.body = *vals.Body
	}
	if vals.Via != nil {
		r.via = *vals.Via
	}
	if vals.URL != nil {
		r.url = *vals.URL
	}
	if vals.InReplyToMsgID != nil {
		r.inReplyToMsg = *vals.InReplyToMsgID
	}
	if vals.InReplyToUserID != nil {
		r.inReplyToUser = *vals.InReplyToUserID
	}

	fl := f.flagsFor(r.id, accountUserID)
	if vals.Subscribed != nil {
		fl.Subscribed = *vals.Subscribed
	}
	if vals.Favorited != nil {
		fl.Favorited = *vals.Favorited
	}
	if vals.Reblogged != nil {
		fl.Reblogged = *vals.Reblogged
	}
	if vals.ReblogOid != nil {
		fl.ReblogOid = *vals.ReblogOid
	}
	if vals.Mentioned != nil {
		fl.Mentioned = *vals.Mentioned
	}
	if vals.Replied != nil {
		fl.Replied = *vals.Replied
	}
	if vals.Directed != nil {
		fl.Directed = *vals.Directed
	}
}

func (f *fakeStore) flagsFor(msgID, accountUserID int64) *models.MsgFlags {
	key := [2]int64{msgID, accountUserID}
	if f.flags[key] == nil {
		f.flags[key] = &models.MsgFlags{}
	}
	return f.flags[key]
}

func (f *fakeStore) InsertUser(accountUserID int64, vals *UserValues) (int64, error) {
	f.nextID++
	r := &userRow{id: f.nextID, followed: make(map[int64]bool)}
	f.users[r.id] = r
	f.applyUser(accountUserID, r, vals)
	return r.id, nil
}

func (f *fakeStore) UpdateUser(accountUserID, userID int64, vals *UserValues) error {
	r, ok := f.users[userID]
	if !ok {
		return errors.New("no such user row")
	}
	f.applyUser(accountUserID, r, vals)
	return nil
}

func (f *fakeStore) applyUser(accountUserID int64, r *userRow, vals *UserValues) {
	if vals.OriginID != nil {
		r.originID = *vals.OriginID
	}
	if vals.Oid != nil {
		r.oid = *vals.Oid
	}
	if vals.UserName != nil {
		r.username = *vals.UserName
	}
	if vals.RealName != nil {
		r.realName = *vals.RealName
	}
	if vals.AvatarURL != nil {
		r.avatarURL = *vals.AvatarURL
	}
	if vals.Description != nil {
		r.description = *vals.Description
	}
	if vals.Homepage != nil {
		r.homepage = *vals.Homepage
	}
	if vals.URL != nil {
		r.url = *vals.URL
	}
	if vals.CreatedAt != nil {
		r.createdAt = *vals.CreatedAt
	}
	if vals.Followed != nil {
		r.followed[accountUserID] = *vals.Followed
	}
}

func (f *fakeStore) SetLatestMsg(userID, msgID int64, sentAt time.Time) error {
	f.latest[userID] = UserMsg{UserID: userID, MsgID: msgID, At: sentAt}
	return nil
}

func (f *fakeStore) msgByOid(oid string) *msgRow {
	for _, r := range f.msgs {
		if r.oid == oid {
			return r
		}
	}
	return nil
}

func (f *fakeStore) userByName(name string) *userRow {
	for _, r := range f.users {
		if r.username == name {
			return r
		}
	}
	return nil
}

func (f *fakeStore) msgCount() int { return len(f.msgs) }

// ---

var bob = models.Account{UserID: 0, OriginID: 1, Username: "bob", Name: "bob@twitter"}

func newTestEngine(t *testing.T, s *fakeStore, timeline models.TimelineType) (*Engine, *Counters) {
	t.Helper()
	// Give the local account a real user row so id comparisons are
	// meaningful.
	id, err := s.InsertUser(0, &UserValues{
		OriginID: int64Ptr(1),
		Oid:      strPtr("oid-bob"),
		UserName: strPtr("bob"),
	})
	require.NoError(t, err)
	acct := bob
	acct.UserID = id
	c := NewCounters(acct, timeline)
	return New(s, c), c
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
func ts(sec int64) time.Time  { return time.Unix(sec, 0).UTC() }

func alice() *models.User {
	return &models.User{OriginID: 1, Oid: "oid-alice", UserName: "alice"}
}

func TestIngestMentionThenIdenticalRedelivery(t *testing.T) {
	s := newFakeStore()
	e, c := newTestEngine(t, s, models.TimelineMentions)
	tr := NewLatestMessages()

	msg := &models.Message{
		OriginID: 1,
		Oid:      "a1",
		SentAt:   ts(100),
		Body:     "hi @bob",
		Sender:   alice(),
	}

	res := e.UpsertMessage(msg, tr)
	require.True(t, res.Stored())
	require.NotZero(t, res.LocalID)

	assert.Equal(t, 1, c.NewMsgs)
	assert.Equal(t, 1, c.NewMentions)
	assert.Equal(t, 0, c.NewReplies)
	assert.Equal(t, 1, c.Downloaded)

	row := s.msgByOid("a1")
	require.NotNil(t, row)
	assert.Equal(t, ts(100), row.sentAt)
	assert.True(t, s.flagsFor(row.id, e.account.UserID).Mentioned)

	// Identical redelivery: same local id back, no counter increments,
	// no sent-at change.
	res2 := e.UpsertMessage(msg, tr)
	require.True(t, res2.Stored())
	assert.Equal(t, res.LocalID, res2.LocalID)
	assert.Equal(t, 1, c.NewMsgs)
	assert.Equal(t, 1, c.NewMentions)
	assert.Equal(t, 2, c.Downloaded) // downloaded counts every delivery
	assert.Equal(t, ts(100), s.msgByOid("a1").sentAt)
}

func TestSentAtOnlyMovesForward(t *testing.T) {
	s := newFakeStore()
	e, c := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	base := &models.Message{OriginID: 1, Oid: "m1", SentAt: ts(200), Body: "x", Sender: alice()}
	require.True(t, e.UpsertMessage(base, tr).Stored())
	require.Equal(t, 1, c.NewMsgs)

	// Older delivery must not re-age the row or count.
	older := *base
	older.SentAt = ts(150)
	require.True(t, e.UpsertMessage(&older, tr).Stored())
	assert.Equal(t, ts(200), s.msgByOid("m1").sentAt)
	assert.Equal(t, 1, c.NewMsgs)

	// Strictly newer delivery advances the time and counts once more.
	newer := *base
	newer.SentAt = ts(300)
	require.True(t, e.UpsertMessage(&newer, tr).Stored())
	assert.Equal(t, ts(300), s.msgByOid("m1").sentAt)
	assert.Equal(t, 2, c.NewMsgs)
}

func TestEmptyAndUnidentifiableMessagesAreSkipped(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()
	before := s.msgCount()

	res := e.UpsertMessage(&models.Message{}, tr)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, res.LocalID)

	// Has content but no oid: still never persisted.
	res = e.UpsertMessage(&models.Message{OriginID: 1, Body: "hello", SentAt: ts(10)}, tr)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, res.LocalID)
	assert.Equal(t, before, s.msgCount())
}

func TestReblogUnwrapsToSingleOriginalRow(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	// carol reposts alice's message; carol is not the local account.
	reblog := &models.Message{
		OriginID: 1,
		Oid:      "r1",
		SentAt:   ts(500),
		Sender:   &models.User{OriginID: 1, Oid: "oid-carol", UserName: "carol"},
		Reblogged: &models.Message{
			OriginID: 1,
			Oid:      "a1",
			SentAt:   ts(100),
			Body:     "original",
			Sender:   alice(),
		},
	}

	res := e.UpsertMessage(reblog, tr)
	require.True(t, res.Stored())

	// Exactly one message row, the original; no row for the repost.
	require.NotNil(t, s.msgByOid("a1"))
	assert.Nil(t, s.msgByOid("r1"))

	row := s.msgByOid("a1")
	aliceRow := s.userByName("alice")
	carolRow := s.userByName("carol")
	require.NotNil(t, aliceRow)
	require.NotNil(t, carolRow)
	assert.Equal(t, aliceRow.id, row.authorID)
	assert.Equal(t, carolRow.id, row.senderID)

	// carol is not the viewing account, so no reblogged flag for bob.
	assert.False(t, s.flagsFor(row.id, e.account.UserID).Reblogged)
}

func TestReblogByLocalAccountSetsFlagAndReblogOid(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	reblog := &models.Message{
		OriginID: 1,
		Oid:      "r1",
		SentAt:   ts(500),
		Sender:   &models.User{OriginID: 1, Oid: "oid-bob", UserName: "bob"},
		Reblogged: &models.Message{
			OriginID: 1,
			Oid:      "a1",
			SentAt:   ts(100),
			Body:     "original",
			Sender:   alice(),
		},
	}

	res := e.UpsertMessage(reblog, tr)
	require.True(t, res.Stored())

	row := s.msgByOid("a1")
	require.NotNil(t, row)
	assert.Equal(t, s.userByName("alice").id, row.authorID)
	// The reposting account is recorded as the row's (first-seen) sender.
	assert.Equal(t, e.account.UserID, row.senderID)

	fl := s.flagsFor(row.id, e.account.UserID)
	assert.True(t, fl.Reblogged)
	assert.Equal(t, "r1", fl.ReblogOid)
}

func TestReblogOfUnidentifiableOriginalIsSkippedWithoutDanglingFlags(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()
	flagsBefore := len(s.flags)

	reblog := &models.Message{
		OriginID:  1,
		Oid:       "r1",
		SentAt:    ts(500),
		Sender:    &models.User{OriginID: 1, Oid: "oid-bob", UserName: "bob"},
		Reblogged: &models.Message{OriginID: 1, Body: "no id here", SentAt: ts(100)},
	}

	res := e.UpsertMessage(reblog, tr)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Zero(t, res.LocalID)
	assert.Equal(t, 0, s.msgCount())
	// The staged reblogged flag was discarded with the skipped row.
	assert.Equal(t, flagsBefore, len(s.flags))
}

func TestReplyToLocalAccountCountsReplyAndMention(t *testing.T) {
	s := newFakeStore()
	e, c := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	reply := &models.Message{
		OriginID: 1,
		Oid:      "m2",
		SentAt:   ts(300),
		Body:     "sure thing",
		Sender:   alice(),
		InReplyTo: &models.Message{
			OriginID: 1,
			Oid:      "m1",
			SentAt:   ts(100),
			Body:     "anyone around?",
			Sender:   &models.User{OriginID: 1, Oid: "oid-bob", UserName: "bob"},
		},
	}

	res := e.UpsertMessage(reply, tr)
	require.True(t, res.Stored())

	assert.Equal(t, 1, c.NewReplies)
	assert.Equal(t, 1, c.NewMentions)
	assert.Equal(t, 2, c.NewMsgs) // the reply target was ingested too

	row := s.msgByOid("m2")
	require.NotNil(t, row)
	fl := s.flagsFor(row.id, e.account.UserID)
	assert.True(t, fl.Replied)
	assert.True(t, fl.Mentioned)
	assert.Equal(t, s.msgByOid("m1").id, row.inReplyToMsg)
	assert.Equal(t, e.account.UserID, row.inReplyToUser)

	// Redelivery with the same times: no further counting.
	res = e.UpsertMessage(reply, tr)
	require.True(t, res.Stored())
	assert.Equal(t, 1, c.NewReplies)
	assert.Equal(t, 1, c.NewMentions)
	assert.Equal(t, 2, c.NewMsgs)
}

func TestBodyMentionWithoutReplyLink(t *testing.T) {
	s := newFakeStore()
	e, c := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	res := e.UpsertMessage(&models.Message{
		OriginID: 1,
		Oid:      "m3",
		SentAt:   ts(50),
		Body:     "shoutout to @bob today",
		Sender:   alice(),
	}, tr)
	require.True(t, res.Stored())

	assert.Equal(t, 1, c.NewMentions)
	assert.True(t, s.flagsFor(res.LocalID, e.account.UserID).Mentioned)

	// No mention in the body, not the mentions timeline: no flag.
	res = e.UpsertMessage(&models.Message{
		OriginID: 1,
		Oid:      "m4",
		SentAt:   ts(60),
		Body:     "just talking to myself",
		Sender:   alice(),
	}, tr)
	require.True(t, res.Stored())
	assert.Equal(t, 1, c.NewMentions)
	assert.False(t, s.flagsFor(res.LocalID, e.account.UserID).Mentioned)
}

func TestStubRowStillCountsAsNewWhenFilledIn(t *testing.T) {
	s := newFakeStore()
	e, c := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	// The reply target arrives only as a bare in-reply-to stub: oid,
	// no sender, no sent time.
	reply := &models.Message{
		OriginID:  1,
		Oid:       "m2",
		SentAt:    ts(300),
		Body:      "late answer",
		Sender:    alice(),
		InReplyTo: &models.Message{OriginID: 1, Oid: "m1", Body: "q"},
	}
	require.True(t, e.UpsertMessage(reply, tr).Stored())

	stub := s.msgByOid("m1")
	require.NotNil(t, stub)
	assert.Zero(t, stub.senderID)
	assert.True(t, stub.sentAt.IsZero())
	assert.Equal(t, 1, c.NewMsgs) // the stub itself was not countable

	// Now the full target arrives: the pre-existing stub is treated as
	// new, the sender is recorded and the message counts.
	full := &models.Message{
		OriginID: 1,
		Oid:      "m1",
		SentAt:   ts(100),
		Body:     "q",
		Sender:   &models.User{OriginID: 1, Oid: "oid-carol", UserName: "carol"},
	}
	require.True(t, e.UpsertMessage(full, tr).Stored())

	stub = s.msgByOid("m1")
	assert.Equal(t, s.userByName("carol").id, stub.senderID)
	assert.Equal(t, ts(100), stub.sentAt)
	assert.Equal(t, 2, c.NewMsgs)
}

func TestSenderIsNeverOverwrittenOnPopulatedRow(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	first := &models.Message{OriginID: 1, Oid: "m1", SentAt: ts(100), Body: "x", Sender: alice()}
	require.True(t, e.UpsertMessage(first, tr).Stored())
	aliceID := s.userByName("alice").id

	conflicting := &models.Message{
		OriginID: 1, Oid: "m1", SentAt: ts(200), Body: "x",
		Sender: &models.User{OriginID: 1, Oid: "oid-carol", UserName: "carol"},
	}
	require.True(t, e.UpsertMessage(conflicting, tr).Stored())

	// First-seen authorship survives conflicting redelivery.
	assert.Equal(t, aliceID, s.msgByOid("m1").senderID)
}

func TestHomeTimelineSetsSubscribedAndProvenance(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	res := e.UpsertMessage(&models.Message{
		OriginID: 1, Oid: "m1", SentAt: ts(10), Body: "x",
		Sender: alice(), Via: "web", URL: "https://t.example/m1",
	}, tr)
	require.True(t, res.Stored())

	row := s.msgByOid("m1")
	assert.True(t, s.flagsFor(row.id, e.account.UserID).Subscribed)
	assert.Equal(t, "web", row.via)
	assert.Equal(t, "https://t.example/m1", row.url)
}

func TestFavoritedFlagRequiresLocalActor(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineFavorites)
	tr := NewLatestMessages()

	// Actor absent defaults to the local account: flag applies.
	res := e.UpsertMessage(&models.Message{
		OriginID: 1, Oid: "m1", SentAt: ts(10), Body: "x",
		Sender: alice(), FavoritedByActor: models.TriTrue,
	}, tr)
	require.True(t, res.Stored())
	assert.True(t, s.flagsFor(res.LocalID, e.account.UserID).Favorited)

	// Explicit false clears it; tri-state keeps this distinct from
	// "absent".
	res = e.UpsertMessage(&models.Message{
		OriginID: 1, Oid: "m1", SentAt: ts(20), Body: "x",
		Sender: alice(), FavoritedByActor: models.TriFalse,
	}, tr)
	require.True(t, res.Stored())
	assert.False(t, s.flagsFor(res.LocalID, e.account.UserID).Favorited)

	// A different actor's favorite does not touch the account's flag.
	res = e.UpsertMessage(&models.Message{
		OriginID: 1, Oid: "m2", SentAt: ts(30), Body: "y",
		Sender: alice(), Actor: alice(), FavoritedByActor: models.TriTrue,
	}, tr)
	require.True(t, res.Stored())
	assert.False(t, s.flagsFor(res.LocalID, e.account.UserID).Favorited)
}

func TestDirectedFlagWhenRecipientIsAccount(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineDirect)
	tr := NewLatestMessages()

	res := e.UpsertMessage(&models.Message{
		OriginID: 1, Oid: "d1", SentAt: ts(10), Body: "psst",
		Sender:    alice(),
		Recipient: &models.User{OriginID: 1, Oid: "oid-bob", UserName: "bob"},
	}, tr)
	require.True(t, res.Stored())
	assert.True(t, s.flagsFor(res.LocalID, e.account.UserID).Directed)
}

func TestTrackerObservationsForSenderAndAuthorRoles(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	reblog := &models.Message{
		OriginID: 1,
		Oid:      "r1",
		SentAt:   ts(500),
		Sender:   &models.User{OriginID: 1, Oid: "oid-carol", UserName: "carol"},
		Reblogged: &models.Message{
			OriginID: 1, Oid: "a1", SentAt: ts(100), Body: "original", Sender: alice(),
		},
	}
	require.True(t, e.UpsertMessage(reblog, tr).Stored())

	// Both roles observed: carol as reposting sender, alice as author
	// of the unwrapped original — plus alice as the original's own
	// sender. Two users tracked in total.
	assert.Equal(t, 2, tr.Len())

	require.NoError(t, tr.Commit(s))
	row := s.msgByOid("a1")
	assert.Equal(t, row.id, s.latest[s.userByName("alice").id].MsgID)
	assert.Equal(t, row.id, s.latest[s.userByName("carol").id].MsgID)
	assert.Equal(t, 0, tr.Len())
}

func TestUserUpsertLookupAndFallbacks(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	// First insert without a created date falls back to the update date.
	u := &models.User{
		OriginID: 1, Oid: "oid-dave", UserName: "dave",
		RealName: "Dave", UpdatedAt: ts(42),
	}
	res := e.UpsertUser(u, tr)
	require.True(t, res.Stored())
	require.Equal(t, ts(42), s.users[res.LocalID].createdAt)

	// Update with no date at all leaves the stored date alone.
	res2 := e.UpsertUser(&models.User{OriginID: 1, Oid: "oid-dave", UserName: "dave"}, tr)
	require.True(t, res2.Stored())
	assert.Equal(t, res.LocalID, res2.LocalID)
	assert.Equal(t, ts(42), s.users[res.LocalID].createdAt)

	// A record with no oid resolves by username within the origin.
	res3 := e.UpsertUser(&models.User{OriginID: 1, UserName: "dave", RealName: "David"}, tr)
	require.True(t, res3.Stored())
	assert.Equal(t, res.LocalID, res3.LocalID)
	assert.Equal(t, "David", s.users[res.LocalID].realName)

	// Neither oid nor username: skipped.
	res4 := e.UpsertUser(&models.User{OriginID: 1}, tr)
	assert.Equal(t, StatusSkipped, res4.Status)
}

func TestUserFollowedFlagScopedToReader(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	// Reader absent defaults to the local account.
	res := e.UpsertUser(&models.User{
		OriginID: 1, Oid: "oid-eve", UserName: "eve",
		FollowedByActor: models.TriTrue,
	}, tr)
	require.True(t, res.Stored())
	assert.True(t, s.users[res.LocalID].followed[e.account.UserID])

	// A different reader's follow state does not apply to the account.
	res2 := e.UpsertUser(&models.User{
		OriginID: 1, Oid: "oid-frank", UserName: "frank",
		FollowedByActor: models.TriTrue,
		Actor:           alice(),
	}, tr)
	require.True(t, res2.Stored())
	assert.False(t, s.users[res2.LocalID].followed[e.account.UserID])
}

func TestUserLatestMessageUsesUserAsFallbackSender(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	res := e.UpsertUser(&models.User{
		OriginID: 1, Oid: "oid-gina", UserName: "gina",
		LatestMessage: &models.Message{
			OriginID: 1, Oid: "g1", SentAt: ts(77), Body: "standalone",
		},
	}, tr)
	require.True(t, res.Stored())

	row := s.msgByOid("g1")
	require.NotNil(t, row)
	assert.Equal(t, res.LocalID, row.senderID)
}

func TestStoreErrorSurfacesAsFailure(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineHome)
	tr := NewLatestMessages()

	dup := errors.New("duplicate key value violates unique constraint")
	s.failWrite = dup

	res := e.UpsertMessage(&models.Message{
		OriginID: 1, Oid: "m1", SentAt: ts(10), Body: "x", Sender: alice(),
	}, tr)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Zero(t, res.LocalID)
	// The store's error is in the chain unchanged for the driver to
	// inspect.
	assert.ErrorIs(t, res.Err, dup)
}

func TestStandaloneUpsertCommitsPrivateTracker(t *testing.T) {
	s := newFakeStore()
	e, _ := newTestEngine(t, s, models.TimelineAll)

	res := e.UpsertMessageOnce(&models.Message{
		OriginID: 1, Oid: "s1", SentAt: ts(10), Body: "one-off", Sender: alice(),
	})
	require.True(t, res.Stored())

	// The latest-message projection was committed without an explicit
	// batch tracker.
	assert.Equal(t, res.LocalID, s.latest[s.userByName("alice").id].MsgID)
}
