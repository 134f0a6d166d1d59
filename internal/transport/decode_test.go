package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/internal/origin"
	"github.com/feedsync/pkg/models"
)

func TestDecodeTimelineStatus(t *testing.T) {
	d := NewDecoder(origin.Twitter)

	raw := json.RawMessage(`{
		"id_str": "901",
		"created_at": "Wed Aug 27 10:15:00 +0000 2014",
		"text": "hello @bob",
		"source": "<a href=\"https://example.com/client\" rel=\"nofollow\">webclient</a>",
		"favorited": true,
		"user": {
			"id_str": "11",
			"screen_name": "alice",
			"name": "Alice A",
			"profile_image_url": "https://cdn.example/alice.png"
		},
		"in_reply_to_status_id_str": "880",
		"in_reply_to_user_id_str": "12",
		"in_reply_to_screen_name": "bob"
	}`)

	m, err := d.DecodeMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, origin.Twitter.ID, m.OriginID)
	assert.Equal(t, "901", m.Oid)
	assert.Equal(t, "hello @bob", m.Body)
	assert.Equal(t, "webclient", m.Via)
	assert.Equal(t, models.TriTrue, m.FavoritedByActor)
	assert.Equal(t, time.Date(2014, 8, 27, 10, 15, 0, 0, time.UTC), m.SentAt.UTC())

	require.NotNil(t, m.Sender)
	assert.Equal(t, "11", m.Sender.Oid)
	assert.Equal(t, "alice", m.Sender.UserName)
	assert.Equal(t, "Alice A", m.Sender.RealName)

	require.NotNil(t, m.InReplyTo)
	assert.Equal(t, "880", m.InReplyTo.Oid)
	require.NotNil(t, m.InReplyTo.Sender)
	assert.Equal(t, "12", m.InReplyTo.Sender.Oid)
	assert.Equal(t, "bob", m.InReplyTo.Sender.UserName)
}

func TestDecodeRetweetNestsOriginal(t *testing.T) {
	d := NewDecoder(origin.Twitter)

	raw := json.RawMessage(`{
		"id_str": "950",
		"created_at": "Thu Aug 28 09:00:00 +0000 2014",
		"text": "RT @alice: original text",
		"user": {"id_str": "12", "screen_name": "bob"},
		"retweeted_status": {
			"id_str": "940",
			"created_at": "Thu Aug 28 08:00:00 +0000 2014",
			"text": "original text",
			"user": {"id_str": "11", "screen_name": "alice"}
		}
	}`)

	m, err := d.DecodeMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, m.Reblogged)
	assert.Equal(t, "940", m.Reblogged.Oid)
	assert.Equal(t, "original text", m.Reblogged.Body)
	require.NotNil(t, m.Reblogged.Sender)
	assert.Equal(t, "alice", m.Reblogged.Sender.UserName)
	assert.Equal(t, "bob", m.Sender.UserName)
}

func TestDecodeDirectMessageUsesSenderRecipient(t *testing.T) {
	d := NewDecoder(origin.Twitter)

	raw := json.RawMessage(`{
		"id_str": "700",
		"created_at": "Wed Aug 27 12:00:00 +0000 2014",
		"text": "psst",
		"sender": {"id_str": "11", "screen_name": "alice"},
		"recipient": {"id_str": "12", "screen_name": "bob"}
	}`)

	m, err := d.DecodeMessage(raw)
	require.NoError(t, err)
	require.NotNil(t, m.Sender)
	assert.Equal(t, "alice", m.Sender.UserName)
	require.NotNil(t, m.Recipient)
	assert.Equal(t, "bob", m.Recipient.UserName)
}

func TestDecodeUserWithEmbeddedStatus(t *testing.T) {
	d := NewDecoder(origin.StatusNet)

	raw := json.RawMessage(`{
		"id_str": "11",
		"screen_name": "alice",
		"name": "Alice A",
		"description": "hi",
		"url": "https://alice.example",
		"created_at": "2013-01-15T08:30:00Z",
		"following": false,
		"status": {
			"id_str": "666",
			"created_at": "Wed Aug 27 10:15:00 +0000 2014",
			"text": "latest one"
		}
	}`)

	u, err := d.DecodeUser(raw)
	require.NoError(t, err)
	assert.Equal(t, origin.StatusNet.ID, u.OriginID)
	assert.Equal(t, "alice", u.UserName)
	assert.Equal(t, "https://alice.example", u.Homepage)
	assert.Equal(t, models.TriFalse, u.FollowedByActor)
	assert.Equal(t, time.Date(2013, 1, 15, 8, 30, 0, 0, time.UTC), u.CreatedAt.UTC())
	require.NotNil(t, u.LatestMessage)
	assert.Equal(t, "666", u.LatestMessage.Oid)
}

func TestDecodeFavoritedAbsentStaysUnknown(t *testing.T) {
	d := NewDecoder(origin.Twitter)

	m, err := d.DecodeMessage(json.RawMessage(`{"id_str": "1", "text": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, models.TriUnknown, m.FavoritedByActor)
	assert.True(t, m.SentAt.IsZero())
}

func TestDecodeBadTimestampFails(t *testing.T) {
	d := NewDecoder(origin.Twitter)

	_, err := d.DecodeMessage(json.RawMessage(`{"id_str": "1", "created_at": "not a date"}`))
	require.Error(t, err)
}

func TestStripSourceAnchor(t *testing.T) {
	assert.Equal(t, "web", stripSourceAnchor(`<a href="https://x">web</a>`))
	assert.Equal(t, "web", stripSourceAnchor("web"))
	assert.Equal(t, "", stripSourceAnchor(""))
}

func TestKindFromStatus(t *testing.T) {
	assert.Equal(t, KindAuth, kindFromStatus(401))
	assert.Equal(t, KindAuth, kindFromStatus(403))
	assert.Equal(t, KindNotFound, kindFromStatus(404))
	assert.Equal(t, KindRateLimited, kindFromStatus(429))
	assert.Equal(t, KindUnavailable, kindFromStatus(503))
	assert.Equal(t, KindUnknown, kindFromStatus(418))
}
