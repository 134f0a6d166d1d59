package origin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/pkg/models"
)

func TestLookupByIDAndName(t *testing.T) {
	assert.Equal(t, Twitter.ID, FromID(1).ID)
	assert.Equal(t, Pumpio.ID, FromName("PUMP.IO").ID)
	assert.Equal(t, int64(0), FromID(99).ID)
	assert.Equal(t, int64(0), FromName("friendica").ID)

	// Unknown names fall back to the default origin.
	assert.Equal(t, Default.ID, ToExisting("nope").ID)
	assert.Equal(t, StatusNet.ID, ToExisting("status.net").ID)
}

func TestUsernameValidation(t *testing.T) {
	cases := []struct {
		origin   Origin
		username string
		want     bool
	}{
		{Twitter, "t131t", true},
		{Twitter, "jo.han_n-a", true},
		{Twitter, "", false},
		{Twitter, "bad name", false},
		{Pumpio, "alice@identi.ca", true},
		{Pumpio, "alice", true},
		{Pumpio, "alice@@identi.ca", false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, c.origin.IsUsernameValid(c.username),
			"%s on %s", c.username, c.origin.Name)
	}
}

func TestCharactersLeft(t *testing.T) {
	require.Equal(t, 140, Twitter.MaxMessageLength)

	assert.Equal(t, 140, Twitter.CharactersLeft(""))
	assert.Equal(t, 135, Twitter.CharactersLeft("hello"))

	// A link is charged at the shortened length, not its real length.
	long := "look https://example.com/a/very/long/path/that/keeps/going/and/going"
	short := "look https://x.co"
	assert.Equal(t, Twitter.CharactersLeft(long), Twitter.CharactersLeft(short))
	assert.Equal(t, 140-len("look ")-23, Twitter.CharactersLeft(long))

	// pump.io does not shorten links.
	assert.Equal(t, 5000-len(short), Pumpio.CharactersLeft(short))
}

func TestConnDataRespectsOAuthPolicy(t *testing.T) {
	// Twitter cannot turn OAuth off.
	cd := Twitter.ConnData(models.TriFalse)
	assert.True(t, cd.IsOAuth)
	assert.Equal(t, APITwitter1p1, cd.API)

	// StatusNet can.
	cd = StatusNet.ConnData(models.TriTrue)
	assert.True(t, cd.IsOAuth)
	cd = StatusNet.ConnData(models.TriUnknown)
	assert.False(t, cd.IsOAuth)
}
