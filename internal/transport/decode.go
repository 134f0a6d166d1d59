package transport

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/feedsync/internal/origin"
	"github.com/feedsync/pkg/models"
)

// wireTime is the legacy ruby-style timestamp the Twitter API family
// emits ("Mon Jan 02 15:04:05 -0700 2006"). Some StatusNet servers
// send RFC3339 instead, so both are tried.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RubyDate, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("unparseable timestamp %q", s)
		}
	}
	t.Time = parsed
	return nil
}

type wireUser struct {
	IDStr           string   `json:"id_str"`
	ScreenName      string   `json:"screen_name"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	ProfileImageURL string   `json:"profile_image_url"`
	URL             string   `json:"url"`
	CreatedAt       wireTime `json:"created_at"`
	Following       *bool    `json:"following"`
	Status          *wireMsg `json:"status"`
}

type wireMsg struct {
	IDStr             string    `json:"id_str"`
	CreatedAt         wireTime  `json:"created_at"`
	Text              string    `json:"text"`
	Source            string    `json:"source"`
	User              *wireUser `json:"user"`
	Sender            *wireUser `json:"sender"`
	Recipient         *wireUser `json:"recipient"`
	RetweetedStatus   *wireMsg  `json:"retweeted_status"`
	InReplyToIDStr    string    `json:"in_reply_to_status_id_str"`
	InReplyToUserID   string    `json:"in_reply_to_user_id_str"`
	InReplyToUsername string    `json:"in_reply_to_screen_name"`
	Favorited         *bool     `json:"favorited"`
}

// sourceAnchorRe strips the HTML anchor the API wraps client names in,
// e.g. `<a href="...">web</a>` becomes `web`.
var sourceAnchorRe = regexp.MustCompile(`<a[^>]*>([^<]*)</a>`)

// Decoder converts one origin's wire JSON into canonical records.
type Decoder struct {
	origin origin.Origin
}

func NewDecoder(o origin.Origin) *Decoder {
	return &Decoder{origin: o}
}

// DecodeMessage parses one timeline entry.
func (d *Decoder) DecodeMessage(raw json.RawMessage) (*models.Message, error) {
	var w wireMsg
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return d.message(&w), nil
}

// DecodeUser parses one user record.
func (d *Decoder) DecodeUser(raw json.RawMessage) (*models.User, error) {
	var w wireUser
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	return d.user(&w), nil
}

func (d *Decoder) message(w *wireMsg) *models.Message {
	if w == nil {
		return nil
	}
	m := &models.Message{
		OriginID: d.origin.ID,
		Oid:      w.IDStr,
		SentAt:   w.CreatedAt.Time,
		Body:     w.Text,
		Via:      stripSourceAnchor(w.Source),
	}
	// Direct messages carry sender/recipient, timeline statuses carry
	// user. Either way the author ends up as Sender.
	switch {
	case w.Sender != nil:
		m.Sender = d.user(w.Sender)
	case w.User != nil:
		m.Sender = d.user(w.User)
	}
	if w.Recipient != nil {
		m.Recipient = d.user(w.Recipient)
	}
	if w.RetweetedStatus != nil {
		m.Reblogged = d.message(w.RetweetedStatus)
	}
	if w.InReplyToIDStr != "" {
		reply := &models.Message{
			OriginID: d.origin.ID,
			Oid:      w.InReplyToIDStr,
		}
		if w.InReplyToUserID != "" || w.InReplyToUsername != "" {
			reply.Sender = &models.User{
				OriginID: d.origin.ID,
				Oid:      w.InReplyToUserID,
				UserName: w.InReplyToUsername,
			}
		}
		m.InReplyTo = reply
	}
	if w.Favorited != nil {
		m.FavoritedByActor = models.TriFromBool(*w.Favorited)
	}
	return m
}

func (d *Decoder) user(w *wireUser) *models.User {
	if w == nil {
		return nil
	}
	u := &models.User{
		OriginID:    d.origin.ID,
		Oid:         w.IDStr,
		UserName:    w.ScreenName,
		RealName:    w.Name,
		Description: w.Description,
		AvatarURL:   w.ProfileImageURL,
		Homepage:    w.URL,
		CreatedAt:   w.CreatedAt.Time,
	}
	if w.Following != nil {
		u.FollowedByActor = models.TriFromBool(*w.Following)
	}
	if w.Status != nil {
		u.LatestMessage = d.message(w.Status)
	}
	return u
}

func stripSourceAnchor(s string) string {
	if m := sourceAnchorRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
