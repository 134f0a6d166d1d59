// Package origin describes the remote microblogging systems messages
// come from. An Origin scopes identity (every oid is unique only
// within one origin) and carries the per-provider protocol limits the
// rest of the system queries but never mutates.
package origin

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/feedsync/pkg/models"
)

// APIFamily identifies the wire protocol dialect an origin speaks.
type APIFamily string

const (
	APITwitter1p1      APIFamily = "twitter1.1"
	APIPumpio          APIFamily = "pumpio"
	APIStatusNetTwitter APIFamily = "statusnet-twitter"
	APIUnknown         APIFamily = "unknown"
)

const (
	// defaultMaxChars is the classic short-message limit.
	defaultMaxChars = 140

	// shortLinkLength is the length a link occupies after the service
	// replaces it with a shortened one. -1 means links are not shortened.
	shortLinkLength = 23

	defaultUsernamePattern = `^[a-zA-Z_0-9/.\-()]+$`
)

var linkRe = regexp.MustCompile(`https?://\S+`)

// Origin is a read-only descriptor of one remote system.
type Origin struct {
	ID   int64
	Name string
	API  APIFamily

	MaxMessageLength int
	LinkLength       int // -1 when the service does not shorten links

	IsOAuthDefault bool
	CanChangeOAuth bool

	usernameRe *regexp.Regexp
}

// ConnectionData is what the transport layer needs to open a
// connection to this origin.
type ConnectionData struct {
	API      APIFamily
	OriginID int64
	IsOAuth  bool
}

var (
	// Predefined origins. IDs are stable: they are stored in every
	// message and user row.
	Twitter = Origin{
		ID:               1,
		Name:             "twitter",
		API:              APITwitter1p1,
		MaxMessageLength: defaultMaxChars,
		LinkLength:       shortLinkLength,
		IsOAuthDefault:   true,
		CanChangeOAuth:   false,
		usernameRe:       regexp.MustCompile(defaultUsernamePattern),
	}

	Pumpio = Origin{
		ID:               2,
		Name:             "pump.io",
		API:              APIPumpio,
		MaxMessageLength: 5000,
		LinkLength:       -1,
		IsOAuthDefault:   true,
		CanChangeOAuth:   false,
		usernameRe:       regexp.MustCompile(`^[a-zA-Z_0-9.\-]+(@[a-zA-Z_0-9.\-]+)?$`),
	}

	StatusNet = Origin{
		ID:               3,
		Name:             "status.net",
		API:              APIStatusNetTwitter,
		MaxMessageLength: defaultMaxChars,
		LinkLength:       -1,
		IsOAuthDefault:   false,
		CanChangeOAuth:   true,
		usernameRe:       regexp.MustCompile(defaultUsernamePattern),
	}

	Unknown = Origin{
		ID:         0,
		Name:       "unknown",
		API:        APIUnknown,
		LinkLength: -1,
		usernameRe: regexp.MustCompile(defaultUsernamePattern),
	}
)

var registry = []Origin{Twitter, Pumpio, StatusNet}

// Default is the origin used when a caller names none.
var Default = Twitter

// FromID returns the origin with the given stored id, or Unknown.
func FromID(id int64) Origin {
	for _, o := range registry {
		if o.ID == id {
			return o
		}
	}
	return Unknown
}

// FromName returns the origin with the given name (case-insensitive),
// or Unknown.
func FromName(name string) Origin {
	for _, o := range registry {
		if strings.EqualFold(o.Name, name) {
			return o
		}
	}
	return Unknown
}

// ToExisting resolves a name to a registered origin, falling back to
// the default when the name is not known.
func ToExisting(name string) Origin {
	o := FromName(name)
	if o.ID == 0 {
		return Default
	}
	return o
}

// Names lists the registered origin names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, o := range registry {
		names = append(names, o.Name)
	}
	return names
}

// IsPersistent reports whether this origin is a registered one whose
// id may be stored.
func (o Origin) IsPersistent() bool {
	return o.ID != 0
}

// IsUsernameValid checks a username against this origin's grammar.
func (o Origin) IsUsernameValid(username string) bool {
	if username == "" {
		return false
	}
	ok := o.usernameRe.MatchString(username)
	if !ok {
		log.Debug().Str("origin", o.Name).Str("username", username).
			Msg("username does not match origin grammar")
	}
	return ok
}

// CharactersLeft computes how many characters of the origin's message
// limit remain for body, taking link shortening into account: a
// service that shortens links charges LinkLength characters per link
// regardless of the link's real length.
func (o Origin) CharactersLeft(body string) int {
	length := len([]rune(body))
	if o.LinkLength > 0 && body != "" {
		for _, span := range linkRe.FindAllString(body, -1) {
			length += o.LinkLength - len([]rune(span))
		}
	}
	return o.MaxMessageLength - length
}

// ConnData resolves the effective OAuth choice for a connection. The
// caller's preference only wins when the origin allows changing it.
func (o Origin) ConnData(useOAuth models.TriState) ConnectionData {
	isOAuth := useOAuth.Bool(o.IsOAuthDefault)
	if isOAuth != o.IsOAuthDefault && !o.CanChangeOAuth {
		isOAuth = o.IsOAuthDefault
	}
	return ConnectionData{API: o.API, OriginID: o.ID, IsOAuth: isOAuth}
}
