// Package transport talks to a remote origin's HTTP API and decodes
// its wire payloads into the canonical model. The engine never sees
// provider JSON: it consumes only decoded messages and users, or a
// typed ConnError.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/feedsync/internal/origin"
	"github.com/feedsync/internal/retry"
	"github.com/feedsync/pkg/models"
)

// timelinePaths maps a timeline type to the Twitter-family endpoint
// serving it.
var timelinePaths = map[models.TimelineType]string{
	models.TimelineHome:      "statuses/home_timeline.json",
	models.TimelineMentions:  "statuses/mentions_timeline.json",
	models.TimelineDirect:    "direct_messages.json",
	models.TimelineFavorites: "favorites/list.json",
	models.TimelineAll:       "statuses/home_timeline.json",
}

// Client fetches timeline pages and user records from one origin,
// honoring a client-side rate limit so a busy sync loop does not trip
// the origin's quota.
type Client struct {
	origin  origin.Origin
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	decoder *Decoder
	retry   retry.Config
}

// NewClient builds a client for one origin. ratePerMin caps outgoing
// requests; <= 0 disables client-side limiting.
func NewClient(o origin.Origin, baseURL, token string, ratePerMin int) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), ratePerMin)
	}
	return &Client{
		origin:  o,
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		decoder: NewDecoder(o),
		retry:   retry.DefaultConfig(),
	}
}

// FetchTimeline downloads one page of a timeline and decodes every
// entry. pageSize <= 0 uses the origin default; sinceOid, when set,
// asks only for messages newer than that oid.
func (c *Client) FetchTimeline(ctx context.Context, timeline models.TimelineType, sinceOid string, pageSize int) ([]*models.Message, error) {
	path, ok := timelinePaths[timeline]
	if !ok {
		return nil, fmt.Errorf("no endpoint for timeline %q", timeline)
	}

	params := url.Values{}
	if sinceOid != "" {
		params.Set("since_id", sinceOid)
	}
	if pageSize > 0 {
		params.Set("count", strconv.Itoa(pageSize))
	}

	body, err := c.getJSON(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ConnError{Kind: KindMalformed, Path: path, Err: err}
	}

	msgs := make([]*models.Message, 0, len(raw))
	for _, item := range raw {
		m, err := c.decoder.DecodeMessage(item)
		if err != nil {
			return nil, &ConnError{Kind: KindMalformed, Path: path, Err: err}
		}
		msgs = append(msgs, m)
	}
	log.Debug().Str("timeline", string(timeline)).Int("count", len(msgs)).
		Str("origin", c.origin.Name).Msg("transport: timeline page fetched")
	return msgs, nil
}

// FetchUser downloads one user record by username.
func (c *Client) FetchUser(ctx context.Context, username string) (*models.User, error) {
	params := url.Values{}
	params.Set("screen_name", username)

	body, err := c.getJSON(ctx, "users/show.json", params)
	if err != nil {
		return nil, err
	}
	u, err := c.decoder.DecodeUser(body)
	if err != nil {
		return nil, &ConnError{Kind: KindMalformed, Path: "users/show.json", Err: err}
	}
	return u, nil
}

// getJSON issues one GET with backoff: rate-limit and server errors
// retry, auth and not-found failures return immediately.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values) ([]byte, error) {
	var body []byte
	res := retry.Do(ctx, c.retry, func() (error, bool) {
		var err error
		body, err = c.getJSONOnce(ctx, path, params)
		if err == nil {
			return nil, false
		}
		if ce, ok := AsConnError(err); ok {
			return err, ce.Retryable()
		}
		return err, false
	})
	if !res.Success {
		return nil, res.LastError
	}
	return body, nil
}

func (c *Client) getJSONOnce(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ConnError{Kind: KindUnknown, Path: path, Err: err}
	}

	full := c.baseURL + "/" + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, &ConnError{Kind: KindUnknown, Path: path, Err: err}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnError{Kind: KindUnavailable, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnError{Kind: KindUnavailable, Path: path, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("path", path).
			Str("origin", c.origin.Name).Msg("transport: request failed")
		return nil, &ConnError{
			Kind:       kindFromStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Path:       path,
			Err:        fmt.Errorf("unexpected status: %s", resp.Status),
		}
	}
	return body, nil
}
