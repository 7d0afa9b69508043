package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/util"
	"github.com/hashicorp/go-retryablehttp"
)

const requestTimeout = 20 * time.Second

// Client is a thin JSON client for the upstream feed API. It only maps
// transport results onto the Source contract; feed API semantics live
// upstream.
type Client struct {
	base string
	http *retryablehttp.Client
}

func NewClient(base string) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = requestTimeout
	c.Logger = nil
	c.CheckRetry = noRetryOn429
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{base: base, http: c}
}

// noRetryOn429 keeps upstream throttling visible to the caller instead
// of burning the retry budget against it.
func noRetryOn429(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type wirePost struct {
	Id        int64     `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ReplyTo   struct {
		Id   int64  `json:"id"`
		Acct string `json:"acct"`
	} `json:"reply_to"`
	Reshare    bool      `json:"reshare"`
	Quote      bool      `json:"quote"`
	ReshareURL string    `json:"reshare_url"`
	Reshared   *wirePost `json:"reshared"`
	Media      []struct {
		Kind     string `json:"kind"`
		ShortURL string `json:"short_url"`
		URL      string `json:"url"`
		Variants []struct {
			URL     string `json:"url"`
			Bitrate int    `json:"bitrate"`
		} `json:"variants"`
	} `json:"media"`
	URLs []struct {
		Short    string `json:"short"`
		Expanded string `json:"expanded"`
	} `json:"urls"`
}

type wireAccount struct {
	Acct        string `json:"acct"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	AvatarURL   string `json:"avatar_url"`
	Protected   bool   `json:"protected"`
}

func (c *Client) GetTimeline(ctx context.Context, acct string, maxCount int, sinceId int64) ([]*domain.FetchedPost, error) {
	endpoint := fmt.Sprintf("%s/timeline/%s?count=%d", c.base, url.PathEscape(acct), maxCount)
	if sinceId > 0 {
		endpoint = fmt.Sprintf("%s&since_id=%d", endpoint, sinceId)
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var wire []*wirePost
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse timeline: %w", err)
	}

	posts := make([]*domain.FetchedPost, 0, len(wire))
	for _, w := range wire {
		posts = append(posts, w.toDomain())
	}
	return posts, nil
}

func (c *Client) GetPost(ctx context.Context, id int64) (*domain.FetchedPost, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/posts/%d", c.base, id))
	if err != nil {
		return nil, err
	}

	var wire wirePost
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse post: %w", err)
	}
	return wire.toDomain(), nil
}

func (c *Client) GetAccount(ctx context.Context, acct string) (*Account, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/accounts/%s", c.base, url.PathEscape(acct)))
	if err != nil {
		return nil, err
	}

	var wire wireAccount
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	return &Account{
		Acct:        wire.Acct,
		Name:        wire.Name,
		Description: wire.Description,
		URL:         wire.URL,
		AvatarURL:   wire.AvatarURL,
		Protected:   wire.Protected,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAccountGone
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (w *wirePost) toDomain() *domain.FetchedPost {
	post := &domain.FetchedPost{
		Id:              w.Id,
		Author:          w.Author,
		Text:            w.Text,
		CreatedAt:       w.CreatedAt,
		InReplyToPostId: w.ReplyTo.Id,
		InReplyToAcct:   w.ReplyTo.Acct,
		IsReshare:       w.Reshare,
		IsQuote:         w.Quote,
		ReshareURL:      w.ReshareURL,
	}
	if w.Reshared != nil {
		post.Reshared = w.Reshared.toDomain()
	}
	for _, m := range w.Media {
		media := domain.FetchedMedia{
			Kind:     m.Kind,
			ShortURL: m.ShortURL,
			URL:      m.URL,
		}
		for _, v := range m.Variants {
			media.Variants = append(media.Variants, domain.MediaVariant{URL: v.URL, Bitrate: v.Bitrate})
		}
		post.Media = append(post.Media, media)
	}
	for _, u := range w.URLs {
		post.URLs = append(post.URLs, domain.URLEntity{Short: u.Short, Expanded: u.Expanded})
	}
	return post
}
