package domain

import (
	"time"
)

// Media kinds as reported by the feed source.
const (
	MediaPhoto    = "photo"
	MediaAnimated = "animated_gif"
	MediaVideo    = "video"
)

// FetchedPost is one raw post pulled from the feed source during a sync
// cycle. It is never persisted; the transformer consumes it immediately.
type FetchedPost struct {
	Id              int64
	Author          string
	Text            string
	CreatedAt       time.Time
	InReplyToPostId int64
	InReplyToAcct   string
	IsReshare       bool
	IsQuote         bool
	ReshareURL      string
	Reshared        *FetchedPost // original post, when the source resolves it
	Media           []FetchedMedia
	URLs            []URLEntity
}

// FetchedMedia is one attachment of a fetched post. ShortURL is the
// shortened link embedded in the post text; the transformer strips it.
type FetchedMedia struct {
	Kind     string
	ShortURL string
	URL      string // direct URL for photos
	Variants []MediaVariant
}

// MediaVariant is one rendition of an animated or video attachment.
type MediaVariant struct {
	URL     string
	Bitrate int
}

// URLEntity maps a shortened URL occurring in the post text to its
// expanded form.
type URLEntity struct {
	Short    string
	Expanded string
}
