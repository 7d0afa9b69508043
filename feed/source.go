package feed

import (
	"context"
	"errors"

	"github.com/deemkeen/plumage/domain"
)

// Failure kinds the sync pipeline and the web layer react to. Anything
// else coming out of a Source is a generic retrieval failure.
var (
	// ErrRateLimited is transient upstream saturation: skip, retry next
	// cycle, never counted as an error.
	ErrRateLimited = errors.New("feed: rate limited")

	// ErrAccountGone means the feed account no longer exists or has been
	// suspended; terminal for that account.
	ErrAccountGone = errors.New("feed: account gone")

	// ErrNotFound is returned for a single post that cannot be resolved.
	ErrNotFound = errors.New("feed: not found")
)

// Account is the feed-source profile of a bridged handle.
type Account struct {
	Acct        string
	Name        string
	Description string
	URL         string
	AvatarURL   string
	Protected   bool
}

// Source is the upstream feed API consumed by the bridge. Implementations
// must bound every call with the context deadline.
type Source interface {
	// GetTimeline returns up to maxCount posts of acct newer than
	// sinceId, oldest first. sinceId <= 0 means no lower bound.
	GetTimeline(ctx context.Context, acct string, maxCount int, sinceId int64) ([]*domain.FetchedPost, error)

	// GetPost resolves one post by id.
	GetPost(ctx context.Context, id int64) (*domain.FetchedPost, error)

	// GetAccount resolves the profile of a handle.
	GetAccount(ctx context.Context, acct string) (*Account, error)
}
