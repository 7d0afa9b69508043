package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/util"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrActorRateLimited signals that the remote instance throttled the
// actor fetch; the caller should retry later instead of rejecting.
var ErrActorRateLimited = errors.New("activitypub: actor fetch rate limited")

const actorCacheTTL = 24 * time.Hour

// ActorStore persists fetched remote actors. *db.DB satisfies it.
type ActorStore interface {
	UpsertRemoteActor(actor *domain.RemoteActor) error
	ReadRemoteActorByURI(actorURI string) (error, *domain.RemoteActor)
}

// actorDoc is the wire shape of a remote actor document.
type actorDoc struct {
	Id                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Inbox             string `json:"inbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		Id           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Resolver fetches and caches remote actor documents.
type Resolver struct {
	Store ActorStore
	http  *retryablehttp.Client
}

func NewResolver(store ActorStore) *Resolver {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil
	c.CheckRetry = noRetryOn429
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Resolver{Store: store, http: c}
}

// noRetryOn429 keeps upstream throttling visible to the caller instead
// of burning the retry budget against it.
func noRetryOn429(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// GetOrFetchActor returns the cached actor when fresh, otherwise fetches
// the document from the remote instance and refreshes the cache.
func (r *Resolver) GetOrFetchActor(ctx context.Context, actorURI string) (*domain.RemoteActor, error) {
	err, cached := r.Store.ReadRemoteActorByURI(actorURI)
	if err == nil && cached != nil && time.Since(cached.LastFetchedAt) < actorCacheTTL {
		return cached, nil
	}

	actor, err := r.fetch(ctx, actorURI)
	if err != nil {
		// A stale cache entry beats failing while the remote is throttling.
		if errors.Is(err, ErrActorRateLimited) && cached != nil {
			return cached, nil
		}
		return nil, err
	}

	if err := r.Store.UpsertRemoteActor(actor); err != nil {
		return nil, fmt.Errorf("failed to store remote actor: %w", err)
	}
	return actor, nil
}

func (r *Resolver) fetch(ctx context.Context, actorURI string) (*domain.RemoteActor, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := r.http.Do(req)
	if err != nil {
		// A lookup that times out answers retry-later, same as explicit
		// throttling.
		if isTimeout(err) {
			return nil, ErrActorRateLimited
		}
		return nil, fmt.Errorf("actor fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrActorRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read actor document: %w", err)
	}

	var doc actorDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse actor document: %w", err)
	}

	if doc.Id == "" || doc.Inbox == "" || doc.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor document missing required fields")
	}

	host, err := extractHost(doc.Id)
	if err != nil {
		return nil, err
	}

	return &domain.RemoteActor{
		Id:             uuid.New(),
		Acct:           doc.PreferredUsername,
		Host:           host,
		ActorURI:       doc.Id,
		InboxURI:       doc.Inbox,
		SharedInboxURI: doc.Endpoints.SharedInbox,
		PublicKeyPem:   doc.PublicKey.PublicKeyPem,
		LastFetchedAt:  time.Now(),
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// extractHost extracts the instance host from an actor URI.
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractHost(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}
	return parsed.Host, nil
}
