package activitypub

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/google/uuid"
)

// Outcome is the terminal state of inbox processing.
type Outcome int

const (
	Accepted Outcome = iota
	Unauthorized
	NotFound
	RateLimited
)

// HTTPStatus maps an outcome to its response code.
func (o Outcome) HTTPStatus() int {
	switch o {
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusAccepted
	}
}

// InboxStore is the persistence surface inbox processing needs. *db.DB
// satisfies it.
type InboxStore interface {
	ReadAccountByAcct(acct string) (error, *domain.SyncedAccount)
	UpsertFollower(f *domain.Follower) error
	ReadFollowerByActorURI(actorURI string) (error, *domain.Follower)
	AddFollow(followerId, accountId uuid.UUID) error
	RemoveFollow(followerId, accountId uuid.UUID) error
	DeleteFollowerByActorURI(actorURI string) error
	DeleteRemoteActorByURI(actorURI string) error
	EnqueueDelivery(item *domain.DeliveryQueueItem) error
}

// FollowerGate decides whether a remote identity may follow.
type FollowerGate interface {
	IsAllowed(entity domain.ModerationEntity, identity string) bool
}

// Inbox processes inbound activities. Activities from the same actor
// against the same account are serialized; everything else runs
// concurrently.
type Inbox struct {
	Store    InboxStore
	Verifier Verifier
	Gate     FollowerGate
	Resolver *Resolver
	Domain   string

	locks keyedMutex
}

// Handle runs one inbound request through the signature, shape and
// moderation gates. localAcct is the per-account inbox owner; the empty
// string means the shared inbox, where the target account comes from the
// activity's object.
func (in *Inbox) Handle(r *http.Request, body []byte, localAcct string) Outcome {
	actorURI, err := in.Verifier.Verify(r, body)
	if err != nil {
		if errors.Is(err, ErrActorRateLimited) {
			log.Println("Inbox: actor fetch throttled, asking sender to retry")
			return RateLimited
		}
		log.Println("Inbox: rejected request:", err)
		return Unauthorized
	}

	activity := ParseActivity(body)
	if activity.Actor != "" && activity.Actor != actorURI {
		log.Printf("Inbox: activity actor %s does not match signer %s", activity.Actor, actorURI)
		return Unauthorized
	}

	switch activity.Kind {
	case KindFollow:
		return in.handleFollow(r, activity, actorURI, localAcct)
	case KindUndoFollow:
		return in.handleUndoFollow(activity, actorURI, localAcct)
	case KindDelete:
		return in.handleDelete(activity, actorURI)
	default:
		// Unknown kinds are acknowledged so senders stop retrying.
		return Accepted
	}
}

func (in *Inbox) handleFollow(r *http.Request, activity *InboxActivity, actorURI, localAcct string) Outcome {
	acct := in.targetAcct(activity, localAcct)
	if acct == "" {
		return NotFound
	}

	err, account := in.Store.ReadAccountByAcct(acct)
	if err != nil || account == nil || account.Deactivated {
		if err != nil && err != sql.ErrNoRows {
			log.Println("Inbox: account lookup failed:", err)
		}
		return NotFound
	}

	actor, err := in.Resolver.GetOrFetchActor(r.Context(), actorURI)
	if err != nil {
		if errors.Is(err, ErrActorRateLimited) {
			return RateLimited
		}
		log.Println("Inbox: could not resolve follower:", err)
		return Unauthorized
	}

	handle := "@" + strings.ToLower(actor.Acct) + "@" + strings.ToLower(actor.Host)
	if !in.Gate.IsAllowed(domain.ModerationFollower, handle) {
		log.Println("Inbox: follow from", handle, "denied by moderation")
		return Unauthorized
	}

	unlock := in.locks.lock(actorURI + "|" + account.Id.String())
	defer unlock()

	follower := &domain.Follower{
		Id:             uuid.New(),
		Acct:           strings.ToLower(actor.Acct),
		Host:           strings.ToLower(actor.Host),
		ActorURI:       actor.ActorURI,
		InboxURI:       actor.InboxURI,
		SharedInboxURI: actor.SharedInboxURI,
		CreatedAt:      time.Now(),
	}
	if err := in.Store.UpsertFollower(follower); err != nil {
		log.Println("Inbox: could not store follower:", err)
		return Accepted
	}

	// Re-read: the upsert may have kept an existing row's id.
	err, stored := in.Store.ReadFollowerByActorURI(actor.ActorURI)
	if err != nil || stored == nil {
		log.Println("Inbox: could not read follower back:", err)
		return Accepted
	}

	if err := in.Store.AddFollow(stored.Id, account.Id); err != nil {
		log.Println("Inbox: could not store follow:", err)
		return Accepted
	}

	payload, err := NewAcceptActivity(in.Domain, account.Acct, activity.Id, actor.ActorURI)
	if err != nil {
		log.Println("Inbox: could not build Accept:", err)
		return Accepted
	}
	now := time.Now()
	item := &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     actor.InboxURI,
		ActivityJSON: string(payload),
		NextRetryAt:  now,
		CreatedAt:    now,
	}
	if err := in.Store.EnqueueDelivery(item); err != nil {
		log.Println("Inbox: could not enqueue Accept:", err)
	}

	log.Printf("Inbox: %s now follows %s", handle, account.Acct)
	return Accepted
}

func (in *Inbox) handleUndoFollow(activity *InboxActivity, actorURI, localAcct string) Outcome {
	acct := in.targetAcct(activity, localAcct)
	if acct == "" {
		return NotFound
	}

	err, account := in.Store.ReadAccountByAcct(acct)
	if err != nil || account == nil {
		if err != nil && err != sql.ErrNoRows {
			log.Println("Inbox: account lookup failed:", err)
		}
		return NotFound
	}

	unlock := in.locks.lock(actorURI + "|" + account.Id.String())
	defer unlock()

	err, follower := in.Store.ReadFollowerByActorURI(actorURI)
	if err != nil || follower == nil {
		// Already not following; unfollow is idempotent.
		return Accepted
	}

	if err := in.Store.RemoveFollow(follower.Id, account.Id); err != nil {
		log.Println("Inbox: could not remove follow:", err)
	} else {
		log.Printf("Inbox: %s unfollowed %s", follower.Handle(), account.Acct)
	}
	return Accepted
}

// handleDelete removes a vanished remote actor everywhere. Deletes of
// anything but the signing actor itself are acknowledged and ignored.
func (in *Inbox) handleDelete(activity *InboxActivity, actorURI string) Outcome {
	if activity.Object != actorURI {
		return Accepted
	}

	unlock := in.locks.lock(actorURI)
	defer unlock()

	if err := in.Store.DeleteFollowerByActorURI(actorURI); err != nil {
		log.Println("Inbox: could not remove deleted actor's follows:", err)
		return Accepted
	}
	if err := in.Store.DeleteRemoteActorByURI(actorURI); err != nil {
		log.Println("Inbox: could not evict deleted actor:", err)
	}

	log.Println("Inbox: removed deleted actor", actorURI)
	return Accepted
}

// targetAcct resolves which bridged account an activity addresses.
func (in *Inbox) targetAcct(activity *InboxActivity, localAcct string) string {
	if localAcct != "" {
		return strings.ToLower(localAcct)
	}

	// Shared inbox: the local account is named by the object URI,
	// e.g. "https://bridge.example/users/alice".
	parts := strings.Split(strings.TrimSuffix(activity.Object, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(parts[len(parts)-1], "@"))
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
