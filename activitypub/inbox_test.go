package activitypub

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/google/uuid"
)

type memoryStore struct {
	accounts   map[string]*domain.SyncedAccount
	followers  map[string]*domain.Follower // keyed by actor URI
	follows    map[string]bool             // followerId|accountId
	deliveries []*domain.DeliveryQueueItem
	actors     map[string]*domain.RemoteActor

	deletedActors []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts:  make(map[string]*domain.SyncedAccount),
		followers: make(map[string]*domain.Follower),
		follows:   make(map[string]bool),
		actors:    make(map[string]*domain.RemoteActor),
	}
}

func (s *memoryStore) ReadAccountByAcct(acct string) (error, *domain.SyncedAccount) {
	account, ok := s.accounts[acct]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, account
}

func (s *memoryStore) UpsertFollower(f *domain.Follower) error {
	if existing, ok := s.followers[f.ActorURI]; ok {
		existing.InboxURI = f.InboxURI
		existing.SharedInboxURI = f.SharedInboxURI
		return nil
	}
	s.followers[f.ActorURI] = f
	return nil
}

func (s *memoryStore) ReadFollowerByActorURI(actorURI string) (error, *domain.Follower) {
	f, ok := s.followers[actorURI]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, f
}

func (s *memoryStore) AddFollow(followerId, accountId uuid.UUID) error {
	s.follows[followerId.String()+"|"+accountId.String()] = true
	return nil
}

func (s *memoryStore) RemoveFollow(followerId, accountId uuid.UUID) error {
	delete(s.follows, followerId.String()+"|"+accountId.String())
	return nil
}

func (s *memoryStore) DeleteFollowerByActorURI(actorURI string) error {
	if f, ok := s.followers[actorURI]; ok {
		for key := range s.follows {
			if strings.HasPrefix(key, f.Id.String()+"|") {
				delete(s.follows, key)
			}
		}
		delete(s.followers, actorURI)
	}
	return nil
}

func (s *memoryStore) DeleteRemoteActorByURI(actorURI string) error {
	delete(s.actors, actorURI)
	s.deletedActors = append(s.deletedActors, actorURI)
	return nil
}

func (s *memoryStore) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	s.deliveries = append(s.deliveries, item)
	return nil
}

func (s *memoryStore) UpsertRemoteActor(actor *domain.RemoteActor) error {
	s.actors[actor.ActorURI] = actor
	return nil
}

func (s *memoryStore) ReadRemoteActorByURI(actorURI string) (error, *domain.RemoteActor) {
	actor, ok := s.actors[actorURI]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, actor
}

type fakeVerifier struct {
	actorURI string
	err      error
}

func (v *fakeVerifier) Verify(r *http.Request, body []byte) (string, error) {
	return v.actorURI, v.err
}

type fakeGate struct {
	denied map[string]bool
}

func (g *fakeGate) IsAllowed(entity domain.ModerationEntity, identity string) bool {
	return !g.denied[identity]
}

const testActorURI = "https://remote.example/users/bob"

// cacheActor seeds a fresh remote actor so the resolver never leaves the
// test process.
func cacheActor(store *memoryStore, actorURI string) {
	store.actors[actorURI] = &domain.RemoteActor{
		Id:             uuid.New(),
		Acct:           "bob",
		Host:           "remote.example",
		ActorURI:       actorURI,
		InboxURI:       actorURI + "/inbox",
		SharedInboxURI: "https://remote.example/inbox",
		PublicKeyPem:   "irrelevant",
		LastFetchedAt:  time.Now(),
	}
}

func newTestInbox(store *memoryStore, verifier Verifier, gate FollowerGate) *Inbox {
	return &Inbox{
		Store:    store,
		Verifier: verifier,
		Gate:     gate,
		Resolver: &Resolver{Store: store},
		Domain:   "bridge.example",
	}
}

func seedAccount(store *memoryStore, acct string) *domain.SyncedAccount {
	account := &domain.SyncedAccount{Id: uuid.New(), Acct: acct}
	store.accounts[acct] = account
	return account
}

func inboxRequest() *http.Request {
	return httptest.NewRequest("POST", "https://bridge.example/inbox", nil)
}

func followBody(object string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "https://remote.example/activities/1",
		"type": "Follow",
		"actor": %q,
		"object": %q
	}`, testActorURI, object))
}

func TestFollowHappyPath(t *testing.T) {
	store := newMemoryStore()
	account := seedAccount(store, "alice")
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice")
	if outcome != Accepted {
		t.Fatalf("Expected Accepted, got %d", outcome)
	}

	follower, ok := store.followers[testActorURI]
	if !ok {
		t.Fatal("Expected follower stored")
	}
	if follower.Acct != "bob" || follower.Host != "remote.example" {
		t.Errorf("Unexpected follower identity: %+v", follower)
	}
	if !store.follows[follower.Id.String()+"|"+account.Id.String()] {
		t.Error("Expected follow edge stored")
	}
	if len(store.deliveries) != 1 {
		t.Fatalf("Expected 1 Accept delivery, got %d", len(store.deliveries))
	}
	d := store.deliveries[0]
	if d.InboxURI != testActorURI+"/inbox" {
		t.Errorf("Accept must go to the personal inbox, got %s", d.InboxURI)
	}
	if !strings.Contains(d.ActivityJSON, `"Accept"`) {
		t.Errorf("Expected Accept payload, got %s", d.ActivityJSON)
	}

	// Replaying the same Follow must not duplicate state.
	if outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice"); outcome != Accepted {
		t.Fatalf("Expected replayed Follow accepted, got %d", outcome)
	}
	if len(store.followers) != 1 {
		t.Errorf("Expected a single follower row after replay, got %d", len(store.followers))
	}
	if len(store.follows) != 1 {
		t.Errorf("Expected a single follow edge after replay, got %d", len(store.follows))
	}
}

func TestFollowViaSharedInboxResolvesTarget(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	// Shared inbox: no path account, target taken from the object URI.
	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/Alice"), "")
	if outcome != Accepted {
		t.Fatalf("Expected Accepted, got %d", outcome)
	}
	if _, ok := store.followers[testActorURI]; !ok {
		t.Error("Expected follower stored via shared inbox")
	}
}

func TestFollowUnknownAccountNotFound(t *testing.T) {
	store := newMemoryStore()
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/nobody"), "nobody")
	if outcome != NotFound {
		t.Errorf("Expected NotFound, got %d", outcome)
	}
}

func TestFollowDeactivatedAccountNotFound(t *testing.T) {
	store := newMemoryStore()
	account := seedAccount(store, "alice")
	account.Deactivated = true
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice")
	if outcome != NotFound {
		t.Errorf("Expected NotFound, got %d", outcome)
	}
}

func TestFollowDeniedByModeration(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	cacheActor(store, testActorURI)
	gate := &fakeGate{denied: map[string]bool{"@bob@remote.example": true}}
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, gate)

	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice")
	if outcome != Unauthorized {
		t.Errorf("Expected Unauthorized, got %d", outcome)
	}
	if len(store.followers) != 0 {
		t.Error("Denied follower must not be stored")
	}
}

func TestInvalidSignatureUnauthorized(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	in := newTestInbox(store, &fakeVerifier{err: ErrSignature}, &fakeGate{})

	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice")
	if outcome != Unauthorized {
		t.Errorf("Expected Unauthorized, got %d", outcome)
	}
}

func TestActorFetchThrottledRateLimited(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	in := newTestInbox(store, &fakeVerifier{err: ErrActorRateLimited}, &fakeGate{})

	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice")
	if outcome != RateLimited {
		t.Errorf("Expected RateLimited, got %d", outcome)
	}
}

func TestActivityActorMismatchUnauthorized(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: "https://remote.example/users/mallory"}, &fakeGate{})

	outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice")
	if outcome != Unauthorized {
		t.Errorf("Expected Unauthorized for actor mismatch, got %d", outcome)
	}
}

func TestUndoFollowRemovesEdge(t *testing.T) {
	store := newMemoryStore()
	account := seedAccount(store, "alice")
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	if outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice"); outcome != Accepted {
		t.Fatalf("Follow setup failed with %d", outcome)
	}
	follower := store.followers[testActorURI]

	undo := []byte(fmt.Sprintf(`{
		"type": "Undo",
		"actor": %q,
		"object": {"type": "Follow", "actor": %q, "object": "https://bridge.example/users/alice"}
	}`, testActorURI, testActorURI))

	if outcome := in.Handle(inboxRequest(), undo, "alice"); outcome != Accepted {
		t.Fatalf("Expected Accepted, got %d", outcome)
	}
	if store.follows[follower.Id.String()+"|"+account.Id.String()] {
		t.Error("Expected follow edge removed")
	}
}

func TestUndoFollowFromStrangerIdempotent(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	undo := []byte(fmt.Sprintf(`{
		"type": "Undo",
		"actor": %q,
		"object": {"type": "Follow", "actor": %q, "object": "https://bridge.example/users/alice"}
	}`, testActorURI, testActorURI))

	if outcome := in.Handle(inboxRequest(), undo, "alice"); outcome != Accepted {
		t.Errorf("Unfollow without a prior follow must be Accepted, got %d", outcome)
	}
}

func TestDeleteActorCascades(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	if outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice"); outcome != Accepted {
		t.Fatalf("Follow setup failed with %d", outcome)
	}

	del := []byte(fmt.Sprintf(`{"type": "Delete", "actor": %q, "object": %q}`, testActorURI, testActorURI))
	if outcome := in.Handle(inboxRequest(), del, ""); outcome != Accepted {
		t.Fatalf("Expected Accepted, got %d", outcome)
	}

	if _, ok := store.followers[testActorURI]; ok {
		t.Error("Expected follower removed")
	}
	if len(store.follows) != 0 {
		t.Error("Expected follow edges removed")
	}
	if len(store.deletedActors) != 1 || store.deletedActors[0] != testActorURI {
		t.Errorf("Expected cached actor evicted, got %v", store.deletedActors)
	}
}

func TestDeleteOfForeignObjectIgnored(t *testing.T) {
	store := newMemoryStore()
	seedAccount(store, "alice")
	cacheActor(store, testActorURI)
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	if outcome := in.Handle(inboxRequest(), followBody("https://bridge.example/users/alice"), "alice"); outcome != Accepted {
		t.Fatalf("Follow setup failed with %d", outcome)
	}

	del := []byte(fmt.Sprintf(`{"type": "Delete", "actor": %q, "object": "https://remote.example/users/other"}`, testActorURI))
	if outcome := in.Handle(inboxRequest(), del, ""); outcome != Accepted {
		t.Fatalf("Expected Accepted, got %d", outcome)
	}
	if _, ok := store.followers[testActorURI]; !ok {
		t.Error("Deletes of other objects must not touch the follower")
	}
}

func TestUnknownActivityAccepted(t *testing.T) {
	store := newMemoryStore()
	in := newTestInbox(store, &fakeVerifier{actorURI: testActorURI}, &fakeGate{})

	body := []byte(fmt.Sprintf(`{"type": "Like", "actor": %q, "object": "x"}`, testActorURI))
	if outcome := in.Handle(inboxRequest(), body, "alice"); outcome != Accepted {
		t.Errorf("Unknown activities are acknowledged, got %d", outcome)
	}
}
