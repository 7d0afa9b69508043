package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/util"
	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	database := &DB{db: sqlDB}
	if err := database.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return database
}

func testKeys() *util.RsaKeyPair {
	return &util.RsaKeyPair{Private: "private-pem", Public: "public-pem"}
}

func createTestAccount(t *testing.T, database *DB, acct string) *domain.SyncedAccount {
	t.Helper()
	err, account := database.CreateAccount(acct, testKeys())
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return account
}

func createTestFollower(t *testing.T, database *DB, acct, host string) *domain.Follower {
	t.Helper()
	f := &domain.Follower{
		Id:             uuid.New(),
		Acct:           acct,
		Host:           host,
		ActorURI:       "https://" + host + "/users/" + acct,
		InboxURI:       "https://" + host + "/users/" + acct + "/inbox",
		SharedInboxURI: "https://" + host + "/inbox",
		CreatedAt:      time.Now(),
	}
	if err := database.UpsertFollower(f); err != nil {
		t.Fatalf("UpsertFollower failed: %v", err)
	}
	return f
}

func TestCreateAndReadAccount(t *testing.T) {
	database := setupTestDB(t)

	account := createTestAccount(t, database, "Alice")

	if account.Acct != "alice" {
		t.Errorf("Expected lowercased acct, got %s", account.Acct)
	}
	if account.LastPostId != domain.UnsyncedPostId || account.LastSyncedAllPostId != domain.UnsyncedPostId {
		t.Errorf("Expected unsynced cursors, got %d/%d", account.LastPostId, account.LastSyncedAllPostId)
	}

	err, read := database.ReadAccountByAcct("ALICE")
	if err != nil {
		t.Fatalf("ReadAccountByAcct failed: %v", err)
	}
	if read.Id != account.Id {
		t.Errorf("Expected same account back, got %s", read.Id)
	}
	if read.PrivateKeyPem != "private-pem" || read.PublicKeyPem != "public-pem" {
		t.Error("Expected keypair persisted")
	}

	err, byId := database.ReadAccountById(account.Id)
	if err != nil {
		t.Fatalf("ReadAccountById failed: %v", err)
	}
	if byId.Acct != "alice" {
		t.Errorf("Unexpected account by id: %s", byId.Acct)
	}
}

func TestCreateAccountIdempotent(t *testing.T) {
	database := setupTestDB(t)

	first := createTestAccount(t, database, "alice")
	second := createTestAccount(t, database, "alice")

	if first.Id != second.Id {
		t.Error("Creating the same acct twice must return the existing account")
	}

	err, all := database.ReadAllAccounts()
	if err != nil {
		t.Fatalf("ReadAllAccounts failed: %v", err)
	}
	if len(*all) != 1 {
		t.Errorf("Expected 1 account, got %d", len(*all))
	}
}

func TestReadAccountNotFound(t *testing.T) {
	database := setupTestDB(t)

	err, account := database.ReadAccountByAcct("nobody")
	if err != sql.ErrNoRows {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
	if account != nil {
		t.Error("Expected nil account")
	}
}

func TestReadDueAccountsSkipsDeactivated(t *testing.T) {
	database := setupTestDB(t)

	active := createTestAccount(t, database, "active")
	gone := createTestAccount(t, database, "gone")

	if err := database.DeactivateAccount(gone.Id); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}

	err, due := database.ReadDueAccounts(10)
	if err != nil {
		t.Fatalf("ReadDueAccounts failed: %v", err)
	}
	if len(*due) != 1 || (*due)[0].Id != active.Id {
		t.Errorf("Expected only the active account, got %d entries", len(*due))
	}
}

func TestCommitSyncIsAtomicAndVisible(t *testing.T) {
	database := setupTestDB(t)
	account := createTestAccount(t, database, "alice")

	now := time.Now()
	deliveries := []domain.DeliveryQueueItem{
		{Id: uuid.New(), InboxURI: "https://one.example/inbox", ActivityJSON: `{"type":"Create"}`, NextRetryAt: now, CreatedAt: now},
		{Id: uuid.New(), InboxURI: "https://two.example/inbox", ActivityJSON: `{"type":"Create"}`, NextRetryAt: now, CreatedAt: now},
	}
	if err := database.CommitSync(account.Id, 100, 100, 0, now, deliveries); err != nil {
		t.Fatalf("CommitSync failed: %v", err)
	}

	err, read := database.ReadAccountById(account.Id)
	if err != nil {
		t.Fatalf("ReadAccountById failed: %v", err)
	}
	if read.LastPostId != 100 || read.LastSyncedAllPostId != 100 {
		t.Errorf("Expected cursors at 100, got %d/%d", read.LastPostId, read.LastSyncedAllPostId)
	}

	err, pending := database.ReadPendingDeliveries(10)
	if err != nil {
		t.Fatalf("ReadPendingDeliveries failed: %v", err)
	}
	if len(*pending) != 2 {
		t.Errorf("Expected 2 pending deliveries, got %d", len(*pending))
	}
}

func TestSetAccountFlags(t *testing.T) {
	database := setupTestDB(t)
	account := createTestAccount(t, database, "alice")

	if err := database.SetAccountFlags(account.Id, true, true); err != nil {
		t.Fatalf("SetAccountFlags failed: %v", err)
	}

	err, read := database.ReadAccountById(account.Id)
	if err != nil {
		t.Fatalf("ReadAccountById failed: %v", err)
	}
	if !read.Unlisted || !read.Sensitive {
		t.Errorf("Expected both flags set, got unlisted=%v sensitive=%v", read.Unlisted, read.Sensitive)
	}
}

func TestUpsertFollowerRefreshesInboxes(t *testing.T) {
	database := setupTestDB(t)

	follower := createTestFollower(t, database, "bob", "remote.example")

	updated := *follower
	updated.Id = uuid.New() // a fresh id must not create a second row
	updated.InboxURI = "https://remote.example/users/bob/inbox2"
	updated.SharedInboxURI = ""
	if err := database.UpsertFollower(&updated); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	err, read := database.ReadFollowerByActorURI(follower.ActorURI)
	if err != nil {
		t.Fatalf("ReadFollowerByActorURI failed: %v", err)
	}
	if read.Id != follower.Id {
		t.Error("Upsert must keep the original row id")
	}
	if read.InboxURI != "https://remote.example/users/bob/inbox2" || read.SharedInboxURI != "" {
		t.Errorf("Expected refreshed inboxes, got %s / %s", read.InboxURI, read.SharedInboxURI)
	}
}

func TestFollowsAndFollowerListing(t *testing.T) {
	database := setupTestDB(t)
	alice := createTestAccount(t, database, "alice")
	carol := createTestAccount(t, database, "carol")
	follower := createTestFollower(t, database, "bob", "remote.example")

	if err := database.AddFollow(follower.Id, alice.Id); err != nil {
		t.Fatalf("AddFollow failed: %v", err)
	}
	// Duplicate follows are ignored.
	if err := database.AddFollow(follower.Id, alice.Id); err != nil {
		t.Fatalf("Duplicate AddFollow failed: %v", err)
	}
	if err := database.AddFollow(follower.Id, carol.Id); err != nil {
		t.Fatalf("AddFollow failed: %v", err)
	}

	err, ofAlice := database.ReadFollowersByAccountId(alice.Id)
	if err != nil {
		t.Fatalf("ReadFollowersByAccountId failed: %v", err)
	}
	if len(*ofAlice) != 1 || (*ofAlice)[0].Id != follower.Id {
		t.Errorf("Expected bob following alice once, got %d entries", len(*ofAlice))
	}

	err, count := database.CountFollowers(alice.Id)
	if err != nil {
		t.Fatalf("CountFollowers failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected follower count 1, got %d", count)
	}

	err, all := database.ReadAllFollowers()
	if err != nil {
		t.Fatalf("ReadAllFollowers failed: %v", err)
	}
	if len(*all) != 1 {
		t.Fatalf("Expected 1 follower, got %d", len(*all))
	}
	if len((*all)[0].Followings) != 2 {
		t.Errorf("Expected 2 followings loaded, got %d", len((*all)[0].Followings))
	}
}

func TestRemoveFollowDropsOrphanedFollower(t *testing.T) {
	database := setupTestDB(t)
	alice := createTestAccount(t, database, "alice")
	carol := createTestAccount(t, database, "carol")
	follower := createTestFollower(t, database, "bob", "remote.example")

	if err := database.AddFollow(follower.Id, alice.Id); err != nil {
		t.Fatalf("AddFollow failed: %v", err)
	}
	if err := database.AddFollow(follower.Id, carol.Id); err != nil {
		t.Fatalf("AddFollow failed: %v", err)
	}

	if err := database.RemoveFollow(follower.Id, alice.Id); err != nil {
		t.Fatalf("RemoveFollow failed: %v", err)
	}
	if err, _ := database.ReadFollowerByActorURI(follower.ActorURI); err != nil {
		t.Error("Follower with remaining follows must survive")
	}

	if err := database.RemoveFollow(follower.Id, carol.Id); err != nil {
		t.Fatalf("RemoveFollow failed: %v", err)
	}
	if err, _ := database.ReadFollowerByActorURI(follower.ActorURI); err != sql.ErrNoRows {
		t.Error("Follower without follows must be dropped")
	}
}

func TestDeleteFollowerByActorURICascades(t *testing.T) {
	database := setupTestDB(t)
	alice := createTestAccount(t, database, "alice")
	follower := createTestFollower(t, database, "bob", "remote.example")

	if err := database.AddFollow(follower.Id, alice.Id); err != nil {
		t.Fatalf("AddFollow failed: %v", err)
	}

	if err := database.DeleteFollowerByActorURI(follower.ActorURI); err != nil {
		t.Fatalf("DeleteFollowerByActorURI failed: %v", err)
	}

	if err, _ := database.ReadFollowerByActorURI(follower.ActorURI); err != sql.ErrNoRows {
		t.Error("Expected follower row removed")
	}
	err, count := database.CountFollowers(alice.Id)
	if err != nil {
		t.Fatalf("CountFollowers failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected follows removed, got %d", count)
	}

	// Unknown actors are a no-op.
	if err := database.DeleteFollowerByActorURI("https://remote.example/users/stranger"); err != nil {
		t.Errorf("Delete of unknown actor must not fail: %v", err)
	}
}

func TestIncrementPostingErrorByInbox(t *testing.T) {
	database := setupTestDB(t)
	follower := createTestFollower(t, database, "bob", "remote.example")

	// Matching the shared inbox bumps the counter too.
	if err := database.IncrementPostingErrorByInbox(follower.SharedInboxURI); err != nil {
		t.Fatalf("IncrementPostingErrorByInbox failed: %v", err)
	}
	if err := database.IncrementPostingErrorByInbox(follower.InboxURI); err != nil {
		t.Fatalf("IncrementPostingErrorByInbox failed: %v", err)
	}

	err, read := database.ReadFollowerByActorURI(follower.ActorURI)
	if err != nil {
		t.Fatalf("ReadFollowerByActorURI failed: %v", err)
	}
	if read.PostingErrorCount != 2 {
		t.Errorf("Expected posting error count 2, got %d", read.PostingErrorCount)
	}
}

func TestModerationRuleRoundtrip(t *testing.T) {
	database := setupTestDB(t)

	rule := &domain.ModerationRule{
		Id:        uuid.New(),
		Entity:    domain.ModerationFollower,
		Pattern:   "*.badhost.example",
		Kind:      domain.ModerationDeny,
		CreatedAt: time.Now(),
	}
	if err := database.CreateModerationRule(rule); err != nil {
		t.Fatalf("CreateModerationRule failed: %v", err)
	}

	err, rules := database.ReadModerationRules()
	if err != nil {
		t.Fatalf("ReadModerationRules failed: %v", err)
	}
	if len(*rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(*rules))
	}
	got := (*rules)[0]
	if got.Entity != domain.ModerationFollower || got.Kind != domain.ModerationDeny || got.Pattern != "*.badhost.example" {
		t.Errorf("Unexpected rule: %+v", got)
	}

	if err := database.DeleteModerationRule(rule.Id); err != nil {
		t.Fatalf("DeleteModerationRule failed: %v", err)
	}
	err, rules = database.ReadModerationRules()
	if err != nil {
		t.Fatalf("ReadModerationRules failed: %v", err)
	}
	if len(*rules) != 0 {
		t.Errorf("Expected no rules after delete, got %d", len(*rules))
	}
}

func TestDeliveryQueueLifecycle(t *testing.T) {
	database := setupTestDB(t)

	now := time.Now()
	item := &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     "https://remote.example/inbox",
		ActivityJSON: `{"type":"Create"}`,
		NextRetryAt:  now.Add(-time.Minute),
		CreatedAt:    now,
	}
	if err := database.EnqueueDelivery(item); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}

	future := &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     "https://remote.example/inbox",
		ActivityJSON: `{"type":"Create"}`,
		NextRetryAt:  now.Add(time.Hour),
		CreatedAt:    now,
	}
	if err := database.EnqueueDelivery(future); err != nil {
		t.Fatalf("EnqueueDelivery failed: %v", err)
	}

	err, pending := database.ReadPendingDeliveries(10)
	if err != nil {
		t.Fatalf("ReadPendingDeliveries failed: %v", err)
	}
	if len(*pending) != 1 || (*pending)[0].Id != item.Id {
		t.Fatalf("Expected only the due item, got %d entries", len(*pending))
	}

	if err := database.UpdateDeliveryAttempt(item.Id, 1, now.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateDeliveryAttempt failed: %v", err)
	}
	err, pending = database.ReadPendingDeliveries(10)
	if err != nil {
		t.Fatalf("ReadPendingDeliveries failed: %v", err)
	}
	if len(*pending) != 0 {
		t.Errorf("Expected nothing due after backoff, got %d", len(*pending))
	}

	if err := database.DeleteDelivery(item.Id); err != nil {
		t.Fatalf("DeleteDelivery failed: %v", err)
	}
}

func TestRemoteActorUpsertAndRead(t *testing.T) {
	database := setupTestDB(t)

	actor := &domain.RemoteActor{
		Id:            uuid.New(),
		Acct:          "bob",
		Host:          "remote.example",
		ActorURI:      "https://remote.example/users/bob",
		InboxURI:      "https://remote.example/users/bob/inbox",
		PublicKeyPem:  "pem-one",
		LastFetchedAt: time.Now(),
	}
	if err := database.UpsertRemoteActor(actor); err != nil {
		t.Fatalf("UpsertRemoteActor failed: %v", err)
	}

	refetched := *actor
	refetched.Id = uuid.New()
	refetched.PublicKeyPem = "pem-two"
	if err := database.UpsertRemoteActor(&refetched); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	err, read := database.ReadRemoteActorByURI(actor.ActorURI)
	if err != nil {
		t.Fatalf("ReadRemoteActorByURI failed: %v", err)
	}
	if read.PublicKeyPem != "pem-two" {
		t.Errorf("Expected refreshed key, got %s", read.PublicKeyPem)
	}

	if err := database.DeleteRemoteActorByURI(actor.ActorURI); err != nil {
		t.Fatalf("DeleteRemoteActorByURI failed: %v", err)
	}
	if err, _ := database.ReadRemoteActorByURI(actor.ActorURI); err != sql.ErrNoRows {
		t.Errorf("Expected sql.ErrNoRows after delete, got %v", err)
	}
}
