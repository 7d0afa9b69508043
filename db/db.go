package db

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/util"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

const DatabaseFileName = "plumage.db"

const (
	//Accounts
	sqlInsertAccount = `INSERT INTO accounts(id, acct, last_post_id, last_synced_all_post_id, public_key_pem, private_key_pem, created_at, last_sync)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAccountColumns = `id, acct, last_post_id, last_synced_all_post_id, fetch_error_count, unlisted, sensitive, deactivated, last_sync, created_at, public_key_pem, private_key_pem`
	sqlUpdateAccountCursor  = `UPDATE accounts SET last_post_id = ?, last_synced_all_post_id = ?, fetch_error_count = ?, last_sync = ? WHERE id = ?`
	sqlUpdateAccountFlags   = `UPDATE accounts SET unlisted = ?, sensitive = ? WHERE id = ?`
	sqlDeactivateAccount    = `UPDATE accounts SET deactivated = 1 WHERE id = ?`
	sqlDeleteAccount        = `DELETE FROM accounts WHERE id = ?`

	//Followers
	sqlInsertFollower = `INSERT INTO followers(id, acct, host, actor_uri, inbox_uri, shared_inbox_uri, created_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(actor_uri) DO UPDATE SET inbox_uri = excluded.inbox_uri, shared_inbox_uri = excluded.shared_inbox_uri`
	sqlSelectFollowerColumns   = `id, acct, host, actor_uri, inbox_uri, shared_inbox_uri, posting_error_count, created_at`
	sqlSelectFollowersByAcctId = `SELECT followers.id, followers.acct, followers.host, followers.actor_uri, followers.inbox_uri, followers.shared_inbox_uri, followers.posting_error_count, followers.created_at
                        FROM followers INNER JOIN follows ON follows.follower_id = followers.id
                        WHERE follows.account_id = ?`
	sqlInsertFollow          = `INSERT OR IGNORE INTO follows(follower_id, account_id, created_at) VALUES (?, ?, ?)`
	sqlDeleteFollow          = `DELETE FROM follows WHERE follower_id = ? AND account_id = ?`
	sqlCountFollows          = `SELECT COUNT(*) FROM follows WHERE follower_id = ?`
	sqlDeleteFollowsByFollower = `DELETE FROM follows WHERE follower_id = ?`
	sqlDeleteFollower        = `DELETE FROM followers WHERE id = ?`
	sqlIncrementPostingError = `UPDATE followers SET posting_error_count = posting_error_count + 1 WHERE inbox_uri = ? OR shared_inbox_uri = ?`

	//Moderation rules
	sqlInsertModerationRule  = `INSERT OR IGNORE INTO moderation_rules(id, entity, pattern, kind, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlDeleteModerationRule  = `DELETE FROM moderation_rules WHERE id = ?`
	sqlSelectModerationRules = `SELECT id, entity, pattern, kind, created_at FROM moderation_rules ORDER BY created_at ASC`

	//Delivery queue
	sqlInsertDelivery         = `INSERT INTO delivery_queue(id, inbox_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, inbox_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue
                        WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery        = `DELETE FROM delivery_queue WHERE id = ?`

	//Remote actor cache
	sqlUpsertRemoteActor = `INSERT INTO remote_actors(id, acct, host, actor_uri, inbox_uri, shared_inbox_uri, public_key_pem, last_fetched_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(actor_uri) DO UPDATE SET acct = excluded.acct, host = excluded.host, inbox_uri = excluded.inbox_uri,
                        shared_inbox_uri = excluded.shared_inbox_uri, public_key_pem = excluded.public_key_pem, last_fetched_at = excluded.last_fetched_at`
	sqlSelectRemoteActorByURI = `SELECT id, acct, host, actor_uri, inbox_uri, shared_inbox_uri, public_key_pem, last_fetched_at FROM remote_actors WHERE actor_uri = ?`
	sqlDeleteRemoteActorByURI = `DELETE FROM remote_actors WHERE actor_uri = ?`
)

// GetDB returns the process-wide database handle, opening (and migrating)
// it on first use.
func GetDB() *DB {
	dbOnce.Do(func() {
		path := util.ResolveFilePath(DatabaseFileName)
		sqlDB, err := sql.Open("sqlite", path)
		if err != nil {
			log.Fatalln("Could not open database:", err)
		}
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY on concurrent inbox handling.
		sqlDB.SetMaxOpenConns(1)
		dbInstance = &DB{db: sqlDB}
	})
	return dbInstance
}

func (db *DB) wrapTransaction(fn func(tx *sql.Tx) error) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateAccount registers a feed handle for bridging. Cursors start at
// the unsynced sentinel and a fresh keypair is attached for signing.
func (db *DB) CreateAccount(acct string, keys *util.RsaKeyPair) (error, *domain.SyncedAccount) {
	acct = strings.ToLower(strings.TrimSpace(acct))

	err, existing := db.ReadAccountByAcct(acct)
	if err == nil && existing != nil {
		return nil, existing
	}

	account := &domain.SyncedAccount{
		Id:                  uuid.New(),
		Acct:                acct,
		LastPostId:          domain.UnsyncedPostId,
		LastSyncedAllPostId: domain.UnsyncedPostId,
		PublicKeyPem:        keys.Public,
		PrivateKeyPem:       keys.Private,
		CreatedAt:           time.Now(),
		LastSync:            time.Now(),
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount, account.Id, account.Acct, account.LastPostId,
			account.LastSyncedAllPostId, account.PublicKeyPem, account.PrivateKeyPem,
			account.CreatedAt, account.LastSync)
		return err
	})
	if err != nil {
		return err, nil
	}
	return nil, account
}

func (db *DB) ReadAccountByAcct(acct string) (error, *domain.SyncedAccount) {
	row := db.db.QueryRow(`SELECT `+sqlSelectAccountColumns+` FROM accounts WHERE acct = ?`, strings.ToLower(acct))
	return scanAccount(row)
}

func (db *DB) ReadAccountById(id uuid.UUID) (error, *domain.SyncedAccount) {
	row := db.db.QueryRow(`SELECT `+sqlSelectAccountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (db *DB) ReadAllAccounts() (error, *[]domain.SyncedAccount) {
	rows, err := db.db.Query(`SELECT ` + sqlSelectAccountColumns + ` FROM accounts ORDER BY acct ASC`)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ReadDueAccounts returns active accounts in least-recently-synced order,
// the selection the scheduler feeds into a cycle.
func (db *DB) ReadDueAccounts(limit int) (error, *[]domain.SyncedAccount) {
	rows, err := db.db.Query(`SELECT `+sqlSelectAccountColumns+` FROM accounts WHERE deactivated = 0 ORDER BY last_sync ASC LIMIT ?`, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (db *DB) UpdateAccountCursor(id uuid.UUID, lastPostId, lastSyncedAllPostId int64, errorCount int, ts time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountCursor, lastPostId, lastSyncedAllPostId, errorCount, ts, id)
		return err
	})
}

// CommitSync advances an account's cursors and enqueues the cycle's
// deliveries in one transaction, so a partially persisted cycle is never
// observable.
func (db *DB) CommitSync(id uuid.UUID, lastPostId, lastSyncedAllPostId int64, errorCount int, ts time.Time, deliveries []domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlUpdateAccountCursor, lastPostId, lastSyncedAllPostId, errorCount, ts, id); err != nil {
			return err
		}
		for _, d := range deliveries {
			if _, err := tx.Exec(sqlInsertDelivery, d.Id, d.InboxURI, d.ActivityJSON, d.Attempts, d.NextRetryAt, d.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) SetAccountFlags(id uuid.UUID, unlisted, sensitive bool) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountFlags, boolToInt(unlisted), boolToInt(sensitive), id)
		return err
	})
}

func (db *DB) DeactivateAccount(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeactivateAccount, id)
		return err
	})
}

func (db *DB) DeleteAccount(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM follows WHERE account_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.Exec(sqlDeleteAccount, id)
		return err
	})
}

// UpsertFollower creates or refreshes a follower row keyed by actor URI.
func (db *DB) UpsertFollower(f *domain.Follower) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollower, f.Id, f.Acct, f.Host, f.ActorURI, f.InboxURI, f.SharedInboxURI, f.CreatedAt)
		return err
	})
}

func (db *DB) ReadFollowerByActorURI(actorURI string) (error, *domain.Follower) {
	row := db.db.QueryRow(`SELECT `+sqlSelectFollowerColumns+` FROM followers WHERE actor_uri = ?`, actorURI)
	return scanFollower(row)
}

func (db *DB) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follower) {
	rows, err := db.db.Query(sqlSelectFollowersByAcctId, accountId)
	if err != nil {
		return err, nil
	}
	defer rows.Close()
	return collectFollowers(rows)
}

// ReadAllFollowers returns every follower with its followings loaded, for
// the admin console.
func (db *DB) ReadAllFollowers() (error, *[]domain.Follower) {
	rows, err := db.db.Query(`SELECT ` + sqlSelectFollowerColumns + ` FROM followers`)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	err, followers := collectFollowers(rows)
	if err != nil || followers == nil {
		return err, followers
	}

	followRows, err := db.db.Query(`SELECT follower_id, account_id FROM follows`)
	if err != nil {
		return err, nil
	}
	defer followRows.Close()

	followings := make(map[uuid.UUID][]uuid.UUID)
	for followRows.Next() {
		var followerId, accountId uuid.UUID
		if err := followRows.Scan(&followerId, &accountId); err != nil {
			return err, nil
		}
		followings[followerId] = append(followings[followerId], accountId)
	}

	for i := range *followers {
		(*followers)[i].Followings = followings[(*followers)[i].Id]
	}
	return nil, followers
}

func (db *DB) AddFollow(followerId, accountId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow, followerId, accountId, time.Now())
		return err
	})
}

// RemoveFollow detaches a follower from one account; the follower row
// itself is dropped once nothing references it.
func (db *DB) RemoveFollow(followerId, accountId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteFollow, followerId, accountId); err != nil {
			return err
		}
		var remaining int
		if err := tx.QueryRow(sqlCountFollows, followerId).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(sqlDeleteFollower, followerId); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteFollowerByActorURI removes a remote actor's follower row and all
// of its follows across every account. No-op when the actor is unknown.
func (db *DB) DeleteFollowerByActorURI(actorURI string) error {
	err, follower := db.ReadFollowerByActorURI(actorURI)
	if err == sql.ErrNoRows || follower == nil {
		return nil
	}
	if err != nil {
		return err
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteFollowsByFollower, follower.Id); err != nil {
			return err
		}
		_, err := tx.Exec(sqlDeleteFollower, follower.Id)
		return err
	})
}

func (db *DB) IncrementPostingErrorByInbox(inboxURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlIncrementPostingError, inboxURI, inboxURI)
		return err
	})
}

func (db *DB) CreateModerationRule(rule *domain.ModerationRule) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertModerationRule, rule.Id, string(rule.Entity), rule.Pattern, string(rule.Kind), rule.CreatedAt)
		return err
	})
}

func (db *DB) DeleteModerationRule(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteModerationRule, id)
		return err
	})
}

func (db *DB) ReadModerationRules() (error, *[]domain.ModerationRule) {
	rows, err := db.db.Query(sqlSelectModerationRules)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var rules []domain.ModerationRule
	for rows.Next() {
		var r domain.ModerationRule
		var entity, kind string
		if err := rows.Scan(&r.Id, &entity, &r.Pattern, &kind, &r.CreatedAt); err != nil {
			return err, nil
		}
		r.Entity = domain.ModerationEntity(entity)
		r.Kind = domain.ModerationListKind(kind)
		rules = append(rules, r)
	}
	return rows.Err(), &rules
}

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDelivery, item.Id, item.InboxURI, item.ActivityJSON, item.Attempts, item.NextRetryAt, item.CreatedAt)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlSelectPendingDeliveries, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		if err := rows.Scan(&item.Id, &item.InboxURI, &item.ActivityJSON, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return err, nil
		}
		items = append(items, item)
	}
	return rows.Err(), &items
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetryAt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, nextRetryAt, id)
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id)
		return err
	})
}

func (db *DB) UpsertRemoteActor(actor *domain.RemoteActor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRemoteActor, actor.Id, actor.Acct, actor.Host, actor.ActorURI,
			actor.InboxURI, actor.SharedInboxURI, actor.PublicKeyPem, actor.LastFetchedAt)
		return err
	})
}

func (db *DB) ReadRemoteActorByURI(actorURI string) (error, *domain.RemoteActor) {
	row := db.db.QueryRow(sqlSelectRemoteActorByURI, actorURI)
	var a domain.RemoteActor
	err := row.Scan(&a.Id, &a.Acct, &a.Host, &a.ActorURI, &a.InboxURI, &a.SharedInboxURI, &a.PublicKeyPem, &a.LastFetchedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &a
}

func (db *DB) DeleteRemoteActorByURI(actorURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRemoteActorByURI, actorURI)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (error, *domain.SyncedAccount) {
	var acc domain.SyncedAccount
	var unlisted, sensitive, deactivated int
	err := row.Scan(&acc.Id, &acc.Acct, &acc.LastPostId, &acc.LastSyncedAllPostId, &acc.FetchErrorCount,
		&unlisted, &sensitive, &deactivated, &acc.LastSync, &acc.CreatedAt, &acc.PublicKeyPem, &acc.PrivateKeyPem)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Unlisted = unlisted != 0
	acc.Sensitive = sensitive != 0
	acc.Deactivated = deactivated != 0
	return nil, &acc
}

func collectAccounts(rows *sql.Rows) (error, *[]domain.SyncedAccount) {
	var accounts []domain.SyncedAccount
	for rows.Next() {
		err, acc := scanAccount(rows)
		if err != nil {
			return err, nil
		}
		accounts = append(accounts, *acc)
	}
	return rows.Err(), &accounts
}

func scanFollower(row rowScanner) (error, *domain.Follower) {
	var f domain.Follower
	err := row.Scan(&f.Id, &f.Acct, &f.Host, &f.ActorURI, &f.InboxURI, &f.SharedInboxURI, &f.PostingErrorCount, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &f
}

func collectFollowers(rows *sql.Rows) (error, *[]domain.Follower) {
	var followers []domain.Follower
	for rows.Next() {
		err, f := scanFollower(rows)
		if err != nil {
			return err, nil
		}
		followers = append(followers, *f)
	}
	return rows.Err(), &followers
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CountFollowers reports the size of an account's follower set, used by
// the followers collection endpoint.
func (db *DB) CountFollowers(accountId uuid.UUID) (error, int) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM follows WHERE account_id = ?`, accountId).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to count followers: %w", err), 0
	}
	return nil, n
}
