package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/deemkeen/plumage/activitypub"
	"github.com/deemkeen/plumage/domain"
	"github.com/deemkeen/plumage/feed"
	"github.com/deemkeen/plumage/transform"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence surface one sync cycle needs. *db.DB
// satisfies it.
type Store interface {
	ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follower)
	UpdateAccountCursor(id uuid.UUID, lastPostId, lastSyncedAllPostId int64, errorCount int, ts time.Time) error
	CommitSync(id uuid.UUID, lastPostId, lastSyncedAllPostId int64, errorCount int, ts time.Time, deliveries []domain.DeliveryQueueItem) error
}

// CycleResult summarizes one pipeline run.
type CycleResult struct {
	// Synced accounts had their cursors advanced this cycle.
	Synced []string
	// Gone accounts no longer exist upstream and need deactivation.
	Gone []uuid.UUID
}

const fetchBatchSize = 200

// Pipeline pulls new posts for bridged accounts, renders them into
// Notes and enqueues deliveries. One account failing never affects the
// others in the same cycle.
type Pipeline struct {
	Store   Store
	Source  feed.Source
	Cache   *feed.AccountCache
	Builder *transform.Builder
	Domain  string
	Workers int
}

// RunCycle processes the given accounts concurrently, bounded by
// Workers. Cancelling ctx stops picking up new accounts; accounts
// already in flight finish their commit.
func (p *Pipeline) RunCycle(ctx context.Context, accounts []*domain.SyncedAccount) (*CycleResult, error) {
	result := &CycleResult{}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	group.SetLimit(workers)

	for _, account := range accounts {
		if ctx.Err() != nil {
			break
		}
		account := account
		group.Go(func() error {
			gone, synced := p.syncAccount(groupCtx, account)
			mu.Lock()
			defer mu.Unlock()
			if gone {
				result.Gone = append(result.Gone, account.Id)
			}
			if synced {
				result.Synced = append(result.Synced, account.Acct)
			}
			// Per-account failures are bookkept, never fatal for the cycle.
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}
	return result, ctx.Err()
}

// syncAccount runs the retrieval-to-enqueue path for one account and
// reports whether the account is gone upstream and whether its cursors
// advanced.
func (p *Pipeline) syncAccount(ctx context.Context, account *domain.SyncedAccount) (gone bool, synced bool) {
	profile, err := p.resolveProfile(ctx, account.Acct)
	if err != nil {
		return p.handleFetchError(account, err), false
	}
	if profile.Protected {
		log.Println("Pipeline: account is protected upstream, skipping:", account.Acct)
		p.touch(account)
		return false, false
	}

	if account.LastPostId == domain.UnsyncedPostId {
		return p.baselineSync(ctx, account)
	}

	posts, err := p.Source.GetTimeline(ctx, account.Acct, fetchBatchSize, account.LastSyncedAllPostId)
	if err != nil {
		return p.handleFetchError(account, err), false
	}

	if len(posts) == 0 {
		p.touch(account)
		return false, false
	}

	err, followers := p.Store.ReadFollowersByAccountId(account.Id)
	if err != nil {
		log.Println("Pipeline: could not read followers of", account.Acct, "-", err)
		return false, false
	}

	deliveries := p.renderDeliveries(account, *followers, posts)

	newest := newestPostId(posts)
	if err := p.Store.CommitSync(account.Id, newest, newest, 0, time.Now(), deliveries); err != nil {
		log.Println("Pipeline: commit failed for", account.Acct, "-", err)
		return false, false
	}

	log.Printf("Pipeline: synced %s, %d new posts, %d deliveries", account.Acct, len(posts), len(deliveries))
	return false, true
}

// baselineSync establishes the cursor for a never-synced account. Only
// the newest post is fetched to seed both cursors; nothing is emitted,
// so a freshly added account does not flood its followers with history.
func (p *Pipeline) baselineSync(ctx context.Context, account *domain.SyncedAccount) (gone bool, synced bool) {
	posts, err := p.Source.GetTimeline(ctx, account.Acct, 1, 0)
	if err != nil {
		return p.handleFetchError(account, err), false
	}

	if len(posts) == 0 {
		p.touch(account)
		return false, false
	}

	newest := newestPostId(posts)
	if err := p.Store.CommitSync(account.Id, newest, newest, 0, time.Now(), nil); err != nil {
		log.Println("Pipeline: baseline commit failed for", account.Acct, "-", err)
		return false, false
	}

	log.Printf("Pipeline: baselined %s at post %d", account.Acct, newest)
	return false, true
}

// resolveProfile looks up the upstream profile, through the cache when
// one is configured. A failed cycle evicts the entry, so the next
// lookup hits the source again.
func (p *Pipeline) resolveProfile(ctx context.Context, acct string) (*feed.Account, error) {
	if p.Cache != nil {
		return p.Cache.GetAccount(ctx, acct)
	}
	return p.Source.GetAccount(ctx, acct)
}

// handleFetchError maps a retrieval failure onto the account's
// bookkeeping. Rate limiting is a pure skip, a vanished account is
// surfaced to the caller, anything else bumps the error counter with
// cursors untouched.
func (p *Pipeline) handleFetchError(account *domain.SyncedAccount, err error) (gone bool) {
	switch {
	case errors.Is(err, feed.ErrRateLimited):
		log.Println("Pipeline: rate limited fetching", account.Acct, "- skipping this cycle")
		return false
	case errors.Is(err, feed.ErrAccountGone):
		log.Println("Pipeline: account gone upstream:", account.Acct)
		return true
	default:
		log.Println("Pipeline: fetch failed for", account.Acct, "-", err)
		if p.Cache != nil {
			p.Cache.Evict(account.Acct)
		}
		if dbErr := p.Store.UpdateAccountCursor(account.Id, account.LastPostId, account.LastSyncedAllPostId,
			account.FetchErrorCount+1, time.Now()); dbErr != nil {
			log.Println("Pipeline: could not record fetch error for", account.Acct, "-", dbErr)
		}
		return false
	}
}

// renderDeliveries turns the fetched posts into Create activities and
// fans them out over the followers' distinct inboxes.
func (p *Pipeline) renderDeliveries(account *domain.SyncedAccount, followers []domain.Follower, posts []*domain.FetchedPost) []domain.DeliveryQueueItem {
	if len(followers) == 0 {
		return nil
	}

	inboxes := make([]string, 0, len(followers))
	seen := make(map[string]bool)
	for _, f := range followers {
		inbox := f.PreferredInbox()
		if inbox == "" || seen[inbox] {
			continue
		}
		seen[inbox] = true
		inboxes = append(inboxes, inbox)
	}

	var deliveries []domain.DeliveryQueueItem
	for _, post := range posts {
		note := p.Builder.Build(account.Acct, post)
		payload, err := activitypub.NewCreateActivity(p.Domain, account.Acct, note)
		if err != nil {
			log.Println("Pipeline: could not render post", post.Id, "of", account.Acct, "-", err)
			continue
		}
		now := time.Now()
		for _, inbox := range inboxes {
			deliveries = append(deliveries, domain.DeliveryQueueItem{
				Id:           uuid.New(),
				InboxURI:     inbox,
				ActivityJSON: string(payload),
				NextRetryAt:  now,
				CreatedAt:    now,
			})
		}
	}
	return deliveries
}

// touch refreshes last_sync without moving cursors, so the scheduler's
// least-recently-synced ordering keeps rotating.
func (p *Pipeline) touch(account *domain.SyncedAccount) {
	if err := p.Store.UpdateAccountCursor(account.Id, account.LastPostId, account.LastSyncedAllPostId,
		0, time.Now()); err != nil {
		log.Println("Pipeline: could not refresh sync time for", account.Acct, "-", err)
	}
}

func newestPostId(posts []*domain.FetchedPost) int64 {
	newest := posts[0].Id
	for _, post := range posts[1:] {
		if post.Id > newest {
			newest = post.Id
		}
	}
	return newest
}
