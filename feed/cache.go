package feed

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 5000

// AccountCache memoizes account lookups against the feed source. The
// pipeline evicts an account after a failed fetch so the next cycle
// re-resolves it instead of trusting a stale entry.
type AccountCache struct {
	source Source
	cache  *lru.Cache[string, *Account]
}

func NewAccountCache(source Source) *AccountCache {
	cache, err := lru.New[string, *Account](defaultCacheSize)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &AccountCache{source: source, cache: cache}
}

func (c *AccountCache) GetAccount(ctx context.Context, acct string) (*Account, error) {
	acct = strings.ToLower(acct)
	if cached, ok := c.cache.Get(acct); ok {
		return cached, nil
	}

	account, err := c.source.GetAccount(ctx, acct)
	if err != nil {
		return nil, err
	}

	c.cache.Add(acct, account)
	return account, nil
}

// Evict drops the cached entry for acct, forcing re-resolution on the
// next lookup.
func (c *AccountCache) Evict(acct string) {
	c.cache.Remove(strings.ToLower(acct))
}
