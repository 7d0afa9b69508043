package moderation

import (
	"strings"

	"github.com/deemkeen/plumage/domain"
)

// AccountFlagsStore supplies the per-account publication flags.
type AccountFlagsStore interface {
	ReadAccountByAcct(acct string) (error, *domain.SyncedAccount)
}

// Visibility exposes the per-account publication flags consumed when
// Notes are assembled. These are plain boolean lookups, not rule-based.
type Visibility struct {
	store AccountFlagsStore
}

func NewVisibility(store AccountFlagsStore) *Visibility {
	return &Visibility{store: store}
}

func (v *Visibility) IsUnlisted(acct string) bool {
	err, acc := v.store.ReadAccountByAcct(strings.ToLower(acct))
	return err == nil && acc != nil && acc.Unlisted
}

func (v *Visibility) IsSensitive(acct string) bool {
	err, acc := v.store.ReadAccountByAcct(strings.ToLower(acct))
	return err == nil && acc != nil && acc.Sensitive
}
