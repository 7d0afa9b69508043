package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

// UnsyncedPostId marks an account whose timeline has never been fetched.
const UnsyncedPostId int64 = -1

// SyncedAccount is a feed-source identity bridged into the fediverse.
// LastPostId and LastSyncedAllPostId are monotonic high-water marks:
// LastSyncedAllPostId never exceeds LastPostId, and new followers only
// receive posts newer than LastSyncedAllPostId (never backlog).
type SyncedAccount struct {
	Id                  uuid.UUID
	Acct                string // feed handle, stored lower-case
	LastPostId          int64
	LastSyncedAllPostId int64
	FetchErrorCount     int
	Unlisted            bool
	Sensitive           bool
	Deactivated         bool
	LastSync            time.Time
	CreatedAt           time.Time
	PublicKeyPem        string
	PrivateKeyPem       string
}

func (acc *SyncedAccount) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tAcct: %s \n\tLastPostId: %d \n\tLastSyncedAllPostId: %d \n\tErrors: %d",
		acc.Id, acc.Acct, acc.LastPostId, acc.LastSyncedAllPostId, acc.FetchErrorCount)
}
