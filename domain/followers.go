package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

// Follower is a remote fediverse actor subscribed to one or more bridged
// accounts. Identified by the (acct, host) pair.
type Follower struct {
	Id                uuid.UUID
	Acct              string
	Host              string
	ActorURI          string
	InboxURI          string
	SharedInboxURI    string
	PostingErrorCount int
	CreatedAt         time.Time
	Followings        []uuid.UUID // ids of the synced accounts this actor follows
}

// Handle returns the canonical @acct@host form used by moderation rules
// and the admin console.
func (f *Follower) Handle() string {
	return fmt.Sprintf("@%s@%s", f.Acct, f.Host)
}

// PreferredInbox returns the shared inbox when the remote server exposes
// one, so deliveries to several followers on the same host collapse into
// a single request.
func (f *Follower) PreferredInbox() string {
	if f.SharedInboxURI != "" {
		return f.SharedInboxURI
	}
	return f.InboxURI
}
