package domain

import (
	"github.com/google/uuid"
	"time"
)

// DeliveryQueueItem is one signed activity waiting to be POSTed to a
// remote inbox.
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}

// RemoteActor is a cached fediverse actor document, kept for signature
// verification and inbox resolution.
type RemoteActor struct {
	Id             uuid.UUID
	Acct           string
	Host           string
	ActorURI       string
	InboxURI       string
	SharedInboxURI string
	PublicKeyPem   string
	LastFetchedAt  time.Time
}
