package domain

import (
	"github.com/google/uuid"
	"time"
)

// ModerationEntity selects which identities a rule applies to.
type ModerationEntity string

const (
	ModerationAccount  ModerationEntity = "account"
	ModerationFollower ModerationEntity = "follower"
)

// ModerationListKind is the evaluation mode of the configured rules for
// one entity type.
type ModerationListKind string

const (
	ModerationNone  ModerationListKind = "none"
	ModerationAllow ModerationListKind = "allow"
	ModerationDeny  ModerationListKind = "deny"
)

// ModerationRule is one administrator-entered allow or deny pattern.
// Patterns are matched case-insensitively; follower patterns may be a
// full @handle@host, a bare host, or use * as a host wildcard.
type ModerationRule struct {
	Id        uuid.UUID
	Entity    ModerationEntity
	Pattern   string
	Kind      ModerationListKind
	CreatedAt time.Time
}
