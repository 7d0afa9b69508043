package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/plumage/domain"
	"github.com/google/uuid"
)

// ActivityKind classifies an inbound activity into the cases the inbox
// acts on. Everything else is accepted and ignored.
type ActivityKind int

const (
	KindIgnored ActivityKind = iota
	KindFollow
	KindUndoFollow
	KindDelete
)

// InboxActivity is the parsed form of an inbound activity.
type InboxActivity struct {
	Kind  ActivityKind
	Id    string
	Actor string
	// Object is the followed actor URI for Follow, the unfollowed actor
	// URI for Undo-Follow and the deleted object URI for Delete.
	Object string
}

type envelope struct {
	Id     string          `json:"id"`
	Type   string          `json:"type"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

// ParseActivity maps raw activity JSON onto an InboxActivity. Unknown
// types, unexpected object shapes and malformed JSON all come back as
// KindIgnored so the caller can acknowledge without acting.
func ParseActivity(body []byte) *InboxActivity {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &InboxActivity{Kind: KindIgnored}
	}

	activity := &InboxActivity{Kind: KindIgnored, Id: env.Id, Actor: env.Actor}

	switch env.Type {
	case "Follow":
		if target := objectURI(env.Object); target != "" {
			activity.Kind = KindFollow
			activity.Object = target
		}
	case "Undo":
		var inner envelope
		if err := json.Unmarshal(env.Object, &inner); err != nil {
			return activity
		}
		if inner.Type != "Follow" {
			return activity
		}
		if target := objectURI(inner.Object); target != "" {
			activity.Kind = KindUndoFollow
			activity.Object = target
		}
	case "Delete":
		if target := objectURI(env.Object); target != "" {
			activity.Kind = KindDelete
			activity.Object = target
		}
	}

	return activity
}

// objectURI extracts the object reference whether it is a bare URI
// string or an embedded object with an id.
func objectURI(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var uri string
	if err := json.Unmarshal(raw, &uri); err == nil {
		return uri
	}

	var obj struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Id
	}
	return ""
}

// CreateActivity wraps a Note for delivery.
type CreateActivity struct {
	Context   interface{}  `json:"@context"`
	Id        string       `json:"id"`
	Type      string       `json:"type"`
	Actor     string       `json:"actor"`
	Published string       `json:"published"`
	To        []string     `json:"to"`
	Cc        []string     `json:"cc"`
	Object    *domain.Note `json:"object"`
}

// NewCreateActivity renders the Create envelope for a built Note. The
// envelope mirrors the Note's addressing so relays treat both alike.
func NewCreateActivity(serverDomain, acct string, note *domain.Note) ([]byte, error) {
	create := CreateActivity{
		Context:   domain.ASContext,
		Id:        note.Id + "/activity",
		Type:      "Create",
		Actor:     fmt.Sprintf("https://%s/users/%s", serverDomain, acct),
		Published: note.Published,
		To:        note.To,
		Cc:        note.Cc,
		Object:    note,
	}

	payload, err := json.Marshal(create)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Create activity: %w", err)
	}
	return payload, nil
}

// NewAcceptActivity builds the Accept acknowledging a Follow.
func NewAcceptActivity(serverDomain, acct, followId, followerActorURI string) ([]byte, error) {
	actorURI := fmt.Sprintf("https://%s/users/%s", serverDomain, acct)

	accept := map[string]interface{}{
		"@context": domain.ASContext,
		"id":       fmt.Sprintf("https://%s/activities/%s", serverDomain, uuid.New().String()),
		"type":     "Accept",
		"actor":    actorURI,
		"object": map[string]interface{}{
			"id":     followId,
			"type":   "Follow",
			"actor":  followerActorURI,
			"object": actorURI,
		},
	}

	payload, err := json.Marshal(accept)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Accept activity: %w", err)
	}
	return payload, nil
}
