package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrSignature marks a request whose HTTP signature is missing, invalid
// or not attributable to the claimed actor.
var ErrSignature = errors.New("activitypub: invalid signature")

// Verifier authenticates an inbound inbox request and returns the
// verified actor URI.
type Verifier interface {
	Verify(r *http.Request, body []byte) (string, error)
}

// SignatureVerifier verifies HTTP signatures against the key published
// in the signing actor's document.
type SignatureVerifier struct {
	Resolver *Resolver
}

func (v *SignatureVerifier) Verify(r *http.Request, body []byte) (string, error) {
	if r.Header.Get("Signature") == "" {
		return "", fmt.Errorf("%w: missing Signature header", ErrSignature)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Actor == "" {
		return "", fmt.Errorf("%w: no attributable actor", ErrSignature)
	}

	actor, err := v.Resolver.GetOrFetchActor(r.Context(), env.Actor)
	if err != nil {
		if errors.Is(err, ErrActorRateLimited) {
			return "", err
		}
		return "", fmt.Errorf("%w: could not resolve actor key: %v", ErrSignature, err)
	}

	keyOwner, err := VerifyRequest(r, actor.PublicKeyPem)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignature, err)
	}

	// The signing key must belong to the actor the activity claims.
	if keyOwner != actor.ActorURI {
		return "", fmt.Errorf("%w: key owner %s does not match actor %s", ErrSignature, keyOwner, actor.ActorURI)
	}

	return actor.ActorURI, nil
}
