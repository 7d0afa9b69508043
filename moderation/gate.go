package moderation

import (
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/deemkeen/plumage/domain"
)

// RuleStore supplies the administrator-configured rules.
type RuleStore interface {
	ReadModerationRules() (error, *[]domain.ModerationRule)
}

// Gate evaluates identities against the configured allow/deny rules.
// Rules are held in an in-memory snapshot refreshed via Reload; compiled
// matchers are cached by (entity, pattern) so rule evaluation never
// recompiles on the request path.
type Gate struct {
	store RuleStore

	mu       sync.RWMutex
	rules    []domain.ModerationRule
	matchers map[string]*regexp.Regexp
}

func NewGate(store RuleStore) *Gate {
	g := &Gate{
		store:    store,
		matchers: make(map[string]*regexp.Regexp),
	}
	if err := g.Reload(); err != nil {
		log.Printf("Moderation: could not load rules: %v", err)
	}
	return g
}

// Reload replaces the rule snapshot from the store. Called at startup and
// after the admin console edits rules.
func (g *Gate) Reload() error {
	err, rules := g.store.ReadModerationRules()
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if rules == nil {
		g.rules = nil
		return nil
	}
	g.rules = *rules
	return nil
}

// ListKind reports the evaluation mode for an entity type. An allow list
// takes precedence over a deny list when both are configured.
func (g *Gate) ListKind(entity domain.ModerationEntity) domain.ModerationListKind {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.listKindLocked(entity)
}

func (g *Gate) listKindLocked(entity domain.ModerationEntity) domain.ModerationListKind {
	var hasDeny bool
	for _, r := range g.rules {
		if r.Entity != entity {
			continue
		}
		if r.Kind == domain.ModerationAllow {
			return domain.ModerationAllow
		}
		if r.Kind == domain.ModerationDeny {
			hasDeny = true
		}
	}
	if hasDeny {
		return domain.ModerationDeny
	}
	return domain.ModerationNone
}

// IsAllowed decides whether an identity passes moderation. Account
// identities are bare handles; follower identities are @handle@host.
func (g *Gate) IsAllowed(entity domain.ModerationEntity, identity string) bool {
	identity = strings.ToLower(strings.TrimSpace(identity))

	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.listKindLocked(entity) {
	case domain.ModerationNone:
		return true
	case domain.ModerationAllow:
		for _, r := range g.rules {
			if r.Entity != entity || r.Kind != domain.ModerationAllow {
				continue
			}
			if g.matchLocked(r, identity) {
				return true
			}
		}
		return false
	default:
		for _, r := range g.rules {
			if r.Entity != entity || r.Kind != domain.ModerationDeny {
				continue
			}
			if g.matchLocked(r, identity) {
				return false
			}
		}
		return true
	}
}

func (g *Gate) matchLocked(rule domain.ModerationRule, identity string) bool {
	key := string(rule.Entity) + "|" + rule.Pattern
	re, ok := g.matchers[key]
	if !ok {
		var err error
		re, err = CompilePattern(rule.Entity, rule.Pattern)
		if err != nil {
			log.Printf("Moderation: invalid pattern %q: %v", rule.Pattern, err)
			return false
		}
		g.matchers[key] = re
	}
	return re.MatchString(identity)
}
