package moderation

import (
	"regexp"
	"strings"

	"github.com/deemkeen/plumage/domain"
)

// CompilePattern builds the case-insensitive matcher for one rule.
//
// Account patterns match the handle exactly. Follower patterns may be a
// full @handle@host (matched verbatim), or a host pattern applied to any
// handle on that host; a leading * in the host expands to one-or-more
// characters.
func CompilePattern(entity domain.ModerationEntity, pattern string) (*regexp.Regexp, error) {
	data := strings.ToLower(strings.TrimSpace(pattern))

	if entity != domain.ModerationFollower {
		return regexp.Compile("^" + data + "$")
	}

	if strings.HasPrefix(data, "@") {
		return regexp.Compile("^" + data + "$")
	}

	if strings.HasPrefix(data, "*") {
		data = strings.ReplaceAll(data, "*", "(.+)")
	}

	return regexp.Compile("^@(.+)@" + data + "$")
}
