package transform

import (
	"fmt"
	"strings"

	"github.com/deemkeen/plumage/domain"
)

// VisibilityPolicy exposes the per-account publication flags.
type VisibilityPolicy interface {
	IsUnlisted(acct string) bool
	IsSensitive(acct string) bool
}

// ContentWarning is the fixed summary set on Notes of sensitive accounts.
const ContentWarning = "Potential Content Warning"

// Builder assembles the deliverable Note for one fetched post. Build is a
// pure function of its inputs; all I/O happens before it is called.
type Builder struct {
	Domain    string
	Extractor Extractor
	Policy    VisibilityPolicy
}

func (b *Builder) Build(acct string, post *domain.FetchedPost) *domain.Note {
	acct = strings.ToLower(acct)
	actorURL := fmt.Sprintf("https://%s/users/%s", b.Domain, acct)
	noteURL := fmt.Sprintf("https://%s/users/%s/statuses/%d", b.Domain, acct, post.Id)

	// Deliveries always target the followers collection. Unlisted
	// accounts stay deliverable but are not advertised publicly, so the
	// public collection moves to cc.
	to := []string{actorURL + "/followers"}
	cc := []string{}
	if b.Policy.IsUnlisted(acct) {
		cc = append(cc, domain.PublicCollection)
	}

	summary := ""
	sensitive := b.Policy.IsSensitive(acct)
	if sensitive {
		summary = ContentWarning
	}

	content, tags := b.Extractor.Extract(RewriteText(post))

	if strings.Contains(content, ReshareToken) && post.IsReshare {
		if strings.TrimSpace(post.ReshareURL) == "" {
			content = strings.ReplaceAll(content, ReshareToken, "RT")
		} else {
			content = strings.ReplaceAll(content, ReshareToken,
				fmt.Sprintf(`<a href="%s" rel="nofollow noopener noreferrer" target="_blank">RT</a>`, post.ReshareURL))
		}
	}

	inReplyTo := ""
	if post.InReplyToPostId != 0 && post.InReplyToAcct != "" {
		inReplyTo = fmt.Sprintf("https://%s/users/%s/statuses/%d",
			b.Domain, strings.ToLower(post.InReplyToAcct), post.InReplyToPostId)
	}

	if tags == nil {
		tags = []domain.Tag{}
	}

	return &domain.Note{
		Context:      domain.ASContext,
		Id:           noteURL,
		Type:         "Note",
		Published:    post.CreatedAt.UTC().Format("2006-01-02T15:04:05") + "Z",
		URL:          noteURL,
		AttributedTo: actorURL,
		InReplyTo:    inReplyTo,
		To:           to,
		Cc:           cc,
		Sensitive:    sensitive,
		Summary:      summary,
		Content:      "<p>" + content + "</p>",
		Attachment:   Attachments(post),
		Tag:          tags,
	}
}
