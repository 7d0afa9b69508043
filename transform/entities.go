package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/deemkeen/plumage/domain"
)

// Extractor turns rewritten post text into HTML plus the tag list for the
// Note. Implementations must be pure.
type Extractor interface {
	Extract(text string) (string, []domain.Tag)
}

var (
	urlPattern     = regexp.MustCompile(`(?:http|ftp|https)://[\w\-_]+(?:\.[\w\-_]+)+(?:[\w\-.,@?^=%&:/~+#]*[\w\-@?^=%&/~+#])?`)
	mentionPattern = regexp.MustCompile(`(^|[^\w@/])@(\w+)`)
	hashtagPattern = regexp.MustCompile(`(^|[^\w&/])#(\w+)`)
)

// RegexExtractor is the default Extractor: regex-driven mention, hashtag
// and URL markup, linking mentions and hashtags back to this instance.
type RegexExtractor struct {
	Domain string
}

func (e *RegexExtractor) Extract(text string) (string, []domain.Tag) {
	tags := []domain.Tag{}
	if text == "" {
		return "", tags
	}

	// URLs first, so mention/hashtag markup never fires inside an href.
	text = urlPattern.ReplaceAllStringFunc(text, func(u string) string {
		return fmt.Sprintf(`<a href="%s" rel="nofollow noopener noreferrer" target="_blank">%s</a>`, u, u)
	})

	text = mentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := mentionPattern.FindStringSubmatch(match)
		lead, name := groups[1], groups[2]
		href := fmt.Sprintf("https://%s/users/%s", e.Domain, strings.ToLower(name))
		tags = append(tags, domain.Tag{
			Type: "Mention",
			Href: href,
			Name: fmt.Sprintf("@%s@%s", strings.ToLower(name), e.Domain),
		})
		return fmt.Sprintf(`%s<span class="h-card"><a href="%s" class="u-url mention">@<span>%s</span></a></span>`, lead, href, name)
	})

	text = hashtagPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := hashtagPattern.FindStringSubmatch(match)
		lead, name := groups[1], groups[2]
		href := fmt.Sprintf("https://%s/tags/%s", e.Domain, strings.ToLower(name))
		tags = append(tags, domain.Tag{
			Type: "Hashtag",
			Href: href,
			Name: "#" + name,
		})
		return fmt.Sprintf(`%s<a href="%s" class="mention hashtag" rel="tag">#<span>%s</span></a>`, lead, href, name)
	})

	text = strings.ReplaceAll(text, "\n", "<br/>")

	return text, tags
}
