package transform

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/deemkeen/plumage/domain"
)

// ReshareToken is the sentinel left in rewritten text where the reshare
// link is substituted during Note assembly.
const ReshareToken = "{RT}"

const reshareMarker = "RT"

// RewriteText turns the raw text of a fetched post into the message used
// for Note content. Pure function; the steps run in a fixed order:
// reshare substitution, media-link stripping, quote marker, reshare
// marker normalization, then URL expansion.
func RewriteText(post *domain.FetchedPost) string {
	message := post.Text
	mediaURLs := shortURLs(post.Media)

	// A reshare wrapper starting with the literal marker is discarded in
	// favor of the original post's text and media set.
	if post.IsReshare && strings.HasPrefix(message, reshareMarker) && post.Reshared != nil {
		message = post.Reshared.Text
		mediaURLs = shortURLs(post.Reshared.Media)
	}

	// Embedded media links duplicate the attachments and are stripped.
	for _, u := range mediaURLs {
		message = strings.TrimSpace(strings.ReplaceAll(message, u, ""))
	}

	if post.IsQuote {
		message = fmt.Sprintf("[Quote %s]\n%s", ReshareToken, message)
	}

	if post.IsReshare {
		orig := post.Reshared
		prefixed := fmt.Sprintf("%s @%s:", reshareMarker, origAuthor(orig))
		switch {
		case orig != nil && !strings.HasPrefix(message, reshareMarker):
			message = fmt.Sprintf("[%s @%s]\n%s", ReshareToken, orig.Author, message)
		case orig != nil && strings.HasPrefix(message, prefixed):
			message = strings.Replace(message, prefixed,
				fmt.Sprintf("[%s @%s]\n", ReshareToken, orig.Author), 1)
		default:
			// Reshare text starting with the marker in some other shape.
			// Matches the historic behavior of bracketing the bare
			// marker; see the targeted tests covering this branch.
			message = strings.ReplaceAll(message, reshareMarker, "["+ReshareToken+"]")
		}
	}

	// Longest shortened URL first, so a short URL never matches inside a
	// longer one that is still awaiting replacement.
	urls := append([]domain.URLEntity(nil), post.URLs...)
	sort.SliceStable(urls, func(i, j int) bool {
		return len(urls[i].Short) > len(urls[j].Short)
	})
	for _, u := range urls {
		message = strings.ReplaceAll(message, u.Short, u.Expanded)
	}

	return message
}

func origAuthor(orig *domain.FetchedPost) string {
	if orig == nil {
		return ""
	}
	return orig.Author
}

func shortURLs(media []domain.FetchedMedia) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, m := range media {
		if m.ShortURL == "" || seen[m.ShortURL] {
			continue
		}
		seen[m.ShortURL] = true
		urls = append(urls, m.ShortURL)
	}
	return urls
}

// Attachments maps the media of a post (or of its reshared original) to
// Note attachments, dropping anything without a resolvable MIME type.
func Attachments(post *domain.FetchedPost) []domain.Attachment {
	media := post.Media
	if post.IsReshare && post.Reshared != nil {
		media = post.Reshared.Media
	}

	attachments := []domain.Attachment{}
	for _, m := range media {
		url := mediaURL(m)
		mediaType := mediaMIME(m.Kind, url)
		if url == "" || mediaType == "" {
			continue
		}
		attachments = append(attachments, domain.Attachment{
			Type:      "Document",
			MediaType: mediaType,
			URL:       url,
		})
	}
	return attachments
}

func mediaURL(m domain.FetchedMedia) string {
	switch m.Kind {
	case domain.MediaPhoto:
		return m.URL
	case domain.MediaAnimated:
		if len(m.Variants) > 0 {
			return m.Variants[0].URL
		}
	case domain.MediaVideo:
		best := ""
		bestBitrate := -1
		for _, v := range m.Variants {
			if v.Bitrate > bestBitrate {
				best = v.URL
				bestBitrate = v.Bitrate
			}
		}
		return best
	}
	return ""
}

func mediaMIME(kind, url string) string {
	ext := strings.ToLower(path.Ext(url))
	switch kind {
	case domain.MediaPhoto:
		switch ext {
		case ".jpg", ".jpeg":
			return "image/jpeg"
		case ".png":
			return "image/png"
		}
		return ""
	case domain.MediaAnimated:
		switch ext {
		case ".mp4":
			return "video/mp4"
		default:
			return "image/gif"
		}
	case domain.MediaVideo:
		return "video/mp4"
	}
	return ""
}
