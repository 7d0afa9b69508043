package domain

// Note is the ActivityPub object built from one fetched post. Immutable
// once emitted.
type Note struct {
	Context      interface{} `json:"@context,omitempty"`
	Id           string      `json:"id"`
	Type         string      `json:"type"`
	Published    string      `json:"published"`
	URL          string      `json:"url"`
	AttributedTo string      `json:"attributedTo"`
	InReplyTo    string      `json:"inReplyTo,omitempty"`
	To           []string    `json:"to"`
	Cc           []string    `json:"cc"`
	Sensitive    bool        `json:"sensitive"`
	Summary      string      `json:"summary,omitempty"`
	Content      string      `json:"content"`
	Attachment   []Attachment `json:"attachment"`
	Tag          []Tag        `json:"tag"`
}

// Attachment is one media document on a Note.
type Attachment struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

// Tag is a mention, hashtag or link entry on a Note.
type Tag struct {
	Type string `json:"type"`
	Href string `json:"href"`
	Name string `json:"name"`
}

// ActivityStreams collection IRIs.
const (
	PublicCollection = "https://www.w3.org/ns/activitystreams#Public"
	ASContext        = "https://www.w3.org/ns/activitystreams"
)
