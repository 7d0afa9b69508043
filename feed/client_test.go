package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"gone", http.StatusGone, ErrAccountGone},
		{"forbidden", http.StatusForbidden, ErrAccountGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL)
			_, err := c.GetTimeline(context.Background(), "alice", 10, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClientServerErrorIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetTimeline(context.Background(), "alice", 10, 0)
	if err == nil {
		t.Fatal("Expected an error for 503")
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccountGone) {
		t.Errorf("Server errors must stay generic, got %v", err)
	}
}

func TestClientParsesTimeline(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{
			"id": 51,
			"author": "alice",
			"text": "hello",
			"reply_to": {"id": 40, "acct": "Bob"},
			"media": [{"kind": "photo", "short_url": "https://t.co/x", "url": "https://img.example/x.jpg"}],
			"urls": [{"short": "https://t.co/y", "expanded": "https://long.example/y"}]
		}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	posts, err := c.GetTimeline(context.Background(), "alice", 200, 50)
	if err != nil {
		t.Fatalf("GetTimeline failed: %v", err)
	}

	if !strings.Contains(gotPath, "/timeline/alice") {
		t.Errorf("Unexpected request path: %s", gotPath)
	}
	if !strings.Contains(gotPath, "since_id=50") {
		t.Errorf("Expected since_id in request, got %s", gotPath)
	}

	if len(posts) != 1 {
		t.Fatalf("Expected 1 post, got %d", len(posts))
	}
	p := posts[0]
	if p.Id != 51 || p.Author != "alice" || p.Text != "hello" {
		t.Errorf("Unexpected post: %+v", p)
	}
	if p.InReplyToPostId != 40 || p.InReplyToAcct != "Bob" {
		t.Errorf("Unexpected reply reference: %+v", p)
	}
	if len(p.Media) != 1 || p.Media[0].URL != "https://img.example/x.jpg" {
		t.Errorf("Unexpected media: %+v", p.Media)
	}
	if len(p.URLs) != 1 || p.URLs[0].Expanded != "https://long.example/y" {
		t.Errorf("Unexpected urls: %+v", p.URLs)
	}
}

func TestClientParsesAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"acct": "alice", "name": "Alice", "protected": true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	account, err := c.GetAccount(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.Acct != "alice" || account.Name != "Alice" || !account.Protected {
		t.Errorf("Unexpected account: %+v", account)
	}
}
