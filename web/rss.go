package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/transform"
	"github.com/deemkeen/plumage/util"
	"github.com/gorilla/feeds"
)

const rssTimelineSize = 20

// GetRSS renders a bridged account's recent posts as an RSS feed,
// fetched live from the feed source.
func GetRSS(ctx context.Context, deps *Deps, conf *util.AppConfig, acct string) (string, error) {
	acct = strings.ToLower(acct)

	err, account := db.GetDB().ReadAccountByAcct(acct)
	if err != nil || account == nil || account.Deactivated {
		return "", errors.New("account not found")
	}

	posts, err := deps.Source.GetTimeline(ctx, acct, rssTimelineSize, 0)
	if err != nil {
		log.Printf("RSS: could not fetch timeline of %s: %v", acct, err)
		return "", errors.New("error retrieving timeline")
	}

	link := fmt.Sprintf("https://%s/users/%s", conf.Conf.Domain, acct)
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("Plumage - %s", acct),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("bridged posts of %s", acct),
		Author:      &feeds.Author{Name: acct, Email: fmt.Sprintf("%s@%s", acct, conf.Conf.Domain)},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, post := range posts {
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      fmt.Sprintf("%d", post.Id),
				Title:   post.CreatedAt.Format(util.DateTimeFormat()),
				Link:    &feeds.Link{Href: fmt.Sprintf("%s/statuses/%d", link, post.Id)},
				Content: transform.RewriteText(post),
				Author:  &feeds.Author{Name: acct, Email: fmt.Sprintf("%s@%s", acct, conf.Conf.Domain)},
				Created: post.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}
