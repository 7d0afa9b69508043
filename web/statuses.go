package web

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deemkeen/plumage/db"
)

// GetStatus serves one bridged post as an ActivityPub Note. The post is
// fetched live from the feed source and rendered with the same transform
// the pipeline uses, so a fetched Note always matches what followers
// received.
func GetStatus(ctx context.Context, deps *Deps, acct string, postId int64) (error, string) {
	acct = strings.ToLower(acct)

	err, account := db.GetDB().ReadAccountByAcct(acct)
	if err != nil || account == nil || account.Deactivated {
		return fmt.Errorf("account not found"), "{}"
	}

	post, err := deps.Source.GetPost(ctx, postId)
	if err != nil {
		return err, "{}"
	}

	// A status URL only resolves under its own author.
	if !strings.EqualFold(post.Author, acct) {
		return fmt.Errorf("post does not belong to %s", acct), "{}"
	}

	note := deps.Builder.Build(acct, post)
	payload, err := json.Marshal(note)
	if err != nil {
		return err, "{}"
	}
	return nil, string(payload)
}
