package web

import (
	"fmt"
	"strings"

	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/util"
)

type action uint

const (
	id action = iota
	inbox
	outbox
	followers
	following
	sharedInbox
)

// GetActor renders the ActivityPub document of a bridged account. Bridged
// actors are of type Service: they mirror an upstream feed, no human is
// behind them on this instance.
func GetActor(acct string, conf *util.AppConfig) (error, string) {
	err, account := db.GetDB().ReadAccountByAcct(acct)
	if err != nil || account == nil || account.Deactivated {
		if err == nil {
			err = fmt.Errorf("account unavailable")
		}
		return err, "{}"
	}

	acct = account.Acct
	pubKey := strings.Replace(account.PublicKeyPem, "\n", "\\n", -1)
	summary := fmt.Sprintf("Bridged mirror of %s. Posts are fetched from the upstream feed and federated automatically.", acct)

	return nil, fmt.Sprintf(
		`{
					"@context": [
						"https://www.w3.org/ns/activitystreams",
						"https://w3id.org/security/v1"
					],

					"id": "%s",
					"type": "Service",
					"preferredUsername": "%s",
					"name" : "%s",
					"summary": "%s",
					"inbox": "%s",
					"outbox": "%s",
					"followers": "%s",
					"following": "%s",
					"url": "%s",
  					"manuallyApprovesFollowers": false,
					"discoverable": %t,
  					"endpoints": {
    					"sharedInbox": "%s"
  					},
					"publicKey": {
						"id": "%s#main-key",
						"owner": "%s",
						"publicKeyPem": "%s"
					}
				}`,
		getIRI(conf.Conf.Domain, acct, id),
		acct, acct, summary,
		getIRI(conf.Conf.Domain, acct, inbox),
		getIRI(conf.Conf.Domain, acct, outbox),
		getIRI(conf.Conf.Domain, acct, followers),
		getIRI(conf.Conf.Domain, acct, following),
		getIRI(conf.Conf.Domain, acct, id),
		!account.Unlisted,
		getIRI(conf.Conf.Domain, acct, sharedInbox),
		getIRI(conf.Conf.Domain, acct, id),
		getIRI(conf.Conf.Domain, acct, id), pubKey)
}

func getIRI(serverDomain string, acct string, action action) string {
	prefix := fmt.Sprintf("https://%s/users/%s", serverDomain, acct)
	switch action {
	case inbox:
		return fmt.Sprintf("%s/inbox", prefix)
	case outbox:
		return fmt.Sprintf("%s/outbox", prefix)
	case followers:
		return fmt.Sprintf("%s/followers", prefix)
	case following:
		return fmt.Sprintf("%s/following", prefix)
	case id:
		return prefix
	case sharedInbox:
		return fmt.Sprintf("https://%s/inbox", serverDomain)
	default:
		return ""
	}
}

// GetFollowersCollection renders the followers collection of an account.
// Only the count is exposed.
func GetFollowersCollection(acct string, conf *util.AppConfig) (error, string) {
	database := db.GetDB()
	err, account := database.ReadAccountByAcct(acct)
	if err != nil || account == nil {
		return fmt.Errorf("account not found"), "{}"
	}

	err, total := database.CountFollowers(account.Id)
	if err != nil {
		return err, "{}"
	}

	return nil, fmt.Sprintf(
		`{
					"@context": "https://www.w3.org/ns/activitystreams",
					"id": "%s",
					"type": "OrderedCollection",
					"totalItems": %d
				}`,
		getIRI(conf.Conf.Domain, account.Acct, followers), total)
}
