package web

import (
	"fmt"

	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/util"
)

func GetWebfinger(user string, conf *util.AppConfig) (error, string) {
	err, account := db.GetDB().ReadAccountByAcct(user)
	if err != nil || account == nil || account.Deactivated {
		return fmt.Errorf("account not found"), GetWebFingerNotFound()
	}

	acct := account.Acct

	return nil, fmt.Sprintf(
		`{
					"subject": "acct:%s@%s",

					"links": [
						{
							"rel": "self",
							"type": "application/activity+json",
							"href": "https://%s/users/%s"
						}
					]
				}`, acct, conf.Conf.Domain,
		conf.Conf.Domain, acct)
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
