package web

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/util"
)

// GetNodeInfoDiscovery renders the well-known nodeinfo pointer document.
func GetNodeInfoDiscovery(conf *util.AppConfig) string {
	return fmt.Sprintf(
		`{
					"links": [
						{
							"rel": "http://nodeinfo.diaspora.software/ns/schema/2.0",
							"href": "https://%s/nodeinfo/2.0"
						}
					]
				}`, conf.Conf.Domain)
}

// GetNodeInfo renders the nodeinfo 2.0 document. The user count is the
// number of bridged accounts, which is what other instances see as the
// population of this server.
func GetNodeInfo(conf *util.AppConfig) (error, string) {
	err, accounts := db.GetDB().ReadAllAccounts()
	if err != nil {
		return err, "{}"
	}

	total := 0
	if accounts != nil {
		for _, acc := range *accounts {
			if !acc.Deactivated {
				total++
			}
		}
	}

	info := map[string]interface{}{
		"version": "2.0",
		"software": map[string]interface{}{
			"name":    "plumage",
			"version": util.GetVersion(),
		},
		"protocols": []string{"activitypub"},
		"services": map[string]interface{}{
			"inbound":  []string{},
			"outbound": []string{"rss2.0"},
		},
		"openRegistrations": false,
		"usage": map[string]interface{}{
			"users": map[string]interface{}{
				"total": total,
			},
		},
		"metadata": map[string]interface{}{},
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return err, "{}"
	}
	return nil, string(payload)
}
