package middleware

import (
	"log"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/deemkeen/plumage/util"
	gossh "golang.org/x/crypto/ssh"
)

// AuthMiddleware admits only the administrator key configured as a
// sha256 hash in adminKey. With no key configured every connection is
// rejected after logging its hash, so the operator can pin it.
func AuthMiddleware(conf *util.AppConfig) wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			key := s.PublicKey()
			if key == nil {
				wish.Println(s, "public key authentication required")
				return
			}

			hash := util.PkToHash(string(gossh.MarshalAuthorizedKey(key)))

			if conf.Conf.AdminKey == "" {
				log.Printf("Auth: no adminKey configured; rejected key with hash %s", hash)
				wish.Println(s, "admin console is locked, set adminKey to this key's hash:", hash)
				return
			}

			if hash != conf.Conf.AdminKey {
				log.Printf("Auth: rejected key with hash %s", hash)
				wish.Println(s, "access denied")
				return
			}

			h(s)
		}
	}
}
