package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/deemkeen/plumage/activitypub"
	"github.com/deemkeen/plumage/feed"
	"github.com/deemkeen/plumage/transform"
	"github.com/deemkeen/plumage/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/time/rate"
)

// Deps bundles what the federation endpoints need beyond the database.
type Deps struct {
	Inbox   *activitypub.Inbox
	Source  feed.Source
	Builder *transform.Builder
}

func Router(conf *util.AppConfig, deps *Deps) error {
	log.Printf("Starting federation server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter rate limit for inbox endpoints: 5 req/sec per IP
	apLimiter := NewRateLimiter(rate.Limit(5), 10)

	// Max 1MB request body size for ActivityPub activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.GET("/feed/:acct", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		rss, err := GetRSS(c.Request.Context(), deps, conf, c.Param("acct"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/users/:actor", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		err, actor := GetActor(c.Param("actor"), conf)
		if err != nil {
			c.Render(404, render.String{Format: actor})
		} else {
			c.Render(200, render.String{Format: actor})
		}
	})

	g.GET("/users/:actor/statuses/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")

		postId, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(404, gin.H{"error": "Invalid status ID"})
			return
		}

		err, note := GetStatus(c.Request.Context(), deps, c.Param("actor"), postId)
		if err != nil {
			if errors.Is(err, feed.ErrRateLimited) {
				c.JSON(429, gin.H{"error": "Rate limited, try again later"})
			} else {
				c.JSON(404, gin.H{"error": "Status not found"})
			}
			return
		}
		c.Render(200, render.String{Format: note})
	})

	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		handleInbox(c, deps, "")
	})

	g.POST("/users/:actor/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		handleInbox(c, deps, c.Param("actor"))
	})

	g.GET("/users/:actor/outbox", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		c.Render(200, render.String{Format: "{}"})
	})

	g.GET("/users/:actor/followers", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		err, collection := GetFollowersCollection(c.Param("actor"), conf)
		if err != nil {
			c.Render(404, render.String{Format: collection})
		} else {
			c.Render(200, render.String{Format: collection})
		}
	})

	g.GET("/users/:actor/following", func(c *gin.Context) {
		// Bridged accounts follow nobody.
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		c.Render(200, render.String{Format: "{}"})
	})

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")

		resource := c.Query("resource")
		if resource == "" || !strings.HasPrefix(resource, "acct:") {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
			return
		}

		resource = strings.TrimPrefix(resource, "acct:")
		resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.Domain))
		err, resp := GetWebfinger(resource, conf)
		if err != nil {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
		} else {
			c.Render(200, render.String{Format: resp})
		}
	})

	g.GET("/.well-known/nodeinfo", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Render(200, render.String{Format: GetNodeInfoDiscovery(conf)})
	})

	g.GET("/nodeinfo/2.0", func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")
		err, info := GetNodeInfo(conf)
		if err != nil {
			c.Render(500, render.String{Format: "{}"})
		} else {
			c.Render(200, render.String{Format: info})
		}
	})

	return g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}

func handleInbox(c *gin.Context, deps *Deps, acct string) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		c.Status(400)
		return
	}

	// The signature verifier re-reads headers against the body digest.
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	outcome := deps.Inbox.Handle(c.Request, body, acct)
	c.Status(outcome.HTTPStatus())
}
