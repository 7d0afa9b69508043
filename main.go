package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	"github.com/deemkeen/plumage/activitypub"
	"github.com/deemkeen/plumage/db"
	"github.com/deemkeen/plumage/feed"
	"github.com/deemkeen/plumage/middleware"
	"github.com/deemkeen/plumage/moderation"
	"github.com/deemkeen/plumage/pipeline"
	"github.com/deemkeen/plumage/transform"
	"github.com/deemkeen/plumage/util"
	"github.com/deemkeen/plumage/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	log.Println("Running database migrations...")
	database := db.GetDB()
	if err := database.RunMigrations(); err != nil {
		log.Fatalln("Migration failed:", err)
	}
	log.Println("Database migrations complete")

	gate := moderation.NewGate(database)
	visibility := moderation.NewVisibility(database)

	source := feed.NewClient(conf.Conf.FeedApi)
	cache := feed.NewAccountCache(source)

	builder := &transform.Builder{
		Domain:    conf.Conf.Domain,
		Extractor: &transform.RegexExtractor{Domain: conf.Conf.Domain},
		Policy:    visibility,
	}

	resolver := activitypub.NewResolver(database)
	inbox := &activitypub.Inbox{
		Store:    database,
		Verifier: &activitypub.SignatureVerifier{Resolver: resolver},
		Gate:     gate,
		Resolver: resolver,
		Domain:   conf.Conf.Domain,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := activitypub.NewWorker(database, conf.Conf.Domain)
	go worker.Run(ctx)

	scheduler := &pipeline.Scheduler{
		Store: database,
		Pipeline: &pipeline.Pipeline{
			Store:   database,
			Source:  source,
			Cache:   cache,
			Builder: builder,
			Domain:  conf.Conf.Domain,
			Workers: conf.Conf.SyncWorkers,
		},
		Interval: time.Duration(conf.Conf.SyncMinutes) * time.Minute,
		Batch:    conf.Conf.SyncBatch,
	}
	go scheduler.Run(ctx)

	s, err := wish.NewServer(
		wish.WithAddress(fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.SshPort)),
		wish.WithHostKeyPath(".ssh/hostkey"),
		wish.WithPublicKeyAuth(publicKeyHandler),
		wish.WithMiddleware(
			middleware.MainTui(gate),
			middleware.AuthMiddleware(conf),
			logging.Middleware(), // last middleware executed first
		),
	)
	if err != nil {
		log.Fatalln(err)
	}

	startServing(s, conf, &web.Deps{
		Inbox:   inbox,
		Source:  source,
		Builder: builder,
	})
}

func startServing(s *ssh.Server, conf *util.AppConfig, deps *web.Deps) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	log.Printf("Starting SSH server on %s:%d", conf.Conf.Host, conf.Conf.SshPort)
	go func() {
		if err := s.ListenAndServe(); err != nil {
			log.Fatalln(err)
		}
	}()

	go func() {
		if err := web.Router(conf, deps); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping SSH server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer func() { cancel() }()
	if err := s.Shutdown(ctx); err != nil {
		log.Fatalln(err)
	}
}

func publicKeyHandler(ssh.Context, ssh.PublicKey) bool {
	return true
}
