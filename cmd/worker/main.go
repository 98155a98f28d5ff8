package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/mqhandler"
	"sailsdock/internal/provider"
	"sailsdock/internal/repository"
	"sailsdock/internal/service/credential"
	"sailsdock/internal/service/ingest"
	"sailsdock/internal/service/mailsync"
	"sailsdock/internal/util"
	"sailsdock/pkg/db"
	"sailsdock/pkg/logger"
	"sailsdock/pkg/mq"
	"sailsdock/pkg/outbox"
	redisclient "sailsdock/pkg/redis"
)

func main() {
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Sync()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to connect to message broker", zap.Error(err))
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(pool)
	connectionRepo := repository.NewConnectionRepository(pool)
	emailRepo := repository.NewEmailRepository(pool, outboxRepo)
	contactRepo := repository.NewContactRepository(pool)
	businessRepo := repository.NewBusinessRepository(pool)

	providers := provider.NewRegistry(
		provider.NewOutlookProvider(cfg.Providers.Outlook, cfg.Sync, log),
		provider.NewGmailProvider(cfg.Providers.Gmail, cfg.Sync, log),
	)
	exchanger := credential.NewOAuthExchanger(cfg.Providers, cfg.Sync.CallTimeout())
	credentials := credential.NewManager(exchanger, connectionRepo, log)

	locker := util.NewRedisLock(rdb)
	deduper := util.NewDeduper(rdb, 10*time.Minute)
	ingestService := ingest.NewService(emailRepo, log)
	syncService := mailsync.NewService(
		connectionRepo, credentials, providers, ingestService,
		emailRepo, locker, cfg.Sync, log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go dispatcher.Run(ctx)

	syncConsumer, err := mq.NewConsumer(cfg.MQ.URL, "mailbox.sync.requested.q", mq.RoutingKeySyncRequested, log)
	if err != nil {
		log.Fatal("failed to create sync consumer", zap.Error(err))
	}
	defer syncConsumer.Close()
	syncConsumer.SetHandler(mqhandler.NewSyncRequestedHandler(syncService, deduper, log).Handle)

	ingestedConsumer, err := mq.NewConsumer(cfg.MQ.URL, "email.ingested.q", mq.RoutingKeyEmailIngested, log)
	if err != nil {
		log.Fatal("failed to create ingested consumer", zap.Error(err))
	}
	defer ingestedConsumer.Close()
	ingestedConsumer.SetHandler(mqhandler.NewEmailIngestedHandler(emailRepo, contactRepo, businessRepo, log).Handle)

	go func() {
		if err := syncConsumer.StartConsuming(); err != nil {
			log.Fatal("sync consumer exited", zap.Error(err))
		}
	}()
	go func() {
		if err := ingestedConsumer.StartConsuming(); err != nil {
			log.Fatal("ingested consumer exited", zap.Error(err))
		}
	}()

	log.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("worker shutting down")
}
