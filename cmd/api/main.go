package main

import (
	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/handler"
	"sailsdock/internal/httpserver"
	"sailsdock/internal/provider"
	"sailsdock/internal/repository"
	"sailsdock/internal/service/credential"
	"sailsdock/internal/service/timeline"
	"sailsdock/internal/service/user"
	"sailsdock/pkg/db"
	"sailsdock/pkg/logger"
	"sailsdock/pkg/mq"
	"sailsdock/pkg/outbox"
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

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to connect to message broker", zap.Error(err))
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	businessRepo := repository.NewBusinessRepository(pool)
	contactRepo := repository.NewContactRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)
	smsRepo := repository.NewSmsRepository(pool)
	offerRepo := repository.NewOfferRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	emailRepo := repository.NewEmailRepository(pool, outboxRepo)
	connectionRepo := repository.NewConnectionRepository(pool)

	providers := provider.NewRegistry(
		provider.NewOutlookProvider(cfg.Providers.Outlook, cfg.Sync, log),
		provider.NewGmailProvider(cfg.Providers.Gmail, cfg.Sync, log),
	)
	exchanger := credential.NewOAuthExchanger(cfg.Providers, cfg.Sync.CallTimeout())
	credentials := credential.NewManager(exchanger, connectionRepo, log)

	userService := user.NewService(userRepo, cfg.JWT.Secret, log)
	timelineService := timeline.NewService(
		businessRepo, contactRepo, activityRepo, emailRepo,
		smsRepo, offerRepo, ticketRepo, userRepo, log,
	)

	router := httpserver.NewRouter(cfg.JWT.Secret, httpserver.Handlers{
		Auth:       handler.NewAuthHandler(userService),
		Timeline:   handler.NewTimelineHandler(timelineService, userRepo, log),
		Email:      handler.NewEmailHandler(emailRepo, connectionRepo, credentials, providers, log),
		Connection: handler.NewConnectionHandler(connectionRepo, publisher, log),
	})

	log.Info("api server starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("api server exited", zap.Error(err))
	}
}
