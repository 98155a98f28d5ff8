package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/provider"
	"sailsdock/internal/repository"
	"sailsdock/internal/service/credential"
	"sailsdock/internal/service/ingest"
	"sailsdock/internal/service/mailsync"
	"sailsdock/internal/util"
	"sailsdock/pkg/db"
	"sailsdock/pkg/logger"
	"sailsdock/pkg/outbox"
	redisclient "sailsdock/pkg/redis"
)

// Diagnostic harness: runs one sync pass for a connection and prints the
// result, bypassing the broker.
func main() {
	connectionID := flag.String("connection", "", "mailbox connection id to sync")
	folder := flag.String("folder", "", "folder to list (list providers only)")
	maxMessages := flag.Int("max", 0, "max messages to fetch")
	flag.Parse()

	if *connectionID == "" {
		fmt.Fprintln(os.Stderr, "usage: mailsync -connection <id> [-folder inbox] [-max 50]")
		os.Exit(2)
	}

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

	outboxRepo := outbox.NewRepository(pool)
	connectionRepo := repository.NewConnectionRepository(pool)
	emailRepo := repository.NewEmailRepository(pool, outboxRepo)

	providers := provider.NewRegistry(
		provider.NewOutlookProvider(cfg.Providers.Outlook, cfg.Sync, log),
		provider.NewGmailProvider(cfg.Providers.Gmail, cfg.Sync, log),
	)
	exchanger := credential.NewOAuthExchanger(cfg.Providers, cfg.Sync.CallTimeout())
	credentials := credential.NewManager(exchanger, connectionRepo, log)

	syncService := mailsync.NewService(
		connectionRepo, credentials, providers, ingest.NewService(emailRepo, log),
		emailRepo, util.NewRedisLock(rdb), cfg.Sync, log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := syncService.Run(ctx, *connectionID, mailsync.RunOptions{
		Folder:      *folder,
		MaxMessages: *maxMessages,
	})
	if err != nil {
		log.Fatal("sync run failed", zap.Error(err))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
