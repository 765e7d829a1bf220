// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unclebandit/waleopard-backend/internal/config"
	"github.com/unclebandit/waleopard-backend/internal/db"
	"github.com/unclebandit/waleopard-backend/internal/logger"
	"github.com/unclebandit/waleopard-backend/internal/provider"
	"github.com/unclebandit/waleopard-backend/internal/queue"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}
	slogger := logger.New()

	database, err := db.Open(cfg.DSN())
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	defer database.Close()

	// A nil wake channel just blocks in the select; the poll ticker still
	// drives sweeps when RabbitMQ is down.
	var wake <-chan struct{}
	if amqpQueue, err := queue.DialAMQP(cfg.AMQPURL); err != nil {
		slogger.Warn("rabbitmq unavailable, polling only", "error", err.Error())
	} else {
		defer amqpQueue.Close()
		wake, err = amqpQueue.Wake(queue.TopicCampaignDispatches)
		if err != nil {
			log.Fatal("failed to consume dispatch events:", err)
		}
	}

	var sender provider.Sender
	if cfg.ProviderMock {
		slogger.Warn("using mock provider sender")
		sender = &provider.MockSender{}
	} else {
		sender = provider.NewHTTPSender(provider.Config{
			MetaBaseURL:     cfg.MetaBaseURL,
			MetaAccessToken: cfg.MetaAccessToken,
			MetaPhoneID:     cfg.MetaPhoneID,
			GupshupBaseURL:  cfg.GupshupBaseURL,
			GupshupAPIKey:   cfg.GupshupAPIKey,
			Timeout:         cfg.ProviderTimeout,
		})
	}

	w := &worker.Worker{
		Jobs:           repository.NewJobRepository(database),
		Campaigns:      repository.NewCampaignRepository(database),
		Recipients:     &repository.RecipientRepository{DB: database},
		Templates:      &repository.TemplateRepository{DB: database},
		Settings:       &repository.SettingsRepository{DB: database},
		Links:          &repository.LinkRepository{DB: database},
		SendLogs:       &repository.SendLogRepository{DB: database},
		Sender:         sender,
		Wake:           wake,
		PollInterval:   cfg.WorkerPollInterval,
		BatchSize:      cfg.SweepBatchSize,
		Concurrency:    cfg.SendConcurrency,
		BackoffBase:    cfg.RetryBackoffBase,
		TrackerBaseURL: cfg.TrackerBaseURL,
		Log:            slogger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("🚀 Worker running, sweeping for due jobs...")
	w.Run(ctx)
}
