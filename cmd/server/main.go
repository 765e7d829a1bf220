// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/waleopard-backend/internal/config"
	"github.com/unclebandit/waleopard-backend/internal/db"
	"github.com/unclebandit/waleopard-backend/internal/handler"
	"github.com/unclebandit/waleopard-backend/internal/ingest"
	"github.com/unclebandit/waleopard-backend/internal/logger"
	"github.com/unclebandit/waleopard-backend/internal/queue"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/service"
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

	if err := db.Migrate(cfg.DSN(), cfg.MigrationsDir); err != nil {
		log.Fatal("failed to run migrations:", err)
	}

	var q queue.Queue
	if amqpQueue, err := queue.DialAMQP(cfg.AMQPURL); err != nil {
		slogger.Warn("rabbitmq unavailable, dispatch wake events disabled", "error", err.Error())
		q = queue.NewInMemoryQueue()
	} else {
		q = amqpQueue
		defer amqpQueue.Close()
	}

	batchRepo := &repository.BatchRepository{DB: database}
	campaignRepo := repository.NewCampaignRepository(database)
	templateRepo := &repository.TemplateRepository{DB: database}
	recipientRepo := &repository.RecipientRepository{DB: database}
	audienceRepo := &repository.AudienceRepository{DB: database}
	jobRepo := repository.NewJobRepository(database)
	sendLogRepo := &repository.SendLogRepository{DB: database}
	linkRepo := &repository.LinkRepository{DB: database}
	settingsRepo := &repository.SettingsRepository{DB: database}
	contactRepo := &repository.ContactRepository{DB: database}

	ingester := ingest.NewService(batchRepo, slogger)
	materializer := service.NewMaterializerService(batchRepo, templateRepo, contactRepo, slogger)
	audienceService := service.NewAudienceService(
		campaignRepo, audienceRepo, recipientRepo, sendLogRepo, ingester, materializer, slogger)
	dispatchService := &service.DispatchService{
		Campaigns:   campaignRepo,
		Recipients:  recipientRepo,
		Templates:   templateRepo,
		Settings:    settingsRepo,
		Jobs:        jobRepo,
		SendLogs:    sendLogRepo,
		Queue:       q,
		MaxAttempts: cfg.MaxAttempts,
		Log:         slogger,
	}

	batchHandler := &handler.BatchHandler{
		Ingester:     ingester,
		Materializer: materializer,
		Batches:      batchRepo,
	}
	campaignHandler := &handler.CampaignHandler{
		Campaigns: campaignRepo,
		Audience:  audienceService,
		Dispatch:  dispatchService,
	}
	linkHandler := &handler.LinkHandler{Links: linkRepo}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Batch routes
	r.Post("/batches", batchHandler.UploadBatchHandler)
	r.Get("/batches/{id}", batchHandler.GetBatchHandler)
	r.Post("/batches/{id}/materialize", batchHandler.MaterializeBatchHandler)

	// Campaign routes
	r.Post("/campaigns", campaignHandler.CreateCampaignHandler)
	r.Get("/campaigns", campaignHandler.ListCampaignsHandler)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandler)
	r.Post("/campaigns/{id}/audience", campaignHandler.AttachAudienceHandler)
	r.Delete("/campaigns/{id}/audience", campaignHandler.RemoveAudienceHandler)
	r.Get("/campaigns/{id}/audience/history", campaignHandler.AudienceHistoryHandler)
	r.Post("/campaigns/{id}/dispatch", campaignHandler.DispatchCampaignHandler)

	// Click tracking
	r.Get("/r/{token}", linkHandler.RedirectHandler)

	r.Handle("/metrics", promhttp.Handler())

	log.Println("🚀 Server running on :" + cfg.HTTPPort)
	log.Fatal(http.ListenAndServe(":"+cfg.HTTPPort, r))
}
