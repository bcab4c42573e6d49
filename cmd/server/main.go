package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/waleopard-backend/internal/config"
	"github.com/unclebandit/waleopard-backend/internal/controller"
	"github.com/unclebandit/waleopard-backend/internal/db"
	"github.com/unclebandit/waleopard-backend/internal/handler"
	"github.com/unclebandit/waleopard-backend/internal/ingest"
	"github.com/unclebandit/waleopard-backend/internal/logger"
	"github.com/unclebandit/waleopard-backend/internal/queue"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/service"
	"github.com/unclebandit/waleopard-backend/internal/webhook"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg := config.Load()
	logg := logger.New(cfg.LogLevel)

	conn, err := db.Connect()
	if err != nil {
		log.Fatal("failed to connect to DB: ", err)
	}
	defer conn.Close()

	bindingRepo := &repository.BindingRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	eventRepo := &repository.EventRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}

	q, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		log.Fatal("failed to connect to RabbitMQ: ", err)
	}
	defer q.Close()

	leadService := &service.LeadService{ContactRepo: contactRepo, Logger: logg}

	reconciler := &ingest.Reconciler{Events: eventRepo, Leads: leadService, Logger: logg}
	aggregator := &ingest.Aggregator{Campaigns: campaignRepo, Logger: logg}

	pool := ingest.NewPool(cfg.IngestWorkers, cfg.IngestQueueSize, reconciler, aggregator, logg)
	pool.Start()
	defer pool.Stop()

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
		Queue:        q,
		Logger:       logg,
	}

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	leadController := &controller.LeadController{
		Leads:    leadService,
		Validate: validator.New(),
		Logger:   logg,
	}
	dashboardHandler := &handler.DashboardHandler{
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
	}
	webhookHandler := &webhook.Handler{
		Bindings:    bindingRepo,
		Pool:        pool,
		Logger:      logg,
		AppSecret:   cfg.WebhookAppSecret,
		VerifyToken: cfg.WebhookVerifyToken,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Provider-facing webhook endpoint
	r.Get("/webhooks/whatsapp", webhookHandler.Verify)
	r.Post("/webhooks/whatsapp", webhookHandler.Receive)

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Post("/campaigns/{id}/dispatch", campaignController.DispatchCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)
	r.Get("/campaigns/{id}", dashboardHandler.GetCampaignJob)

	// Contact book
	r.Post("/leads", leadController.CaptureLead)
	r.Get("/contacts", dashboardHandler.ListContacts)
	r.Get("/contacts/{id}", dashboardHandler.GetContact)

	r.Handle("/metrics", promhttp.Handler())

	logg.Info("server running", "port", cfg.ServerPort)
	log.Fatal(http.ListenAndServe(":"+cfg.ServerPort, r))
}
