package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/unclebandit/waleopard-backend/internal/config"
	"github.com/unclebandit/waleopard-backend/internal/db"
	"github.com/unclebandit/waleopard-backend/internal/ingest"
	"github.com/unclebandit/waleopard-backend/internal/logger"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/service"
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

	eventRepo := &repository.EventRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}

	backfill := &ingest.Backfill{
		Events: eventRepo,
		Reconciler: &ingest.Reconciler{
			Events: eventRepo,
			Leads:  &service.LeadService{ContactRepo: contactRepo, Logger: logg},
			Logger: logg,
		},
		Logger:   logg,
		Interval: time.Duration(cfg.BackfillIntervalSeconds) * time.Second,
		MinAge:   time.Duration(cfg.BackfillMinAgeSeconds) * time.Second,
	}

	stop := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		close(stop)
	}()

	logg.Info("backfill reconciler running",
		"interval_seconds", cfg.BackfillIntervalSeconds,
		"min_age_seconds", cfg.BackfillMinAgeSeconds)
	backfill.Run(stop)
}
