package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/payment-orders/internal/config"
	"github.com/example/payment-orders/internal/email"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/notification"
	"github.com/example/payment-orders/internal/readmodel"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Notifier] Failed to load configuration: %v", err)
	}

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Payment Orders - Ops Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Kafka: %v", cfg.Brokers())
	log.Printf("[Notifier] Event topic: %s (group %s)", cfg.EventTopic, cfg.NotifierGroup)
	log.Printf("[Notifier] SMTP: %s:%s", cfg.SMTPHost, cfg.SMTPPort)
	log.Printf("[Notifier] Recipient: %s", cfg.OpsRecipient)

	// Read store for enriching alerts with projection data
	var readStore store.ReadStoreInterface
	if cfg.DatabaseURL != "" {
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[Notifier] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		log.Println("[Notifier] Connected to PostgreSQL (Read DB)")

		pg := store.NewPostgresReadStore(db)
		pg.RegisterDecoder(readmodel.CollectionCharges, readmodel.DecodeCharge)
		pg.RegisterDecoder(readmodel.CollectionClientApplications, readmodel.DecodeClientApplication)
		readStore = pg
	} else {
		log.Println("[Notifier] DATABASE_URL not set, using in-memory read store")
		readStore = store.NewReadStore()
	}

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom)
	handler := notification.NewHandler(emailSvc, readStore, cfg.OpsRecipient)

	eventTable := bus.NewSubscriptionTable()
	eventConn := bus.NewConnection(cfg.Brokers(), cfg.ConnectMaxAttempts, cfg.ConnectBackoff())
	eventBus := bus.NewKafkaBus(bus.NewPublisher(cfg.Brokers(), cfg.EventTopic, eventConn, cfg.PublishMaxAttempts), eventTable)
	handler.Register(eventBus)

	dispatcher := bus.NewDispatcher("Notifier", cfg.Brokers(), cfg.EventTopic, cfg.NotifierGroup, eventTable, eventConn)
	defer dispatcher.Close()

	if err := eventConn.TryConnect(ctx); err != nil {
		log.Fatalf("[Notifier] Broker unreachable: %v", err)
	}

	go func() {
		log.Println("[Notifier] Starting event consumer...")
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Notifier] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Notifier] Shutting down...")
	cancel()
}
