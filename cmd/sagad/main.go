package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/payment-orders/internal/config"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
	"github.com/example/payment-orders/internal/saga"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Sagad] Failed to load configuration: %v", err)
	}

	log.Println("[Sagad] ========================================")
	log.Println("[Sagad] Payment Orders - Saga Processor")
	log.Println("[Sagad] ========================================")
	log.Printf("[Sagad] Kafka: %v", cfg.Brokers())
	log.Printf("[Sagad] Event topic: %s (group %s)", cfg.EventTopic, cfg.SagaGroup)
	log.Printf("[Sagad] Retry: every %s within %s", cfg.RetryInterval(), cfg.RetryLimit())
	log.Printf("[Sagad] Settlement: every %s within %s", cfg.SettlementInterval(), cfg.SettlementLimit())

	// Read store backing the projections
	var readStore store.ReadStoreInterface
	if cfg.DatabaseURL != "" {
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[Sagad] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		log.Println("[Sagad] Connected to PostgreSQL (Read DB)")

		pg := store.NewPostgresReadStore(db)
		pg.RegisterDecoder(readmodel.CollectionCharges, readmodel.DecodeCharge)
		pg.RegisterDecoder(readmodel.CollectionClientApplications, readmodel.DecodeClientApplication)
		pg.RegisterDecoder(readmodel.CollectionProducts, readmodel.DecodeProduct)
		readStore = pg
	} else {
		log.Println("[Sagad] DATABASE_URL not set, using in-memory read store")
		readStore = store.NewReadStore()
	}

	// Command channel: follow-up commands scheduled by the handlers
	commandConn := bus.NewConnection(cfg.Brokers(), cfg.ConnectMaxAttempts, cfg.ConnectBackoff())
	commandPublisher := bus.NewPublisher(cfg.Brokers(), cfg.CommandTopic, commandConn, cfg.PublishMaxAttempts)
	defer commandPublisher.Close()
	commandBus := bus.NewKafkaBus(commandPublisher, bus.NewSubscriptionTable())
	scheduler := saga.NewBusScheduler(commandBus)

	retry := saga.Policy{Interval: cfg.RetryInterval(), Limit: cfg.RetryLimit()}
	settlement := saga.Policy{Interval: cfg.SettlementInterval(), Limit: cfg.SettlementLimit()}

	// Event channel: deliver domain events to the handlers
	eventTable := bus.NewSubscriptionTable()
	eventConn := bus.NewConnection(cfg.Brokers(), cfg.ConnectMaxAttempts, cfg.ConnectBackoff())
	eventBus := bus.NewKafkaBus(bus.NewPublisher(cfg.Brokers(), cfg.EventTopic, eventConn, cfg.PublishMaxAttempts), eventTable)

	saga.NewChargeHandler(readStore, scheduler, retry, settlement).Register(eventBus)
	saga.NewReversalHandler(readStore, scheduler, retry, settlement).Register(eventBus)
	saga.NewClientAppHandler(readStore, scheduler).Register(eventBus)
	saga.NewProductHandler(readStore, scheduler).Register(eventBus)

	dispatcher := bus.NewDispatcher("Sagad", cfg.Brokers(), cfg.EventTopic, cfg.SagaGroup, eventTable, eventConn)
	defer dispatcher.Close()

	if err := eventConn.TryConnect(ctx); err != nil {
		log.Fatalf("[Sagad] Broker unreachable: %v", err)
	}

	go func() {
		log.Println("[Sagad] Starting event consumer...")
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Sagad] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Sagad] Shutting down...")
	cancel()
}
