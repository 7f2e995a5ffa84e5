package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/payment-orders/internal/acquirer"
	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/config"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/saga"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Commandd] Failed to load configuration: %v", err)
	}

	log.Println("[Commandd] ========================================")
	log.Println("[Commandd] Payment Orders - Command Processor")
	log.Println("[Commandd] ========================================")
	log.Printf("[Commandd] Kafka: %v", cfg.Brokers())
	log.Printf("[Commandd] Command topic: %s (group %s)", cfg.CommandTopic, cfg.CommandGroup)
	log.Printf("[Commandd] Event topic: %s", cfg.EventTopic)

	// Event channel: post-commit event publishing
	var eventBus bus.MessageBus
	if cfg.EventBrokered {
		eventConn := bus.NewConnection(cfg.Brokers(), cfg.ConnectMaxAttempts, cfg.ConnectBackoff())
		eventPublisher := bus.NewPublisher(cfg.Brokers(), cfg.EventTopic, eventConn, cfg.PublishMaxAttempts)
		defer eventPublisher.Close()
		eventBus = bus.NewKafkaBus(eventPublisher, bus.NewSubscriptionTable())
	} else {
		log.Println("[Commandd] Event channel running in-process")
		eventBus = bus.NewInMemoryBus()
	}

	// Event store. DynamoDB streams its own events through the Kinesis
	// integration, so no bus publisher is attached to it.
	var eventStore store.EventStoreInterface
	if cfg.DynamoEventTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("[Commandd] Failed to load AWS configuration: %v", err)
		}
		log.Printf("[Commandd] Using DynamoDB event store (table %s)", cfg.DynamoEventTable)
		eventStore = store.NewDynamoEventStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoEventTable, cfg.DynamoSnapshotTable)
	} else if cfg.DatabaseURL != "" {
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[Commandd] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		log.Println("[Commandd] Connected to PostgreSQL (Event DB)")
		eventStore = store.NewPostgresEventStore(db, bus.NewEventPublisher(eventBus))
	} else {
		log.Println("[Commandd] DATABASE_URL not set, using in-memory event store")
		eventStore = store.NewEventStore(bus.NewEventPublisher(eventBus))
	}

	pipeline := command.NewPipeline(eventStore, acquirer.NewFakeClient(), bus.NewEventPublisher(eventBus))

	// Command channel: consume envelopes, run them through the pipeline
	if cfg.CommandBrokered {
		commandTable := bus.NewSubscriptionTable()
		commandConn := bus.NewConnection(cfg.Brokers(), cfg.ConnectMaxAttempts, cfg.ConnectBackoff())
		commandPublisher := bus.NewPublisher(cfg.Brokers(), cfg.CommandTopic, commandConn, cfg.PublishMaxAttempts)
		defer commandPublisher.Close()
		commandBus := bus.NewKafkaBus(commandPublisher, commandTable)
		command.RegisterPipeline(commandBus, pipeline)

		dispatcher := bus.NewDispatcher("Commandd", cfg.Brokers(), cfg.CommandTopic, cfg.CommandGroup, commandTable, commandConn)
		defer dispatcher.Close()

		if err := commandConn.TryConnect(ctx); err != nil {
			log.Fatalf("[Commandd] Broker unreachable: %v", err)
		}

		go func() {
			log.Println("[Commandd] Starting command consumer...")
			if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[Commandd] Consumer error: %v", err)
			}
		}()
	} else {
		// Single-binary mode: the saga handlers run here too, so events feed
		// back into the pipeline without a broker. Requires the event channel
		// in-process as well; brokered events belong to sagad.
		if cfg.EventBrokered {
			log.Fatalf("[Commandd] COMMAND_CHANNEL_BROKERED=false requires EVENT_CHANNEL_BROKERED=false")
		}
		log.Println("[Commandd] Command channel running in-process")

		commandBus := bus.NewInMemoryBus()
		command.RegisterPipeline(commandBus, pipeline)

		readStore := store.NewReadStore()
		scheduler := saga.NewBusScheduler(commandBus)
		retry := saga.Policy{Interval: cfg.RetryInterval(), Limit: cfg.RetryLimit()}
		settlement := saga.Policy{Interval: cfg.SettlementInterval(), Limit: cfg.SettlementLimit()}

		saga.NewChargeHandler(readStore, scheduler, retry, settlement).Register(eventBus)
		saga.NewReversalHandler(readStore, scheduler, retry, settlement).Register(eventBus)
		saga.NewClientAppHandler(readStore, scheduler).Register(eventBus)
		saga.NewProductHandler(readStore, scheduler).Register(eventBus)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Commandd] Shutting down...")
	cancel()
}
