package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/example/payment-orders/internal/config"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/kinesis"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
	"github.com/example/payment-orders/internal/saga"
)

// eventBus delivers converted records to the saga handlers in-process;
// follow-up commands still go out through the brokered command channel.
var eventBus *bus.InMemoryBus

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Lambda Sagad] Failed to load configuration: %v", err)
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Lambda Sagad] Failed to connect to PostgreSQL: %v", err)
	}

	readStore := store.NewPostgresReadStore(db)
	readStore.RegisterDecoder(readmodel.CollectionCharges, readmodel.DecodeCharge)
	readStore.RegisterDecoder(readmodel.CollectionClientApplications, readmodel.DecodeClientApplication)
	readStore.RegisterDecoder(readmodel.CollectionProducts, readmodel.DecodeProduct)

	commandConn := bus.NewConnection(cfg.Brokers(), cfg.ConnectMaxAttempts, cfg.ConnectBackoff())
	commandPublisher := bus.NewPublisher(cfg.Brokers(), cfg.CommandTopic, commandConn, cfg.PublishMaxAttempts)
	commandBus := bus.NewKafkaBus(commandPublisher, bus.NewSubscriptionTable())
	scheduler := saga.NewBusScheduler(commandBus)

	retry := saga.Policy{Interval: cfg.RetryInterval(), Limit: cfg.RetryLimit()}
	settlement := saga.Policy{Interval: cfg.SettlementInterval(), Limit: cfg.SettlementLimit()}

	eventBus = bus.NewInMemoryBus()
	saga.NewChargeHandler(readStore, scheduler, retry, settlement).Register(eventBus)
	saga.NewReversalHandler(readStore, scheduler, retry, settlement).Register(eventBus)
	saga.NewClientAppHandler(readStore, scheduler).Register(eventBus)
	saga.NewProductHandler(readStore, scheduler).Register(eventBus)

	log.Println("[Lambda Sagad] Initialized successfully")
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	log.Printf("[Lambda Sagad] Received %d records", len(kinesisEvent.Records))

	var batchItemFailures []events.KinesisBatchItemFailure

	for _, record := range kinesisEvent.Records {
		event, err := kinesis.ConvertFromKinesisRecord(record)
		if err != nil {
			log.Printf("[Lambda Sagad] Failed to convert record %s: %v", record.EventID, err)
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}

		// Non-INSERT records carry no event
		if event == nil {
			continue
		}

		log.Printf("[Lambda Sagad] Processing event %s (type %s, aggregate %s)",
			event.ID, event.EventType, event.AggregateID)

		msg, err := bus.NewMessage(event.EventType, event.AggregateID, event)
		if err != nil {
			log.Printf("[Lambda Sagad] Failed to marshal event %s: %v", event.ID, err)
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}

		if err := eventBus.Publish(ctx, msg, time.Time{}); err != nil {
			log.Printf("[Lambda Sagad] Failed to process event %s: %v", event.ID, err)
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}
	}

	successCount := len(kinesisEvent.Records) - len(batchItemFailures)
	log.Printf("[Lambda Sagad] Processed %d/%d records successfully", successCount, len(kinesisEvent.Records))

	return events.KinesisEventResponse{
		BatchItemFailures: batchItemFailures,
	}, nil
}

func main() {
	lambda.Start(handler)
}
