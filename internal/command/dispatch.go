package command

import (
	"context"
	"errors"
	"log"

	"github.com/example/payment-orders/internal/domain/aggregate"
	"github.com/example/payment-orders/internal/infrastructure/bus"
)

// allTypes is every routing key the pipeline consumes
var allTypes = []string{
	TypeCreateCharge,
	TypeSendChargeToAcquirer,
	TypeVerifyChargeSettlement,
	TypeExpireCharge,
	TypeRejectCharge,
	TypeCreateReversal,
	TypeSendReversalToAcquirer,
	TypeVerifyReversalSettlement,
	TypeExpireReversal,
	TypeCreateClientApplication,
	TypeActivateClientApplication,
	TypeRevokeClientApplicationCreation,
	TypeDeactivateClientApplication,
	TypeCreateProduct,
	TypeActivateProduct,
	TypeRevokeProductCreation,
	TypeDeactivateProduct,
}

// RegisterPipeline binds the pipeline to every command type on the command
// channel. Permanent outcomes (validation failure, duplicate, missing
// aggregate, execution failure) are logged and acknowledged so the broker
// does not redeliver them; only infrastructure errors propagate for
// redelivery.
func RegisterPipeline(b bus.MessageBus, p *Pipeline) {
	for _, cmdType := range allTypes {
		bus.Subscribe(b, cmdType, func(ctx context.Context, env Envelope) error {
			return handleDelivery(ctx, p, env)
		})
	}
}

func handleDelivery(ctx context.Context, p *Pipeline, env Envelope) error {
	result, err := p.Handle(ctx, env)
	if err == nil {
		log.Printf("[Pipeline] %s committed for aggregate %s (%d events)", env.Type, result.AggregateKey, len(result.Events))
		return nil
	}

	var validationErr *ValidationError
	var duplicateErr *DuplicateCommandError
	var executionErr *ExecutionError
	switch {
	case errors.As(err, &validationErr):
		log.Printf("[Pipeline] %s rejected: %v", env.Type, err)
		return nil
	case errors.As(err, &duplicateErr):
		// Idempotency hit. The original aggregate already holds the outcome.
		log.Printf("[Pipeline] %s is a duplicate of aggregate %s", env.Type, duplicateErr.AggregateKey)
		return nil
	case errors.Is(err, aggregate.ErrAggregateNotFound):
		log.Printf("[Pipeline] %s failed: aggregate %s not found", env.Type, env.AggregateKey)
		return nil
	case errors.As(err, &executionErr):
		log.Printf("[Pipeline] %s execution failed: %v", env.Type, err)
		return nil
	default:
		log.Printf("[Pipeline] CRITICAL: %s infrastructure failure: %v", env.Type, err)
		return err
	}
}
