package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/payment-orders/internal/acquirer"
	"github.com/example/payment-orders/internal/domain/aggregate"
	"github.com/example/payment-orders/internal/domain/charge"
	"github.com/example/payment-orders/internal/domain/clientapp"
	"github.com/example/payment-orders/internal/domain/product"
	"github.com/example/payment-orders/internal/domain/reversal"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/google/uuid"
)

// State tracks a command through the pipeline
type State string

const (
	StateReceived         State = "received"
	StateValidated        State = "validated"
	StateDuplicateChecked State = "duplicate_checked"
	StateExecuted         State = "executed"
	StateCommitted        State = "committed"
	StateRejected         State = "rejected"
	StateFailed           State = "failed"
)

// EventCommandValidationFailed is published on the event channel when a
// command is rejected before touching the store.
const EventCommandValidationFailed = "CommandValidationFailed"

// CommandValidationFailed is the payload of the validation-failure event
type CommandValidationFailed struct {
	CommandType string    `json:"command_type"`
	Reason      string    `json:"reason"`
	RejectedAt  time.Time `json:"rejected_at"`
}

// Result reports the terminal pipeline state for a command
type Result struct {
	State        State
	AggregateKey string
	Events       []store.Event
}

// Pipeline validates commands, detects duplicates by (correlation key,
// application key), executes the matching aggregate intent and commits the
// resulting events.
type Pipeline struct {
	eventStore store.EventStoreInterface
	acquirer   acquirer.Client
	publisher  store.EventPublisher // validation-failure notifications, may be nil
}

func NewPipeline(eventStore store.EventStoreInterface, acquirerClient acquirer.Client, publisher store.EventPublisher) *Pipeline {
	return &Pipeline{
		eventStore: eventStore,
		acquirer:   acquirerClient,
		publisher:  publisher,
	}
}

// Handle runs one command through the pipeline:
// Received -> Validated -> DuplicateChecked -> Executed -> (Committed | Rejected | Failed)
func (p *Pipeline) Handle(ctx context.Context, env Envelope) (*Result, error) {
	// Validate
	if err := p.validate(env); err != nil {
		p.publishValidationFailure(ctx, env, err)
		return &Result{State: StateRejected, AggregateKey: env.AggregateKey}, err
	}

	// Duplicate check: any prior event for this correlation means the command
	// was already processed; report the original aggregate so the caller can
	// treat the retry as a no-op.
	history, err := p.eventStore.GetHistory(ctx, env.CorrelationKey, env.ApplicationKey)
	if err != nil {
		return &Result{State: StateFailed, AggregateKey: env.AggregateKey}, fmt.Errorf("duplicate check failed: %w", err)
	}
	if len(history) > 0 {
		dup := &DuplicateCommandError{
			CorrelationKey: env.CorrelationKey,
			ApplicationKey: env.ApplicationKey,
			AggregateKey:   history[0].AggregateID,
		}
		return &Result{State: StateRejected, AggregateKey: dup.AggregateKey}, dup
	}

	// Execute
	agg, aggregateType, err := p.execute(ctx, env)
	if err != nil {
		if errors.Is(err, aggregate.ErrAggregateNotFound) {
			return &Result{State: StateFailed, AggregateKey: env.AggregateKey}, err
		}
		return &Result{State: StateFailed, AggregateKey: env.AggregateKey},
			&ExecutionError{Command: env.Type, Err: err}
	}

	// Commit
	events, err := aggregate.Save(ctx, p.eventStore, agg, aggregateType)
	if err != nil {
		return &Result{State: StateFailed, AggregateKey: agg.GetID()}, fmt.Errorf("commit failed: %w", err)
	}

	return &Result{State: StateCommitted, AggregateKey: agg.GetID(), Events: events}, nil
}

func (p *Pipeline) validate(env Envelope) error {
	if env.CorrelationKey == "" {
		return &ValidationError{Command: env.Type, Reason: "correlation key is required"}
	}
	if env.ApplicationKey == "" {
		return &ValidationError{Command: env.Type, Reason: "application key is required"}
	}

	switch env.Type {
	case TypeCreateCharge:
		var cmd CreateCharge
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return &ValidationError{Command: env.Type, Reason: "malformed payload"}
		}
		if cmd.ExternalKey == "" {
			return &ValidationError{Command: env.Type, Reason: "external key is required"}
		}
		if cmd.AmountInCents <= 0 {
			return &ValidationError{Command: env.Type, Reason: "amount must be positive"}
		}
		m := charge.Method(cmd.Method)
		if m != charge.MethodAcquirerAccount && m != charge.MethodBankTransfer {
			return &ValidationError{Command: env.Type, Reason: "unknown charge method"}
		}
	case TypeCreateReversal:
		var cmd CreateReversal
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return &ValidationError{Command: env.Type, Reason: "malformed payload"}
		}
		if cmd.ChargeID == "" {
			return &ValidationError{Command: env.Type, Reason: "charge id is required"}
		}
		if cmd.AmountInCents <= 0 {
			return &ValidationError{Command: env.Type, Reason: "amount must be positive"}
		}
	case TypeCreateClientApplication:
		var cmd CreateClientApplication
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return &ValidationError{Command: env.Type, Reason: "malformed payload"}
		}
		if cmd.ExternalKey == "" {
			return &ValidationError{Command: env.Type, Reason: "external key is required"}
		}
		if cmd.Name == "" {
			return &ValidationError{Command: env.Type, Reason: "name is required"}
		}
	case TypeCreateProduct:
		var cmd CreateProduct
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return &ValidationError{Command: env.Type, Reason: "malformed payload"}
		}
		if cmd.ExternalKey == "" {
			return &ValidationError{Command: env.Type, Reason: "external key is required"}
		}
		if cmd.Name == "" {
			return &ValidationError{Command: env.Type, Reason: "name is required"}
		}
	default:
		// Non-create commands target an existing aggregate
		if env.AggregateKey == "" {
			return &ValidationError{Command: env.Type, Reason: "aggregate key is required"}
		}
	}

	return nil
}

func (p *Pipeline) execute(ctx context.Context, env Envelope) (aggregate.Aggregate, string, error) {
	keys := aggregate.Keys{
		CorrelationKey: env.CorrelationKey,
		ApplicationKey: env.ApplicationKey,
		SagaProcessKey: env.SagaProcessKey,
	}
	aggregateKey := env.AggregateKey
	if aggregateKey == "" {
		aggregateKey = uuid.New().String()
	}

	switch env.Type {
	case TypeCreateCharge:
		var cmd CreateCharge
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		c, err := charge.Create(keys, aggregateKey, cmd.ExternalKey, charge.Method(cmd.Method), cmd.AmountInCents, cmd.Currency)
		return c, charge.AggregateType, err

	case TypeSendChargeToAcquirer:
		c, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, charge.New)
		if err != nil {
			return nil, "", err
		}
		return c, charge.AggregateType, c.SendToAcquirer(ctx, keys, p.acquirer)

	case TypeVerifyChargeSettlement:
		c, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, charge.New)
		if err != nil {
			return nil, "", err
		}
		return c, charge.AggregateType, c.VerifySettlement(ctx, keys, p.acquirer)

	case TypeExpireCharge:
		var cmd ExpireCharge
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		c, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, charge.New)
		if err != nil {
			return nil, "", err
		}
		return c, charge.AggregateType, c.Expire(keys, cmd.Reason)

	case TypeRejectCharge:
		var cmd RejectCharge
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		c, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, charge.New)
		if err != nil {
			return nil, "", err
		}
		return c, charge.AggregateType, c.Reject(keys, cmd.Reason)

	case TypeCreateReversal:
		var cmd CreateReversal
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		// The charge must exist; its acquirer reference travels on the reversal
		c, err := aggregate.Load(ctx, p.eventStore, cmd.ChargeID, charge.New)
		if err != nil {
			return nil, "", err
		}
		r, err := reversal.Create(keys, aggregateKey, c.ID, cmd.ExternalKey, c.AcquirerKey, cmd.AmountInCents)
		return r, reversal.AggregateType, err

	case TypeSendReversalToAcquirer:
		r, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, reversal.New)
		if err != nil {
			return nil, "", err
		}
		return r, reversal.AggregateType, r.SendToAcquirer(ctx, keys, p.acquirer)

	case TypeVerifyReversalSettlement:
		r, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, reversal.New)
		if err != nil {
			return nil, "", err
		}
		return r, reversal.AggregateType, r.VerifySettlement(ctx, keys, p.acquirer)

	case TypeExpireReversal:
		var cmd ExpireReversal
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		r, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, reversal.New)
		if err != nil {
			return nil, "", err
		}
		return r, reversal.AggregateType, r.Expire(keys, cmd.Reason)

	case TypeCreateClientApplication:
		var cmd CreateClientApplication
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		a, err := clientapp.Create(keys, aggregateKey, cmd.ExternalKey, cmd.Name)
		return a, clientapp.AggregateType, err

	case TypeActivateClientApplication:
		a, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, clientapp.New)
		if err != nil {
			return nil, "", err
		}
		return a, clientapp.AggregateType, a.Activate(keys)

	case TypeRevokeClientApplicationCreation:
		var cmd RevokeClientApplicationCreation
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		a, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, clientapp.New)
		if err != nil {
			return nil, "", err
		}
		return a, clientapp.AggregateType, a.RevokeCreation(keys, cmd.Reason)

	case TypeDeactivateClientApplication:
		var cmd DeactivateClientApplication
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		a, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, clientapp.New)
		if err != nil {
			return nil, "", err
		}
		return a, clientapp.AggregateType, a.Deactivate(keys, cmd.Reason)

	case TypeCreateProduct:
		var cmd CreateProduct
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		pr, err := product.Create(keys, aggregateKey, cmd.ExternalKey, cmd.Name, cmd.Method)
		return pr, product.AggregateType, err

	case TypeActivateProduct:
		pr, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, product.New)
		if err != nil {
			return nil, "", err
		}
		return pr, product.AggregateType, pr.Activate(keys)

	case TypeRevokeProductCreation:
		var cmd RevokeProductCreation
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		pr, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, product.New)
		if err != nil {
			return nil, "", err
		}
		return pr, product.AggregateType, pr.RevokeCreation(keys, cmd.Reason)

	case TypeDeactivateProduct:
		var cmd DeactivateProduct
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, "", err
		}
		pr, err := aggregate.Load(ctx, p.eventStore, env.AggregateKey, product.New)
		if err != nil {
			return nil, "", err
		}
		return pr, product.AggregateType, pr.Deactivate(keys, cmd.Reason)
	}

	return nil, "", fmt.Errorf("%w: %s", ErrUnknownCommandType, env.Type)
}

func (p *Pipeline) publishValidationFailure(ctx context.Context, env Envelope, cause error) {
	if p.publisher == nil {
		return
	}

	data, err := json.Marshal(CommandValidationFailed{
		CommandType: env.Type,
		Reason:      cause.Error(),
		RejectedAt:  time.Now(),
	})
	if err != nil {
		return
	}

	event := store.Event{
		ID:             uuid.New().String(),
		AggregateID:    env.AggregateKey,
		AggregateType:  "Command",
		EventType:      EventCommandValidationFailed,
		CorrelationKey: env.CorrelationKey,
		ApplicationKey: env.ApplicationKey,
		SagaProcessKey: env.SagaProcessKey,
		Data:           data,
		Timestamp:      time.Now(),
	}
	if err := p.publisher.PublishEvent(ctx, env.CorrelationKey, event); err != nil {
		log.Printf("[Pipeline] Failed to publish validation failure for %s: %v", env.Type, err)
	}
}
