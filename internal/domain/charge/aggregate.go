package charge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/payment-orders/internal/acquirer"
	"github.com/example/payment-orders/internal/domain/aggregate"
	"github.com/example/payment-orders/internal/infrastructure/store"
)

const AggregateType = "Charge"

type Method string

const (
	MethodAcquirerAccount Method = "AcquirerAccount"
	MethodBankTransfer    Method = "BankTransfer"
)

type Status string

const (
	StatusCreated      Status = "created"
	StatusProcessed    Status = "processed"
	StatusNotProcessed Status = "not_processed"
	StatusSettled      Status = "settled"
	StatusNotSettled   Status = "not_settled"
	StatusExpired      Status = "expired"
	StatusRejected     Status = "rejected"
)

var (
	ErrInvalidAmount      = errors.New("charge amount must be positive")
	ErrInvalidExternalKey = errors.New("charge external key is required")
	ErrInvalidMethod      = errors.New("unknown charge method")
	ErrInvalidStatus      = errors.New("invalid charge status transition")
	ErrChargeSettled      = errors.New("charge is already settled")
	ErrChargeExpired      = errors.New("charge is already expired")
	ErrChargeRejected     = errors.New("charge is already rejected")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusCreated:      {StatusProcessed, StatusNotProcessed, StatusExpired, StatusRejected},
	StatusNotProcessed: {StatusProcessed, StatusNotProcessed, StatusExpired, StatusRejected},
	StatusProcessed:    {StatusSettled, StatusNotSettled},
	StatusNotSettled:   {StatusSettled, StatusNotSettled, StatusExpired},
	StatusSettled:      {}, // terminal state
	StatusExpired:      {}, // terminal state
	StatusRejected:     {}, // terminal state
}

type Charge struct {
	aggregate.Root

	ID             string    `json:"id"`
	ApplicationKey string    `json:"application_key"`
	ExternalKey    string    `json:"external_key"`
	Method         Method    `json:"method"`
	AmountInCents  int64     `json:"amount_in_cents"`
	Currency       string    `json:"currency"`
	Status         Status    `json:"status"`
	AcquirerKey    string    `json:"acquirer_key"`
	LastError      string    `json:"last_error"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func New() *Charge { return &Charge{} }

// Aggregate interface implementation
func (c *Charge) GetID() string { return c.ID }

// CanTransitionTo checks if the charge can transition to the target status
func (c *Charge) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[c.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (c *Charge) transitionError(target Status) error {
	switch c.Status {
	case StatusSettled:
		return ErrChargeSettled
	case StatusExpired:
		return ErrChargeExpired
	case StatusRejected:
		return ErrChargeRejected
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, c.Status, target)
	}
}

// ApplyEvent applies a single event to the charge state (implements aggregate.Aggregate)
func (c *Charge) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventChargeCreated:
		var data ChargeCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.ID = data.ChargeID
		c.ApplicationKey = data.ApplicationKey
		c.ExternalKey = data.ExternalKey
		c.Method = data.Method
		c.AmountInCents = data.AmountInCents
		c.Currency = data.Currency
		c.Status = StatusCreated
		c.CreatedAt = data.CreatedAt
		c.UpdatedAt = data.CreatedAt
	case EventChargeProcessed:
		var data ChargeProcessed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Status = StatusProcessed
		c.AcquirerKey = data.AcquirerKey
		c.LastError = ""
		c.UpdatedAt = data.ProcessedAt
	case EventChargeCouldNotBeProcessed:
		var data ChargeCouldNotBeProcessed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Status = StatusNotProcessed
		c.LastError = data.Error
		c.UpdatedAt = data.FailedAt
	case EventChargeSettled:
		var data ChargeSettled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Status = StatusSettled
		c.UpdatedAt = data.SettledAt
	case EventChargeSettlementNotConfirmed:
		var data ChargeSettlementNotConfirmed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Status = StatusNotSettled
		c.UpdatedAt = data.VerifiedAt
	case EventChargeExpired:
		var data ChargeExpired
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Status = StatusExpired
		c.UpdatedAt = data.ExpiredAt
	case EventChargeRejected:
		var data ChargeRejected
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Status = StatusRejected
		c.UpdatedAt = data.RejectedAt
	}
	c.SetVersion(event.Version + 1)
	return nil
}

// Create starts a new charge stream
func Create(keys aggregate.Keys, chargeID, externalKey string, method Method, amountInCents int64, currency string) (*Charge, error) {
	if amountInCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if externalKey == "" {
		return nil, ErrInvalidExternalKey
	}
	if method != MethodAcquirerAccount && method != MethodBankTransfer {
		return nil, ErrInvalidMethod
	}

	c := New()
	err := aggregate.Raise(c, EventChargeCreated, keys, ChargeCreated{
		ChargeID:       chargeID,
		ApplicationKey: keys.ApplicationKey,
		ExternalKey:    externalKey,
		Method:         method,
		AmountInCents:  amountInCents,
		Currency:       currency,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SendToAcquirer submits the charge and records the outcome as an event.
// The acquirer is consulted only to decide which event to append; business
// refusals become events, never errors.
func (c *Charge) SendToAcquirer(ctx context.Context, keys aggregate.Keys, client acquirer.Client) error {
	if !c.CanTransitionTo(StatusProcessed) {
		return c.transitionError(StatusProcessed)
	}

	result, err := client.SubmitCharge(ctx, acquirer.ChargeRequest{
		ChargeKey:      c.ID,
		ApplicationKey: c.ApplicationKey,
		Method:         string(c.Method),
		AmountInCents:  c.AmountInCents,
		Currency:       c.Currency,
	})
	if err != nil {
		return fmt.Errorf("acquirer submit failed: %w", err)
	}

	switch result.Status {
	case acquirer.StatusAccepted:
		return aggregate.Raise(c, EventChargeProcessed, keys, ChargeProcessed{
			ChargeID:    c.ID,
			AcquirerKey: result.AcquirerKey,
			ProcessedAt: time.Now(),
		})
	case acquirer.StatusRejected:
		return aggregate.Raise(c, EventChargeRejected, keys, ChargeRejected{
			ChargeID:   c.ID,
			Reason:     result.Error,
			RejectedAt: time.Now(),
		})
	default:
		return aggregate.Raise(c, EventChargeCouldNotBeProcessed, keys, ChargeCouldNotBeProcessed{
			ChargeID: c.ID,
			Error:    result.Error,
			FailedAt: time.Now(),
		})
	}
}

// VerifySettlement asks the acquirer whether the charge settled and records
// the answer as an event.
func (c *Charge) VerifySettlement(ctx context.Context, keys aggregate.Keys, client acquirer.Client) error {
	if !c.CanTransitionTo(StatusSettled) {
		return c.transitionError(StatusSettled)
	}

	result, err := client.VerifySettlement(ctx, c.AcquirerKey)
	if err != nil {
		return fmt.Errorf("acquirer settlement verification failed: %w", err)
	}

	if result.Settled {
		return aggregate.Raise(c, EventChargeSettled, keys, ChargeSettled{
			ChargeID:  c.ID,
			SettledAt: result.SettledAt,
		})
	}
	return aggregate.Raise(c, EventChargeSettlementNotConfirmed, keys, ChargeSettlementNotConfirmed{
		ChargeID:   c.ID,
		VerifiedAt: time.Now(),
	})
}

// Expire terminates a charge whose retry window ran out
func (c *Charge) Expire(keys aggregate.Keys, reason string) error {
	if !c.CanTransitionTo(StatusExpired) {
		return c.transitionError(StatusExpired)
	}

	return aggregate.Raise(c, EventChargeExpired, keys, ChargeExpired{
		ChargeID:  c.ID,
		Reason:    reason,
		ExpiredAt: time.Now(),
	})
}

// Reject terminates a charge that failed validation downstream
func (c *Charge) Reject(keys aggregate.Keys, reason string) error {
	if !c.CanTransitionTo(StatusRejected) {
		return c.transitionError(StatusRejected)
	}

	return aggregate.Raise(c, EventChargeRejected, keys, ChargeRejected{
		ChargeID:   c.ID,
		Reason:     reason,
		RejectedAt: time.Now(),
	})
}
